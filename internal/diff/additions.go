package diff

import (
	"fmt"
	"strings"
)

// AdditionBatch is the rendered set of added lines for one file.
type AdditionBatch struct {
	Filename string
	// Patch concatenates "+ Line {n}: {text}" entries with no separator;
	// each entry is self-describing through its "Line n:" prefix.
	Patch string
	// Lines lists the target line numbers present in Patch. It is empty for
	// batches built from files-listing patches.
	Lines []int
}

// HasLine reports whether line is one of the batch's added lines. Batches
// without line information accept every line.
func (b AdditionBatch) HasLine(line int) bool {
	if len(b.Lines) == 0 {
		return true
	}
	for _, l := range b.Lines {
		if l == line {
			return true
		}
	}
	return false
}

// ExtractAdditions parses a full unified diff and returns one batch per file
// that adds at least one line, in diff order.
func ExtractAdditions(text string) ([]AdditionBatch, error) {
	files, err := Parse(text)
	if err != nil {
		return nil, err
	}
	return Additions(files), nil
}

// Additions renders batches from already parsed files.
func Additions(files []FileDiff) []AdditionBatch {
	var batches []AdditionBatch
	for _, f := range files {
		added := f.AddedLines()
		if len(added) == 0 {
			continue
		}
		var b strings.Builder
		lines := make([]int, 0, len(added))
		for _, l := range added {
			fmt.Fprintf(&b, "+ Line %d: %s", l.TargetLine, strings.TrimSpace(l.Text))
			lines = append(lines, l.TargetLine)
		}
		batches = append(batches, AdditionBatch{
			Filename: f.Path,
			Patch:    b.String(),
			Lines:    lines,
		})
	}
	return batches
}

// FilePatch is one entry of a files-listing response. Patch is nil for
// binary files and files too large for the API to include a patch.
type FilePatch struct {
	Filename string
	Patch    *string
}

// ExtractFromPatches builds batches from per-file patch fragments. Added lines
// are kept verbatim, "+" prefix included, and joined with newlines.
func ExtractFromPatches(files []FilePatch) []AdditionBatch {
	var batches []AdditionBatch
	for _, f := range files {
		if f.Patch == nil {
			continue
		}
		var added []string
		for _, line := range splitLines(*f.Patch) {
			line = strings.TrimSuffix(line, "\r")
			if strings.HasPrefix(line, "+") {
				added = append(added, line)
			}
		}
		if len(added) == 0 {
			continue
		}
		batches = append(batches, AdditionBatch{
			Filename: f.Filename,
			Patch:    strings.Join(added, "\n"),
		})
	}
	return batches
}
