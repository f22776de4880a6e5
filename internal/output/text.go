package output

import (
	"io"
	"strings"

	"github.com/dshills/rulebot/internal/review"
)

// TextWriter outputs a human-readable text report.
type TextWriter struct{}

func (t *TextWriter) Write(w io.Writer, report *review.Report) error {
	ew := &errWriter{w: w}
	s := report.Summary

	ew.printf("Rulebot Review (%s)", report.Provider)
	if report.DryRun {
		ew.printf(" [dry run]")
	}
	ew.println("")
	if report.Repository != "" {
		ew.printf("Pull request: %s#%d", report.Repository, report.PullRequest)
		if report.CommitID != "" {
			ew.printf(" @ %s", shortSHA(report.CommitID))
		}
		ew.println("")
	}
	ew.println(strings.Repeat("─", 60))
	ew.printf("Files: %d (%d reviewed, %d ignored, %d failed)\n", s.Files, s.Reviewed, s.Ignored, s.Failed)
	ew.printf("Suggestions: %d, posted: %d", s.Suggestions, s.Posted)
	if s.PostFailures > 0 {
		ew.printf(", failed to post: %d", s.PostFailures)
	}
	ew.println("")
	ew.println(strings.Repeat("─", 60))

	if s.Suggestions == 0 && s.Failed == 0 && s.PostFailures == 0 {
		ew.println("\nNo rule violations reported.")
	}

	for _, f := range report.Files {
		if f.Status == review.StatusIgnored {
			continue
		}
		if f.Status == review.StatusReviewed && len(f.Suggestions) == 0 && f.PostFailures == 0 {
			continue
		}
		ew.printf("\n%s %s (%s)\n", fileIcon(f), f.Path, statusLabel(f.Status))
		if f.Error != "" {
			for _, line := range wrapText(f.Error, 70) {
				ew.printf("    %s\n", line)
			}
		}
		for _, sg := range f.Suggestions {
			ew.printf("  line %d:\n", sg.Line)
			for _, line := range wrapText(sg.Comment, 70) {
				ew.printf("    %s\n", line)
			}
		}
		if f.Dropped > 0 {
			ew.printf("  (%d suggestion(s) dropped)\n", f.Dropped)
		}
		if f.PostFailures > 0 {
			ew.printf("  %d comment(s) could not be posted\n", f.PostFailures)
		}
	}

	ew.printf("\n%s\n", strings.Repeat("─", 60))
	ew.printf("Completed in %dms (LLM: %dms)\n", report.Timing.TotalMs, report.Timing.LLMMs)
	return ew.err
}

func fileIcon(f review.FileResult) string {
	switch {
	case f.Status == review.StatusProviderError || f.Status == review.StatusParseFailure:
		return "[!!]"
	case f.PostFailures > 0:
		return "[!]"
	default:
		return "[-]"
	}
}

func shortSHA(sha string) string {
	if len(sha) > 12 {
		return sha[:12]
	}
	return sha
}

func wrapText(text string, width int) []string {
	var lines []string
	for _, para := range strings.Split(text, "\n") {
		if len(para) <= width {
			lines = append(lines, para)
			continue
		}
		var current strings.Builder
		for _, word := range strings.Fields(para) {
			if current.Len()+len(word)+1 > width && current.Len() > 0 {
				lines = append(lines, current.String())
				current.Reset()
			}
			if current.Len() > 0 {
				current.WriteString(" ")
			}
			current.WriteString(word)
		}
		if current.Len() > 0 {
			lines = append(lines, current.String())
		}
	}
	return lines
}
