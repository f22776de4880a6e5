package diff

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var hunkHeaderRe = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@ ?(.*)$`)

const devNull = "/dev/null"

// ParseError reports a diff that does not follow the unified diff grammar.
type ParseError struct {
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed diff at line %d: %s", e.Line, e.Reason)
}

type parser struct {
	files []FileDiff
	cur   *FileDiff

	// headers seen for the current file
	sawSource bool
	sawTarget bool
	afterHunk bool

	hunk       *Hunk
	oldLeft    int
	newLeft    int
	nextTarget int

	lineNo int
}

// Parse parses a unified diff. Text before the first file header is ignored.
// An empty diff yields no files and no error.
func Parse(text string) ([]FileDiff, error) {
	p := &parser{}
	for i, raw := range splitLines(text) {
		p.lineNo = i + 1
		if err := p.feed(strings.TrimSuffix(raw, "\r")); err != nil {
			return nil, err
		}
	}
	if err := p.finish(); err != nil {
		return nil, err
	}
	return p.files, nil
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func (p *parser) errorf(format string, args ...any) error {
	return &ParseError{Line: p.lineNo, Reason: fmt.Sprintf(format, args...)}
}

func (p *parser) inHunk() bool {
	return p.hunk != nil && (p.oldLeft > 0 || p.newLeft > 0)
}

func (p *parser) feed(raw string) error {
	if p.inHunk() {
		return p.hunkLine(raw)
	}
	p.hunk = nil

	switch {
	case strings.HasPrefix(raw, "diff --git "):
		p.startFile()
		p.cur.OldPath, p.cur.Path = parseGitHeader(strings.TrimPrefix(raw, "diff --git "))
	case strings.HasPrefix(raw, "--- "):
		// Plain "diff -u" output has no "diff --git" line; a second source
		// header starts the next file.
		if p.cur == nil || p.sawTarget {
			p.startFile()
		}
		p.sawSource = true
		p.afterHunk = false
		if src := parseHeaderPath(raw[4:]); src != "" {
			p.cur.OldPath = src
		} else {
			p.cur.IsNew = true
		}
	case strings.HasPrefix(raw, "+++ "):
		if p.cur == nil || !p.sawSource {
			return p.errorf("target header without source header")
		}
		p.sawTarget = true
		if dst := parseHeaderPath(raw[4:]); dst != "" {
			p.cur.Path = dst
		} else {
			p.cur.IsDeleted = true
			p.cur.Path = p.cur.OldPath
		}
	case strings.HasPrefix(raw, "@@"):
		if p.cur == nil || !p.sawTarget {
			return p.errorf("hunk header before file header")
		}
		return p.startHunk(raw)
	case p.cur == nil:
		// preamble, e.g. a commit message
	case strings.HasPrefix(raw, "new file mode"):
		p.cur.IsNew = true
	case strings.HasPrefix(raw, "deleted file mode"):
		p.cur.IsDeleted = true
	case strings.HasPrefix(raw, "rename from "):
		p.cur.OldPath = strings.TrimPrefix(raw, "rename from ")
	case strings.HasPrefix(raw, "rename to "):
		p.cur.Path = strings.TrimPrefix(raw, "rename to ")
	case strings.HasPrefix(raw, "Binary files "), raw == "GIT binary patch":
		p.cur.IsBinary = true
	case strings.HasPrefix(raw, `\`):
		// "\ No newline at end of file" after the last hunk line
	case p.afterHunk && raw != "-- " && raw != "" && strings.ContainsAny(raw[:1], "+- "):
		return p.errorf("line outside declared hunk range: %q", raw)
	}
	return nil
}

func (p *parser) startFile() {
	p.flushFile()
	p.cur = &FileDiff{}
	p.sawSource = false
	p.sawTarget = false
	p.afterHunk = false
	p.nextTarget = 0
}

func (p *parser) flushFile() {
	if p.cur == nil {
		return
	}
	if p.cur.Path == "" {
		p.cur.Path = p.cur.OldPath
	}
	p.files = append(p.files, *p.cur)
	p.cur = nil
}

func (p *parser) startHunk(raw string) error {
	m := hunkHeaderRe.FindStringSubmatch(raw)
	if m == nil {
		return p.errorf("invalid hunk header %q", raw)
	}
	h := Hunk{
		OldStart: atoi(m[1]),
		OldCount: countOrOne(m[2]),
		NewStart: atoi(m[3]),
		NewCount: countOrOne(m[4]),
		Section:  m[5],
	}
	if h.NewCount > 0 && h.NewStart < p.nextTarget {
		return p.errorf("hunk starting at target line %d overlaps previous hunk", h.NewStart)
	}

	p.cur.Hunks = append(p.cur.Hunks, h)
	p.hunk = &p.cur.Hunks[len(p.cur.Hunks)-1]
	p.oldLeft = h.OldCount
	p.newLeft = h.NewCount
	p.nextTarget = h.NewStart
	p.afterHunk = true
	return nil
}

func (p *parser) hunkLine(raw string) error {
	if raw == "" {
		raw = " "
	}
	switch raw[0] {
	case ' ':
		if p.oldLeft == 0 || p.newLeft == 0 {
			return p.errorf("context line exceeds hunk range")
		}
		p.appendLine(Context, raw[1:])
		p.oldLeft--
		p.newLeft--
	case '+':
		if p.newLeft == 0 {
			return p.errorf("added line exceeds hunk range")
		}
		p.appendLine(Added, raw[1:])
		p.newLeft--
	case '-':
		if p.oldLeft == 0 {
			return p.errorf("removed line exceeds hunk range")
		}
		p.hunk.Lines = append(p.hunk.Lines, Line{Kind: Removed, Text: raw[1:]})
		p.oldLeft--
	case '\\':
	default:
		return p.errorf("hunk truncated: expected %d source and %d target lines, got %q",
			p.oldLeft, p.newLeft, raw)
	}
	return nil
}

func (p *parser) appendLine(kind LineKind, text string) {
	p.hunk.Lines = append(p.hunk.Lines, Line{Kind: kind, TargetLine: p.nextTarget, Text: text})
	p.nextTarget++
}

func (p *parser) finish() error {
	if p.inHunk() {
		return p.errorf("unexpected end of diff: hunk expects %d more source and %d more target lines",
			p.oldLeft, p.newLeft)
	}
	p.flushFile()
	return nil
}

// parseGitHeader splits "a/old b/new" from a "diff --git" line. Paths with
// spaces are ambiguous there; the ---/+++ headers take precedence.
func parseGitHeader(rest string) (oldPath, newPath string) {
	idx := strings.LastIndex(rest, " b/")
	if idx < 0 {
		return "", ""
	}
	return stripPrefix(unquote(rest[:idx]), "a/"), stripPrefix(unquote(rest[idx+1:]), "b/")
}

// parseHeaderPath returns the path named by a ---/+++ header or "" for
// /dev/null. Trailing timestamps from "diff -u" are dropped.
func parseHeaderPath(s string) string {
	if i := strings.IndexByte(s, '\t'); i >= 0 {
		s = s[:i]
	}
	s = unquote(strings.TrimSpace(s))
	if s == devNull {
		return ""
	}
	if strings.HasPrefix(s, "a/") || strings.HasPrefix(s, "b/") {
		return s[2:]
	}
	return s
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		if u, err := strconv.Unquote(s); err == nil {
			return u
		}
	}
	return s
}

func stripPrefix(s, prefix string) string {
	return strings.TrimPrefix(s, prefix)
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func countOrOne(s string) int {
	if s == "" {
		return 1
	}
	return atoi(s)
}
