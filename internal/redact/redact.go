package redact

import (
	"path"
	"regexp"
	"strings"
)

// Placeholder replaces every detected secret.
const Placeholder = "[REDACTED]"

// Withheld is sent instead of the content of a path-redacted file.
const Withheld = Placeholder + " (file content withheld by path policy)"

var secretPatterns = []*regexp.Regexp{
	// key/secret assignments
	regexp.MustCompile(`(?i)(api[_-]?key|apikey|api[_-]?secret)\s*[:=]\s*["']?[A-Za-z0-9/+=_-]{20,}["']?`),
	regexp.MustCompile(`(?i)aws[_-]?secret[_-]?access[_-]?key\s*[:=]\s*["']?[A-Za-z0-9/+=]{40}["']?`),
	regexp.MustCompile(`(?i)(secret|token|password|passwd|credential)\s*[:=]\s*["'][^"']{8,}["']`),
	regexp.MustCompile(`(?i)(key|secret|token)\s*[:=]\s*["']?[0-9a-f]{32,}["']?`),
	// well-known token shapes
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
	regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9._-]{20,}`),
	regexp.MustCompile(`eyJ[A-Za-z0-9_-]{10,}\.eyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}`),
	regexp.MustCompile(`-----BEGIN\s+([A-Z]+\s+)?PRIVATE KEY-----`),
	regexp.MustCompile(`gh[pousr]_[A-Za-z0-9_]{36,}`),
	regexp.MustCompile(`github_pat_[A-Za-z0-9_]{40,}`),
	regexp.MustCompile(`xox[bporas]-[A-Za-z0-9-]{10,}`),
	regexp.MustCompile(`sk-ant-[A-Za-z0-9_-]{20,}`),
	regexp.MustCompile(`sk-(proj-)?[A-Za-z0-9]{20,}`),
	// user:password@ in connection URLs
	regexp.MustCompile(`(?i)\b[a-z][a-z0-9+.-]*://[^\s:/@"']+:[^\s@"']+@`),
}

// Secrets replaces detected secrets in text and reports how many matches
// were replaced.
func Secrets(text string) (string, int) {
	count := 0
	for _, pat := range secretPatterns {
		text = pat.ReplaceAllStringFunc(text, func(string) string {
			count++
			return Placeholder
		})
	}
	return text, count
}

// Redactor applies secret scrubbing and path withholding for one run. It is
// safe for concurrent use.
type Redactor struct {
	paths []string
}

// New returns a Redactor that withholds files matching any of paths.
func New(paths []string) *Redactor {
	return &Redactor{paths: append([]string(nil), paths...)}
}

// Withholds reports whether the whole content of filePath must be withheld.
func (r *Redactor) Withholds(filePath string) bool {
	filePath = strings.TrimPrefix(path.Clean(filePath), "/")
	base := path.Base(filePath)
	for _, pattern := range r.paths {
		if match(pattern, filePath) {
			return true
		}
		// "**/x" matches x at any depth
		if rest, ok := strings.CutPrefix(pattern, "**/"); ok && match(rest, base) {
			return true
		}
	}
	return false
}

// Content returns patch as it may be sent for filePath, and the number of
// redactions made. A withheld file counts as one.
func (r *Redactor) Content(filePath, patch string) (string, int) {
	if r.Withholds(filePath) {
		return Withheld, 1
	}
	return Secrets(patch)
}

func match(pattern, name string) bool {
	ok, err := path.Match(pattern, name)
	return err == nil && ok
}
