package ignore

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"

	"go.uber.org/zap"
)

// DefaultRulesFile is the rules file name that is never reviewed.
const DefaultRulesFile = ".project-rules.md"

// Matcher holds the patterns loaded for one run. It is read-only after
// construction and safe for concurrent use.
type Matcher struct {
	patterns      []string
	alwaysIgnored []string
}

// NewMatcher returns a Matcher for patterns. alwaysIgnored lists bare file
// names that are ignored before any pattern is consulted; when empty,
// DefaultRulesFile is used.
func NewMatcher(patterns, alwaysIgnored []string) *Matcher {
	if len(alwaysIgnored) == 0 {
		alwaysIgnored = []string{DefaultRulesFile}
	}
	return &Matcher{
		patterns:      append([]string(nil), patterns...),
		alwaysIgnored: append([]string(nil), alwaysIgnored...),
	}
}

// Patterns returns a copy of the loaded patterns.
func (m *Matcher) Patterns() []string {
	return append([]string(nil), m.patterns...)
}

// ShouldIgnore reports whether filePath is excluded from review.
func (m *Matcher) ShouldIgnore(filePath string) bool {
	base := path.Base(filePath)
	for _, name := range m.alwaysIgnored {
		if base == name {
			return true
		}
	}
	return matchPatterns(filePath, m.patterns)
}

// ShouldIgnore applies the default always-ignored names and patterns to
// filePath.
func ShouldIgnore(filePath string, patterns []string) bool {
	if path.Base(filePath) == DefaultRulesFile {
		return true
	}
	return matchPatterns(filePath, patterns)
}

func matchPatterns(filePath string, patterns []string) bool {
	base := path.Base(filePath)
	dir := path.Dir(filePath)

	for _, pattern := range patterns {
		switch {
		case strings.HasSuffix(pattern, "/"):
			p := strings.TrimSuffix(pattern, "/")
			if globMatch(p, dir) || globMatch(p, base) {
				return true
			}
		case strings.HasPrefix(pattern, "!"):
			// negation is not supported
		case strings.Contains(pattern, "/"):
			if globMatch(pattern, filePath) {
				return true
			}
		default:
			if globMatch(pattern, base) {
				return true
			}
		}
	}
	return false
}

func globMatch(pattern, name string) bool {
	ok, err := path.Match(pattern, name)
	return err == nil && ok
}

// Load reads an ignore file. A missing file yields a Matcher with no
// patterns. Negated and malformed patterns are kept but logged as warnings.
func Load(filename string, alwaysIgnored []string, logger *zap.Logger) (*Matcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if filename == "" {
		return NewMatcher(nil, alwaysIgnored), nil
	}

	f, err := os.Open(filename)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Debug("no ignore file", zap.String("path", filename))
			return NewMatcher(nil, alwaysIgnored), nil
		}
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	patterns, err := ParsePatterns(f)
	if err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}

	for _, p := range patterns {
		if strings.HasPrefix(p, "!") {
			logger.Warn("negated ignore pattern has no effect",
				zap.String("pattern", p),
				zap.String("file", filename))
			continue
		}
		if _, err := path.Match(strings.TrimSuffix(p, "/"), ""); err != nil {
			logger.Warn("invalid ignore pattern will never match",
				zap.String("pattern", p),
				zap.Error(err))
		}
	}

	logger.Debug("loaded ignore patterns",
		zap.String("path", filename),
		zap.Int("count", len(patterns)))
	return NewMatcher(patterns, alwaysIgnored), nil
}

// ParsePatterns reads one pattern per line, skipping blank lines and lines
// starting with "#".
func ParsePatterns(r io.Reader) ([]string, error) {
	var patterns []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return patterns, nil
}
