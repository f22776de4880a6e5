package review

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// ParseFailure is returned when a reviewer reply cannot be turned into
// suggestions. Raw and Cleaned keep the text for diagnostics.
type ParseFailure struct {
	Raw     string
	Cleaned string
	Reason  string
	Err     error
}

func (e *ParseFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot parse suggestions: %s: %v", e.Reason, e.Err)
	}
	return "cannot parse suggestions: " + e.Reason
}

func (e *ParseFailure) Unwrap() error { return e.Err }

// CleanReply removes every "```json" and "```" marker and trims the result.
func CleanReply(raw string) string {
	s := strings.ReplaceAll(raw, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

// ParseSuggestions parses a reviewer reply. Any returned error is a
// *ParseFailure.
func ParseSuggestions(raw string, policy ElementPolicy) ([]Suggestion, error) {
	suggestions, _, err := parseSuggestions(raw, policy)
	return suggestions, err
}

// parseSuggestions also returns how many elements were dropped under
// PolicySkip.
func parseSuggestions(raw string, policy ElementPolicy) ([]Suggestion, int, error) {
	cleaned := CleanReply(raw)
	fail := func(reason string, err error) *ParseFailure {
		return &ParseFailure{Raw: raw, Cleaned: cleaned, Reason: reason, Err: err}
	}

	if !strings.HasPrefix(cleaned, "[") {
		return nil, 0, fail("reply is not a JSON array", nil)
	}
	var elements []json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &elements); err != nil {
		return nil, 0, fail("invalid JSON", err)
	}

	suggestions := make([]Suggestion, 0, len(elements))
	dropped := 0
	for i, el := range elements {
		s, err := decodeSuggestion(el)
		if err != nil {
			if policy == PolicyAtomic {
				return nil, 0, fail(fmt.Sprintf("element %d", i), err)
			}
			dropped++
			continue
		}
		suggestions = append(suggestions, s)
	}
	return suggestions, dropped, nil
}

var (
	errNotObject  = errors.New("not an object")
	errBadLine    = errors.New(`"line" must be a positive integer`)
	errBadComment = errors.New(`"comment" must be a non-empty string`)
)

func decodeSuggestion(el json.RawMessage) (Suggestion, error) {
	var obj map[string]any
	dec := json.NewDecoder(bytes.NewReader(el))
	dec.UseNumber()
	if err := dec.Decode(&obj); err != nil || obj == nil {
		return Suggestion{}, errNotObject
	}

	num, ok := obj["line"].(json.Number)
	if !ok {
		return Suggestion{}, errBadLine
	}
	line, err := lineNumber(num)
	if err != nil {
		return Suggestion{}, err
	}

	comment, ok := obj["comment"].(string)
	if !ok || strings.TrimSpace(comment) == "" {
		return Suggestion{}, errBadComment
	}
	return Suggestion{Line: line, Comment: comment}, nil
}

// lineNumber accepts integers and integral floats such as 3.0.
func lineNumber(num json.Number) (int, error) {
	if n, err := num.Int64(); err == nil {
		if n <= 0 || n > math.MaxInt32 {
			return 0, errBadLine
		}
		return int(n), nil
	}
	f, err := num.Float64()
	if err != nil || f != math.Trunc(f) || f <= 0 || f > math.MaxInt32 {
		return 0, errBadLine
	}
	return int(f), nil
}
