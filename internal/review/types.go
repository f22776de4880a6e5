package review

import (
	"context"
	"fmt"
	"sync"
)

// Suggestion is one validated line-specific remark from the reviewer.
type Suggestion struct {
	Line    int    `json:"line"`
	Comment string `json:"comment"`
}

// Comment is an inline review comment ready to be posted.
type Comment struct {
	Body     string `json:"body"`
	CommitID string `json:"commit_id"`
	Path     string `json:"path"`
	Line     int    `json:"line"`
}

// CommentSink posts inline comments to a pull request.
type CommentSink interface {
	PostComment(ctx context.Context, c Comment) error
}

// RecordingSink keeps every comment in memory instead of posting it. It backs
// dry runs and is safe for concurrent use.
type RecordingSink struct {
	mu       sync.Mutex
	comments []Comment

	// Fail, when set, is consulted before recording; a non-nil result is
	// returned as the post error and the comment is not recorded.
	Fail func(Comment) error
}

// PostComment records c.
func (s *RecordingSink) PostComment(ctx context.Context, c Comment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.Fail != nil {
		if err := s.Fail(c); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comments = append(s.comments, c)
	return nil
}

// Comments returns a copy of the recorded comments in post order.
func (s *RecordingSink) Comments() []Comment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Comment(nil), s.comments...)
}

// ElementPolicy controls how invalid array elements in a reply are handled.
type ElementPolicy string

const (
	// PolicySkip drops invalid elements and keeps the valid ones.
	PolicySkip ElementPolicy = "skip"
	// PolicyAtomic rejects the whole reply when any element is invalid.
	PolicyAtomic ElementPolicy = "atomic"
)

// ParseElementPolicy validates a policy name. An empty name selects PolicySkip.
func ParseElementPolicy(s string) (ElementPolicy, error) {
	switch ElementPolicy(s) {
	case "", PolicySkip:
		return PolicySkip, nil
	case PolicyAtomic:
		return PolicyAtomic, nil
	default:
		return "", fmt.Errorf("unknown element policy %q (want skip or atomic)", s)
	}
}

// FileStatus is the outcome of reviewing one file.
type FileStatus string

const (
	StatusReviewed      FileStatus = "reviewed"
	StatusIgnored       FileStatus = "ignored"
	StatusProviderError FileStatus = "provider_error"
	StatusParseFailure  FileStatus = "parse_failure"
)

// FileResult records what happened to one batch.
type FileResult struct {
	Path        string       `json:"path"`
	Status      FileStatus   `json:"status"`
	AddedLines  int          `json:"addedLines"`
	Suggestions []Suggestion `json:"suggestions,omitempty"`
	// Dropped counts invalid reply elements plus suggestions pointing at
	// lines the batch does not contain.
	Dropped      int    `json:"dropped,omitempty"`
	Posted       int    `json:"posted"`
	PostFailures int    `json:"postFailures,omitempty"`
	Error        string `json:"error,omitempty"`
	DurationMs   int64  `json:"durationMs"`
}

// Failed reports whether the file or any of its comments failed.
func (r FileResult) Failed() bool {
	return r.Status == StatusProviderError || r.Status == StatusParseFailure || r.PostFailures > 0
}

// Summary aggregates the file results of a run.
type Summary struct {
	Files        int `json:"files"`
	Reviewed     int `json:"reviewed"`
	Ignored      int `json:"ignored"`
	Failed       int `json:"failed"`
	Suggestions  int `json:"suggestions"`
	Posted       int `json:"posted"`
	PostFailures int `json:"postFailures"`
}

// Timing contains run durations.
type Timing struct {
	LLMMs   int64 `json:"llmMs"`
	TotalMs int64 `json:"totalMs"`
}

// Report is the outcome of one review run.
type Report struct {
	Tool        string       `json:"tool"`
	Version     string       `json:"version"`
	RunID       string       `json:"runId"`
	Repository  string       `json:"repository,omitempty"`
	PullRequest int          `json:"pullRequest,omitempty"`
	CommitID    string       `json:"commitId,omitempty"`
	Provider    string       `json:"provider,omitempty"`
	DryRun      bool         `json:"dryRun,omitempty"`
	Summary     Summary      `json:"summary"`
	Files       []FileResult `json:"files"`
	Timing      Timing       `json:"timing"`
}

// HasFailures reports whether any file or comment failed.
func (r *Report) HasFailures() bool {
	return r.Summary.Failed > 0 || r.Summary.PostFailures > 0
}

// ComputeSummary calculates the summary from file results.
func ComputeSummary(files []FileResult) Summary {
	s := Summary{Files: len(files)}
	for _, f := range files {
		switch f.Status {
		case StatusReviewed:
			s.Reviewed++
		case StatusIgnored:
			s.Ignored++
		case StatusProviderError, StatusParseFailure:
			s.Failed++
		}
		s.Suggestions += len(f.Suggestions)
		s.Posted += f.Posted
		s.PostFailures += f.PostFailures
	}
	return s
}
