package review

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/rulebot/internal/diff"
	"github.com/dshills/rulebot/internal/ignore"
	"github.com/dshills/rulebot/internal/redact"
)

// Version is reported in every run report.
const Version = "1.0"

// Options configures an Engine.
type Options struct {
	// Rules is embedded verbatim in every prompt.
	Rules string
	// CommitID is attached to every posted comment.
	CommitID string
	// Ignore decides which files are skipped. Nil ignores only the default
	// rules file.
	Ignore *ignore.Matcher
	Policy ElementPolicy
	// ValidateLines drops suggestions whose line is not among the batch's
	// added lines.
	ValidateLines bool
	// RedactSecrets scrubs credential-like strings from patches before they
	// are sent. Files matching RedactPaths are replaced entirely.
	RedactSecrets bool
	RedactPaths   []string
	// Concurrency above one runs provider calls in parallel. Comments are
	// still posted in diff order.
	Concurrency int
}

// Engine runs the review pipeline over a set of addition batches.
type Engine struct {
	reviewer *AIReviewer
	sink     CommentSink
	opts     Options
	redactor *redact.Redactor
	logger   *zap.Logger
}

// NewEngine creates an Engine. A nil logger discards log output.
func NewEngine(reviewer *AIReviewer, sink CommentSink, opts Options, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Ignore == nil {
		opts.Ignore = ignore.NewMatcher(nil, nil)
	}
	if opts.Policy == "" {
		opts.Policy = PolicySkip
	}
	return &Engine{
		reviewer: reviewer,
		sink:     sink,
		opts:     opts,
		redactor: redact.New(opts.RedactPaths),
		logger:   logger,
	}
}

// outcome is the review of one batch before its comments are posted.
type outcome struct {
	result   FileResult
	duration time.Duration
}

// Run reviews every batch in order and posts the resulting comments. Per-file
// and per-comment failures are recorded in the report; the returned error is
// non-nil only when ctx is cancelled, in which case the partial report is
// returned as well.
func (e *Engine) Run(ctx context.Context, batches []diff.AdditionBatch) (*Report, error) {
	start := time.Now()
	report := &Report{
		Tool:     "rulebot",
		Version:  Version,
		RunID:    uuid.NewString(),
		CommitID: e.opts.CommitID,
		Provider: e.reviewer.Provider.Name(),
		Files:    make([]FileResult, 0, len(batches)),
	}
	logger := e.logger.With(zap.String("run_id", report.RunID))
	logger.Info("starting review",
		zap.Int("files", len(batches)),
		zap.String("provider", report.Provider),
		zap.Int("concurrency", e.opts.Concurrency))

	var err error
	if e.opts.Concurrency > 1 {
		err = e.runParallel(ctx, logger, batches, report)
	} else {
		err = e.runSequential(ctx, logger, batches, report)
	}

	report.Summary = ComputeSummary(report.Files)
	report.Timing.TotalMs = time.Since(start).Milliseconds()
	logger.Info("review finished",
		zap.Int("reviewed", report.Summary.Reviewed),
		zap.Int("ignored", report.Summary.Ignored),
		zap.Int("failed", report.Summary.Failed),
		zap.Int("posted", report.Summary.Posted),
		zap.Int("post_failures", report.Summary.PostFailures))
	return report, err
}

func (e *Engine) runSequential(ctx context.Context, logger *zap.Logger, batches []diff.AdditionBatch, report *Report) error {
	for _, b := range batches {
		if err := ctx.Err(); err != nil {
			return err
		}
		out := e.review(ctx, logger, b)
		if err := ctx.Err(); err != nil {
			return err
		}
		e.post(ctx, logger, b, &out.result)
		report.Timing.LLMMs += out.duration.Milliseconds()
		report.Files = append(report.Files, out.result)
	}
	return ctx.Err()
}

func (e *Engine) runParallel(ctx context.Context, logger *zap.Logger, batches []diff.AdditionBatch, report *Report) error {
	outcomes := make([]outcome, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Concurrency)
	for i, b := range batches {
		g.Go(func() error {
			outcomes[i] = e.review(gctx, logger, b)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}

	for i, b := range batches {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.post(ctx, logger, b, &outcomes[i].result)
		report.Timing.LLMMs += outcomes[i].duration.Milliseconds()
		report.Files = append(report.Files, outcomes[i].result)
	}
	return nil
}

// review obtains and parses the suggestions for one batch.
func (e *Engine) review(ctx context.Context, logger *zap.Logger, b diff.AdditionBatch) outcome {
	res := FileResult{Path: b.Filename, AddedLines: len(b.Lines)}
	log := logger.With(zap.String("file", b.Filename))

	if e.opts.Ignore.ShouldIgnore(b.Filename) {
		log.Debug("file ignored")
		res.Status = StatusIgnored
		return outcome{result: res}
	}

	patch := b.Patch
	if e.opts.RedactSecrets {
		var n int
		if patch, n = e.redactor.Content(b.Filename, patch); n > 0 {
			log.Info("redacted content before review", zap.Int("redactions", n))
		}
	}

	start := time.Now()
	raw, err := e.reviewer.GetReview(ctx, e.opts.Rules, b.Filename, patch)
	elapsed := time.Since(start)
	res.DurationMs = elapsed.Milliseconds()
	if err != nil {
		if ctx.Err() == nil {
			log.Error("provider request failed", zap.Error(err))
		}
		res.Status = StatusProviderError
		res.Error = err.Error()
		return outcome{result: res, duration: elapsed}
	}

	suggestions, dropped, err := parseSuggestions(raw, e.opts.Policy)
	if err != nil {
		var pf *ParseFailure
		if errors.As(err, &pf) {
			log.Warn("could not parse suggestions",
				zap.String("reason", pf.Reason),
				zap.NamedError("cause", pf.Err),
				zap.String("raw", pf.Raw),
				zap.String("cleaned", pf.Cleaned))
		}
		res.Status = StatusParseFailure
		res.Error = err.Error()
		return outcome{result: res, duration: elapsed}
	}
	if dropped > 0 {
		log.Warn("dropped invalid suggestions", zap.Int("count", dropped))
	}

	if e.opts.ValidateLines {
		kept := suggestions[:0]
		for _, s := range suggestions {
			if !b.HasLine(s.Line) {
				log.Warn("suggestion references a line without additions", zap.Int("line", s.Line))
				dropped++
				continue
			}
			kept = append(kept, s)
		}
		suggestions = kept
	}

	res.Status = StatusReviewed
	res.Suggestions = suggestions
	res.Dropped = dropped
	return outcome{result: res, duration: elapsed}
}

// post submits one comment per suggestion. A failed post is logged and the
// remaining suggestions are still posted.
func (e *Engine) post(ctx context.Context, logger *zap.Logger, b diff.AdditionBatch, res *FileResult) {
	for _, s := range res.Suggestions {
		if ctx.Err() != nil {
			return
		}
		c := Comment{
			Body:     s.Comment,
			CommitID: e.opts.CommitID,
			Path:     b.Filename,
			Line:     s.Line,
		}
		if err := e.sink.PostComment(ctx, c); err != nil {
			logger.Error("failed to post comment",
				zap.String("file", c.Path),
				zap.Int("line", c.Line),
				zap.Error(err))
			res.PostFailures++
			continue
		}
		logger.Info("comment posted", zap.String("file", c.Path), zap.Int("line", c.Line))
		res.Posted++
	}
}
