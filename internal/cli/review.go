package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/rulebot/internal/cache"
	"github.com/dshills/rulebot/internal/config"
	"github.com/dshills/rulebot/internal/diff"
	"github.com/dshills/rulebot/internal/github"
	"github.com/dshills/rulebot/internal/ignore"
	"github.com/dshills/rulebot/internal/output"
	"github.com/dshills/rulebot/internal/providers"
	"github.com/dshills/rulebot/internal/review"
)

// Shared review flags
var (
	flagProvider    string
	flagModel       string
	flagFormat      string
	flagOut         string
	flagRules       string
	flagIgnoreFile  string
	flagConcurrency int
	flagNoRedact    bool
	flagStrict      bool
)

// Pull request flags
var (
	flagDryRun     bool
	flagDiffFile   string
	flagDiffSource string
	flagRepo       string
	flagPR         int
	flagCommit     string
)

// Test seams.
var (
	newProvider     = providers.New
	newGitHubClient = github.NewClient
)

func addReviewFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagProvider, "provider", "", "LLM provider (openai, anthropic)")
	cmd.Flags().StringVar(&flagModel, "model", "", "Model name")
	cmd.Flags().StringVar(&flagFormat, "format", "", "Report format (text, json, markdown, sarif)")
	cmd.Flags().StringVar(&flagOut, "out", "", "Report file path (default: stdout)")
	cmd.Flags().StringVar(&flagRules, "rules", "", "Rules file path")
	cmd.Flags().StringVar(&flagIgnoreFile, "ignore-file", "", "Ignore patterns file")
	cmd.Flags().IntVar(&flagConcurrency, "concurrency", 0, "Number of files reviewed in parallel")
	cmd.Flags().BoolVar(&flagNoRedact, "no-redact", false, "Disable secret redaction (use with caution)")
	cmd.Flags().BoolVar(&flagStrict, "strict", false, "Exit 1 when any file or comment failed")
}

func buildOverrides() map[string]string {
	m := make(map[string]string)
	set := func(key, v string) {
		if v != "" {
			m[key] = v
		}
	}
	set("provider", flagProvider)
	set("model", flagModel)
	set("format", flagFormat)
	set("rulesFile", flagRules)
	set("ignoreFile", flagIgnoreFile)
	set("diffSource", flagDiffSource)
	set("github.repository", flagRepo)
	set("github.commitID", flagCommit)
	if flagConcurrency > 0 {
		m["concurrency"] = strconv.Itoa(flagConcurrency)
	}
	if flagPR > 0 {
		m["github.prNumber"] = strconv.Itoa(flagPR)
	}
	return m
}

// newReviewer builds the provider chain: backend, optional response cache,
// then the circuit breaker.
func newReviewer(cfg config.Config, logger *zap.Logger) (*review.AIReviewer, error) {
	p, err := newProvider(providers.Settings{
		Provider:   cfg.Provider,
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		BaseURL:    cfg.BaseURL,
		MaxRetries: cfg.MaxRetries,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Cache.Enabled {
		c, err := cache.New(true, cfg.Cache.Dir, cfg.Cache.TTLSeconds)
		if err != nil {
			return nil, fmt.Errorf("opening cache: %w", err)
		}
		model := cfg.Model
		if model == "" {
			model = providers.DefaultModel(cfg.Provider)
		}
		p = providers.WithCache(p, model, c, logger)
	}
	p = providers.WithBreaker(p, providers.BreakerSettings{
		MaxFailures: cfg.Breaker.MaxFailures,
		Cooldown:    time.Duration(cfg.Breaker.CooldownSeconds) * time.Second,
	}, logger)

	r := review.NewAIReviewer(p)
	if cfg.SystemPrompt != "" {
		r.SystemPrompt = cfg.SystemPrompt
	}
	r.Temperature = cfg.Temperature
	r.MaxTokens = cfg.MaxTokens
	return r, nil
}

// prepareRun loads what every review shares: rules, ignore patterns and the
// reviewer.
func prepareRun(cfg config.Config, logger *zap.Logger) (*review.AIReviewer, review.Options, error) {
	policy, err := review.ParseElementPolicy(cfg.ElementPolicy)
	if err != nil {
		return nil, review.Options{}, &config.Error{Problems: []string{err.Error()}}
	}
	rules, err := review.LoadRules(cfg.RulesFile)
	if err != nil {
		return nil, review.Options{}, fmt.Errorf("%w: %v", errUsage, err)
	}
	matcher, err := ignore.Load(cfg.IgnoreFile, cfg.AlwaysIgnore, logger)
	if err != nil {
		return nil, review.Options{}, err
	}
	reviewer, err := newReviewer(cfg, logger)
	if err != nil {
		return nil, review.Options{}, err
	}

	if !cfg.Privacy.RedactSecrets {
		logger.Warn("secret redaction is disabled")
	}
	opts := review.Options{
		Rules:         rules,
		CommitID:      cfg.GitHub.CommitID,
		Ignore:        matcher,
		Policy:        policy,
		ValidateLines: cfg.ValidateLines,
		RedactSecrets: cfg.Privacy.RedactSecrets,
		RedactPaths:   cfg.Privacy.RedactPaths,
		Concurrency:   cfg.Concurrency,
	}
	return reviewer, opts, nil
}

// finish writes the report and sets the exit code for a completed run.
func finish(cmd *cobra.Command, cfg config.Config, report *review.Report, runErr error) error {
	if err := output.WriteReport(report, cfg.Format, flagOut, cmd.OutOrStdout()); err != nil {
		return fail(cmd, fmt.Errorf("writing report: %w", err))
	}
	if runErr != nil {
		return fail(cmd, fmt.Errorf("review interrupted: %w", runErr))
	}
	if flagStrict && report.HasFailures() {
		exitCode = ExitFindings
	}
	return nil
}

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Review the additions of a GitHub pull request",
	Long: "Fetch the pull request diff, review every added line against the project rules and " +
		"post one inline comment per reported violation.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(buildOverrides())
		if err != nil {
			return fail(cmd, err)
		}
		defer func() { _ = logger.Sync() }()
		if flagNoRedact {
			cfg.Privacy.RedactSecrets = false
		}
		return runPullRequestReview(cmd, cfg, logger)
	},
}

func runPullRequestReview(cmd *cobra.Command, cfg config.Config, logger *zap.Logger) error {
	ctx := cmd.Context()
	offline := flagDiffFile != "" && flagDryRun

	if !offline && cfg.GitHub.Repository == "" {
		if owner, repo, err := github.DetectRepo(); err == nil {
			cfg.GitHub.Repository = owner + "/" + repo
			logger.Debug("repository detected from git remote", zap.String("repository", cfg.GitHub.Repository))
		}
	}
	if err := cfg.Validate(); err != nil {
		return fail(cmd, err)
	}
	if !offline {
		if err := cfg.ValidateGitHub(); err != nil {
			return fail(cmd, err)
		}
	}

	reviewer, opts, err := prepareRun(cfg, logger)
	if err != nil {
		return fail(cmd, err)
	}

	var (
		gh          *github.Client
		owner, repo string
	)
	if !offline {
		owner, repo, err = github.ParseRepository(cfg.GitHub.Repository)
		if err != nil {
			return fail(cmd, &config.Error{Problems: []string{err.Error()}})
		}
		gh, err = githubClient(ctx, cfg, logger)
		if err != nil {
			return fail(cmd, err)
		}
	}

	batches, err := collectBatches(ctx, cmd.InOrStdin(), cfg, gh, owner, repo, logger)
	if err != nil {
		return fail(cmd, err)
	}

	var sink review.CommentSink
	if flagDryRun {
		sink = &review.RecordingSink{}
	} else {
		sink = gh.PullRequest(owner, repo, cfg.GitHub.PRNumber)
	}

	report, runErr := review.NewEngine(reviewer, sink, opts, logger).Run(ctx, batches)
	report.Repository = cfg.GitHub.Repository
	report.PullRequest = cfg.GitHub.PRNumber
	report.DryRun = flagDryRun
	return finish(cmd, cfg, report, runErr)
}

// githubClient authenticates with App credentials when configured and with
// the token otherwise.
func githubClient(ctx context.Context, cfg config.Config, logger *zap.Logger) (*github.Client, error) {
	opts := github.Options{
		Token:             cfg.GitHub.Token,
		APIURL:            cfg.GitHub.APIURL,
		CommentsPerSecond: cfg.GitHub.CommentsPerSecond,
		Logger:            logger,
	}
	if cfg.GitHub.UsesApp() {
		ts, err := github.AppTokenSourceFromFile(cfg.GitHub.AppID, cfg.GitHub.InstallationID,
			cfg.GitHub.PrivateKeyPath, cfg.GitHub.APIURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", github.ErrAuth, err)
		}
		opts.TokenSource = ts
	}
	return newGitHubClient(ctx, opts)
}

// collectBatches obtains the addition batches from a diff file, the pull
// request diff or the pull request files listing.
func collectBatches(ctx context.Context, stdin io.Reader, cfg config.Config, gh *github.Client, owner, repo string, logger *zap.Logger) ([]diff.AdditionBatch, error) {
	if flagDiffFile != "" {
		text, err := readDiffFile(flagDiffFile, stdin)
		if err != nil {
			return nil, err
		}
		logger.Debug("read diff file", zap.String("path", flagDiffFile), zap.Int("bytes", len(text)))
		return diff.ExtractAdditions(text)
	}

	pr := cfg.GitHub.PRNumber
	if cfg.DiffSource == config.DiffSourceFiles {
		files, err := gh.ListPRFiles(ctx, owner, repo, pr)
		if err != nil {
			return nil, err
		}
		logger.Debug("fetched pull request files", zap.Int("files", len(files)))
		return diff.ExtractFromPatches(github.FilePatches(files)), nil
	}

	text, err := gh.GetPRDiff(ctx, owner, repo, pr)
	if err != nil {
		return nil, err
	}
	logger.Debug("fetched pull request diff", zap.Int("bytes", len(text)))
	return diff.ExtractAdditions(text)
}

func readDiffFile(path string, stdin io.Reader) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("reading diff: %w", err)
	}
	return string(data), nil
}

func init() {
	addReviewFlags(reviewCmd)
	f := reviewCmd.Flags()
	f.BoolVar(&flagDryRun, "dry-run", false, "Review and report without posting comments")
	f.StringVar(&flagDiffFile, "diff-file", "", "Read the unified diff from a file (- for stdin) instead of GitHub")
	f.StringVar(&flagDiffSource, "diff-source", "", "GitHub diff source (diff, files)")
	f.StringVar(&flagRepo, "repo", "", "Repository as owner/name (default GITHUB_REPOSITORY or git remote)")
	f.IntVar(&flagPR, "pr", 0, "Pull request number (default PR_NUMBER)")
	f.StringVar(&flagCommit, "commit", "", "Commit id comments are attached to (default COMMIT_ID)")
}
