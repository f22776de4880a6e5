package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/rulebot/internal/diff"
	"github.com/dshills/rulebot/internal/gitctx"
	"github.com/dshills/rulebot/internal/github"
	"github.com/dshills/rulebot/internal/review"
)

// Local review flags
var (
	flagMode              string
	flagMergeBase         bool
	flagFailOnSuggestions bool
)

var localCmd = &cobra.Command{
	Use:   "local [revision-range]",
	Short: "Review additions in the local git repository",
	Long: "Review unstaged changes, the index, one commit or a revision range with the same rules " +
		"and provider as a pull request review. Nothing is posted; the report is printed.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(buildOverrides())
		if err != nil {
			return fail(cmd, err)
		}
		defer func() { _ = logger.Sync() }()
		if flagNoRedact {
			cfg.Privacy.RedactSecrets = false
		}
		if err := cfg.Validate(); err != nil {
			return fail(cmd, err)
		}

		mode, err := gitctx.ParseMode(flagMode)
		if err != nil {
			return fail(cmd, fmt.Errorf("%w: %v", errUsage, err))
		}
		var rev string
		if len(args) == 1 {
			rev = args[0]
			if flagMode == "" {
				mode = gitctx.ModeRange
			}
		}

		reviewer, opts, err := prepareRun(cfg, logger)
		if err != nil {
			return fail(cmd, err)
		}

		ctx := cmd.Context()
		res, err := gitctx.Diff(ctx, gitctx.Request{Mode: mode, Rev: rev, MergeBase: flagMergeBase})
		if err != nil {
			return fail(cmd, err)
		}
		batches, err := diff.ExtractAdditions(res.Diff)
		if err != nil {
			return fail(cmd, err)
		}
		logger.Debug("collected local diff",
			zap.String("mode", string(res.Mode)),
			zap.String("branch", res.Repo.Branch),
			zap.Int("files", len(batches)))

		opts.CommitID = res.Repo.Head
		report, runErr := review.NewEngine(reviewer, &review.RecordingSink{}, opts, logger).Run(ctx, batches)
		report.DryRun = true
		if owner, repo, err := github.DetectRepo(); err == nil {
			report.Repository = owner + "/" + repo
		}
		if err := finish(cmd, cfg, report, runErr); err != nil || exitCode != ExitSuccess {
			return err
		}
		if flagFailOnSuggestions && report.Summary.Suggestions > 0 {
			exitCode = ExitFindings
		}
		return nil
	},
}

func init() {
	addReviewFlags(localCmd)
	f := localCmd.Flags()
	f.StringVar(&flagMode, "mode", "", "What to diff: unstaged, staged, commit or range (default unstaged, or range when a range is given)")
	f.BoolVar(&flagMergeBase, "merge-base", true, "Diff a..b ranges against the merge base")
	f.BoolVar(&flagFailOnSuggestions, "fail-on-suggestions", false, "Exit 1 when any suggestion is reported")
}
