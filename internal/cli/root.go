package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/dshills/rulebot/internal/config"
	"github.com/dshills/rulebot/internal/github"
	"github.com/dshills/rulebot/internal/logging"
	"github.com/dshills/rulebot/internal/providers"
)

const version = "0.1.0"

// Exit codes
const (
	ExitSuccess      = 0
	ExitFindings     = 1
	ExitUsageError   = 2
	ExitAuthError    = 3
	ExitRuntimeError = 4
)

// Global flags
var (
	flagConfig    string
	flagEnvFile   string
	flagVerbose   bool
	flagLogFormat string
)

var rootCmd = &cobra.Command{
	Use:   "rulebot",
	Short: "AI review of pull request additions against project rules",
	Long: "Rulebot sends the lines a pull request adds to an LLM together with the project's rules " +
		"and posts each reported violation as an inline review comment.",
}

// exitCode is set by command handlers to control the process exit code.
var exitCode = ExitSuccess

// Run executes the root command with the process arguments and returns an
// exit code. SIGINT and SIGTERM cancel the running review.
func Run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return Execute(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
}

// Execute runs the command tree with explicit arguments and streams.
func Execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	exitCode = ExitSuccess
	rootCmd.SetArgs(args)
	rootCmd.SetIn(stdin)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		// Cobra already prints the error
		return ExitUsageError
	}
	return exitCode
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print rulebot version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "rulebot version %s\n", version)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "Config file (default "+config.DefaultFile+")")
	pf.StringVar(&flagEnvFile, "env-file", ".env", "Environment file loaded before reading configuration")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "Enable debug logging")
	pf.StringVar(&flagLogFormat, "log-format", "", "Log format (console, json)")
	rootCmd.SetGlobalNormalizationFunc(normalizeFlagName)

	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(localCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(providersCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(hookCmd)
	rootCmd.AddCommand(versionCmd)
}

// normalizeFlagName accepts underscores in flag names, so --diff_file and
// --diff-file are the same flag.
func normalizeFlagName(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

// loadConfig reads the env file and configuration, then builds the logger
// the configuration asks for.
func loadConfig(overrides map[string]string) (config.Config, *zap.Logger, error) {
	if err := config.LoadDotEnv(flagEnvFile); err != nil {
		return config.Config{}, nil, err
	}
	cfg, err := config.Load(flagConfig, overrides)
	if err != nil {
		return config.Config{}, nil, err
	}
	if flagLogFormat != "" {
		cfg.LogFormat = flagLogFormat
	}
	logger, err := logging.New(logging.Options{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Verbose: flagVerbose,
	})
	if err != nil {
		return config.Config{}, nil, &config.Error{Problems: []string{err.Error()}}
	}
	return cfg, logger, nil
}

// errUsage marks command line mistakes that are not configuration errors.
var errUsage = errors.New("usage error")

// exitCodeFor maps an error to the process exit code.
func exitCodeFor(err error) int {
	var cfgErr *config.Error
	switch {
	case errors.As(err, &cfgErr),
		errors.Is(err, errUsage),
		errors.Is(err, providers.ErrUnknownProvider),
		errors.Is(err, providers.ErrMissingAPIKey):
		return ExitUsageError
	case errors.Is(err, github.ErrAuth), providers.IsAuthError(err):
		return ExitAuthError
	default:
		return ExitRuntimeError
	}
}

// fail reports err on stderr and records the matching exit code. It returns
// nil so Cobra does not print the error a second time.
func fail(cmd *cobra.Command, err error) error {
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
	exitCode = exitCodeFor(err)
	return nil
}
