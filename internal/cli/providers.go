package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/rulebot/internal/providers"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List and check LLM providers",
}

var knownModels = map[string][]string{
	providers.NameOpenAI: {
		"gpt-4o",
		"gpt-4o-mini",
		"gpt-4.1",
		"gpt-4.1-mini",
	},
	providers.NameAnthropic: {
		"claude-3-5-sonnet-20241022",
		"claude-3-5-haiku-20241022",
		"claude-3-7-sonnet-20250219",
	},
}

var providersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List supported providers and common models",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		for _, name := range providers.Names() {
			fmt.Fprintf(out, "%s (default model %s):\n", name, providers.DefaultModel(name))
			for _, m := range knownModels[name] {
				fmt.Fprintf(out, "  - %s\n", m)
			}
			fmt.Fprintln(out)
		}
	},
}

var providersDoctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Validate provider credentials with a one-token request",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(buildOverrides())
		if err != nil {
			return fail(cmd, err)
		}
		defer func() { _ = logger.Sync() }()

		fmt.Fprintf(cmd.OutOrStdout(), "Checking %s...\n", cfg.Provider)
		p, err := newProvider(providers.Settings{
			Provider: cfg.Provider,
			APIKey:   cfg.APIKey,
			Model:    cfg.Model,
			BaseURL:  cfg.BaseURL,
		})
		if err != nil {
			return fail(cmd, err)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		_, err = p.Review(ctx, providers.ReviewRequest{
			SystemPrompt: "Respond with exactly: ok",
			UserPrompt:   "ping",
			MaxTokens:    10,
		})
		if err != nil {
			return fail(cmd, err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "OK: %s is configured and responding\n", p.Name())
		return nil
	},
}

func init() {
	providersCmd.AddCommand(providersListCmd)
	providersCmd.AddCommand(providersDoctorCmd)
	providersDoctorCmd.Flags().StringVar(&flagProvider, "provider", "", "Provider to check")
	providersDoctorCmd.Flags().StringVar(&flagModel, "model", "", "Model to check")
}
