package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dshills/rulebot/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage rulebot configuration",
}

func configPath() string {
	if flagConfig != "" {
		return flagConfig
	}
	return config.DefaultFile
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath()
		if _, err := os.Stat(path); err == nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Config file already exists at %s\n", path)
			return nil
		}
		if err := config.Save(path, config.Default()); err != nil {
			return fail(cmd, fmt.Errorf("writing config: %w", err))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Config file created at %s\n", path)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value in the config file. Keys: " + strings.Join(config.Keys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath()
		cfg, err := config.LoadFile(path, config.Default())
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return fail(cmd, err)
			}
			cfg = config.Default()
		}
		if err := config.SetField(&cfg, args[0], args[1]); err != nil {
			return fail(cmd, &config.Error{Problems: []string{err.Error()}})
		}
		if err := config.Save(path, cfg); err != nil {
			return fail(cmd, fmt.Errorf("saving config: %w", err))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", args[0], args[1])
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(nil)
		if err != nil {
			return fail(cmd, err)
		}
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fail(cmd, err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprint(out, string(data))
		fmt.Fprintf(out, "# AI_API_KEY: %s\n", setOrUnset(cfg.APIKey))
		fmt.Fprintf(out, "# GITHUB_TOKEN: %s\n", setOrUnset(cfg.GitHub.Token))
		return nil
	},
}

func setOrUnset(secret string) string {
	if secret == "" {
		return "unset"
	}
	return "set"
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configShowCmd)
}
