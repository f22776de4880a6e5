package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

const (
	hookMarkerStart = "# >>> rulebot pre-commit hook >>>"
	hookMarkerEnd   = "# <<< rulebot pre-commit hook <<<"
)

var (
	hookFormat string
	hookBlock  bool
)

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Manage the git pre-commit hook",
}

var hookInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Review staged additions before every commit",
	RunE: func(cmd *cobra.Command, args []string) error {
		hookPath, err := getHookPath(cmd.Context())
		if err != nil {
			return fail(cmd, err)
		}

		existing, err := os.ReadFile(hookPath)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fail(cmd, fmt.Errorf("reading hook file: %w", err))
		}

		section := generateHookScript(hookFormat, hookBlock)
		var content string
		if len(existing) == 0 {
			content = "#!/bin/sh\n" + section
		} else {
			content = replaceHookSection(string(existing), section)
		}

		if err := os.MkdirAll(filepath.Dir(hookPath), 0o755); err != nil {
			return fail(cmd, fmt.Errorf("creating hooks directory: %w", err))
		}
		if err := os.WriteFile(hookPath, []byte(content), 0o755); err != nil {
			return fail(cmd, fmt.Errorf("writing hook file: %w", err))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Installed rulebot pre-commit hook at %s\n", hookPath)
		return nil
	},
}

var hookUninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove the rulebot pre-commit hook",
	RunE: func(cmd *cobra.Command, args []string) error {
		hookPath, err := getHookPath(cmd.Context())
		if err != nil {
			return fail(cmd, err)
		}

		existing, err := os.ReadFile(hookPath)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				fmt.Fprintln(cmd.OutOrStdout(), "No pre-commit hook found.")
				return nil
			}
			return fail(cmd, fmt.Errorf("reading hook file: %w", err))
		}

		content := removeHookSection(string(existing))
		trimmed := strings.TrimSpace(content)
		if trimmed == "" || trimmed == "#!/bin/sh" || trimmed == "#!/bin/bash" {
			if err := os.Remove(hookPath); err != nil {
				return fail(cmd, fmt.Errorf("removing hook file: %w", err))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed rulebot pre-commit hook at %s\n", hookPath)
			return nil
		}

		if err := os.WriteFile(hookPath, []byte(content), 0o755); err != nil {
			return fail(cmd, fmt.Errorf("writing hook file: %w", err))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed rulebot section from %s\n", hookPath)
		return nil
	},
}

func getHookPath(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, "git", "rev-parse", "--git-path", "hooks/pre-commit").Output()
	if err != nil {
		return "", errors.New("not a git repository (git rev-parse --git-path failed)")
	}
	return strings.TrimSpace(string(out)), nil
}

// generateHookScript renders the marked hook section. When block is false
// suggestions are printed but never stop the commit.
func generateHookScript(format string, block bool) string {
	var b strings.Builder
	b.WriteString(hookMarkerStart + "\n")
	fmt.Fprintf(&b, "rulebot local --mode staged --format %s", format)
	if block {
		b.WriteString(" --fail-on-suggestions")
	}
	b.WriteString("\n")
	b.WriteString("RULEBOT_EXIT=$?\n")
	b.WriteString("if [ $RULEBOT_EXIT -eq 1 ]; then\n")
	b.WriteString("  echo \"rulebot: rule violations reported, commit blocked\"\n")
	b.WriteString("  exit 1\n")
	b.WriteString("elif [ $RULEBOT_EXIT -ge 2 ]; then\n")
	b.WriteString("  echo \"rulebot: review failed (exit $RULEBOT_EXIT), allowing commit\"\n")
	b.WriteString("fi\n")
	b.WriteString(hookMarkerEnd + "\n")
	return b.String()
}

func replaceHookSection(existing, section string) string {
	startIdx := strings.Index(existing, hookMarkerStart)
	endIdx := strings.Index(existing, hookMarkerEnd)
	if startIdx == -1 || endIdx == -1 || endIdx < startIdx {
		if !strings.HasSuffix(existing, "\n") {
			existing += "\n"
		}
		return existing + section
	}
	after := strings.TrimPrefix(existing[endIdx+len(hookMarkerEnd):], "\n")
	return existing[:startIdx] + section + after
}

func removeHookSection(existing string) string {
	startIdx := strings.Index(existing, hookMarkerStart)
	endIdx := strings.Index(existing, hookMarkerEnd)
	if startIdx == -1 || endIdx == -1 || endIdx < startIdx {
		return existing
	}
	after := strings.TrimPrefix(existing[endIdx+len(hookMarkerEnd):], "\n")
	return existing[:startIdx] + after
}

func init() {
	hookCmd.AddCommand(hookInstallCmd)
	hookCmd.AddCommand(hookUninstallCmd)
	hookInstallCmd.Flags().StringVar(&hookFormat, "format", "text", "Report format (text, json, markdown, sarif)")
	hookInstallCmd.Flags().BoolVar(&hookBlock, "block", true, "Block the commit when suggestions are reported")
}
