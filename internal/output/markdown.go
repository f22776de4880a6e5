package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/dshills/rulebot/internal/review"
)

// MarkdownWriter outputs a report suitable for a PR comment or job summary.
type MarkdownWriter struct{}

func (m *MarkdownWriter) Write(w io.Writer, report *review.Report) error {
	ew := &errWriter{w: w}
	s := report.Summary

	ew.printf("## Rulebot Review\n\n")
	if report.Repository != "" {
		ew.printf("Pull request **%s#%d**", report.Repository, report.PullRequest)
		if report.CommitID != "" {
			ew.printf(" at `%s`", shortSHA(report.CommitID))
		}
		ew.printf("\n\n")
	}
	if report.DryRun {
		ew.printf("> Dry run: no comments were posted.\n\n")
	}

	ew.printf("| Files | Reviewed | Ignored | Failed | Suggestions | Posted |\n")
	ew.printf("|-------|----------|---------|--------|-------------|--------|\n")
	ew.printf("| %d | %d | %d | %d | %d | %d |\n\n",
		s.Files, s.Reviewed, s.Ignored, s.Failed, s.Suggestions, s.Posted)

	if s.Suggestions == 0 && s.Failed == 0 {
		ew.println("No rule violations reported. :white_check_mark:")
		return ew.err
	}

	for _, f := range report.Files {
		if f.Status == review.StatusIgnored {
			continue
		}
		if f.Status == review.StatusReviewed && len(f.Suggestions) == 0 {
			continue
		}

		ew.printf("<details>\n<summary>%s <code>%s</code> (%s)</summary>\n\n",
			mdStatusIcon(f), f.Path, mdCount(f))
		if f.Error != "" {
			ew.printf("> %s\n\n", strings.ReplaceAll(f.Error, "\n", "\n> "))
		}
		if len(f.Suggestions) > 0 {
			ew.printf("| Line | Comment |\n|------|---------|\n")
			for _, sg := range f.Suggestions {
				ew.printf("| %d | %s |\n", sg.Line, mdCell(sg.Comment))
			}
			ew.printf("\n")
		}
		ew.printf("</details>\n\n")
	}

	ew.printf("*Reviewed in %dms (LLM: %dms)*\n", report.Timing.TotalMs, report.Timing.LLMMs)
	return ew.err
}

func mdStatusIcon(f review.FileResult) string {
	switch {
	case f.Status == review.StatusProviderError || f.Status == review.StatusParseFailure:
		return ":red_circle:"
	case f.PostFailures > 0:
		return ":orange_circle:"
	default:
		return ":yellow_circle:"
	}
}

func mdCount(f review.FileResult) string {
	if f.Status != review.StatusReviewed {
		return statusLabel(f.Status)
	}
	if len(f.Suggestions) == 1 {
		return "1 suggestion"
	}
	return fmt.Sprintf("%d suggestions", len(f.Suggestions))
}

// mdCell makes text safe for a single table cell.
func mdCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	s = strings.ReplaceAll(s, "\r\n", "<br>")
	return strings.ReplaceAll(s, "\n", "<br>")
}
