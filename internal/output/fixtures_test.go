package output

import "github.com/dshills/rulebot/internal/review"

func sampleReport() *review.Report {
	files := []review.FileResult{
		{
			Path:       "main.go",
			Status:     review.StatusReviewed,
			AddedLines: 4,
			Suggestions: []review.Suggestion{
				{Line: 3, Comment: "Use the structured logger | not fmt.Println."},
				{Line: 7, Comment: "Exported function needs a doc comment."},
			},
			Posted:       1,
			PostFailures: 1,
		},
		{Path: "clean.go", Status: review.StatusReviewed, AddedLines: 2},
		{Path: ".project-rules.md", Status: review.StatusIgnored, AddedLines: 1},
		{Path: "broken.go", Status: review.StatusProviderError, AddedLines: 1, Error: "openai: status 500: upstream"},
	}
	return &review.Report{
		Tool:        "rulebot",
		Version:     review.Version,
		RunID:       "run-1",
		Repository:  "acme/widgets",
		PullRequest: 42,
		CommitID:    "0123456789abcdef0123",
		Provider:    "openai",
		Summary:     review.ComputeSummary(files),
		Files:       files,
		Timing:      review.Timing{LLMMs: 120, TotalMs: 150},
	}
}

func emptyReport() *review.Report {
	return &review.Report{Tool: "rulebot", Version: review.Version, Provider: "anthropic", Files: []review.FileResult{}}
}
