package review

import (
	"context"

	"github.com/dshills/rulebot/internal/providers"
)

// AIReviewer asks a provider to review one file's additions.
type AIReviewer struct {
	Provider     providers.Reviewer
	SystemPrompt string
	Temperature  float64
	// MaxTokens of zero leaves the provider default in place.
	MaxTokens int
}

// NewAIReviewer returns an AIReviewer with the default system prompt and
// temperature.
func NewAIReviewer(p providers.Reviewer) *AIReviewer {
	return &AIReviewer{
		Provider:     p,
		SystemPrompt: DefaultSystemPrompt,
		Temperature:  DefaultTemperature,
	}
}

// GetReview renders the prompt for filename and returns the provider's raw
// reply text unmodified.
func (r *AIReviewer) GetReview(ctx context.Context, rules, filename, patch string) (string, error) {
	resp, err := r.Provider.Review(ctx, providers.ReviewRequest{
		SystemPrompt: r.SystemPrompt,
		UserPrompt:   BuildPrompt(rules, filename, patch),
		MaxTokens:    r.MaxTokens,
		Temperature:  r.Temperature,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
