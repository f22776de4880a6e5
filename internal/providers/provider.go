package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ReviewRequest contains the data sent to an LLM for review.
type ReviewRequest struct {
	SystemPrompt string
	UserPrompt   string
	// MaxTokens of zero selects the provider default.
	MaxTokens   int
	Temperature float64
}

// ReviewResponse contains the raw response from an LLM.
type ReviewResponse struct {
	Content    string
	TokensUsed int
}

// Reviewer is the provider abstraction interface.
type Reviewer interface {
	Review(ctx context.Context, req ReviewRequest) (ReviewResponse, error)
	Name() string
}

// Provider names accepted by New.
const (
	NameOpenAI    = "openai"
	NameAnthropic = "anthropic"
)

var (
	// ErrUnknownProvider is returned by New for a name outside the supported set.
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrMissingAPIKey is returned by New when no API key is configured.
	ErrMissingAPIKey = errors.New("API key is not set")
)

// Settings selects and configures a provider.
type Settings struct {
	Provider string
	APIKey   string
	// Model and BaseURL fall back to the provider defaults when empty.
	Model   string
	BaseURL string
	// MaxRetries bounds retries of rate-limited and server errors.
	MaxRetries int
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// Names lists the supported provider names.
func Names() []string {
	return []string{NameOpenAI, NameAnthropic}
}

// New creates a provider from settings. It performs no network calls.
func New(s Settings) (Reviewer, error) {
	name := strings.ToLower(strings.TrimSpace(s.Provider))
	switch name {
	case NameOpenAI, NameAnthropic:
	default:
		return nil, fmt.Errorf("%w: %q (supported: %s)", ErrUnknownProvider, s.Provider, strings.Join(Names(), ", "))
	}
	if s.APIKey == "" {
		return nil, fmt.Errorf("%s: %w", name, ErrMissingAPIKey)
	}

	if name == NameAnthropic {
		return NewAnthropic(s), nil
	}
	return NewOpenAI(s), nil
}

// DefaultModel returns the model used when none is configured.
func DefaultModel(provider string) string {
	switch strings.ToLower(provider) {
	case NameOpenAI:
		return defaultOpenAIModel
	case NameAnthropic:
		return defaultAnthropicModel
	default:
		return ""
	}
}
