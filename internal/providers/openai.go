package providers

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

const (
	defaultOpenAIModel     = "gpt-4o"
	defaultOpenAIMaxTokens = 4096
)

// OpenAI implements the Reviewer interface on the chat completions API.
type OpenAI struct {
	client     *openai.Client
	model      string
	maxRetries int
}

// NewOpenAI creates a new OpenAI provider.
func NewOpenAI(s Settings) *OpenAI {
	cfg := openai.DefaultConfig(s.APIKey)
	if s.BaseURL != "" {
		cfg.BaseURL = s.BaseURL
	}
	if s.HTTPClient != nil {
		cfg.HTTPClient = s.HTTPClient
	}
	model := s.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAI{
		client:     openai.NewClientWithConfig(cfg),
		model:      model,
		maxRetries: s.MaxRetries,
	}
}

func (o *OpenAI) Name() string { return NameOpenAI }

func (o *OpenAI) Review(ctx context.Context, req ReviewRequest) (ReviewResponse, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultOpenAIMaxTokens
	}

	chat := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: req.UserPrompt},
		},
		MaxTokens:   maxTokens,
		Temperature: float32(req.Temperature),
	}

	var resp ReviewResponse
	err := retryWithBackoff(ctx, o.maxRetries, func() error {
		result, err := o.client.CreateChatCompletion(ctx, chat)
		if err != nil {
			return o.wrapError(err)
		}
		if len(result.Choices) == 0 {
			return &Error{Provider: NameOpenAI, Err: errors.New("no choices in response")}
		}
		resp = ReviewResponse{
			Content:    result.Choices[0].Message.Content,
			TokensUsed: result.Usage.TotalTokens,
		}
		return nil
	})
	return resp, err
}

func (o *OpenAI) wrapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &Error{Provider: NameOpenAI, StatusCode: apiErr.HTTPStatusCode, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &Error{Provider: NameOpenAI, StatusCode: reqErr.HTTPStatusCode, Err: err}
	}
	return &Error{Provider: NameOpenAI, Err: fmt.Errorf("sending request: %w", err)}
}
