package providers

import (
	"context"

	"go.uber.org/zap"

	"github.com/dshills/rulebot/internal/cache"
)

// cachedReviewer serves repeated identical requests from the response cache.
type cachedReviewer struct {
	next   Reviewer
	model  string
	cache  *cache.Cache
	logger *zap.Logger
}

// WithCache wraps r so that responses are stored in c and reused for
// identical requests. A nil or disabled cache returns r unchanged.
func WithCache(r Reviewer, model string, c *cache.Cache, logger *zap.Logger) Reviewer {
	if c == nil || !c.Enabled() {
		return r
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &cachedReviewer{next: r, model: model, cache: c, logger: logger}
}

func (c *cachedReviewer) Name() string { return c.next.Name() }

func (c *cachedReviewer) Review(ctx context.Context, req ReviewRequest) (ReviewResponse, error) {
	key := cache.Key{
		Provider:     c.next.Name(),
		Model:        c.model,
		SystemPrompt: req.SystemPrompt,
		UserPrompt:   req.UserPrompt,
	}
	if content, ok := c.cache.Get(key); ok {
		c.logger.Debug("using cached response", zap.String("provider", c.next.Name()))
		return ReviewResponse{Content: content}, nil
	}

	resp, err := c.next.Review(ctx, req)
	if err != nil {
		return resp, err
	}
	if err := c.cache.Put(key, resp.Content); err != nil {
		c.logger.Warn("failed to write cache", zap.Error(err))
	}
	return resp, nil
}
