package providers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerSettings configures WithBreaker.
type BreakerSettings struct {
	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Zero disables the breaker.
	MaxFailures int
	// Cooldown is how long the breaker stays open before a trial request.
	Cooldown time.Duration
}

// breakerReviewer stops calling a provider after repeated failures so a run
// over many files fails fast once the backend is down.
type breakerReviewer struct {
	next Reviewer
	cb   *gobreaker.CircuitBreaker
}

// WithBreaker wraps r in a circuit breaker. Only provider failures count;
// context cancellation does not trip the breaker.
func WithBreaker(r Reviewer, s BreakerSettings, logger *zap.Logger) Reviewer {
	if s.MaxFailures <= 0 {
		return r
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cooldown := s.Cooldown
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    r.Name(),
		Timeout: cooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= uint32(s.MaxFailures)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("provider circuit breaker state changed",
				zap.String("provider", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return &breakerReviewer{next: r, cb: cb}
}

func (b *breakerReviewer) Name() string { return b.next.Name() }

func (b *breakerReviewer) Review(ctx context.Context, req ReviewRequest) (ReviewResponse, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Review(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return ReviewResponse{}, &Error{Provider: b.next.Name(), Err: fmt.Errorf("circuit breaker open: %w", err)}
		}
		return ReviewResponse{}, err
	}
	return out.(ReviewResponse), nil
}
