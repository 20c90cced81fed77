package publisher

import (
	"context"
	"fmt"

	"content-scheduler/internal/models"
	"content-scheduler/internal/scheduler"
	"content-scheduler/internal/telemetry"
)

const throttleKey = "publish"

// Limiter hands out publish tokens.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, float64, error)
}

// Throttled caps the publish rate of next across every replica. A call made
// without a token fails like any transient channel error and is retried by
// the loop.
type Throttled struct {
	next    scheduler.Publisher
	limiter Limiter
}

func NewThrottled(next scheduler.Publisher, limiter Limiter) *Throttled {
	return &Throttled{next: next, limiter: limiter}
}

func (t *Throttled) Publish(ctx context.Context, item models.ContentItem) (models.PublishResult, error) {
	allowed, _, err := t.limiter.Allow(ctx, throttleKey)
	if err != nil {
		return models.PublishResult{}, fmt.Errorf("publish rate limiter: %w", err)
	}
	if !allowed {
		telemetry.RateLimitRejects.Inc()
		return models.PublishResult{Success: false, ErrorMessage: "publish rate limit exceeded"}, nil
	}
	return t.next.Publish(ctx, item)
}
