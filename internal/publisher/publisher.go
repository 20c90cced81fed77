// Package publisher holds the channel integrations the engine publishes through.
package publisher

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"content-scheduler/internal/config"
	"content-scheduler/internal/models"
	"content-scheduler/internal/ratelimit"
	"content-scheduler/internal/scheduler"
)

// payload is the document handed to a channel for one content item.
type payload struct {
	ContentID   string    `json:"content_id"`
	Category    string    `json:"category"`
	Text        string    `json:"text"`
	Hashtags    []string  `json:"hashtags,omitempty"`
	MediaURL    string    `json:"media_url,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

func newPayload(item models.ContentItem, now time.Time) payload {
	return payload{
		ContentID:   item.ID,
		Category:    item.Category,
		Text:        item.Text,
		Hashtags:    item.Hashtags,
		MediaURL:    item.MediaURL,
		PublishedAt: now.UTC(),
	}
}

// New builds the publisher selected by cfg.Publisher. When a publish rate is
// configured and rdb is available the result is wrapped in a Throttled.
func New(ctx context.Context, cfg config.Config, rdb *redis.Client) (scheduler.Publisher, error) {
	var (
		pub scheduler.Publisher
		err error
	)
	switch cfg.Publisher {
	case "", "dryrun":
		pub = NewDryRun(nil)
	case "webhook":
		pub, err = NewWebhook(cfg.WebhookURL, cfg.WebhookTimeout)
	case "s3":
		pub, err = NewS3Archive(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown publisher %q", cfg.Publisher)
	}
	if err != nil {
		return nil, err
	}
	if cfg.PublishRateCap > 0 && rdb != nil {
		bucket := ratelimit.NewTokenBucket(rdb, cfg.PublishRateCap, cfg.PublishRateRefill, time.Hour)
		pub = NewThrottled(pub, bucket)
	}
	return pub, nil
}
