package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"content-scheduler/internal/models"
)

const maxErrorBody = 512

// Webhook POSTs each item as JSON to a fixed URL. Any 2xx response is a
// success; an "id" field in the response body becomes the external ref.
type Webhook struct {
	url    string
	client *http.Client
	now    func() time.Time
}

func NewWebhook(url string, timeout time.Duration) (*Webhook, error) {
	if url == "" {
		return nil, errors.New("webhook publisher requires WEBHOOK_URL")
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Webhook{url: url, client: &http.Client{Timeout: timeout}, now: time.Now}, nil
}

func (w *Webhook) Publish(ctx context.Context, item models.ContentItem) (models.PublishResult, error) {
	body, err := json.Marshal(newPayload(item, w.now()))
	if err != nil {
		return models.PublishResult{}, fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return models.PublishResult{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", item.ID)

	resp, err := w.client.Do(req)
	if err != nil {
		return models.PublishResult{}, fmt.Errorf("webhook: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(raw))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		return models.PublishResult{
			Success:      false,
			ErrorMessage: fmt.Sprintf("webhook returned %d: %s", resp.StatusCode, msg),
		}, nil
	}

	var ack struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(raw, &ack)
	return models.PublishResult{Success: true, ExternalRef: ack.ID}, nil
}
