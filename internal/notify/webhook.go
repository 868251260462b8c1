package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const defaultWebhookTimeout = 3 * time.Second

// Webhook posts events as JSON to an HTTP endpoint. The payload carries a
// "content" field so chat webhooks (Discord, Slack-compatible) render it
// directly, plus the structured event.
type Webhook struct {
	url    string
	client *http.Client
}

// NewWebhook creates a webhook sink. A zero timeout uses 3 seconds.
func NewWebhook(url string, timeout time.Duration) *Webhook {
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	return &Webhook{url: url, client: &http.Client{Timeout: timeout}}
}

type webhookPayload struct {
	Content string `json:"content"`
	Event   Event  `json:"event"`
}

func (w *Webhook) Notify(ctx context.Context, ev Event) error {
	body, err := json.Marshal(webhookPayload{Content: ev.Summary(), Event: ev})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("post webhook: unexpected status %d", resp.StatusCode)
	}
	return nil
}
