package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"campus-portal/app/models"
)

const (
	defaultWebhookTimeout = 10 * time.Second
	maxWebhookRetries     = 3
)

// Webhook POSTs alerts as JSON to an HTTP endpoint (for example a chat
// incoming webhook). Transport errors and 5xx responses are retried with
// exponential backoff.
type Webhook struct {
	client *http.Client
	url    string
	base   time.Duration
}

// NewWebhook targets url.
func NewWebhook(url string) *Webhook {
	return &Webhook{
		client: &http.Client{Timeout: defaultWebhookTimeout},
		url:    url,
		base:   time.Second,
	}
}

type webhookPayload struct {
	Text  string                  `json:"text"`
	Alert *models.ProctoringAlert `json:"alert"`
}

func (w *Webhook) Send(ctx context.Context, alert *models.ProctoringAlert) error {
	body, err := json.Marshal(webhookPayload{Text: summary(alert), Alert: alert})
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= maxWebhookRetries; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(w.base << (attempt - 1))
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("webhook: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := w.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = fmt.Errorf("webhook: %w", err)
			continue
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("webhook: HTTP %d", resp.StatusCode)
		if resp.StatusCode < 500 {
			return lastErr
		}
	}
	return lastErr
}

func (w *Webhook) Close() error { return nil }
