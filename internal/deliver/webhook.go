// Package deliver forwards accepted payloads to the downstream webhook.
// Delivery is a single synchronous POST per request; there are no retries
// and no queueing. Failures are reported to the caller, who has already
// durably recorded the message.
package deliver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gatewall/relay/internal/embed"
	"github.com/gatewall/relay/internal/metrics"
)

// maxErrorBody bounds how much of a failed response body is kept for the
// error message.
const maxErrorBody = 512

// Webhook delivers payloads to a single webhook URL.
type Webhook struct {
	url    string
	client *http.Client
}

// NewWebhook creates a webhook deliverer. A nil client gets a default with
// a 10s timeout.
func NewWebhook(url string, client *http.Client) *Webhook {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Webhook{url: url, client: client}
}

// Deliver POSTs the payload's embeds as JSON and returns an error for any
// transport failure or non-2xx response.
func (w *Webhook) Deliver(ctx context.Context, p embed.Payload) error {
	start := time.Now()
	err := w.post(ctx, p)

	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.DeliveryLatency.WithLabelValues(result).Observe(time.Since(start).Seconds())

	return err
}

func (w *Webhook) post(ctx context.Context, p embed.Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("deliver: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("deliver: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver: post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("deliver: webhook returned %d: %s", resp.StatusCode, detail)
	}
	return nil
}
