package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"timerd/internal/core"
)

// Webhook posts fired-timer events to a configured endpoint. An optional
// rate limiter caps the outgoing request rate; a burst of simultaneously
// due timers then queues on the limiter instead of hammering the receiver.
type Webhook struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
}

// NewWebhook creates a webhook sink. ratePerSec <= 0 disables limiting.
func NewWebhook(url string, ratePerSec float64) (*Webhook, error) {
	if url == "" {
		return nil, fmt.Errorf("webhook url is empty")
	}
	w := &Webhook{
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	if ratePerSec > 0 {
		w.limiter = rate.NewLimiter(rate.Limit(ratePerSec), 1)
	}
	return w, nil
}

type webhookPayload struct {
	TimerID         string    `json:"timer_id"`
	Name            string    `json:"name,omitempty"`
	NotificationKey string    `json:"notification_key,omitempty"`
	FiredAt         time.Time `json:"fired_at"`
}

func (w *Webhook) Notify(ctx context.Context, n core.Notification) error {
	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	body, err := json.Marshal(webhookPayload{
		TimerID:         n.TimerID.String(),
		Name:            n.Name,
		NotificationKey: n.NotificationKey,
		FiredAt:         n.FiredAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status: %d", resp.StatusCode)
	}
	return nil
}
