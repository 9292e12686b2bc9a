// Package notify posts lifecycle notifications to the growth team's webhook.
// Delivery is best effort: callers log failures and move on.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/coachkit/settled/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const requestTimeout = 10 * time.Second

// Notification is the payload the growth webhook expects.
type Notification struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Status    string `json:"status"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

type webhookNotifier struct {
	url    string
	client *http.Client
	log    *zap.Logger
}

func NewNotifier(cfg config.Config, log *zap.Logger) Notifier {
	return &webhookNotifier{
		url:    cfg.GrowthWebhookURL,
		client: &http.Client{Timeout: requestTimeout},
		log:    log.Named("notify"),
	}
}

func (n *webhookNotifier) Notify(ctx context.Context, payload Notification) error {
	if n.url == "" {
		n.log.Debug("growth webhook not configured, dropping notification",
			zap.String("email", payload.Email),
		)
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify: webhook returned %d", resp.StatusCode)
	}
	return nil
}

var Module = fx.Module("notify",
	fx.Provide(NewNotifier),
)
