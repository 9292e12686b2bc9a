// Package webhook receives, verifies and dispatches processor webhooks.
// Every delivery is recorded before any side effect runs; the unique
// (provider, event id) pair makes redelivery harmless.
package webhook

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const providerStripe = "stripe"

var (
	ErrInvalidSignature = errors.New("webhook: invalid signature")
	ErrInvalidPayload   = errors.New("webhook: invalid payload")
	ErrEventIgnored     = errors.New("webhook: event type ignored")
)

// WebhookEvent is the dedupe record for one delivery.
type WebhookEvent struct {
	ID              snowflake.ID   `gorm:"primaryKey"`
	Provider        string         `gorm:"type:text;not null"`
	ProviderEventID string         `gorm:"type:text;not null"`
	EventType       string         `gorm:"type:text;not null"`
	Payload         datatypes.JSON `gorm:"type:jsonb;not null"`
	ReceivedAt      time.Time      `gorm:"not null"`
	ProcessedAt     *time.Time     `gorm:""`
}

func (WebhookEvent) TableName() string { return "webhook_events" }
