package webhook

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/coachkit/settled/internal/clock"
	"github.com/coachkit/settled/internal/config"
	"github.com/coachkit/settled/internal/events"
	"github.com/coachkit/settled/internal/observability/metrics"
	"github.com/coachkit/settled/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Handler struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock
	bus    *events.Bus
	secret string
}

type HandlerParam struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Bus    *events.Bus
	Config config.Config
}

func NewHandler(p HandlerParam) *Handler {
	return &Handler{
		db:     p.DB,
		log:    p.Log.Named("webhook"),
		genID:  p.GenID,
		clock:  p.Clock,
		bus:    p.Bus,
		secret: p.Config.StripeWebhookSecret,
	}
}

// Process verifies, records and dispatches one delivery. The dedupe row is
// written before any handler runs; a redelivered event id whose first
// delivery completed is acknowledged with no side effects.
func (h *Handler) Process(ctx context.Context, payload []byte, signatureHeader string) error {
	if err := verifySignature(payload, signatureHeader, h.secret); err != nil {
		metrics.Scheduler().IncWebhookEvent("unknown", "bad_signature")
		return err
	}

	eventID, event, err := parseEvent(payload)
	if err != nil {
		if errors.Is(err, ErrEventIgnored) {
			metrics.Scheduler().IncWebhookEvent("ignored", "acked")
			return nil
		}
		metrics.Scheduler().IncWebhookEvent("unknown", "bad_payload")
		return err
	}

	record := &WebhookEvent{
		ID:              h.genID.Generate(),
		Provider:        providerStripe,
		ProviderEventID: eventID,
		EventType:       event.Tag(),
		Payload:         datatypes.JSON(payload),
		ReceivedAt:      h.clock.Now(),
	}
	if err := h.db.WithContext(ctx).Create(record).Error; err != nil {
		if !db.IsDuplicateKeyErr(err) {
			return err
		}
		var existing WebhookEvent
		findErr := h.db.WithContext(ctx).
			First(&existing, "provider = ? AND provider_event_id = ?", providerStripe, eventID).Error
		if findErr != nil {
			return findErr
		}
		if existing.ProcessedAt != nil {
			h.log.Info("duplicate delivery acknowledged",
				zap.String("event_id", eventID),
				zap.String("event_type", event.Tag()),
			)
			metrics.Scheduler().IncWebhookEvent(event.Tag(), "duplicate")
			return nil
		}
		// first delivery never finished; run the handlers against the
		// original record
		record = &existing
	}

	if err := h.bus.Publish(ctx, event); err != nil {
		metrics.Scheduler().IncWebhookEvent(event.Tag(), "handler_error")
		return err
	}

	now := h.clock.Now()
	if err := h.db.WithContext(ctx).
		Model(&WebhookEvent{}).
		Where("id = ?", record.ID).
		Update("processed_at", now).Error; err != nil {
		return err
	}

	metrics.Scheduler().IncWebhookEvent(event.Tag(), "processed")
	return nil
}

var Module = fx.Module("webhook",
	fx.Provide(NewHandler),
)
