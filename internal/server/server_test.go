package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/coachkit/settled/internal/clock"
	"github.com/coachkit/settled/internal/config"
	"github.com/coachkit/settled/internal/events"
	"github.com/coachkit/settled/internal/webhook"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

const testSecret = "whsec_test"

func sign(payload []byte, secret string) string {
	ts := "1717243200"
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts + "." + string(payload)))
	return fmt.Sprintf("t=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func setup(t *testing.T) (*gin.Engine, *events.Bus) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&webhook.WebhookEvent{}))
	require.NoError(t, db.Exec(
		`CREATE UNIQUE INDEX idx_webhook_events_provider_event ON webhook_events (provider, provider_event_id)`,
	).Error)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	bus := events.NewBus(zaptest.NewLogger(t))
	h := webhook.NewHandler(webhook.HandlerParam{
		DB:     db,
		Log:    zaptest.NewLogger(t),
		GenID:  node,
		Clock:  clock.NewFakeClock(time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)),
		Bus:    bus,
		Config: config.Config{StripeWebhookSecret: testSecret},
	})

	r := NewEngine()
	RegisterRoutes(r, ServerParams{Log: zaptest.NewLogger(t), Webhook: h})
	return r, bus
}

func post(r *gin.Engine, payload []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signature)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func invoicePayload(eventID string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": %q,
		"type": "invoice.updated",
		"data": {"object": {
			"id": "in_1",
			"subscription": "sub_ext_1",
			"amount_paid": 1000,
			"currency": "usd",
			"billing_reason": "subscription_cycle"
		}}
	}`, eventID))
}

func TestHealthz(t *testing.T) {
	r, _ := setup(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	r, _ := setup(t)

	w := post(r, invoicePayload("evt_1"), "t=1,v1=deadbeef")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookAcksValidDelivery(t *testing.T) {
	r, bus := setup(t)

	dispatched := 0
	bus.Subscribe(events.TagInvoiceUpdated, func(ctx context.Context, ev events.Event) error {
		dispatched++
		return nil
	})

	payload := invoicePayload("evt_1")
	w := post(r, payload, sign(payload, testSecret))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, dispatched)
}

func TestWebhookHandlerErrorIsServerError(t *testing.T) {
	r, bus := setup(t)

	bus.Subscribe(events.TagInvoiceUpdated, func(ctx context.Context, ev events.Event) error {
		return fmt.Errorf("downstream unavailable")
	})

	payload := invoicePayload("evt_2")
	w := post(r, payload, sign(payload, testSecret))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
