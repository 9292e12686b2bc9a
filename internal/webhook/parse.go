package webhook

import (
	"encoding/json"
	"strings"

	"github.com/coachkit/settled/internal/events"
)

type stripeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type invoiceObject struct {
	ID            string `json:"id"`
	Subscription  string `json:"subscription"`
	AmountPaid    int64  `json:"amount_paid"`
	Currency      string `json:"currency"`
	BillingReason string `json:"billing_reason"`
}

type subscriptionObject struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Customer string `json:"customer"`
}

// parseEvent maps a raw processor delivery onto the domain event set.
// Unhandled event types come back as ErrEventIgnored; the caller still
// acknowledges them.
func parseEvent(payload []byte) (string, events.Event, error) {
	var raw stripeEvent
	if err := json.Unmarshal(payload, &raw); err != nil {
		return "", nil, ErrInvalidPayload
	}
	if strings.TrimSpace(raw.ID) == "" {
		return "", nil, ErrInvalidPayload
	}

	switch strings.TrimSpace(raw.Type) {
	case "invoice.updated", "invoice.payment_succeeded":
		var inv invoiceObject
		if err := json.Unmarshal(raw.Data.Object, &inv); err != nil {
			return raw.ID, nil, ErrInvalidPayload
		}
		if inv.Subscription == "" {
			return raw.ID, nil, ErrEventIgnored
		}
		return raw.ID, events.InvoiceUpdated{
			ExternalSubscriptionID: inv.Subscription,
			InvoiceID:              inv.ID,
			NetAmount:              inv.AmountPaid,
			Currency:               inv.Currency,
			Trial:                  inv.AmountPaid == 0,
		}, nil

	case "customer.subscription.updated":
		var sub subscriptionObject
		if err := json.Unmarshal(raw.Data.Object, &sub); err != nil {
			return raw.ID, nil, ErrInvalidPayload
		}
		return raw.ID, events.ProcessorSubscriptionUpdated{
			ExternalSubscriptionID: sub.ID,
			Status:                 sub.Status,
		}, nil

	case "customer.subscription.deleted":
		var sub subscriptionObject
		if err := json.Unmarshal(raw.Data.Object, &sub); err != nil {
			return raw.ID, nil, ErrInvalidPayload
		}
		return raw.ID, events.ProcessorSubscriptionDeleted{
			ExternalSubscriptionID: sub.ID,
			CustomerID:             sub.Customer,
		}, nil

	default:
		return raw.ID, nil, ErrEventIgnored
	}
}
