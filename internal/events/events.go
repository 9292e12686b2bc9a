// Package events defines the closed set of domain events exchanged between
// the settlement components, plus a synchronous in-process bus.
package events

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	TagSubscriptionCreated         = "subscription.created"
	TagPlatformSubscriptionCreated = "platform.subscription.created"
	TagAppOwnerSubscriptionCreated = "appowner.subscription.created"
	TagInvoiceUpdated              = "invoice.updated"
	TagProcessorSubUpdated         = "customer.subscription.updated"
	TagProcessorSubDeleted         = "customer.subscription.deleted"
)

// Event is implemented by every domain event variant. The set is closed;
// handlers switch on the tag and type-assert the concrete payload.
type Event interface {
	Tag() string
}

// SubscriptionCreated fires when a merchant's subscription row is created,
// either through checkout or the manual subscribe flow.
type SubscriptionCreated struct {
	SubscriptionID   snowflake.ID
	MerchantID       snowflake.ID
	MerchantStripeID string
	PlatformSub      string
	TxnID            string
	Currency         string
}

func (SubscriptionCreated) Tag() string { return TagSubscriptionCreated }

// PlatformSubscriptionCreated drives commission-window computation.
// Anchor is the trial end when the subscription started in trial, else the
// subscription creation time.
type PlatformSubscriptionCreated struct {
	SubscriptionID snowflake.ID
	ProfileID      snowflake.ID
	Anchor         time.Time
}

func (PlatformSubscriptionCreated) Tag() string { return TagPlatformSubscriptionCreated }

// AppOwnerSubscriptionCreated triggers a full snapshot reconciliation pass.
type AppOwnerSubscriptionCreated struct {
	ExternalSubscriptionID string
}

func (AppOwnerSubscriptionCreated) Tag() string { return TagAppOwnerSubscriptionCreated }

// InvoiceUpdated is derived from the processor's invoice webhook and drives
// recurring commission payouts.
type InvoiceUpdated struct {
	ExternalSubscriptionID string
	InvoiceID              string
	// NetAmount is the invoice's net settled amount in minor units.
	NetAmount int64
	Currency  string
	Trial     bool
}

func (InvoiceUpdated) Tag() string { return TagInvoiceUpdated }

// ProcessorSubscriptionUpdated is derived from the processor's
// customer.subscription.updated webhook.
type ProcessorSubscriptionUpdated struct {
	ExternalSubscriptionID string
	Status                 string
}

func (ProcessorSubscriptionUpdated) Tag() string { return TagProcessorSubUpdated }

// ProcessorSubscriptionDeleted is derived from the processor's
// customer.subscription.deleted webhook.
type ProcessorSubscriptionDeleted struct {
	ExternalSubscriptionID string
	CustomerID             string
}

func (ProcessorSubscriptionDeleted) Tag() string { return TagProcessorSubDeleted }
