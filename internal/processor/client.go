// Package processor abstracts the payment processor capability set the
// settlement engine consumes, backed by Stripe.
package processor

import (
	"context"

	stripe "github.com/stripe/stripe-go/v82"
)

// Page carries cursor state for the processor's paginated list endpoints.
type Page struct {
	HasMore    bool
	NextCursor string
}

// ListQuery narrows a paginated list call. Account scopes the call to a
// connected account when set; CreatedAfter requests records created strictly
// after the given unix timestamp (the ingestion watermark).
type ListQuery struct {
	Account       string
	CreatedAfter  int64
	StartingAfter string
	Limit         int64
}

// TransferRequest asks the processor to move funds to a connected account.
type TransferRequest struct {
	Amount        int64
	Currency      string
	Destination   string
	TransferGroup string
}

// Client is the processor capability set. One interface call maps to one
// API page so callers drive the pagination loop explicitly.
type Client interface {
	ListCharges(ctx context.Context, q ListQuery) ([]*stripe.Charge, Page, error)
	ListSubscriptions(ctx context.Context, q ListQuery) ([]*stripe.Subscription, Page, error)
	ListApplicationFees(ctx context.Context, q ListQuery) ([]*stripe.ApplicationFee, Page, error)
	ListCustomers(ctx context.Context, q ListQuery) ([]*stripe.Customer, Page, error)
	GetCharge(ctx context.Context, id string) (*stripe.Charge, error)
	GetCustomer(ctx context.Context, id string) (*stripe.Customer, error)
	GetBalanceTransaction(ctx context.Context, id, account string) (*stripe.BalanceTransaction, error)
	CreateTransfer(ctx context.Context, req TransferRequest) (*stripe.Transfer, error)
}

// DefaultPageSize matches the processor's maximum list page size.
const DefaultPageSize = 100
