package processor

import (
	"context"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

type stripeClient struct {
	api *client.API
}

// NewStripeClient builds a processor client from an explicit secret key.
// The handle is passed through constructors; no package-level key is set.
func NewStripeClient(secretKey string) Client {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &stripeClient{api: api}
}

func listParams(ctx context.Context, q ListQuery) stripe.ListParams {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	params := stripe.ListParams{
		Context: ctx,
		Limit:   stripe.Int64(limit),
		Single:  true,
	}
	if q.StartingAfter != "" {
		params.StartingAfter = stripe.String(q.StartingAfter)
	}
	if q.Account != "" {
		params.StripeAccount = stripe.String(q.Account)
	}
	return params
}

func createdRange(after int64) *stripe.RangeQueryParams {
	if after <= 0 {
		return nil
	}
	return &stripe.RangeQueryParams{GreaterThan: after}
}

func (c *stripeClient) ListCharges(ctx context.Context, q ListQuery) ([]*stripe.Charge, Page, error) {
	params := &stripe.ChargeListParams{ListParams: listParams(ctx, q)}
	params.CreatedRange = createdRange(q.CreatedAfter)

	iter := c.api.Charges.List(params)
	var out []*stripe.Charge
	for iter.Next() {
		out = append(out, iter.Charge())
	}
	if err := iter.Err(); err != nil {
		return nil, Page{}, err
	}
	return out, pageOf(len(out), iter.ChargeList().HasMore, func(i int) string { return out[i].ID }), nil
}

func (c *stripeClient) ListSubscriptions(ctx context.Context, q ListQuery) ([]*stripe.Subscription, Page, error) {
	params := &stripe.SubscriptionListParams{
		ListParams: listParams(ctx, q),
		Status:     stripe.String("all"),
	}
	params.CreatedRange = createdRange(q.CreatedAfter)

	iter := c.api.Subscriptions.List(params)
	var out []*stripe.Subscription
	for iter.Next() {
		out = append(out, iter.Subscription())
	}
	if err := iter.Err(); err != nil {
		return nil, Page{}, err
	}
	return out, pageOf(len(out), iter.SubscriptionList().HasMore, func(i int) string { return out[i].ID }), nil
}

func (c *stripeClient) ListApplicationFees(ctx context.Context, q ListQuery) ([]*stripe.ApplicationFee, Page, error) {
	params := &stripe.ApplicationFeeListParams{ListParams: listParams(ctx, q)}
	params.CreatedRange = createdRange(q.CreatedAfter)

	iter := c.api.ApplicationFees.List(params)
	var out []*stripe.ApplicationFee
	for iter.Next() {
		out = append(out, iter.ApplicationFee())
	}
	if err := iter.Err(); err != nil {
		return nil, Page{}, err
	}
	return out, pageOf(len(out), iter.ApplicationFeeList().HasMore, func(i int) string { return out[i].ID }), nil
}

func (c *stripeClient) ListCustomers(ctx context.Context, q ListQuery) ([]*stripe.Customer, Page, error) {
	params := &stripe.CustomerListParams{ListParams: listParams(ctx, q)}
	params.CreatedRange = createdRange(q.CreatedAfter)

	iter := c.api.Customers.List(params)
	var out []*stripe.Customer
	for iter.Next() {
		out = append(out, iter.Customer())
	}
	if err := iter.Err(); err != nil {
		return nil, Page{}, err
	}
	return out, pageOf(len(out), iter.CustomerList().HasMore, func(i int) string { return out[i].ID }), nil
}

func (c *stripeClient) GetCharge(ctx context.Context, id string) (*stripe.Charge, error) {
	return c.api.Charges.Get(id, &stripe.ChargeParams{Params: stripe.Params{Context: ctx}})
}

func (c *stripeClient) GetCustomer(ctx context.Context, id string) (*stripe.Customer, error) {
	return c.api.Customers.Get(id, &stripe.CustomerParams{Params: stripe.Params{Context: ctx}})
}

func (c *stripeClient) GetBalanceTransaction(ctx context.Context, id, account string) (*stripe.BalanceTransaction, error) {
	params := &stripe.BalanceTransactionParams{Params: stripe.Params{Context: ctx}}
	if account != "" {
		params.StripeAccount = stripe.String(account)
	}
	return c.api.BalanceTransactions.Get(id, params)
}

func (c *stripeClient) CreateTransfer(ctx context.Context, req TransferRequest) (*stripe.Transfer, error) {
	params := &stripe.TransferParams{
		Params:      stripe.Params{Context: ctx},
		Amount:      stripe.Int64(req.Amount),
		Currency:    stripe.String(req.Currency),
		Destination: stripe.String(req.Destination),
	}
	if req.TransferGroup != "" {
		params.TransferGroup = stripe.String(req.TransferGroup)
	}
	return c.api.Transfers.New(params)
}

func pageOf(n int, hasMore bool, idAt func(int) string) Page {
	page := Page{HasMore: hasMore}
	if n > 0 {
		page.NextCursor = idAt(n - 1)
	}
	return page
}
