package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/coachkit/settled/internal/clock"
	commissiondomain "github.com/coachkit/settled/internal/commission/domain"
	commissionrepo "github.com/coachkit/settled/internal/commission/repository"
	"github.com/coachkit/settled/internal/processor"
	settlementdomain "github.com/coachkit/settled/internal/settlement/domain"
	settlementrepo "github.com/coachkit/settled/internal/settlement/repository"
	splitpaydomain "github.com/coachkit/settled/internal/splitpay/domain"
	splitpayrepo "github.com/coachkit/settled/internal/splitpay/repository"
	subscriptiondomain "github.com/coachkit/settled/internal/subscription/domain"
	subscriptionrepo "github.com/coachkit/settled/internal/subscription/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	stripe "github.com/stripe/stripe-go/v82"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

// Manual Mocks

type fakeClient struct {
	processor.Client

	charges      map[string]*stripe.Charge
	transfers    []processor.TransferRequest
	failAccounts map[string]error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		charges:      make(map[string]*stripe.Charge),
		failAccounts: make(map[string]error),
	}
}

func (f *fakeClient) GetCharge(ctx context.Context, id string) (*stripe.Charge, error) {
	charge, ok := f.charges[id]
	if !ok {
		return nil, errors.New("charge not found")
	}
	return charge, nil
}

func (f *fakeClient) CreateTransfer(ctx context.Context, req processor.TransferRequest) (*stripe.Transfer, error) {
	if err, ok := f.failAccounts[req.Destination]; ok {
		return nil, err
	}
	f.transfers = append(f.transfers, req)
	return &stripe.Transfer{Amount: req.Amount}, nil
}

type fixture struct {
	svc    *Service
	db     *gorm.DB
	client *fakeClient
	clk    *clock.FakeClock
}

func setup(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&subscriptiondomain.Subscription{},
		&splitpaydomain.SplitPayment{},
		&commissiondomain.CommissionProfile{},
		&commissiondomain.CommissionPayment{},
		&settlementdomain.DisbursementTask{},
	))
	// uniqueness the production migrations carry
	require.NoError(t, db.Exec(
		`CREATE UNIQUE INDEX idx_disbursement_tasks_platform_sub ON disbursement_tasks (platform_sub)`,
	).Error)
	require.NoError(t, db.Exec(
		`CREATE UNIQUE INDEX idx_commission_payments_sub_invoice
		   ON commission_payments (subscription_id, invoice_id) WHERE invoice_id <> ''`,
	).Error)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	client := newFakeClient()
	clk := clock.NewFakeClock(time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC))

	svc := &Service{
		db:        db,
		log:       zaptest.NewLogger(t),
		genID:     node,
		clock:     clk,
		delay:     72 * time.Hour,
		retry:     processor.RetryConfig{MaxRetries: 0, Delay: time.Millisecond},
		client:    client,
		taskRepo:  settlementrepo.Provide(),
		subRepo:   subscriptionrepo.Provide(),
		splitRepo: splitpayrepo.Provide(),
		commRepo:  commissionrepo.Provide(),
	}
	return &fixture{svc: svc, db: db, client: client, clk: clk}
}

func (f *fixture) addSubscription(t *testing.T, id snowflake.ID, externalID string, merchantID snowflake.ID) *subscriptiondomain.Subscription {
	t.Helper()
	sub := &subscriptiondomain.Subscription{
		ID:                     id,
		ExternalSubscriptionID: externalID,
		MerchantID:             merchantID,
		SplitStatus:            subscriptiondomain.SplitStatusNone,
	}
	require.NoError(t, f.db.Create(sub).Error)
	return sub
}

var nextSplitID snowflake.ID = 9000

func (f *fixture) addSplit(t *testing.T, merchantID snowflake.ID, account, email, share string) {
	t.Helper()
	nextSplitID++
	require.NoError(t, f.db.Create(&splitpaydomain.SplitPayment{
		ID:                 nextSplitID,
		MerchantID:         merchantID,
		RecipientAccountID: account,
		Email:              email,
		Split:              decimal.RequireFromString(share),
	}).Error)
}

func (f *fixture) subStatus(t *testing.T, id snowflake.ID) subscriptiondomain.SplitStatus {
	t.Helper()
	var sub subscriptiondomain.Subscription
	require.NoError(t, f.db.First(&sub, "id = ?", id).Error)
	return sub.SplitStatus
}
