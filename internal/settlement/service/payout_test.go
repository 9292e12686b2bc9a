package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	commissiondomain "github.com/coachkit/settled/internal/commission/domain"
	"github.com/coachkit/settled/internal/events"
	subscriptiondomain "github.com/coachkit/settled/internal/subscription/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) addProfile(t *testing.T, id snowflake.ID, firstPct string) *commissiondomain.CommissionProfile {
	t.Helper()
	first := decimal.RequireFromString(firstPct)
	second := decimal.RequireFromString("5")
	profile := &commissiondomain.CommissionProfile{
		ID:                 id,
		SalespersonID:      id,
		Identifier:         "ref-" + id.String(),
		RecipientAccountID: "acct_sales",
		FirstPercentage:    &first,
		FirstTime:          3,
		FirstTimeUnit:      commissiondomain.UnitMonth,
		SecondPercentage:   &second,
		SecondTime:         9,
		SecondTimeUnit:     commissiondomain.UnitMonth,
		Active:             true,
	}
	require.NoError(t, f.db.Create(profile).Error)
	return profile
}

func (f *fixture) addReferredSubscription(t *testing.T, id snowflake.ID, externalID string, profileID snowflake.ID, endFirst, endSecond time.Time) *subscriptiondomain.Subscription {
	t.Helper()
	sub := &subscriptiondomain.Subscription{
		ID:                     id,
		ExternalSubscriptionID: externalID,
		MerchantID:             10,
		ReferredBy:             &profileID,
		SplitStatus:            subscriptiondomain.SplitStatusNone,
		EndFirstCommDate:       &endFirst,
		EndSecondCommDate:      &endSecond,
	}
	require.NoError(t, f.db.Create(sub).Error)
	return sub
}

func invoice(externalID, invoiceID string, net int64, trial bool) events.InvoiceUpdated {
	return events.InvoiceUpdated{
		ExternalSubscriptionID: externalID,
		InvoiceID:              invoiceID,
		NetAmount:              net,
		Currency:               "usd",
		Trial:                  trial,
	}
}

func (f *fixture) payments(t *testing.T, subID snowflake.ID) []commissiondomain.CommissionPayment {
	t.Helper()
	var rows []commissiondomain.CommissionPayment
	require.NoError(t, f.db.Where("subscription_id = ?", subID).Order("created_at").Find(&rows).Error)
	return rows
}

func TestPayoutPicksFirstTierInsideFirstWindow(t *testing.T) {
	f := setup(t)
	now := f.clk.Now()
	f.addProfile(t, 100, "15")
	f.addReferredSubscription(t, 1, "sub_ext_1", 100, now.Add(24*time.Hour), now.Add(48*time.Hour))

	require.NoError(t, f.svc.HandleInvoiceUpdated(context.Background(), invoice("sub_ext_1", "in_1", 10000, false)))

	require.Len(t, f.client.transfers, 1)
	assert.Equal(t, int64(1500), f.client.transfers[0].Amount)
	assert.Equal(t, "acct_sales", f.client.transfers[0].Destination)

	rows := f.payments(t, 1)
	require.Len(t, rows, 1)
	assert.Equal(t, commissiondomain.PaymentStatusSuccess, rows[0].PaymentStatus)
	assert.Equal(t, int64(1500), rows[0].Amount)
}

func TestPayoutPicksSecondTierBetweenWindows(t *testing.T) {
	f := setup(t)
	now := f.clk.Now()
	f.addProfile(t, 100, "15")
	f.addReferredSubscription(t, 1, "sub_ext_1", 100, now.Add(-time.Hour), now.Add(48*time.Hour))

	require.NoError(t, f.svc.HandleInvoiceUpdated(context.Background(), invoice("sub_ext_1", "in_1", 10000, false)))

	require.Len(t, f.client.transfers, 1)
	assert.Equal(t, int64(500), f.client.transfers[0].Amount) // 5% second tier
}

func TestPayoutStopsAfterSecondWindow(t *testing.T) {
	f := setup(t)
	now := f.clk.Now()
	f.addProfile(t, 100, "15")
	f.addReferredSubscription(t, 1, "sub_ext_1", 100, now.Add(-48*time.Hour), now.Add(-time.Hour))

	require.NoError(t, f.svc.HandleInvoiceUpdated(context.Background(), invoice("sub_ext_1", "in_1", 10000, false)))

	assert.Empty(t, f.client.transfers)
	assert.Empty(t, f.payments(t, 1))
}

func TestPayoutRoundsHalfUp(t *testing.T) {
	f := setup(t)
	now := f.clk.Now()
	f.addProfile(t, 100, "15")
	f.addReferredSubscription(t, 1, "sub_ext_1", 100, now.Add(24*time.Hour), now.Add(48*time.Hour))

	// 15% of 1003 = 150.45 → 150; 15% of 1030 = 154.5 → 155
	require.NoError(t, f.svc.HandleInvoiceUpdated(context.Background(), invoice("sub_ext_1", "in_1", 1003, false)))
	require.NoError(t, f.svc.HandleInvoiceUpdated(context.Background(), invoice("sub_ext_1", "in_2", 1030, false)))

	require.Len(t, f.client.transfers, 2)
	assert.Equal(t, int64(150), f.client.transfers[0].Amount)
	assert.Equal(t, int64(155), f.client.transfers[1].Amount)
}

func TestPayoutFlatAmountTier(t *testing.T) {
	f := setup(t)
	now := f.clk.Now()
	flat := int64(50)
	profile := &commissiondomain.CommissionProfile{
		ID:                 100,
		SalespersonID:      100,
		Identifier:         "ref-flat",
		RecipientAccountID: "acct_sales",
		FirstAmount:        &flat,
		FirstTime:          3,
		FirstTimeUnit:      commissiondomain.UnitMonth,
		SecondAmount:       &flat,
		SecondTime:         9,
		SecondTimeUnit:     commissiondomain.UnitMonth,
		Active:             true,
	}
	require.NoError(t, f.db.Create(profile).Error)
	f.addReferredSubscription(t, 1, "sub_ext_1", 100, now.Add(24*time.Hour), now.Add(48*time.Hour))

	require.NoError(t, f.svc.HandleInvoiceUpdated(context.Background(), invoice("sub_ext_1", "in_1", 10000, false)))

	require.Len(t, f.client.transfers, 1)
	assert.Equal(t, int64(5000), f.client.transfers[0].Amount) // $50 in minor units
}

func TestTrialInvoiceWritesZeroPlaceholderWithoutTransfer(t *testing.T) {
	f := setup(t)
	now := f.clk.Now()
	f.addProfile(t, 100, "15")
	f.addReferredSubscription(t, 1, "sub_ext_1", 100, now.Add(24*time.Hour), now.Add(48*time.Hour))

	require.NoError(t, f.svc.HandleInvoiceUpdated(context.Background(), invoice("sub_ext_1", "in_1", 10000, true)))

	assert.Empty(t, f.client.transfers)
	rows := f.payments(t, 1)
	require.Len(t, rows, 1)
	assert.Equal(t, commissiondomain.PaymentStatusPending, rows[0].PaymentStatus)
	assert.Zero(t, rows[0].Amount)
}

func TestDuplicateInvoiceDeliveryIsANoOp(t *testing.T) {
	f := setup(t)
	now := f.clk.Now()
	f.addProfile(t, 100, "15")
	f.addReferredSubscription(t, 1, "sub_ext_1", 100, now.Add(24*time.Hour), now.Add(48*time.Hour))

	ev := invoice("sub_ext_1", "in_1", 10000, false)
	require.NoError(t, f.svc.HandleInvoiceUpdated(context.Background(), ev))
	require.NoError(t, f.svc.HandleInvoiceUpdated(context.Background(), ev))

	assert.Len(t, f.client.transfers, 1)
	assert.Len(t, f.payments(t, 1), 1)
}

func TestFailedTransferKeepsFailedRowWithUnpaidAmount(t *testing.T) {
	f := setup(t)
	now := f.clk.Now()
	f.addProfile(t, 100, "15")
	f.addReferredSubscription(t, 1, "sub_ext_1", 100, now.Add(24*time.Hour), now.Add(48*time.Hour))
	f.client.failAccounts["acct_sales"] = assert.AnError

	err := f.svc.HandleInvoiceUpdated(context.Background(), invoice("sub_ext_1", "in_1", 10000, false))
	require.Error(t, err)

	rows := f.payments(t, 1)
	require.Len(t, rows, 1)
	assert.Equal(t, commissiondomain.PaymentStatusFailed, rows[0].PaymentStatus)
	assert.Equal(t, int64(1500), rows[0].Amount)
}

func TestUntrackedOrUnreferredSubscriptionsIgnored(t *testing.T) {
	f := setup(t)
	f.addSubscription(t, 1, "sub_plain", 10)

	require.NoError(t, f.svc.HandleInvoiceUpdated(context.Background(), invoice("sub_unknown", "in_1", 10000, false)))
	require.NoError(t, f.svc.HandleInvoiceUpdated(context.Background(), invoice("sub_plain", "in_2", 10000, false)))

	assert.Empty(t, f.client.transfers)
}
