package ingest

import (
	"context"

	ingestdomain "github.com/coachkit/settled/internal/ingest/domain"
	merchantdomain "github.com/coachkit/settled/internal/merchant/domain"
	"github.com/coachkit/settled/internal/observability/metrics"
	"github.com/coachkit/settled/internal/processor"
	stripe "github.com/stripe/stripe-go/v82"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type chargePage struct {
	items []*stripe.Charge
	page  processor.Page
}

type feePage struct {
	items []*stripe.ApplicationFee
	page  processor.Page
}

type customerPage struct {
	items []*stripe.Customer
	page  processor.Page
}

type subscriptionPage struct {
	items []*stripe.Subscription
	page  processor.Page
}

// IngestCharges pulls platform-account charges created after the stored
// watermark into super_admin_charges.
func (s *Service) IngestCharges(ctx context.Context) error {
	mark, err := s.watermark(ctx, &ingestdomain.SuperAdminCharge{}, 0)
	if err != nil {
		return err
	}

	var rows []ingestdomain.SuperAdminCharge
	cursor := ""
	for {
		q := processor.ListQuery{CreatedAfter: mark, StartingAfter: cursor, Limit: processor.DefaultPageSize}
		res, err := processor.Do(ctx, s.retry, func() (chargePage, error) {
			items, page, err := s.client.ListCharges(ctx, q)
			return chargePage{items: items, page: page}, err
		})
		if err != nil {
			return err
		}
		for _, ch := range res.items {
			amount, err := s.normalizeAmount(ctx, ch.Amount, string(ch.Currency), balanceTxnID(ch), "")
			if err != nil {
				return err
			}
			rows = append(rows, ingestdomain.SuperAdminCharge{
				ID:            s.genID.Generate(),
				ChargeID:      ch.ID,
				Amount:        amount,
				Currency:      s.baseCurrency,
				CreatedAtUnix: ch.Created,
			})
		}
		if !res.page.HasMore {
			break
		}
		cursor = res.page.NextCursor
	}

	if err := insertRows(ctx, s.db, rows); err != nil {
		return err
	}
	metrics.Scheduler().AddBatchProcessed("ingest_charges", "charges", len(rows))
	s.log.Info("charges ingested", zap.Int("rows", len(rows)), zap.Int64("watermark", mark))
	return nil
}

// IngestApplicationFees pulls collected application fees into
// super_admin_fees.
func (s *Service) IngestApplicationFees(ctx context.Context) error {
	mark, err := s.watermark(ctx, &ingestdomain.SuperAdminFee{}, 0)
	if err != nil {
		return err
	}

	var rows []ingestdomain.SuperAdminFee
	cursor := ""
	for {
		q := processor.ListQuery{CreatedAfter: mark, StartingAfter: cursor, Limit: processor.DefaultPageSize}
		res, err := processor.Do(ctx, s.retry, func() (feePage, error) {
			items, page, err := s.client.ListApplicationFees(ctx, q)
			return feePage{items: items, page: page}, err
		})
		if err != nil {
			return err
		}
		for _, fee := range res.items {
			chargeID := ""
			if fee.Charge != nil {
				chargeID = fee.Charge.ID
			}
			txnID := ""
			if fee.BalanceTransaction != nil {
				txnID = fee.BalanceTransaction.ID
			}
			amount, err := s.normalizeAmount(ctx, fee.Amount, string(fee.Currency), txnID, "")
			if err != nil {
				return err
			}
			rows = append(rows, ingestdomain.SuperAdminFee{
				ID:            s.genID.Generate(),
				FeeID:         fee.ID,
				ChargeID:      chargeID,
				Amount:        amount,
				Currency:      s.baseCurrency,
				CreatedAtUnix: fee.Created,
			})
		}
		if !res.page.HasMore {
			break
		}
		cursor = res.page.NextCursor
	}

	if err := insertRows(ctx, s.db, rows); err != nil {
		return err
	}
	metrics.Scheduler().AddBatchProcessed("ingest_fees", "fees", len(rows))
	s.log.Info("application fees ingested", zap.Int("rows", len(rows)), zap.Int64("watermark", mark))
	return nil
}

// IngestMerchantCharges pulls each connected account's charges into
// admin_charges, normalized to the base currency.
func (s *Service) IngestMerchantCharges(ctx context.Context) error {
	return s.forEachMerchant(ctx, "merchant_charges", func(ctx context.Context, m merchantdomain.Merchant) error {
		mark, err := s.watermark(ctx, &ingestdomain.AdminCharge{}, m.ID)
		if err != nil {
			return err
		}

		var rows []ingestdomain.AdminCharge
		cursor := ""
		for {
			q := processor.ListQuery{Account: m.StripeAccountID, CreatedAfter: mark, StartingAfter: cursor, Limit: processor.DefaultPageSize}
			res, err := processor.Do(ctx, s.retry, func() (chargePage, error) {
				items, page, err := s.client.ListCharges(ctx, q)
				return chargePage{items: items, page: page}, err
			})
			if err != nil {
				return err
			}
			for _, ch := range res.items {
				amount, err := s.normalizeAmount(ctx, ch.Amount, string(ch.Currency), balanceTxnID(ch), m.StripeAccountID)
				if err != nil {
					return err
				}
				rows = append(rows, ingestdomain.AdminCharge{
					ID:            s.genID.Generate(),
					MerchantID:    m.ID,
					ChargeID:      ch.ID,
					Amount:        amount,
					Currency:      s.baseCurrency,
					CreatedAtUnix: ch.Created,
				})
			}
			if !res.page.HasMore {
				break
			}
			cursor = res.page.NextCursor
		}
		if err := insertRows(ctx, s.db, rows); err != nil {
			return err
		}
		metrics.Scheduler().AddBatchProcessed("ingest_merchant_charges", "charges", len(rows))
		return nil
	})
}

// IngestMerchantCustomers pulls each connected account's customers into
// admin_customers.
func (s *Service) IngestMerchantCustomers(ctx context.Context) error {
	return s.forEachMerchant(ctx, "merchant_customers", func(ctx context.Context, m merchantdomain.Merchant) error {
		mark, err := s.watermark(ctx, &ingestdomain.AdminCustomer{}, m.ID)
		if err != nil {
			return err
		}

		var rows []ingestdomain.AdminCustomer
		cursor := ""
		for {
			q := processor.ListQuery{Account: m.StripeAccountID, CreatedAfter: mark, StartingAfter: cursor, Limit: processor.DefaultPageSize}
			res, err := processor.Do(ctx, s.retry, func() (customerPage, error) {
				items, page, err := s.client.ListCustomers(ctx, q)
				return customerPage{items: items, page: page}, err
			})
			if err != nil {
				return err
			}
			for _, c := range res.items {
				rows = append(rows, ingestdomain.AdminCustomer{
					ID:            s.genID.Generate(),
					MerchantID:    m.ID,
					CustomerID:    c.ID,
					Email:         c.Email,
					Name:          c.Name,
					CreatedAtUnix: c.Created,
				})
			}
			if !res.page.HasMore {
				break
			}
			cursor = res.page.NextCursor
		}
		if err := insertRows(ctx, s.db, rows); err != nil {
			return err
		}
		metrics.Scheduler().AddBatchProcessed("ingest_merchant_customers", "customers", len(rows))
		return nil
	})
}

// IngestMerchantSubscriptions pulls each connected account's subscriptions
// into admin_subscriptions.
func (s *Service) IngestMerchantSubscriptions(ctx context.Context) error {
	return s.forEachMerchant(ctx, "merchant_subscriptions", func(ctx context.Context, m merchantdomain.Merchant) error {
		mark, err := s.watermark(ctx, &ingestdomain.AdminSubscription{}, m.ID)
		if err != nil {
			return err
		}

		var rows []ingestdomain.AdminSubscription
		cursor := ""
		for {
			q := processor.ListQuery{Account: m.StripeAccountID, CreatedAfter: mark, StartingAfter: cursor, Limit: processor.DefaultPageSize}
			res, err := processor.Do(ctx, s.retry, func() (subscriptionPage, error) {
				items, page, err := s.client.ListSubscriptions(ctx, q)
				return subscriptionPage{items: items, page: page}, err
			})
			if err != nil {
				return err
			}
			for _, sub := range res.items {
				rows = append(rows, ingestdomain.AdminSubscription{
					ID:             s.genID.Generate(),
					MerchantID:     m.ID,
					SubscriptionID: sub.ID,
					Status:         string(sub.Status),
					CreatedAtUnix:  sub.Created,
				})
			}
			if !res.page.HasMore {
				break
			}
			cursor = res.page.NextCursor
		}
		if err := insertRows(ctx, s.db, rows); err != nil {
			return err
		}
		metrics.Scheduler().AddBatchProcessed("ingest_merchant_subscriptions", "subscriptions", len(rows))
		return nil
	})
}

func insertRows[T any](ctx context.Context, db *gorm.DB, rows []T) error {
	if len(rows) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&rows).Error
}

func balanceTxnID(ch *stripe.Charge) string {
	if ch.BalanceTransaction == nil {
		return ""
	}
	return ch.BalanceTransaction.ID
}
