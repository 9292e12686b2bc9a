// Package ingest copies new processor records into the local admin tables,
// resuming from a per-table watermark.
package ingest

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/coachkit/settled/internal/config"
	merchantdomain "github.com/coachkit/settled/internal/merchant/domain"
	"github.com/coachkit/settled/internal/processor"
	"github.com/shopspring/decimal"
	stripe "github.com/stripe/stripe-go/v82"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	client       processor.Client
	retry        processor.RetryConfig
	merchants    merchantdomain.Repository
	baseCurrency string
}

type ServiceParam struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Config    config.Config
	Client    processor.Client
	Retry     processor.RetryConfig
	Merchants merchantdomain.Repository
}

func NewService(p ServiceParam) *Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("ingest"),
		genID:        p.GenID,
		client:       p.Client,
		retry:        p.Retry,
		merchants:    p.Merchants,
		baseCurrency: p.Config.BaseCurrency,
	}
}

// watermark reads the highest processor creation time stored for a model,
// optionally scoped to one merchant. Zero means ingest everything.
func (s *Service) watermark(ctx context.Context, model any, merchantID snowflake.ID) (int64, error) {
	var mark *int64
	q := s.db.WithContext(ctx).Model(model).Select("MAX(created_at_unix)")
	if merchantID != 0 {
		q = q.Where("merchant_id = ?", merchantID)
	}
	if err := q.Scan(&mark).Error; err != nil {
		return 0, err
	}
	if mark == nil {
		return 0, nil
	}
	return *mark, nil
}

// normalizeAmount converts a charge amount into the base currency using the
// settlement exchange rate from its balance transaction. Same-currency
// amounts pass through untouched.
func (s *Service) normalizeAmount(ctx context.Context, amount int64, currency, balanceTxnID, account string) (int64, error) {
	if equalCurrency(currency, s.baseCurrency) || balanceTxnID == "" {
		return amount, nil
	}
	txn, err := processor.Do(ctx, s.retry, func() (*stripe.BalanceTransaction, error) {
		return s.client.GetBalanceTransaction(ctx, balanceTxnID, account)
	})
	if err != nil {
		return 0, err
	}
	if txn.ExchangeRate == 0 {
		return amount, nil
	}
	return decimal.NewFromInt(amount).
		Mul(decimal.NewFromFloat(txn.ExchangeRate)).
		Round(0).
		IntPart(), nil
}

// forEachMerchant runs fn against every active connected account. An
// account-level invalid/permission failure is logged and skipped so one
// broken merchant cannot stall the batch.
func (s *Service) forEachMerchant(ctx context.Context, job string, fn func(ctx context.Context, m merchantdomain.Merchant) error) error {
	merchants, err := s.merchants.ListActive(ctx, s.db)
	if err != nil {
		return err
	}
	for _, m := range merchants {
		if m.StripeAccountID == "" {
			continue
		}
		if err := fn(ctx, m); err != nil {
			if processor.IsAccountUnusable(err) {
				s.log.Warn("skipping unusable connected account",
					zap.String("job", job),
					zap.String("merchant_id", m.ID.String()),
					zap.String("account", m.StripeAccountID),
					zap.Error(err),
				)
				continue
			}
			return err
		}
	}
	return nil
}

func equalCurrency(a, b string) bool {
	return strings.EqualFold(a, b)
}
