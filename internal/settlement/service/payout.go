package service

import (
	"context"
	"errors"
	"fmt"

	commissiondomain "github.com/coachkit/settled/internal/commission/domain"
	"github.com/coachkit/settled/internal/events"
	"github.com/coachkit/settled/internal/observability/metrics"
	"github.com/coachkit/settled/internal/processor"
	"github.com/shopspring/decimal"
	stripe "github.com/stripe/stripe-go/v82"
	"go.uber.org/zap"
)

// HandleInvoiceUpdated pays the referring salesperson their cut of a
// recurring charge. The tier is picked by where now falls against the stored
// window dates; past the second window the referral has aged out.
func (s *Service) HandleInvoiceUpdated(ctx context.Context, ev events.InvoiceUpdated) error {
	sub, err := s.subRepo.FindByExternalID(ctx, s.db, ev.ExternalSubscriptionID)
	if err != nil {
		return err
	}
	if sub == nil || sub.ReferredBy == nil {
		return nil
	}
	if sub.EndFirstCommDate == nil || sub.EndSecondCommDate == nil {
		s.log.Warn("referred subscription has no commission windows",
			zap.String("external_subscription_id", ev.ExternalSubscriptionID),
		)
		return nil
	}

	profile, err := s.commRepo.FindByID(ctx, s.db, *sub.ReferredBy)
	if err != nil {
		return err
	}
	if profile == nil {
		s.log.Warn("referral points at a missing commission profile",
			zap.String("profile_id", sub.ReferredBy.String()),
		)
		return nil
	}

	now := s.clock.Now()
	var tier commissiondomain.Tier
	switch {
	case now.Before(*sub.EndFirstCommDate):
		tier = profile.FirstTier()
	case now.Before(*sub.EndSecondCommDate):
		tier = profile.SecondTier()
	default:
		return nil
	}

	amount := commissionAmount(tier, ev.NetAmount)
	if ev.Trial {
		amount = 0
	}

	// The unique (subscription, invoice) index makes this insert the payout
	// claim: a duplicate delivery stops here with no second transfer.
	payment := &commissiondomain.CommissionPayment{
		ID:             s.genID.Generate(),
		CommissionID:   profile.ID,
		SubscriptionID: sub.ID,
		InvoiceID:      ev.InvoiceID,
		Amount:         amount,
		PaymentStatus:  commissiondomain.PaymentStatusPending,
		CreatedAt:      now,
	}
	if err := s.commRepo.InsertPayment(ctx, s.db, payment); err != nil {
		if errors.Is(err, commissiondomain.ErrDuplicatePayment) {
			s.log.Info("invoice already paid out",
				zap.String("invoice_id", ev.InvoiceID),
			)
			return nil
		}
		return err
	}

	// Trial invoices keep the zero-amount placeholder and move no money.
	if ev.Trial {
		return nil
	}

	_, err = processor.Do(ctx, s.retry, func() (*stripe.Transfer, error) {
		return s.client.CreateTransfer(ctx, processor.TransferRequest{
			Amount:        amount,
			Currency:      ev.Currency,
			Destination:   profile.RecipientAccountID,
			TransferGroup: ev.ExternalSubscriptionID,
		})
	})
	if err != nil {
		metrics.Scheduler().IncTransfer("commission", metrics.TransferOutcomeFailed)
		if stErr := s.commRepo.UpdatePaymentStatus(ctx, s.db, payment.ID, commissiondomain.PaymentStatusFailed); stErr != nil {
			s.log.Error("could not mark commission payment failed", zap.Error(stErr))
		}
		return fmt.Errorf("settlement: commission transfer for invoice %s: %w", ev.InvoiceID, err)
	}

	if err := s.commRepo.UpdatePaymentStatus(ctx, s.db, payment.ID, commissiondomain.PaymentStatusSuccess); err != nil {
		return err
	}
	metrics.Scheduler().IncTransfer("commission", metrics.TransferOutcomeSuccess)

	s.log.Info("commission paid",
		zap.String("invoice_id", ev.InvoiceID),
		zap.String("destination", profile.RecipientAccountID),
		zap.Int64("amount", amount),
	)
	return nil
}

// commissionAmount is the payout in minor units: a round-half-up percentage
// of the net settled amount, or the flat dollar amount when the tier is
// fixed.
func commissionAmount(tier commissiondomain.Tier, netMinor int64) int64 {
	if tier.Percentage != nil {
		return decimal.NewFromInt(netMinor).
			Mul(*tier.Percentage).
			Div(oneHundred).
			Round(0).
			IntPart()
	}
	if tier.Amount != nil {
		return *tier.Amount * 100
	}
	return 0
}
