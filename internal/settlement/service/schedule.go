package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/coachkit/settled/internal/commission"
	"github.com/coachkit/settled/internal/events"
	settlementdomain "github.com/coachkit/settled/internal/settlement/domain"
	subscriptiondomain "github.com/coachkit/settled/internal/subscription/domain"
	"go.uber.org/zap"
)

// HandleSubscriptionCreated decides whether the new subscription owes a split
// disbursement. Merchants without split recipients settle immediately to
// NONE; everyone else goes PENDING with a queued task due after the
// configured delay.
func (s *Service) HandleSubscriptionCreated(ctx context.Context, ev events.SubscriptionCreated) error {
	splits, err := s.splitRepo.ListByMerchant(ctx, s.db, ev.MerchantID)
	if err != nil {
		return err
	}
	if len(splits) == 0 {
		s.log.Info("no split recipients, nothing to disburse",
			zap.String("platform_sub", ev.PlatformSub),
			zap.String("merchant_id", ev.MerchantID.String()),
		)
		return nil
	}

	payload := settlementdomain.TaskPayload{
		SubscriptionID:   ev.SubscriptionID,
		MerchantID:       ev.MerchantID,
		MerchantStripeID: ev.MerchantStripeID,
		PlatformSub:      ev.PlatformSub,
		TxnID:            ev.TxnID,
		Currency:         ev.Currency,
	}
	for _, sp := range splits {
		payload.Splits = append(payload.Splits, settlementdomain.PayloadSplit{
			SplitID:            sp.ID,
			RecipientAccountID: sp.RecipientAccountID,
			Email:              sp.Email,
			Split:              sp.Split,
		})
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("settlement: encode task payload: %w", err)
	}

	now := s.clock.Now()
	task := &settlementdomain.DisbursementTask{
		ID:          s.genID.Generate(),
		PlatformSub: ev.PlatformSub,
		MerchantID:  ev.MerchantID,
		Payload:     raw,
		DueAt:       now.Add(s.delay),
		Status:      settlementdomain.TaskStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.taskRepo.Insert(ctx, s.db, task); err != nil {
		if errors.Is(err, settlementdomain.ErrTaskExists) {
			s.log.Info("disbursement already scheduled",
				zap.String("platform_sub", ev.PlatformSub),
			)
			return nil
		}
		return err
	}

	if err := s.subRepo.UpdateSplitStatus(ctx, s.db, ev.SubscriptionID, subscriptiondomain.SplitStatusPending); err != nil {
		return err
	}

	s.log.Info("disbursement scheduled",
		zap.String("platform_sub", ev.PlatformSub),
		zap.Time("due_at", task.DueAt),
		zap.Int("recipients", len(payload.Splits)),
	)
	return nil
}

// HandlePlatformSubscriptionCreated computes and persists the commission
// windows for a referred subscription.
func (s *Service) HandlePlatformSubscriptionCreated(ctx context.Context, ev events.PlatformSubscriptionCreated) error {
	profile, err := s.commRepo.FindByID(ctx, s.db, ev.ProfileID)
	if err != nil {
		return err
	}
	if profile == nil {
		s.log.Warn("referral points at a missing commission profile",
			zap.String("profile_id", ev.ProfileID.String()),
			zap.String("subscription_id", ev.SubscriptionID.String()),
		)
		return nil
	}

	endFirst, endSecond := commission.Windows(*profile, ev.Anchor)
	if err := s.subRepo.SetCommissionWindows(ctx, s.db, ev.SubscriptionID, endFirst, endSecond); err != nil {
		return err
	}

	s.log.Info("commission windows set",
		zap.String("subscription_id", ev.SubscriptionID.String()),
		zap.Time("end_first", endFirst),
		zap.Time("end_second", endSecond),
	)
	return nil
}
