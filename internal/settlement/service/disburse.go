package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/coachkit/settled/internal/observability/metrics"
	"github.com/coachkit/settled/internal/processor"
	settlementdomain "github.com/coachkit/settled/internal/settlement/domain"
	subscriptiondomain "github.com/coachkit/settled/internal/subscription/domain"
	"github.com/shopspring/decimal"
	stripe "github.com/stripe/stripe-go/v82"
	"go.uber.org/zap"
)

var oneHundred = decimal.NewFromInt(100)

// RunDueTasks claims disbursement tasks whose delay has elapsed and executes
// them. One failing task is marked FAILED and does not stop the batch.
func (s *Service) RunDueTasks(ctx context.Context) error {
	now := s.clock.Now()

	requeued, err := s.taskRepo.RequeueStale(ctx, s.db, now, now.Add(-staleClaimAfter))
	if err != nil {
		return err
	}
	if requeued > 0 {
		s.log.Warn("requeued tasks from a dead worker", zap.Int64("tasks", requeued))
	}

	due, err := s.taskRepo.ListDue(ctx, s.db, now, claimBatchSize)
	if err != nil {
		return err
	}

	var firstErr error
	processed := 0
	for _, task := range due {
		claimed, err := s.taskRepo.Claim(ctx, s.db, task.ID, now)
		if err != nil {
			return err
		}
		if !claimed {
			continue
		}

		if err := s.disburse(ctx, task); err != nil {
			s.log.Error("disbursement failed",
				zap.String("platform_sub", task.PlatformSub),
				zap.Error(err),
			)
			if markErr := s.taskRepo.MarkFailed(ctx, s.db, task.ID, err.Error()); markErr != nil {
				return markErr
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := s.taskRepo.MarkDone(ctx, s.db, task.ID); err != nil {
			return err
		}
		processed++
	}
	metrics.Scheduler().AddBatchProcessed("disburse_due", "tasks", processed)
	return firstErr
}

// disburse pays each snapshotted recipient its share of the collected
// application fee. The first transfer failure stops the run: earlier
// recipients keep their money, later ones wait for the retried task.
func (s *Service) disburse(ctx context.Context, task settlementdomain.DisbursementTask) error {
	var payload settlementdomain.TaskPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return fmt.Errorf("settlement: decode task payload: %w", err)
	}

	charge, err := processor.Do(ctx, s.retry, func() (*stripe.Charge, error) {
		return s.client.GetCharge(ctx, payload.TxnID)
	})
	if err != nil {
		return fmt.Errorf("settlement: fetch charge %s: %w", payload.TxnID, err)
	}

	feeMinor := charge.ApplicationFeeAmount
	if feeMinor == 0 {
		s.log.Info("no application fee collected, nothing to split",
			zap.String("platform_sub", payload.PlatformSub),
		)
		return s.subRepo.UpdateSplitStatus(ctx, s.db, payload.SubscriptionID, subscriptiondomain.SplitStatusNone)
	}

	fee := decimal.NewFromInt(feeMinor)
	for _, split := range payload.Splits {
		amount := fee.Mul(split.Split).Div(oneHundred).Floor().IntPart()
		if amount <= 0 {
			continue
		}

		_, err := processor.Do(ctx, s.retry, func() (*stripe.Transfer, error) {
			return s.client.CreateTransfer(ctx, processor.TransferRequest{
				Amount:        amount,
				Currency:      payload.Currency,
				Destination:   split.RecipientAccountID,
				TransferGroup: payload.PlatformSub,
			})
		})
		if err != nil {
			metrics.Scheduler().IncTransfer("split", metrics.TransferOutcomeFailed)
			cause := fmt.Sprintf("split %s to %s (%s) failed: %v",
				split.SplitID, split.RecipientAccountID, split.Email, err)
			if logErr := s.subRepo.AppendLog(ctx, s.db, payload.SubscriptionID, cause); logErr != nil {
				s.log.Error("could not append failure to subscription logs", zap.Error(logErr))
			}
			if stErr := s.subRepo.UpdateSplitStatus(ctx, s.db, payload.SubscriptionID, subscriptiondomain.SplitStatusFailed); stErr != nil {
				s.log.Error("could not mark split status failed", zap.Error(stErr))
			}
			return fmt.Errorf("settlement: %s", cause)
		}

		metrics.Scheduler().IncTransfer("split", metrics.TransferOutcomeSuccess)
		s.log.Info("split transfer sent",
			zap.String("platform_sub", payload.PlatformSub),
			zap.String("destination", split.RecipientAccountID),
			zap.Int64("amount", amount),
		)
	}

	return s.subRepo.UpdateSplitStatus(ctx, s.db, payload.SubscriptionID, subscriptiondomain.SplitStatusSuccess)
}
