package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	settlementdomain "github.com/coachkit/settled/internal/settlement/domain"
	"github.com/coachkit/settled/pkg/db"
	"gorm.io/gorm"
)

type taskRepo struct{}

func Provide() settlementdomain.TaskRepository {
	return &taskRepo{}
}

func (r *taskRepo) Insert(ctx context.Context, tx *gorm.DB, task *settlementdomain.DisbursementTask) error {
	err := tx.WithContext(ctx).Create(task).Error
	if db.IsDuplicateKeyErr(err) {
		return settlementdomain.ErrTaskExists
	}
	return err
}

func (r *taskRepo) ListDue(ctx context.Context, tx *gorm.DB, now time.Time, limit int) ([]settlementdomain.DisbursementTask, error) {
	var tasks []settlementdomain.DisbursementTask
	err := tx.WithContext(ctx).
		Where("status = ? AND due_at <= ?", settlementdomain.TaskStatusPending, now).
		Order("due_at").
		Limit(limit).
		Find(&tasks).Error
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *taskRepo) Claim(ctx context.Context, tx *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	res := tx.WithContext(ctx).
		Model(&settlementdomain.DisbursementTask{}).
		Where("id = ? AND status = ?", id, settlementdomain.TaskStatusPending).
		Updates(map[string]any{
			"status":     settlementdomain.TaskStatusClaimed,
			"claimed_at": now,
			"attempts":   gorm.Expr("attempts + 1"),
			"updated_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *taskRepo) RequeueStale(ctx context.Context, tx *gorm.DB, now, claimedBefore time.Time) (int64, error) {
	res := tx.WithContext(ctx).
		Model(&settlementdomain.DisbursementTask{}).
		Where("status = ? AND claimed_at < ?", settlementdomain.TaskStatusClaimed, claimedBefore).
		Updates(map[string]any{
			"status":     settlementdomain.TaskStatusPending,
			"updated_at": now,
		})
	return res.RowsAffected, res.Error
}

func (r *taskRepo) MarkDone(ctx context.Context, tx *gorm.DB, id snowflake.ID) error {
	return tx.WithContext(ctx).
		Model(&settlementdomain.DisbursementTask{}).
		Where("id = ?", id).
		Update("status", settlementdomain.TaskStatusDone).Error
}

func (r *taskRepo) MarkFailed(ctx context.Context, tx *gorm.DB, id snowflake.ID, cause string) error {
	return tx.WithContext(ctx).
		Model(&settlementdomain.DisbursementTask{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     settlementdomain.TaskStatusFailed,
			"last_error": cause,
		}).Error
}
