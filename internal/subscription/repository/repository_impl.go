package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/coachkit/settled/internal/subscription/domain"
	"github.com/coachkit/settled/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, tx *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	err := tx.WithContext(ctx).Create(subscription).Error
	if db.IsDuplicateKeyErr(err) {
		return subscriptiondomain.ErrDuplicateExternal
	}
	return err
}

func (r *repo) FindByID(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	var subscription subscriptiondomain.Subscription
	err := tx.WithContext(ctx).First(&subscription, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &subscription, nil
}

func (r *repo) FindByExternalID(ctx context.Context, tx *gorm.DB, externalID string) (*subscriptiondomain.Subscription, error) {
	var subscription subscriptiondomain.Subscription
	err := tx.WithContext(ctx).First(&subscription, "external_subscription_id = ?", externalID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &subscription, nil
}

func (r *repo) UpdateSplitStatus(ctx context.Context, tx *gorm.DB, id snowflake.ID, next subscriptiondomain.SplitStatus) error {
	var current subscriptiondomain.Subscription
	err := tx.WithContext(ctx).First(&current, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return subscriptiondomain.ErrNotFound
	}
	if err != nil {
		return err
	}
	if current.SplitStatus == next {
		return nil
	}
	if !current.SplitStatus.CanTransition(next) {
		return subscriptiondomain.ErrIllegalTransition
	}
	// Conditioned on the status just read, so a concurrent writer that got
	// there first makes this a no-op instead of a regression.
	res := tx.WithContext(ctx).Model(&subscriptiondomain.Subscription{}).
		Where("id = ? AND split_status = ?", id, current.SplitStatus).
		Update("split_status", next)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return subscriptiondomain.ErrIllegalTransition
	}
	return nil
}

func (r *repo) AppendLog(ctx context.Context, tx *gorm.DB, id snowflake.ID, line string) error {
	return tx.WithContext(ctx).Model(&subscriptiondomain.Subscription{}).
		Where("id = ?", id).
		Update("logs", gorm.Expr(
			"CASE WHEN logs = '' THEN ? ELSE logs || ? END", line, "\n"+line,
		)).Error
}

func (r *repo) SetCommissionWindows(ctx context.Context, tx *gorm.DB, id snowflake.ID, endFirst, endSecond time.Time) error {
	return tx.WithContext(ctx).Model(&subscriptiondomain.Subscription{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"end_first_comm_date":  endFirst,
			"end_second_comm_date": endSecond,
		}).Error
}
