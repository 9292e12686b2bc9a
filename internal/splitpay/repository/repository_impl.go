package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	splitpaydomain "github.com/coachkit/settled/internal/splitpay/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() splitpaydomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, tx *gorm.DB, split *splitpaydomain.SplitPayment) error {
	return tx.WithContext(ctx).Create(split).Error
}

func (r *repo) ListByMerchant(ctx context.Context, tx *gorm.DB, merchantID snowflake.ID) ([]splitpaydomain.SplitPayment, error) {
	var splits []splitpaydomain.SplitPayment
	err := tx.WithContext(ctx).
		Where("merchant_id = ?", merchantID).
		Order("created_at").
		Find(&splits).Error
	if err != nil {
		return nil, err
	}
	return splits, nil
}

func (r *repo) FindByID(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*splitpaydomain.SplitPayment, error) {
	var split splitpaydomain.SplitPayment
	err := tx.WithContext(ctx).First(&split, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &split, nil
}

func (r *repo) SoftDelete(ctx context.Context, tx *gorm.DB, id snowflake.ID) error {
	return tx.WithContext(ctx).Delete(&splitpaydomain.SplitPayment{}, "id = ?", id).Error
}
