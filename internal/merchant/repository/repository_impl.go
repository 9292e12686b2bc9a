package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	merchantdomain "github.com/coachkit/settled/internal/merchant/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() merchantdomain.Repository {
	return &repo{}
}

func (r *repo) ListActive(ctx context.Context, db *gorm.DB) ([]merchantdomain.Merchant, error) {
	var merchants []merchantdomain.Merchant
	err := db.WithContext(ctx).
		Where("active = ?", true).
		Order("id").
		Find(&merchants).Error
	if err != nil {
		return nil, err
	}
	return merchants, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*merchantdomain.Merchant, error) {
	var merchant merchantdomain.Merchant
	err := db.WithContext(ctx).First(&merchant, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &merchant, nil
}
