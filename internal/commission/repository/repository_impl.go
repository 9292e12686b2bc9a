package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	commissiondomain "github.com/coachkit/settled/internal/commission/domain"
	"github.com/coachkit/settled/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() commissiondomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, tx *gorm.DB, profile *commissiondomain.CommissionProfile) error {
	err := tx.WithContext(ctx).Create(profile).Error
	if db.IsDuplicateKeyErr(err) {
		return commissiondomain.ErrDuplicateActive
	}
	return err
}

func (r *repo) FindByID(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*commissiondomain.CommissionProfile, error) {
	var profile commissiondomain.CommissionProfile
	err := tx.WithContext(ctx).First(&profile, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *repo) FindByIdentifier(ctx context.Context, tx *gorm.DB, identifier string) (*commissiondomain.CommissionProfile, error) {
	var profile commissiondomain.CommissionProfile
	err := tx.WithContext(ctx).First(&profile, "identifier = ?", identifier).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *repo) FindActiveBySalesperson(ctx context.Context, tx *gorm.DB, salespersonID snowflake.ID) (*commissiondomain.CommissionProfile, error) {
	var profile commissiondomain.CommissionProfile
	err := tx.WithContext(ctx).
		First(&profile, "salesperson_id = ? AND active", salespersonID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *repo) Deactivate(ctx context.Context, tx *gorm.DB, id snowflake.ID) error {
	return tx.WithContext(ctx).
		Model(&commissiondomain.CommissionProfile{}).
		Where("id = ?", id).
		Update("active", false).Error
}

func (r *repo) InsertPayment(ctx context.Context, tx *gorm.DB, payment *commissiondomain.CommissionPayment) error {
	err := tx.WithContext(ctx).Create(payment).Error
	if db.IsDuplicateKeyErr(err) {
		return commissiondomain.ErrDuplicatePayment
	}
	return err
}

func (r *repo) UpdatePaymentStatus(ctx context.Context, tx *gorm.DB, id snowflake.ID, status commissiondomain.PaymentStatus) error {
	return tx.WithContext(ctx).
		Model(&commissiondomain.CommissionPayment{}).
		Where("id = ?", id).
		Update("payment_status", status).Error
}

func (r *repo) ListPaymentsBySubscription(ctx context.Context, tx *gorm.DB, subscriptionID snowflake.ID) ([]commissiondomain.CommissionPayment, error) {
	var payments []commissiondomain.CommissionPayment
	err := tx.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("created_at").
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}
