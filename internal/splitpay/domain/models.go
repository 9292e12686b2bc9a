// Package domain contains persistence models for merchant split-payment
// recipients.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrSplitOutOfRange = errors.New("splitpay: split must be between 0 and 100")
	ErrSplitSumExceeds = errors.New("splitpay: merchant splits may not sum past 100")
	ErrSplitNotFound   = errors.New("splitpay: split not found")
)

// SplitPayment routes a share of a merchant's collected application fee to a
// recipient account. Split is a percentage; the non-deleted splits of one
// merchant never sum past 100.
type SplitPayment struct {
	ID                 snowflake.ID    `gorm:"primaryKey"`
	MerchantID         snowflake.ID    `gorm:"not null;index"`
	RecipientAccountID string          `gorm:"type:text;not null"`
	Email              string          `gorm:"type:text;not null"`
	Split              decimal.Decimal `gorm:"type:numeric;not null"`
	CommissionID       *snowflake.ID   `gorm:""`
	CreatedAt          time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
	DeletedAt          gorm.DeletedAt  `gorm:""`
}

func (SplitPayment) TableName() string { return "split_payments" }

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, split *SplitPayment) error
	ListByMerchant(ctx context.Context, db *gorm.DB, merchantID snowflake.ID) ([]SplitPayment, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*SplitPayment, error)
	SoftDelete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
}

type CreateSplitRequest struct {
	MerchantID         snowflake.ID    `json:"merchant_id"`
	RecipientAccountID string          `json:"recipient_account_id"`
	Email              string          `json:"email"`
	Split              decimal.Decimal `json:"split"`
	CommissionID       *snowflake.ID   `json:"commission_id,omitempty"`
}

type Service interface {
	Create(ctx context.Context, req CreateSplitRequest) (*SplitPayment, error)
	ListByMerchant(ctx context.Context, merchantID snowflake.ID) ([]SplitPayment, error)
	Delete(ctx context.Context, id snowflake.ID) error
}
