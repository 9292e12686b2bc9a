// Package domain contains the merchant projection used by the per-merchant
// ingestion jobs and the growth-webhook notifier.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Merchant is a tenant with a connected processor account.
type Merchant struct {
	ID              snowflake.ID `gorm:"primaryKey"`
	StripeAccountID string       `gorm:"type:text;not null"`
	FirstName       string       `gorm:"type:text;not null"`
	LastName        string       `gorm:"type:text;not null"`
	Email           string       `gorm:"type:text;not null"`
	Active          bool         `gorm:"not null;default:true"`
	CreatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Merchant) TableName() string { return "merchants" }

type Repository interface {
	ListActive(ctx context.Context, db *gorm.DB) ([]Merchant, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Merchant, error)
}
