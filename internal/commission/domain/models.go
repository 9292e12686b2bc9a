// Package domain contains persistence models for commission profiles and
// the payments written against them.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TimeUnit is the calendar unit a commission tier's duration is measured in.
type TimeUnit string

const (
	UnitDay   TimeUnit = "day"
	UnitWeek  TimeUnit = "week"
	UnitMonth TimeUnit = "month"
	UnitYear  TimeUnit = "year"
)

// Valid reports whether the unit is one of the supported calendar units.
func (u TimeUnit) Valid() bool {
	switch u {
	case UnitDay, UnitWeek, UnitMonth, UnitYear:
		return true
	}
	return false
}

// PaymentStatus represents the outcome recorded for a commission payment.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusSuccess PaymentStatus = "SUCCESS"
	PaymentStatusFailed  PaymentStatus = "FAILED"
)

var (
	ErrProfileNotFound  = errors.New("commission: profile not found")
	ErrInvalidTier      = errors.New("commission: tier must set exactly one of percentage or amount")
	ErrInvalidTimeUnit  = errors.New("commission: time unit must be day, week, month or year")
	ErrDuplicateActive  = errors.New("commission: salesperson already has an active profile")
	ErrDuplicatePayment = errors.New("commission: payment already recorded for this invoice")
)

// Tier is one commission window: either a percentage of the settled net
// amount or a flat dollar amount, earned for Time units after the anchor.
type Tier struct {
	Percentage *decimal.Decimal
	Amount     *int64
	Time       int
	TimeUnit   TimeUnit
}

// Validate checks the exactly-one-of-percentage-or-amount rule and the unit.
func (t Tier) Validate() error {
	if (t.Percentage == nil) == (t.Amount == nil) {
		return ErrInvalidTier
	}
	if !t.TimeUnit.Valid() {
		return ErrInvalidTimeUnit
	}
	return nil
}

// CommissionProfile is a salesperson's referral terms. A salesperson holds at
// most one active profile; the identifier is the short code embedded in
// referral links.
type CommissionProfile struct {
	ID                 snowflake.ID     `gorm:"primaryKey"`
	SalespersonID      snowflake.ID     `gorm:"not null"`
	Identifier         string           `gorm:"type:text;not null"`
	RecipientAccountID string           `gorm:"type:text;not null"`
	FirstPercentage    *decimal.Decimal `gorm:"type:numeric"`
	FirstAmount        *int64           `gorm:""`
	FirstTime          int              `gorm:"not null"`
	FirstTimeUnit      TimeUnit         `gorm:"type:text;not null"`
	SecondPercentage   *decimal.Decimal `gorm:"type:numeric"`
	SecondAmount       *int64           `gorm:""`
	SecondTime         int              `gorm:"not null"`
	SecondTimeUnit     TimeUnit         `gorm:"type:text;not null"`
	Active             bool             `gorm:"not null;default:true"`
	CreatedAt          time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (CommissionProfile) TableName() string { return "commissions" }

// FirstTier returns the first commission window's terms.
func (p CommissionProfile) FirstTier() Tier {
	return Tier{Percentage: p.FirstPercentage, Amount: p.FirstAmount, Time: p.FirstTime, TimeUnit: p.FirstTimeUnit}
}

// SecondTier returns the second commission window's terms.
func (p CommissionProfile) SecondTier() Tier {
	return Tier{Percentage: p.SecondPercentage, Amount: p.SecondAmount, Time: p.SecondTime, TimeUnit: p.SecondTimeUnit}
}

// CommissionPayment is an append-only record of one payout attempt against a
// subscription invoice. Amount is in minor units.
type CommissionPayment struct {
	ID             snowflake.ID  `gorm:"primaryKey"`
	CommissionID   snowflake.ID  `gorm:"not null;index"`
	SubscriptionID snowflake.ID  `gorm:"not null"`
	InvoiceID      string        `gorm:"type:text;not null"`
	Amount         int64         `gorm:"not null;default:0"`
	PaymentStatus  PaymentStatus `gorm:"type:text;not null;default:'SUCCESS'"`
	CreatedAt      time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (CommissionPayment) TableName() string { return "commission_payments" }

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, profile *CommissionProfile) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*CommissionProfile, error)
	FindByIdentifier(ctx context.Context, db *gorm.DB, identifier string) (*CommissionProfile, error)
	FindActiveBySalesperson(ctx context.Context, db *gorm.DB, salespersonID snowflake.ID) (*CommissionProfile, error)
	Deactivate(ctx context.Context, db *gorm.DB, id snowflake.ID) error

	InsertPayment(ctx context.Context, db *gorm.DB, payment *CommissionPayment) error
	UpdatePaymentStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status PaymentStatus) error
	ListPaymentsBySubscription(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) ([]CommissionPayment, error)
}

type CreateProfileRequest struct {
	SalespersonID      snowflake.ID `json:"salesperson_id"`
	Identifier         string       `json:"identifier"`
	RecipientAccountID string       `json:"recipient_account_id"`
	First              Tier         `json:"first"`
	Second             Tier         `json:"second"`
}

type Service interface {
	CreateProfile(ctx context.Context, req CreateProfileRequest) (*CommissionProfile, error)
	GetByIdentifier(ctx context.Context, identifier string) (*CommissionProfile, error)
	DeactivateProfile(ctx context.Context, id snowflake.ID) error
}
