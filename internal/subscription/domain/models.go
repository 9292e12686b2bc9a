// Package domain contains the local subscription projection. Rows are never
// hard-deleted; processor-side cancellations only change status fields.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// SplitStatus is the disbursement ledger state of a subscription. It only
// moves forward: NONE and the two terminal states are never reopened.
type SplitStatus string

const (
	SplitStatusNone    SplitStatus = "NONE"
	SplitStatusPending SplitStatus = "PENDING"
	SplitStatusSuccess SplitStatus = "SUCCESS"
	SplitStatusFailed  SplitStatus = "FAILED"
)

// CanTransition reports whether moving to next is a legal progression.
func (s SplitStatus) CanTransition(next SplitStatus) bool {
	switch s {
	case SplitStatusNone:
		return next == SplitStatusPending
	case SplitStatusPending:
		return next == SplitStatusSuccess || next == SplitStatusFailed || next == SplitStatusNone
	}
	return false
}

var (
	ErrNotFound          = errors.New("subscription: not found")
	ErrIllegalTransition = errors.New("subscription: illegal split status transition")
	ErrDuplicateExternal = errors.New("subscription: external subscription already tracked")
)

// Subscription projects one processor subscription into the settlement
// ledger. ReferredBy points at the commission profile that sourced the
// merchant, when any. Logs is an append-only newline-joined audit trail.
type Subscription struct {
	ID                     snowflake.ID  `gorm:"primaryKey"`
	ExternalSubscriptionID string        `gorm:"type:text;not null"`
	MerchantID             snowflake.ID  `gorm:"not null;index"`
	ReferredBy             *snowflake.ID `gorm:""`
	SplitStatus            SplitStatus   `gorm:"type:text;not null;default:'NONE'"`
	Logs                   string        `gorm:"type:text;not null"`
	EndFirstCommDate       *time.Time    `gorm:""`
	EndSecondCommDate      *time.Time    `gorm:""`
	CreatedAt              time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt              time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Subscription) TableName() string { return "subscriptions" }

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	FindByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*Subscription, error)
	// UpdateSplitStatus applies the transition guard inside the update; an
	// illegal move returns ErrIllegalTransition without touching the row.
	UpdateSplitStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, next SplitStatus) error
	AppendLog(ctx context.Context, db *gorm.DB, id snowflake.ID, line string) error
	SetCommissionWindows(ctx context.Context, db *gorm.DB, id snowflake.ID, endFirst, endSecond time.Time) error
}

type CreateSubscriptionRequest struct {
	ExternalSubscriptionID string        `json:"external_subscription_id"`
	MerchantID             snowflake.ID  `json:"merchant_id"`
	MerchantStripeID       string        `json:"merchant_stripe_id"`
	TxnID                  string        `json:"txn_id"`
	Currency               string        `json:"currency"`
	ReferredBy             *snowflake.ID `json:"referred_by,omitempty"`
	// TrialEnd anchors the commission windows when the subscription
	// started in trial.
	TrialEnd *time.Time `json:"trial_end,omitempty"`
}

type Service interface {
	Create(ctx context.Context, req CreateSubscriptionRequest) (*Subscription, error)
	GetByExternalID(ctx context.Context, externalID string) (*Subscription, error)
}
