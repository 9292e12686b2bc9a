// Package domain contains the durable disbursement queue. Scheduling a
// disbursement writes a row here instead of arming an in-process timer, so a
// restart between subscription creation and the payout window loses nothing.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TaskStatus is the claim state of a disbursement task.
type TaskStatus string

const (
	TaskStatusPending TaskStatus = "PENDING"
	TaskStatusClaimed TaskStatus = "CLAIMED"
	TaskStatusDone    TaskStatus = "DONE"
	TaskStatusFailed  TaskStatus = "FAILED"
)

var (
	// ErrTaskExists is returned when a task for the platform subscription is
	// already queued; a duplicate publish cannot double-schedule.
	ErrTaskExists = errors.New("settlement: disbursement already scheduled")
)

// PayloadSplit snapshots one recipient's share at scheduling time.
type PayloadSplit struct {
	SplitID            snowflake.ID    `json:"split_id"`
	RecipientAccountID string          `json:"recipient_account_id"`
	Email              string          `json:"email"`
	Split              decimal.Decimal `json:"split"`
}

// TaskPayload is everything the disbursement run needs, captured when the
// subscription was created.
type TaskPayload struct {
	SubscriptionID   snowflake.ID   `json:"subscription_id"`
	MerchantID       snowflake.ID   `json:"merchant_id"`
	MerchantStripeID string         `json:"merchant_stripe_id"`
	PlatformSub      string         `json:"platform_sub"`
	TxnID            string         `json:"txn_id"`
	Currency         string         `json:"currency"`
	Splits           []PayloadSplit `json:"splits"`
}

// DisbursementTask is one queued split disbursement, unique per platform
// subscription.
type DisbursementTask struct {
	ID          snowflake.ID   `gorm:"primaryKey"`
	PlatformSub string         `gorm:"type:text;not null"`
	MerchantID  snowflake.ID   `gorm:"not null"`
	Payload     datatypes.JSON `gorm:"type:jsonb;not null"`
	DueAt       time.Time      `gorm:"not null"`
	Status      TaskStatus     `gorm:"type:text;not null;default:'PENDING'"`
	Attempts    int            `gorm:"not null;default:0"`
	ClaimedAt   *time.Time     `gorm:""`
	LastError   string         `gorm:"type:text;not null"`
	CreatedAt   time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (DisbursementTask) TableName() string { return "disbursement_tasks" }

type TaskRepository interface {
	Insert(ctx context.Context, db *gorm.DB, task *DisbursementTask) error
	// ListDue returns PENDING tasks whose due_at has passed, oldest first.
	ListDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]DisbursementTask, error)
	// Claim flips one task PENDING→CLAIMED; false means another worker won.
	Claim(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)
	// RequeueStale flips CLAIMED tasks whose claim predates the cutoff back
	// to PENDING, so a worker crash cannot strand a disbursement.
	RequeueStale(ctx context.Context, db *gorm.DB, now, claimedBefore time.Time) (int64, error)
	MarkDone(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, cause string) error
}
