// Package reconcile keeps the local view of processor subscription state in
// step with the processor's truth, via webhook triggers and a nightly full
// re-scan.
package reconcile

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// SubscriptionStateSnapshot is the last status seen from the processor for
// one external subscription. It is a diff baseline, not a source of truth.
type SubscriptionStateSnapshot struct {
	ID                     snowflake.ID `gorm:"primaryKey"`
	ExternalSubscriptionID string       `gorm:"type:text;not null"`
	SubscriptionStatus     string       `gorm:"type:text;not null"`
	UpdatedAt              time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (SubscriptionStateSnapshot) TableName() string { return "stripe_sub_snapshots" }
