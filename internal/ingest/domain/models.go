// Package domain contains the local copies of processor records filled by
// the incremental ingestion jobs. Every table carries the record's processor
// creation time as a unix watermark; ingestion only ever asks for records
// created strictly after the highest one stored.
package domain

import "github.com/bwmarrin/snowflake"

// SuperAdminCharge is a platform-account charge.
type SuperAdminCharge struct {
	ID            snowflake.ID `gorm:"primaryKey"`
	ChargeID      string       `gorm:"type:text;not null"`
	Amount        int64        `gorm:"not null"`
	Currency      string       `gorm:"type:text;not null"`
	CreatedAtUnix int64        `gorm:"not null"`
}

func (SuperAdminCharge) TableName() string { return "super_admin_charges" }

// SuperAdminFee is an application fee collected on the platform account.
type SuperAdminFee struct {
	ID            snowflake.ID `gorm:"primaryKey"`
	FeeID         string       `gorm:"type:text;not null"`
	ChargeID      string       `gorm:"type:text;not null"`
	Amount        int64        `gorm:"not null"`
	Currency      string       `gorm:"type:text;not null"`
	CreatedAtUnix int64        `gorm:"not null"`
}

func (SuperAdminFee) TableName() string { return "super_admin_fees" }

// AdminCharge is a charge on one merchant's connected account.
type AdminCharge struct {
	ID            snowflake.ID `gorm:"primaryKey"`
	MerchantID    snowflake.ID `gorm:"not null;index"`
	ChargeID      string       `gorm:"type:text;not null"`
	Amount        int64        `gorm:"not null"`
	Currency      string       `gorm:"type:text;not null"`
	CreatedAtUnix int64        `gorm:"not null"`
}

func (AdminCharge) TableName() string { return "admin_charges" }

// AdminCustomer is a customer on one merchant's connected account.
type AdminCustomer struct {
	ID            snowflake.ID `gorm:"primaryKey"`
	MerchantID    snowflake.ID `gorm:"not null;index"`
	CustomerID    string       `gorm:"type:text;not null"`
	Email         string       `gorm:"type:text;not null"`
	Name          string       `gorm:"type:text;not null"`
	CreatedAtUnix int64        `gorm:"not null"`
}

func (AdminCustomer) TableName() string { return "admin_customers" }

// AdminSubscription is a subscription on one merchant's connected account.
type AdminSubscription struct {
	ID             snowflake.ID `gorm:"primaryKey"`
	MerchantID     snowflake.ID `gorm:"not null;index"`
	SubscriptionID string       `gorm:"type:text;not null"`
	Status         string       `gorm:"type:text;not null"`
	CreatedAtUnix  int64        `gorm:"not null"`
}

func (AdminSubscription) TableName() string { return "admin_subscriptions" }
