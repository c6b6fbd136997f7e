package models

import "time"

// Conversion is an attributed purchase. The unique index on OrderID is the
// system's core correctness invariant: at most one Conversion per order,
// enforced by the store, not by application checks.
type Conversion struct {
	ID              string    `gorm:"primaryKey;type:uuid" json:"id"`
	AffiliateID     string    `gorm:"index;not null" json:"affiliate_id"`
	OrderID         string    `gorm:"uniqueIndex;not null" json:"order_id"`
	RevenueCents    int64     `gorm:"not null" json:"revenue_cents"`
	CommissionCents int64     `gorm:"not null" json:"commission_cents"` // frozen at creation
	CreatedAt       time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
