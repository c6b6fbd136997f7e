package models

import "time"

// PayoutStatus advances pending → approved → paid; paid is terminal
type PayoutStatus string

const (
	PayoutStatusPending  PayoutStatus = "pending"
	PayoutStatusApproved PayoutStatus = "approved"
	PayoutStatusPaid     PayoutStatus = "paid"
)

// Payout aggregates an affiliate's allocated ledger entries for one period.
// TotalCents equals the sum of entries stamped with this payout's ID.
type Payout struct {
	ID          string       `gorm:"primaryKey;type:uuid" json:"id"`
	AffiliateID string       `gorm:"index;not null" json:"affiliate_id"`
	PeriodStart time.Time    `gorm:"not null" json:"period_start"`
	PeriodEnd   time.Time    `gorm:"not null" json:"period_end"`
	TotalCents  int64        `gorm:"not null" json:"total_cents"`
	Status      PayoutStatus `gorm:"not null;default:'pending';index" json:"status"`
	PaidAt      *time.Time   `json:"paid_at,omitempty"`

	Timestamps
}
