package models

import "time"

// LedgerEntryKind distinguishes commission credits from refund reversals
type LedgerEntryKind string

const (
	LedgerEntryKindCommission LedgerEntryKind = "commission"
	LedgerEntryKindReversal   LedgerEntryKind = "reversal"
)

// LedgerEntry is an append-only signed monetary record. The only permitted
// update is stamping PayoutID exactly once when the entry is allocated to a
// payout; an entry with nil PayoutID counts toward the payable balance.
type LedgerEntry struct {
	ID          string          `gorm:"primaryKey;type:uuid" json:"id"`
	AffiliateID string          `gorm:"index;not null" json:"affiliate_id"`
	Kind        LedgerEntryKind `gorm:"not null" json:"kind"`
	AmountCents int64           `gorm:"not null" json:"amount_cents"` // signed; reversals are negative
	Reference   string          `gorm:"index;not null" json:"reference"`
	PayoutID    *string         `gorm:"index" json:"payout_id,omitempty"`
	CreatedAt   time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}
