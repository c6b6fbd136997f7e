package models

import (
	"time"

	"gorm.io/gorm"
)

// AffiliateStatus is the registry lifecycle state of an affiliate
type AffiliateStatus string

const (
	AffiliateStatusPending  AffiliateStatus = "pending"
	AffiliateStatusApproved AffiliateStatus = "approved"
	AffiliateStatusDeclined AffiliateStatus = "declined"
)

// ValidAffiliateStatus reports whether s is one of the allowed statuses
func ValidAffiliateStatus(s AffiliateStatus) bool {
	switch s {
	case AffiliateStatusPending, AffiliateStatusApproved, AffiliateStatusDeclined:
		return true
	}
	return false
}

// Affiliate is a registered marketer identified by a unique referral code.
// Status is mutated only through an explicit admin transition.
type Affiliate struct {
	ID                string          `gorm:"primaryKey;type:uuid" json:"id"`
	Name              string          `gorm:"not null" json:"name"`
	Email             string          `gorm:"uniqueIndex;not null" json:"email"`
	Code              string          `gorm:"uniqueIndex;not null" json:"code"`
	Status            AffiliateStatus `gorm:"not null;default:'pending';index" json:"status"`
	CommissionRateBps int             `gorm:"not null" json:"commission_rate_bps"` // basis points, 1000 = 10%

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
