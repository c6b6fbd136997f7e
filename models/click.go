package models

import "time"

// Click records a single referral-link visit. Written best-effort by the
// click worker and never mutated. AffiliateID stays nil when the referral
// code did not resolve to a registered affiliate.
type Click struct {
	ID          string    `gorm:"primaryKey;type:uuid" json:"id"`
	AffiliateID *string   `gorm:"index" json:"affiliate_id,omitempty"`
	Code        string    `gorm:"index" json:"code"`
	LandingPath string    `gorm:"type:text" json:"landing_path"`
	Referrer    string    `gorm:"type:text" json:"referrer"`
	UserAgent   string    `gorm:"type:text" json:"user_agent"`
	CreatedAt   time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
