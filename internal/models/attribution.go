package models

import "time"

// AttributionBinding ties a visitor to the referral code that first
// brought them in. The binding has no expiry and is never overwritten.
type AttributionBinding struct {
	VisitorKey   string    `gorm:"primaryKey;size:128" json:"visitor_key"`
	ReferralCode string    `gorm:"size:20;not null;index" json:"referral_code"`
	CapturedAt   time.Time `gorm:"not null" json:"captured_at"`
}

func (AttributionBinding) TableName() string {
	return "attribution_bindings"
}

// ClickMarker remembers the last referral code for which a click event
// was successfully delivered for a visitor. It is deliberately separate
// from AttributionBinding: the binding never changes, the marker advances
// whenever a new code is seen and its click gets acknowledged.
type ClickMarker struct {
	VisitorKey string    `gorm:"primaryKey;size:128" json:"visitor_key"`
	LastCode   string    `gorm:"size:20;not null" json:"last_code"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (ClickMarker) TableName() string {
	return "click_markers"
}
