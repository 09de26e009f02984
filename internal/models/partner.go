package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PartnerStatus string

const (
	PartnerStatusPending   PartnerStatus = "PENDING"
	PartnerStatusActive    PartnerStatus = "ACTIVE"
	PartnerStatusSuspended PartnerStatus = "SUSPENDED"
	PartnerStatusBlocked   PartnerStatus = "BLOCKED"
)

type Tier string

const (
	TierStandard Tier = "STANDARD"
	TierSilver   Tier = "SILVER"
	TierGold     Tier = "GOLD"
	TierPlatinum Tier = "PLATINUM"
	TierMaster   Tier = "MASTER"
)

// Partner represents an enrolled affiliate. The three money columns obey
// total_earnings == paid_out + pending_balance + open payout
// reservations; only the commission engine increments earnings and only
// the payout ledger moves balance between the other two.
type Partner struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	Name            string          `gorm:"size:255;not null" json:"name"`
	Email           string          `gorm:"size:255;uniqueIndex;not null" json:"email"`
	ReferralCode    string          `gorm:"size:20;uniqueIndex;not null" json:"referral_code"`
	Tier            Tier            `gorm:"size:20;not null;default:STANDARD" json:"tier"`
	Status          PartnerStatus   `gorm:"size:20;not null;default:PENDING;index" json:"status"`
	ActiveReferrals int             `gorm:"not null;default:0" json:"active_referrals"`
	TotalEarnings   decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"total_earnings"`
	PaidOut         decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"paid_out"`
	PendingBalance  decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"pending_balance"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (Partner) TableName() string {
	return "partners"
}
