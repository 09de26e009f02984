package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ReferralStatus string

const (
	ReferralStatusClicked    ReferralStatus = "CLICKED"
	ReferralStatusRegistered ReferralStatus = "REGISTERED"
	ReferralStatusContacted  ReferralStatus = "CONTACTED"
	ReferralStatusPaid       ReferralStatus = "PAID"
	ReferralStatusActive     ReferralStatus = "ACTIVE"
	ReferralStatusChurned    ReferralStatus = "CHURNED"
)

// Referral represents a prospect attributed to a partner. PartnerID is
// set once at attribution time and never reassigned; a nil PartnerID
// means the referral arrived organically.
type Referral struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	PartnerID        *uint           `gorm:"index" json:"partner_id,omitempty"`
	Partner          *Partner        `gorm:"foreignKey:PartnerID" json:"partner,omitempty"`
	VisitorKey       string          `gorm:"size:128;index" json:"visitor_key"`
	Email            string          `gorm:"size:255;index" json:"email"`
	Name             string          `gorm:"size:255" json:"name"`
	Status           ReferralStatus  `gorm:"size:20;not null;default:CLICKED;index" json:"status"`
	Source           string          `gorm:"size:100" json:"source"`
	UTMSource        string          `gorm:"size:100" json:"utm_source"`
	UTMMedium        string          `gorm:"size:100" json:"utm_medium"`
	UTMCampaign      string          `gorm:"size:100" json:"utm_campaign"`
	CommissionEarned decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"commission_earned"`
	TotalPayments    int             `gorm:"not null;default:0" json:"total_payments"`
	LifetimeValue    decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"lifetime_value"`
	LifetimeBinding  bool            `gorm:"not null;default:true" json:"lifetime_binding"`
	LastPaymentAt    *time.Time      `json:"last_payment_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func (Referral) TableName() string {
	return "referrals"
}
