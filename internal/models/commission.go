package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentType string

const (
	PaymentTypeSetup       PaymentType = "SETUP"
	PaymentTypeMaintenance PaymentType = "MAINTENANCE"
)

type CommissionStatus string

const (
	CommissionStatusPending  CommissionStatus = "PENDING"
	CommissionStatusApproved CommissionStatus = "APPROVED"
	CommissionStatusPaid     CommissionStatus = "PAID"
)

// CommissionRecord is an immutable ledger entry created once per external
// payment event. CommissionRate is the rate in effect when the record was
// computed and is never recalculated afterwards.
type CommissionRecord struct {
	ID               uint             `gorm:"primaryKey" json:"id"`
	PartnerID        uint             `gorm:"not null;index" json:"partner_id"`
	Partner          *Partner         `gorm:"foreignKey:PartnerID" json:"partner,omitempty"`
	ReferralID       uint             `gorm:"not null;index" json:"referral_id"`
	Referral         *Referral        `gorm:"foreignKey:ReferralID" json:"referral,omitempty"`
	PaymentID        string           `gorm:"size:64;uniqueIndex;not null" json:"payment_id"`
	PaymentAmount    decimal.Decimal  `gorm:"type:decimal(18,2);not null" json:"payment_amount"`
	CommissionAmount decimal.Decimal  `gorm:"type:decimal(18,2);not null" json:"commission_amount"`
	CommissionRate   decimal.Decimal  `gorm:"type:decimal(5,2);not null" json:"commission_rate"`
	PaymentType      PaymentType      `gorm:"size:20;not null" json:"payment_type"`
	Status           CommissionStatus `gorm:"size:20;not null;default:PENDING;index" json:"status"`
	CreatedAt        time.Time        `gorm:"index" json:"created_at"`
}

func (CommissionRecord) TableName() string {
	return "commission_records"
}

// PaymentEvent is the already-validated payment notification delivered by
// the external billing system.
type PaymentEvent struct {
	PaymentID string          `json:"payment_id"`
	Amount    decimal.Decimal `json:"amount"`
	Type      PaymentType     `json:"type"`
}
