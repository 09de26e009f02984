package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PayoutStatus string

const (
	PayoutStatusPending    PayoutStatus = "PENDING"
	PayoutStatusProcessing PayoutStatus = "PROCESSING"
	PayoutStatusCompleted  PayoutStatus = "COMPLETED"
	PayoutStatusCancelled  PayoutStatus = "CANCELLED"
	PayoutStatusFailed     PayoutStatus = "FAILED"
)

// Payout is a withdrawal request against a partner's available balance.
// The amount is reserved (deducted from pending_balance) the moment the
// request is accepted and restored if the payout is later rejected.
type Payout struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	PartnerID     uint            `gorm:"not null;index" json:"partner_id"`
	Partner       *Partner        `gorm:"foreignKey:PartnerID" json:"partner,omitempty"`
	Amount        decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"amount"`
	Currency      string          `gorm:"size:3;not null;default:USD" json:"currency"`
	Status        PayoutStatus    `gorm:"size:20;not null;default:PENDING;index" json:"status"`
	Method        string          `gorm:"size:50;not null" json:"method"`
	Destination   string          `gorm:"size:255;not null" json:"destination"`
	TransactionID *string         `gorm:"size:128" json:"transaction_id,omitempty"`
	FailureReason string          `gorm:"size:255" json:"failure_reason,omitempty"`
	RequestedAt   time.Time       `json:"requested_at"`
	ProcessedAt   *time.Time      `json:"processed_at,omitempty"`
}

func (Payout) TableName() string {
	return "payouts"
}
