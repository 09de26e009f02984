package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"referral-platform/internal/models"
	"referral-platform/internal/repository"
)

var (
	// ErrInvalidPayment marks a malformed payment event. It is rejected
	// before any write because commission records are immutable.
	ErrInvalidPayment = errors.New("invalid payment event")
	// ErrDuplicatePayment marks a payment id that already produced a
	// commission record.
	ErrDuplicatePayment = errors.New("payment already processed")
)

// CommissionService computes the commission owed to a partner for each
// payment a bound referral makes. The model is lifetime: every payment,
// indefinitely, yields a new immutable record stamped with the rate of
// the partner's tier at computation time.
type CommissionService struct {
	db       *gorm.DB
	repo     *repository.Repository
	settings *SettingsService
}

func NewCommissionService(db *gorm.DB, repo *repository.Repository, settings *SettingsService) *CommissionService {
	return &CommissionService{
		db:       db,
		repo:     repo,
		settings: settings,
	}
}

// ValidatePayment rejects malformed payment events before they can reach
// the ledger.
func (s *CommissionService) ValidatePayment(payment models.PaymentEvent) error {
	if payment.PaymentID == "" {
		return fmt.Errorf("%w: missing payment id", ErrInvalidPayment)
	}
	if !payment.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive, got %s", ErrInvalidPayment, payment.Amount)
	}
	if payment.Type != models.PaymentTypeSetup && payment.Type != models.PaymentTypeMaintenance {
		return fmt.Errorf("%w: unknown payment type %q", ErrInvalidPayment, payment.Type)
	}
	return nil
}

// ComputeCommission appends a commission record for one payment event and
// rolls the amounts into the referral's and partner's running totals. The
// whole computation runs in a single transaction serialized on the
// referral row, so concurrent payments for the same referral cannot lose
// updates. An organic referral (no partner) yields no record and no error.
func (s *CommissionService) ComputeCommission(ctx context.Context, referralID uint, payment models.PaymentEvent) (*models.CommissionRecord, error) {
	if err := s.ValidatePayment(payment); err != nil {
		return nil, err
	}

	settings, err := s.settings.Current()
	if err != nil {
		return nil, fmt.Errorf("program settings unavailable: %w", err)
	}

	var record *models.CommissionRecord

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		referral, err := s.repo.GetReferralForUpdate(tx, referralID)
		if err != nil {
			return fmt.Errorf("referral not found: %w", err)
		}

		if referral.PartnerID == nil {
			return nil // organic referral, nobody to pay
		}

		var existing int64
		if err := tx.Model(&models.CommissionRecord{}).
			Where("payment_id = ?", payment.PaymentID).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrDuplicatePayment
		}

		if payment.Type == models.PaymentTypeSetup {
			var setups int64
			if err := tx.Model(&models.CommissionRecord{}).
				Where("referral_id = ? AND payment_type = ?", referral.ID, models.PaymentTypeSetup).
				Count(&setups).Error; err != nil {
				return err
			}
			if setups > 0 {
				return fmt.Errorf("%w: setup payment already recorded for referral %d", ErrInvalidPayment, referral.ID)
			}
		}

		partner, err := s.repo.GetPartnerForUpdate(tx, *referral.PartnerID)
		if err != nil {
			return fmt.Errorf("partner not found: %w", err)
		}

		rate := settings.RateForTier(partner.Tier)
		amount := payment.Amount.Mul(rate).Div(decimal.NewFromInt(100)).Round(2)

		record = &models.CommissionRecord{
			PartnerID:        partner.ID,
			ReferralID:       referral.ID,
			PaymentID:        payment.PaymentID,
			PaymentAmount:    payment.Amount,
			CommissionAmount: amount,
			CommissionRate:   rate,
			PaymentType:      payment.Type,
			Status:           models.CommissionStatusPending,
			CreatedAt:        time.Now(),
		}
		if err := tx.Create(record).Error; err != nil {
			return fmt.Errorf("failed to create commission record: %w", err)
		}

		now := time.Now()
		if err := tx.Model(referral).Updates(map[string]interface{}{
			"commission_earned": gorm.Expr("commission_earned + ?", amount),
			"total_payments":    gorm.Expr("total_payments + 1"),
			"lifetime_value":    gorm.Expr("lifetime_value + ?", payment.Amount),
			"last_payment_at":   now,
		}).Error; err != nil {
			return err
		}

		if err := tx.Model(partner).Updates(map[string]interface{}{
			"pending_balance": gorm.Expr("pending_balance + ?", amount),
			"total_earnings":  gorm.Expr("total_earnings + ?", amount),
		}).Error; err != nil {
			return err
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	if record != nil {
		log.Printf("[Commission] payment %s: %s at %s%% -> %s for partner %d",
			payment.PaymentID, payment.Amount, record.CommissionRate, record.CommissionAmount, record.PartnerID)
	}
	return record, nil
}

// AdvanceStatus moves a commission record forward through
// pending -> approved -> paid. That status chain is the only mutation the
// ledger permits after creation.
func (s *CommissionService) AdvanceStatus(ctx context.Context, recordID uint, status models.CommissionStatus) error {
	valid := map[models.CommissionStatus]models.CommissionStatus{
		models.CommissionStatusApproved: models.CommissionStatusPending,
		models.CommissionStatusPaid:     models.CommissionStatusApproved,
	}
	requiredFrom, ok := valid[status]
	if !ok {
		return fmt.Errorf("cannot move commission record to status %q", status)
	}

	result := s.db.WithContext(ctx).Model(&models.CommissionRecord{}).
		Where("id = ? AND status = ?", recordID, requiredFrom).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("commission record %d is not in status %q", recordID, requiredFrom)
	}
	return nil
}

// GetPartnerCommissions returns a partner's commission records, newest
// first.
func (s *CommissionService) GetPartnerCommissions(ctx context.Context, partnerID uint) ([]models.CommissionRecord, error) {
	var records []models.CommissionRecord
	if err := s.db.WithContext(ctx).Where("partner_id = ?", partnerID).
		Order("created_at DESC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
