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
)

var (
	// ErrBelowMinimum marks a payout request under the configured minimum.
	ErrBelowMinimum = errors.New("payout amount below minimum")
	// ErrInsufficientBalance marks a payout request exceeding the
	// partner's available balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrMissingTransactionID marks an approval without a transaction
	// reference.
	ErrMissingTransactionID = errors.New("transaction id required")
)

// PayoutService is the only component permitted to decrement a partner's
// available balance. A request reserves its amount immediately; approval
// moves the reservation into paid_out, rejection restores it. At every
// point total_earnings == paid_out + pending_balance + open reservations.
type PayoutService struct {
	db       *gorm.DB
	settings *SettingsService
}

func NewPayoutService(db *gorm.DB, settings *SettingsService) *PayoutService {
	return &PayoutService{
		db:       db,
		settings: settings,
	}
}

// RequestPayout validates and reserves a withdrawal. The balance check
// and the decrement are a single guarded UPDATE, so two simultaneous
// requests cannot spend the same balance twice.
func (s *PayoutService) RequestPayout(ctx context.Context, partnerID uint, amount decimal.Decimal, method, destination string) (*models.Payout, error) {
	settings, err := s.settings.Current()
	if err != nil {
		return nil, fmt.Errorf("program settings unavailable: %w", err)
	}
	if amount.LessThan(settings.MinimumPayoutAmount) {
		return nil, fmt.Errorf("%w: %s < %s", ErrBelowMinimum, amount, settings.MinimumPayoutAmount)
	}
	if method == "" || destination == "" {
		return nil, fmt.Errorf("payout method and destination are required")
	}

	var payout *models.Payout

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Compare-and-decrement: only succeeds while the balance covers
		// the amount.
		result := tx.Model(&models.Partner{}).
			Where("id = ? AND pending_balance >= ?", partnerID, amount).
			Update("pending_balance", gorm.Expr("pending_balance - ?", amount))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			// Distinguish a missing partner from a short balance. The
			// check must use tx: the guarded UPDATE above still holds
			// the write lock, and a second connection would block on it.
			var partner models.Partner
			if err := tx.First(&partner, partnerID).Error; err != nil {
				return fmt.Errorf("partner not found: %w", err)
			}
			return ErrInsufficientBalance
		}

		payout = &models.Payout{
			PartnerID:   partnerID,
			Amount:      amount,
			Currency:    settings.Currency,
			Status:      models.PayoutStatusPending,
			Method:      method,
			Destination: destination,
			RequestedAt: time.Now(),
		}
		return tx.Create(payout).Error
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[Payout] partner %d reserved %s for payout %d", partnerID, amount, payout.ID)
	return payout, nil
}

// BeginProcessing moves a pending payout into PROCESSING.
func (s *PayoutService) BeginProcessing(ctx context.Context, payoutID uint) error {
	result := s.db.WithContext(ctx).Model(&models.Payout{}).
		Where("id = ? AND status = ?", payoutID, models.PayoutStatusPending).
		Update("status", models.PayoutStatusProcessing)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("payout %d is not pending", payoutID)
	}
	return nil
}

// Approve completes a payout: the reserved amount moves into the
// partner's paid_out total. A non-empty external transaction reference is
// required.
func (s *PayoutService) Approve(ctx context.Context, payoutID uint, transactionID string) error {
	if transactionID == "" {
		return ErrMissingTransactionID
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payout, err := s.getOpenPayout(tx, payoutID)
		if err != nil {
			return err
		}

		now := time.Now()
		if err := tx.Model(payout).Updates(map[string]interface{}{
			"status":         models.PayoutStatusCompleted,
			"transaction_id": transactionID,
			"processed_at":   now,
		}).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.Partner{}).Where("id = ?", payout.PartnerID).
			Update("paid_out", gorm.Expr("paid_out + ?", payout.Amount)).Error; err != nil {
			return err
		}

		log.Printf("[Payout] payout %d completed (tx %s), %s moved to paid_out for partner %d",
			payout.ID, transactionID, payout.Amount, payout.PartnerID)
		return nil
	})
}

// Reject cancels a payout and restores the reserved amount to the
// partner's available balance, atomically with the status change.
func (s *PayoutService) Reject(ctx context.Context, payoutID uint, reason string) error {
	return s.close(ctx, payoutID, models.PayoutStatusCancelled, reason)
}

// Fail marks a payout as failed at the payment provider; like a
// rejection, the reservation is restored.
func (s *PayoutService) Fail(ctx context.Context, payoutID uint, reason string) error {
	return s.close(ctx, payoutID, models.PayoutStatusFailed, reason)
}

func (s *PayoutService) close(ctx context.Context, payoutID uint, status models.PayoutStatus, reason string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payout, err := s.getOpenPayout(tx, payoutID)
		if err != nil {
			return err
		}

		now := time.Now()
		if err := tx.Model(payout).Updates(map[string]interface{}{
			"status":         status,
			"failure_reason": reason,
			"processed_at":   now,
		}).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.Partner{}).Where("id = ?", payout.PartnerID).
			Update("pending_balance", gorm.Expr("pending_balance + ?", payout.Amount)).Error; err != nil {
			return err
		}

		log.Printf("[Payout] payout %d closed as %s, %s restored to partner %d",
			payout.ID, status, payout.Amount, payout.PartnerID)
		return nil
	})
}

// getOpenPayout loads a payout that is still pending or processing.
func (s *PayoutService) getOpenPayout(tx *gorm.DB, payoutID uint) (*models.Payout, error) {
	var payout models.Payout
	if err := tx.First(&payout, payoutID).Error; err != nil {
		return nil, fmt.Errorf("payout not found: %w", err)
	}
	if payout.Status != models.PayoutStatusPending && payout.Status != models.PayoutStatusProcessing {
		return nil, fmt.Errorf("payout %d already settled as %s", payout.ID, payout.Status)
	}
	return &payout, nil
}

// GetPartnerPayouts returns a partner's payout history, newest first.
func (s *PayoutService) GetPartnerPayouts(ctx context.Context, partnerID uint) ([]models.Payout, error) {
	var payouts []models.Payout
	if err := s.db.WithContext(ctx).Where("partner_id = ?", partnerID).
		Order("requested_at DESC").Find(&payouts).Error; err != nil {
		return nil, err
	}
	return payouts, nil
}
