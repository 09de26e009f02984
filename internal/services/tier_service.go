package services

import (
	"context"
	"fmt"
	"log"

	"gorm.io/gorm"

	"referral-platform/internal/models"
)

// TierService recomputes a partner's tier from its active-referral count.
// Tier changes are prospective only: commission records already issued
// keep the rate they were stamped with, and downgrades apply the same way.
type TierService struct {
	db       *gorm.DB
	settings *SettingsService
}

func NewTierService(db *gorm.DB, settings *SettingsService) *TierService {
	return &TierService{
		db:       db,
		settings: settings,
	}
}

// Reevaluate looks up the highest tier whose threshold the partner's
// active-referral count meets and applies it. Returns whether the tier
// changed.
func (s *TierService) Reevaluate(ctx context.Context, partnerID uint) (bool, error) {
	var partner models.Partner
	if err := s.db.WithContext(ctx).First(&partner, partnerID).Error; err != nil {
		return false, err
	}
	return s.ReevaluateTx(s.db.WithContext(ctx), &partner)
}

// ReevaluateTx applies the tier lookup inside an existing transaction,
// using the partner row the caller already holds. Callers adjusting the
// active-referral count use this so the count change and the tier change
// commit together.
func (s *TierService) ReevaluateTx(tx *gorm.DB, partner *models.Partner) (bool, error) {
	settings, err := s.settings.Current()
	if err != nil {
		return false, fmt.Errorf("program settings unavailable: %w", err)
	}

	target := settings.TierForCount(partner.ActiveReferrals)
	if target == partner.Tier {
		return false, nil
	}

	if err := tx.Model(&models.Partner{}).Where("id = ?", partner.ID).
		Update("tier", target).Error; err != nil {
		return false, err
	}

	log.Printf("[Tier] partner %d: %s -> %s (%d active referrals)",
		partner.ID, partner.Tier, target, partner.ActiveReferrals)
	partner.Tier = target
	return true, nil
}
