package services

import (
	"context"
	"fmt"
	"log"
	"sync"

	"gorm.io/gorm"

	"referral-platform/internal/attribution"
	"referral-platform/internal/models"
	"referral-platform/internal/utils"
)

// PartnerService handles partner enrollment and status administration.
type PartnerService struct {
	db *gorm.DB
	mu sync.Mutex
}

func NewPartnerService(db *gorm.DB) *PartnerService {
	return &PartnerService{db: db}
}

// CreatePartner enrolls a new partner in PENDING status. A referral code
// may be supplied (4-20 alphanumeric characters, stored uppercase); when
// none is, a random one is generated.
func (s *PartnerService) CreatePartner(ctx context.Context, name, email, code string) (*models.Partner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if code != "" {
		if !attribution.ValidCode(code) {
			return nil, fmt.Errorf("invalid referral code format: %q", code)
		}
		code = attribution.Normalize(code)
	} else {
		generated, err := utils.GenerateReferralCode()
		if err != nil {
			return nil, err
		}
		code = generated
	}

	var existing models.Partner
	if err := s.db.WithContext(ctx).Where("referral_code = ?", code).First(&existing).Error; err == nil {
		return nil, fmt.Errorf("referral code %s is already taken", code)
	}

	partner := models.Partner{
		Name:         name,
		Email:        email,
		ReferralCode: code,
		Tier:         models.TierStandard,
		Status:       models.PartnerStatusPending,
	}
	if err := s.db.WithContext(ctx).Create(&partner).Error; err != nil {
		return nil, fmt.Errorf("failed to create partner: %w", err)
	}

	log.Printf("[Partner] created partner %d with code %s", partner.ID, code)
	return &partner, nil
}

// GetPartner retrieves a partner by ID
func (s *PartnerService) GetPartner(ctx context.Context, partnerID uint) (*models.Partner, error) {
	var partner models.Partner
	if err := s.db.WithContext(ctx).First(&partner, partnerID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("partner not found")
		}
		return nil, err
	}
	return &partner, nil
}

// SetStatus applies an admin status change. Partners are never deleted,
// only status-transitioned.
func (s *PartnerService) SetStatus(ctx context.Context, partnerID uint, status models.PartnerStatus) error {
	switch status {
	case models.PartnerStatusPending, models.PartnerStatusActive,
		models.PartnerStatusSuspended, models.PartnerStatusBlocked:
	default:
		return fmt.Errorf("unknown partner status %q", status)
	}

	result := s.db.WithContext(ctx).Model(&models.Partner{}).
		Where("id = ?", partnerID).Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("partner not found")
	}
	log.Printf("[Partner] partner %d status set to %s", partnerID, status)
	return nil
}

// SetTier applies a manual admin tier override. Like evaluator-driven
// changes it only affects future commissions.
func (s *PartnerService) SetTier(ctx context.Context, partnerID uint, tier models.Tier) error {
	switch tier {
	case models.TierStandard, models.TierSilver, models.TierGold,
		models.TierPlatinum, models.TierMaster:
	default:
		return fmt.Errorf("unknown tier %q", tier)
	}

	result := s.db.WithContext(ctx).Model(&models.Partner{}).
		Where("id = ?", partnerID).Update("tier", tier)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("partner not found")
	}
	return nil
}

// PartnerStats is the per-partner funnel and earnings summary.
type PartnerStats struct {
	TotalReferrals  int64                           `json:"total_referrals"`
	ByStatus        map[models.ReferralStatus]int64 `json:"by_status"`
	ActiveReferrals int                             `json:"active_referrals"`
	Tier            models.Tier                     `json:"tier"`
	TotalEarnings   string                          `json:"total_earnings"`
	PaidOut         string                          `json:"paid_out"`
	PendingBalance  string                          `json:"pending_balance"`
}

// GetPartnerStats aggregates a partner's referral funnel counts and
// earnings totals.
func (s *PartnerService) GetPartnerStats(ctx context.Context, partnerID uint) (*PartnerStats, error) {
	partner, err := s.GetPartner(ctx, partnerID)
	if err != nil {
		return nil, err
	}

	var rows []struct {
		Status models.ReferralStatus
		Count  int64
	}
	if err := s.db.WithContext(ctx).Model(&models.Referral{}).
		Select("status, count(*) as count").
		Where("partner_id = ?", partnerID).
		Group("status").Scan(&rows).Error; err != nil {
		return nil, err
	}

	stats := &PartnerStats{
		ByStatus:        make(map[models.ReferralStatus]int64, len(rows)),
		ActiveReferrals: partner.ActiveReferrals,
		Tier:            partner.Tier,
		TotalEarnings:   partner.TotalEarnings.StringFixed(2),
		PaidOut:         partner.PaidOut.StringFixed(2),
		PendingBalance:  partner.PendingBalance.StringFixed(2),
	}
	for _, row := range rows {
		stats.ByStatus[row.Status] = row.Count
		stats.TotalReferrals += row.Count
	}
	return stats, nil
}

// GetPartnerReferrals returns all referrals attributed to a partner
func (s *PartnerService) GetPartnerReferrals(ctx context.Context, partnerID uint) ([]models.Referral, error) {
	var referrals []models.Referral
	if err := s.db.WithContext(ctx).Where("partner_id = ?", partnerID).
		Order("created_at DESC").Find(&referrals).Error; err != nil {
		return nil, err
	}
	return referrals, nil
}
