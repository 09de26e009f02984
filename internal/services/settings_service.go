package services

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"referral-platform/internal/models"
)

// SettingsService owns the single versioned commission/tier configuration
// record. An update installs a fresh snapshot under the mutex and never
// mutates a value already handed out, so components fetch via Current on
// every operation and read their snapshot without synchronization.
type SettingsService struct {
	db *gorm.DB
	mu sync.Mutex

	current *models.ProgramSettings
}

func NewSettingsService(db *gorm.DB) *SettingsService {
	return &SettingsService{db: db}
}

// Load fetches the settings row, seeding defaults when none exists.
func (s *SettingsService) Load() (*models.ProgramSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var settings models.ProgramSettings
	err := s.db.Order("id").First(&settings).Error
	if err == gorm.ErrRecordNotFound {
		defaults := models.DefaultSettings()
		if err := s.db.Create(defaults).Error; err != nil {
			return nil, fmt.Errorf("failed to seed default settings: %w", err)
		}
		log.Printf("[Settings] seeded default program settings (version %d)", defaults.Version)
		s.current = defaults
		return defaults, nil
	}
	if err != nil {
		return nil, err
	}

	s.current = &settings
	return &settings, nil
}

// Current returns the loaded settings, loading them on first use.
func (s *SettingsService) Current() (*models.ProgramSettings, error) {
	s.mu.Lock()
	current := s.current
	s.mu.Unlock()
	if current != nil {
		return current, nil
	}
	return s.Load()
}

// Update replaces the tier ladder and payout minimum, bumping the
// version. A new snapshot is installed; the previous one stays intact for
// readers still holding it, and already issued commission records keep
// their stamped rates.
func (s *SettingsService) Update(tiers []models.TierLevel, minimumPayout decimal.Decimal) (*models.ProgramSettings, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("tier ladder cannot be empty")
	}
	if tiers[0].MinReferrals != 0 {
		return nil, fmt.Errorf("base tier must start at zero referrals")
	}
	for i, level := range tiers {
		if !level.RatePercent.IsPositive() {
			return nil, fmt.Errorf("tier %s rate must be positive", level.Tier)
		}
		if i > 0 && level.MinReferrals < tiers[i-1].MinReferrals {
			return nil, fmt.Errorf("tier ladder must be ordered ascending by referral threshold")
		}
	}
	if minimumPayout.IsNegative() {
		return nil, fmt.Errorf("minimum payout amount cannot be negative")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.current
	if current == nil {
		return nil, fmt.Errorf("settings not loaded")
	}

	updated := *current
	updated.Version++
	updated.MinimumPayoutAmount = minimumPayout
	updated.Tiers = tiers
	updated.UpdatedAt = time.Now()
	if err := s.db.Save(&updated).Error; err != nil {
		return nil, fmt.Errorf("failed to update settings: %w", err)
	}

	s.current = &updated

	log.Printf("[Settings] program settings updated to version %d", updated.Version)
	return &updated, nil
}
