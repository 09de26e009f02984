package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TierLevel is one row of the commission ladder: the tier a partner
// reaches once their active-referral count meets MinReferrals, and the
// percentage applied to payments from their referrals while they hold it.
type TierLevel struct {
	Tier         Tier            `json:"tier"`
	MinReferrals int             `json:"min_referrals"`
	RatePercent  decimal.Decimal `json:"rate_percent"`
}

// ProgramSettings is the single versioned commission/tier configuration
// record. It is loaded once at startup and passed by reference into the
// commission and tier services; admin updates bump Version.
type ProgramSettings struct {
	ID                  uint            `gorm:"primaryKey" json:"id"`
	Version             int             `gorm:"not null;default:1" json:"version"`
	Currency            string          `gorm:"size:3;not null;default:USD" json:"currency"`
	MinimumPayoutAmount decimal.Decimal `gorm:"type:decimal(18,2);not null;default:50" json:"minimum_payout_amount"`
	Tiers               []TierLevel     `gorm:"serializer:json" json:"tiers"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

func (ProgramSettings) TableName() string {
	return "program_settings"
}

// TierForCount returns the highest tier whose threshold is met by the
// given active-referral count. Tiers are ordered ascending, so the last
// satisfied level wins and equal thresholds resolve to the higher tier.
func (s *ProgramSettings) TierForCount(activeReferrals int) Tier {
	tier := TierStandard
	for _, level := range s.Tiers {
		if activeReferrals >= level.MinReferrals {
			tier = level.Tier
		}
	}
	return tier
}

// RateForTier returns the commission percentage for a tier. An unknown
// tier falls back to the lowest level of the ladder.
func (s *ProgramSettings) RateForTier(tier Tier) decimal.Decimal {
	for _, level := range s.Tiers {
		if level.Tier == tier {
			return level.RatePercent
		}
	}
	if len(s.Tiers) > 0 {
		return s.Tiers[0].RatePercent
	}
	return decimal.Zero
}

// DefaultTiers is the commission ladder applied when no settings row
// exists yet, ordered ascending by referral-count threshold.
func DefaultTiers() []TierLevel {
	return []TierLevel{
		{Tier: TierStandard, MinReferrals: 0, RatePercent: decimal.NewFromInt(10)},
		{Tier: TierSilver, MinReferrals: 5, RatePercent: decimal.NewFromInt(12)},
		{Tier: TierGold, MinReferrals: 15, RatePercent: decimal.NewFromInt(15)},
		{Tier: TierPlatinum, MinReferrals: 30, RatePercent: decimal.NewFromInt(18)},
		{Tier: TierMaster, MinReferrals: 50, RatePercent: decimal.NewFromInt(20)},
	}
}

// DefaultSettings returns program settings with the default ladder and a
// $50 minimum payout.
func DefaultSettings() *ProgramSettings {
	return &ProgramSettings{
		Version:             1,
		Currency:            "USD",
		MinimumPayoutAmount: decimal.NewFromInt(50),
		Tiers:               DefaultTiers(),
	}
}
