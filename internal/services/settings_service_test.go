package services

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"referral-platform/internal/models"
)

func TestSettingsLoadSeedsDefaults(t *testing.T) {
	db := setupTestDB(t)
	svc := NewSettingsService(db)

	settings, err := svc.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !settings.MinimumPayoutAmount.Equal(decimal.NewFromInt(50)) {
		t.Errorf("expected default minimum payout 50, got %s", settings.MinimumPayoutAmount)
	}
	if len(settings.Tiers) != 5 {
		t.Fatalf("expected 5 tiers, got %d", len(settings.Tiers))
	}
	if settings.Tiers[0].Tier != models.TierStandard || !settings.Tiers[0].RatePercent.Equal(decimal.NewFromInt(10)) {
		t.Errorf("unexpected base tier: %+v", settings.Tiers[0])
	}

	// A second Load picks up the persisted row, not a fresh seed.
	again, err := NewSettingsService(db).Load()
	if err != nil {
		t.Fatalf("second Load failed: %v", err)
	}
	if again.Version != settings.Version {
		t.Errorf("expected version %d, got %d", settings.Version, again.Version)
	}
}

func TestSettingsUpdateBumpsVersion(t *testing.T) {
	db := setupTestDB(t)
	svc := NewSettingsService(db)
	if _, err := svc.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	tiers := []models.TierLevel{
		{Tier: models.TierStandard, MinReferrals: 0, RatePercent: decimal.NewFromInt(11)},
		{Tier: models.TierGold, MinReferrals: 10, RatePercent: decimal.NewFromInt(16)},
	}
	updated, err := svc.Update(tiers, decimal.NewFromInt(25))
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Version != 2 {
		t.Errorf("expected version 2, got %d", updated.Version)
	}
	if !updated.MinimumPayoutAmount.Equal(decimal.NewFromInt(25)) {
		t.Errorf("minimum payout not updated: %s", updated.MinimumPayoutAmount)
	}

	current, err := svc.Current()
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if len(current.Tiers) != 2 {
		t.Errorf("ladder not replaced, got %d tiers", len(current.Tiers))
	}
}

func TestSettingsUpdateRejectsBadLadder(t *testing.T) {
	db := setupTestDB(t)
	svc := NewSettingsService(db)
	if _, err := svc.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	cases := []struct {
		name  string
		tiers []models.TierLevel
	}{
		{"empty ladder", nil},
		{"first threshold not zero", []models.TierLevel{
			{Tier: models.TierStandard, MinReferrals: 1, RatePercent: decimal.NewFromInt(10)},
		}},
		{"thresholds not ascending", []models.TierLevel{
			{Tier: models.TierStandard, MinReferrals: 0, RatePercent: decimal.NewFromInt(10)},
			{Tier: models.TierGold, MinReferrals: 20, RatePercent: decimal.NewFromInt(15)},
			{Tier: models.TierSilver, MinReferrals: 5, RatePercent: decimal.NewFromInt(12)},
		}},
		{"non-positive rate", []models.TierLevel{
			{Tier: models.TierStandard, MinReferrals: 0, RatePercent: decimal.Zero},
		}},
	}

	for _, tc := range cases {
		if _, err := svc.Update(tc.tiers, decimal.NewFromInt(50)); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestSettingsChangeIsProspectiveOnly(t *testing.T) {
	db := setupTestDB(t)
	settingsSvc := newTestSettings(t, db)
	tierSvc := NewTierService(db, settingsSvc)

	partner := createTestPartner(t, db, "PROSPECT", models.TierSilver)
	if err := db.Model(partner).Update("active_referrals", 6).Error; err != nil {
		t.Fatalf("failed to seed active count: %v", err)
	}

	// Raising the silver threshold does not touch anyone by itself.
	if _, err := settingsSvc.Update([]models.TierLevel{
		{Tier: models.TierStandard, MinReferrals: 0, RatePercent: decimal.NewFromInt(10)},
		{Tier: models.TierSilver, MinReferrals: 8, RatePercent: decimal.NewFromInt(12)},
	}, decimal.NewFromInt(50)); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	var unchanged models.Partner
	db.First(&unchanged, partner.ID)
	if unchanged.Tier != models.TierSilver {
		t.Errorf("settings change alone must not move tiers, got %s", unchanged.Tier)
	}

	// The next reevaluation applies the new ladder.
	changed, err := tierSvc.Reevaluate(context.Background(), partner.ID)
	if err != nil {
		t.Fatalf("Reevaluate failed: %v", err)
	}
	if !changed {
		t.Fatal("expected a tier change on reevaluation")
	}
	db.First(&unchanged, partner.ID)
	if unchanged.Tier != models.TierStandard {
		t.Errorf("expected STANDARD under the new ladder, got %s", unchanged.Tier)
	}
}

func TestSettingsUpdateLeavesOldSnapshotIntact(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestSettings(t, db)

	before, err := svc.Current()
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}

	if _, err := svc.Update([]models.TierLevel{
		{Tier: models.TierStandard, MinReferrals: 0, RatePercent: decimal.NewFromInt(20)},
	}, decimal.NewFromInt(10)); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	// The snapshot handed out before the update keeps the old ladder.
	if !before.RateForTier(models.TierStandard).Equal(decimal.NewFromInt(10)) {
		t.Errorf("old snapshot mutated: rate %s", before.RateForTier(models.TierStandard))
	}
	if !before.MinimumPayoutAmount.Equal(decimal.NewFromInt(50)) {
		t.Errorf("old snapshot mutated: minimum %s", before.MinimumPayoutAmount)
	}

	after, err := svc.Current()
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if !after.RateForTier(models.TierStandard).Equal(decimal.NewFromInt(20)) {
		t.Errorf("new snapshot not visible: rate %s", after.RateForTier(models.TierStandard))
	}
}

func TestSettingsConcurrentReadsDuringUpdates(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestSettings(t, db)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			current, err := svc.Current()
			if err != nil {
				t.Errorf("Current failed: %v", err)
				return
			}
			rate := current.RateForTier(models.TierStandard)
			if !rate.Equal(decimal.NewFromInt(10)) && !rate.Equal(decimal.NewFromInt(20)) {
				t.Errorf("torn read: rate %s", rate)
				return
			}
		}
	}()

	for i := 0; i < 50; i++ {
		rate := decimal.NewFromInt(10)
		if i%2 == 1 {
			rate = decimal.NewFromInt(20)
		}
		if _, err := svc.Update([]models.TierLevel{
			{Tier: models.TierStandard, MinReferrals: 0, RatePercent: rate},
		}, decimal.NewFromInt(50)); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
	}
	close(stop)
	wg.Wait()
}
