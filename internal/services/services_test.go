package services

import (
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"referral-platform/internal/attribution"
	"referral-platform/internal/models"
	"referral-platform/internal/repository"
	"referral-platform/internal/tracking"
)

func setupTestDB(t *testing.T) *gorm.DB {
	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}

	err = db.AutoMigrate(
		&models.Partner{},
		&models.Referral{},
		&models.CommissionRecord{},
		&models.Payout{},
		&models.ProgramSettings{},
		&models.AttributionBinding{},
		&models.ClickMarker{},
	)
	if err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}

	for _, table := range []string{
		"partners", "referrals", "commission_records", "payouts",
		"program_settings", "attribution_bindings", "click_markers",
	} {
		db.Exec("DELETE FROM " + table)
	}

	return db
}

func createTestPartner(t *testing.T, db *gorm.DB, code string, tier models.Tier) *models.Partner {
	partner := models.Partner{
		Name:         "Test Partner " + code,
		Email:        code + "@example.com",
		ReferralCode: code,
		Tier:         tier,
		Status:       models.PartnerStatusActive,
	}
	if err := db.Create(&partner).Error; err != nil {
		t.Fatalf("failed to create partner: %v", err)
	}
	return &partner
}

func createTestReferral(t *testing.T, db *gorm.DB, partnerID *uint, status models.ReferralStatus) *models.Referral {
	referral := models.Referral{
		PartnerID:       partnerID,
		VisitorKey:      fmt.Sprintf("visitor-%s-%d", status, len(t.Name())),
		Status:          status,
		LifetimeBinding: true,
	}
	if err := db.Create(&referral).Error; err != nil {
		t.Fatalf("failed to create referral: %v", err)
	}
	return &referral
}

// newTestSettings loads a settings service seeded with the defaults.
func newTestSettings(t *testing.T, db *gorm.DB) *SettingsService {
	t.Helper()
	svc := NewSettingsService(db)
	if _, err := svc.Load(); err != nil {
		t.Fatalf("failed to load settings: %v", err)
	}
	return svc
}

// newTestLifecycle wires a lifecycle service with real collaborators on
// the test database. The ingest endpoint is unset, so click delivery is
// a no-op success.
func newTestLifecycle(t *testing.T, db *gorm.DB) (*LifecycleService, *attribution.Store) {
	repo := repository.NewRepository(db)
	backend := attribution.NewGormBackend(db)
	store, err := attribution.NewStore(backend, backend)
	if err != nil {
		t.Fatalf("failed to create attribution store: %v", err)
	}
	recorder := tracking.NewRecorder(db, tracking.NewIngestClient(""), 16)
	settings := newTestSettings(t, db)
	commission := NewCommissionService(db, repo, settings)
	tiers := NewTierService(db, settings)
	return NewLifecycleService(db, repo, store, recorder, commission, tiers), store
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}
