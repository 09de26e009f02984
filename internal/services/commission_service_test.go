package services

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"referral-platform/internal/models"
	"referral-platform/internal/repository"
)

func TestComputeCommissionGoldMaintenance(t *testing.T) {
	db := setupTestDB(t)
	service := NewCommissionService(db, repository.NewRepository(db), newTestSettings(t, db))
	ctx := context.Background()

	partner := createTestPartner(t, db, "GOLDPART", models.TierGold)
	referral := createTestReferral(t, db, &partner.ID, models.ReferralStatusPaid)

	record, err := service.ComputeCommission(ctx, referral.ID, models.PaymentEvent{
		PaymentID: "pay-450",
		Amount:    decimal.NewFromInt(450),
		Type:      models.PaymentTypeMaintenance,
	})
	if err != nil {
		t.Fatalf("ComputeCommission failed: %v", err)
	}

	if !record.CommissionAmount.Equal(mustDecimal("67.50")) {
		t.Errorf("expected commission 67.50, got %s", record.CommissionAmount)
	}
	if !record.CommissionRate.Equal(decimal.NewFromInt(15)) {
		t.Errorf("expected rate 15, got %s", record.CommissionRate)
	}
	if record.Status != models.CommissionStatusPending {
		t.Errorf("expected status PENDING, got %s", record.Status)
	}

	var updated models.Partner
	if err := db.First(&updated, partner.ID).Error; err != nil {
		t.Fatalf("failed to reload partner: %v", err)
	}
	if !updated.PendingBalance.Equal(mustDecimal("67.50")) {
		t.Errorf("expected pending balance 67.50, got %s", updated.PendingBalance)
	}
	if !updated.TotalEarnings.Equal(mustDecimal("67.50")) {
		t.Errorf("expected total earnings 67.50, got %s", updated.TotalEarnings)
	}

	var ref models.Referral
	if err := db.First(&ref, referral.ID).Error; err != nil {
		t.Fatalf("failed to reload referral: %v", err)
	}
	if ref.TotalPayments != 1 {
		t.Errorf("expected 1 payment, got %d", ref.TotalPayments)
	}
	if !ref.LifetimeValue.Equal(decimal.NewFromInt(450)) {
		t.Errorf("expected lifetime value 450, got %s", ref.LifetimeValue)
	}
	if !ref.CommissionEarned.Equal(mustDecimal("67.50")) {
		t.Errorf("expected commission earned 67.50, got %s", ref.CommissionEarned)
	}
}

func TestCommissionRateSnapshotNeverRecomputed(t *testing.T) {
	db := setupTestDB(t)
	service := NewCommissionService(db, repository.NewRepository(db), newTestSettings(t, db))
	ctx := context.Background()

	partner := createTestPartner(t, db, "SNAPSHOT", models.TierStandard)
	referral := createTestReferral(t, db, &partner.ID, models.ReferralStatusActive)

	first, err := service.ComputeCommission(ctx, referral.ID, models.PaymentEvent{
		PaymentID: "pay-1",
		Amount:    decimal.NewFromInt(100),
		Type:      models.PaymentTypeMaintenance,
	})
	if err != nil {
		t.Fatalf("first computation failed: %v", err)
	}
	if !first.CommissionRate.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected standard rate 10, got %s", first.CommissionRate)
	}

	// Tier changes between payments; the old record keeps its rate.
	if err := db.Model(&models.Partner{}).Where("id = ?", partner.ID).
		Update("tier", models.TierGold).Error; err != nil {
		t.Fatalf("failed to change tier: %v", err)
	}

	second, err := service.ComputeCommission(ctx, referral.ID, models.PaymentEvent{
		PaymentID: "pay-2",
		Amount:    decimal.NewFromInt(100),
		Type:      models.PaymentTypeMaintenance,
	})
	if err != nil {
		t.Fatalf("second computation failed: %v", err)
	}
	if !second.CommissionRate.Equal(decimal.NewFromInt(15)) {
		t.Errorf("expected gold rate 15 on new record, got %s", second.CommissionRate)
	}

	var stored models.CommissionRecord
	if err := db.First(&stored, first.ID).Error; err != nil {
		t.Fatalf("failed to reload first record: %v", err)
	}
	if !stored.CommissionRate.Equal(decimal.NewFromInt(10)) {
		t.Errorf("historical record rate changed: got %s", stored.CommissionRate)
	}
}

func TestDuplicatePaymentRejected(t *testing.T) {
	db := setupTestDB(t)
	service := NewCommissionService(db, repository.NewRepository(db), newTestSettings(t, db))
	ctx := context.Background()

	partner := createTestPartner(t, db, "DUPPAID1", models.TierStandard)
	referral := createTestReferral(t, db, &partner.ID, models.ReferralStatusPaid)

	payment := models.PaymentEvent{
		PaymentID: "pay-dup",
		Amount:    decimal.NewFromInt(50),
		Type:      models.PaymentTypeMaintenance,
	}
	if _, err := service.ComputeCommission(ctx, referral.ID, payment); err != nil {
		t.Fatalf("first computation failed: %v", err)
	}

	_, err := service.ComputeCommission(ctx, referral.ID, payment)
	if !errors.Is(err, ErrDuplicatePayment) {
		t.Fatalf("expected ErrDuplicatePayment, got %v", err)
	}

	var count int64
	db.Model(&models.CommissionRecord{}).Count(&count)
	if count != 1 {
		t.Errorf("expected exactly one record, got %d", count)
	}
}

func TestMalformedPaymentRejectedBeforeLedger(t *testing.T) {
	db := setupTestDB(t)
	service := NewCommissionService(db, repository.NewRepository(db), newTestSettings(t, db))
	ctx := context.Background()

	partner := createTestPartner(t, db, "BADPAY01", models.TierStandard)
	referral := createTestReferral(t, db, &partner.ID, models.ReferralStatusPaid)

	bad := []models.PaymentEvent{
		{PaymentID: "", Amount: decimal.NewFromInt(10), Type: models.PaymentTypeMaintenance},
		{PaymentID: "neg", Amount: decimal.NewFromInt(-10), Type: models.PaymentTypeMaintenance},
		{PaymentID: "zero", Amount: decimal.Zero, Type: models.PaymentTypeMaintenance},
		{PaymentID: "odd", Amount: decimal.NewFromInt(10), Type: "REFUND"},
	}
	for _, payment := range bad {
		if _, err := service.ComputeCommission(ctx, referral.ID, payment); !errors.Is(err, ErrInvalidPayment) {
			t.Errorf("payment %+v: expected ErrInvalidPayment, got %v", payment, err)
		}
	}

	var count int64
	db.Model(&models.CommissionRecord{}).Count(&count)
	if count != 0 {
		t.Errorf("malformed events must not reach the ledger, found %d records", count)
	}

	var updated models.Partner
	db.First(&updated, partner.ID)
	if !updated.PendingBalance.IsZero() {
		t.Errorf("balance must be untouched, got %s", updated.PendingBalance)
	}
}

func TestSetupPaymentOncePerReferral(t *testing.T) {
	db := setupTestDB(t)
	service := NewCommissionService(db, repository.NewRepository(db), newTestSettings(t, db))
	ctx := context.Background()

	partner := createTestPartner(t, db, "SETUPONE", models.TierStandard)
	referral := createTestReferral(t, db, &partner.ID, models.ReferralStatusPaid)

	if _, err := service.ComputeCommission(ctx, referral.ID, models.PaymentEvent{
		PaymentID: "setup-1", Amount: decimal.NewFromInt(200), Type: models.PaymentTypeSetup,
	}); err != nil {
		t.Fatalf("setup payment failed: %v", err)
	}

	_, err := service.ComputeCommission(ctx, referral.ID, models.PaymentEvent{
		PaymentID: "setup-2", Amount: decimal.NewFromInt(200), Type: models.PaymentTypeSetup,
	})
	if !errors.Is(err, ErrInvalidPayment) {
		t.Errorf("second setup payment should be rejected, got %v", err)
	}
}

func TestOrganicReferralNoCommission(t *testing.T) {
	db := setupTestDB(t)
	service := NewCommissionService(db, repository.NewRepository(db), newTestSettings(t, db))

	referral := createTestReferral(t, db, nil, models.ReferralStatusPaid)

	record, err := service.ComputeCommission(context.Background(), referral.ID, models.PaymentEvent{
		PaymentID: "organic-1",
		Amount:    decimal.NewFromInt(300),
		Type:      models.PaymentTypeMaintenance,
	})
	if err != nil {
		t.Fatalf("organic payment should not error: %v", err)
	}
	if record != nil {
		t.Error("organic referral must not produce a commission record")
	}
}
