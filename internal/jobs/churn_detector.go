package jobs

import (
	"context"
	"log"
	"time"

	"referral-platform/internal/models"
	"referral-platform/internal/services"

	"gorm.io/gorm"
)

// ChurnDetector emits inactivity signals: paid or active referrals with
// no payment for the configured window are moved to CHURNED through the
// lifecycle tracker, which keeps the partner's active count and tier in
// step.
type ChurnDetector struct {
	db        *gorm.DB
	lifecycle *services.LifecycleService
	inactive  time.Duration
	interval  time.Duration
	stopChan  chan struct{}
}

// NewChurnDetector creates a new churn detection job
func NewChurnDetector(db *gorm.DB, lifecycle *services.LifecycleService, inactive, interval time.Duration) *ChurnDetector {
	return &ChurnDetector{
		db:        db,
		lifecycle: lifecycle,
		inactive:  inactive,
		interval:  interval,
		stopChan:  make(chan struct{}),
	}
}

// Start begins the churn detection loop
func (cd *ChurnDetector) Start() {
	log.Printf("[ChurnDetector] Starting churn detection job (interval: %v, inactive after: %v)", cd.interval, cd.inactive)

	ticker := time.NewTicker(cd.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cd.detectChurned()
		case <-cd.stopChan:
			log.Println("[ChurnDetector] Stopping churn detection job")
			return
		}
	}
}

// Stop stops the churn detection loop
func (cd *ChurnDetector) Stop() {
	close(cd.stopChan)
}

// detectChurned finds inactive paid/active referrals and churns them
func (cd *ChurnDetector) detectChurned() {
	ctx := context.Background()
	cutoff := time.Now().Add(-cd.inactive)

	var referrals []models.Referral
	err := cd.db.WithContext(ctx).
		Where("status IN ? AND last_payment_at IS NOT NULL AND last_payment_at < ?",
			[]models.ReferralStatus{models.ReferralStatusPaid, models.ReferralStatusActive}, cutoff).
		Limit(100).
		Find(&referrals).Error
	if err != nil {
		log.Printf("[ChurnDetector] Error fetching inactive referrals: %v", err)
		return
	}

	if len(referrals) == 0 {
		return
	}

	churnedCount := 0
	for _, referral := range referrals {
		if err := cd.lifecycle.MarkChurned(ctx, referral.ID); err != nil {
			log.Printf("[ChurnDetector] Error churning referral %d: %v", referral.ID, err)
			continue
		}
		churnedCount++
	}

	if churnedCount > 0 {
		log.Printf("[ChurnDetector] Churned %d inactive referrals", churnedCount)
	}
}
