package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"referral-platform/internal/attribution"
	"referral-platform/internal/models"
	"referral-platform/internal/repository"
	"referral-platform/internal/tracking"
)

// ErrInvalidTransition marks a lifecycle move the funnel does not allow:
// any backward move, or anything out of the terminal churned state.
var ErrInvalidTransition = errors.New("invalid lifecycle transition")

// funnelRank orders the forward funnel. Forward jumps that skip steps are
// accepted silently because real-world timestamps for intermediate states
// are often missing. CHURNED sits outside the ranking as a terminal
// side-branch reachable only from PAID or ACTIVE.
var funnelRank = map[models.ReferralStatus]int{
	models.ReferralStatusClicked:    0,
	models.ReferralStatusRegistered: 1,
	models.ReferralStatusContacted:  2,
	models.ReferralStatusPaid:       3,
	models.ReferralStatusActive:     4,
}

// CanTransition reports whether the funnel allows moving from one status
// to another.
func CanTransition(from, to models.ReferralStatus) bool {
	if from == models.ReferralStatusChurned {
		return false // terminal, no re-entry
	}
	if to == models.ReferralStatusChurned {
		return from == models.ReferralStatusPaid || from == models.ReferralStatusActive
	}
	fromRank, okFrom := funnelRank[from]
	toRank, okTo := funnelRank[to]
	if !okFrom || !okTo {
		return false
	}
	return toRank > fromRank
}

// VisitContext carries the request-level details of a tracked visit.
type VisitContext struct {
	Page        string
	Referrer    string
	UserAgent   string
	UTMSource   string
	UTMMedium   string
	UTMCampaign string
}

// LifecycleService drives each referral through the funnel
// clicked -> registered -> contacted -> paid -> active (churned as a
// terminal side-branch). It only validates and applies externally driven
// transitions; it never polls.
type LifecycleService struct {
	db         *gorm.DB
	repo       *repository.Repository
	store      *attribution.Store
	recorder   *tracking.Recorder
	commission *CommissionService
	tiers      *TierService
}

func NewLifecycleService(
	db *gorm.DB,
	repo *repository.Repository,
	store *attribution.Store,
	recorder *tracking.Recorder,
	commission *CommissionService,
	tiers *TierService,
) *LifecycleService {
	return &LifecycleService{
		db:         db,
		repo:       repo,
		store:      store,
		recorder:   recorder,
		commission: commission,
		tiers:      tiers,
	}
}

// TrackVisit handles a visitor arrival: attribution capture, click
// recording, and creation of the referral at CLICKED on first contact.
// It never fails the visitor path; storage problems degrade to an
// untracked visit.
func (s *LifecycleService) TrackVisit(ctx context.Context, visitorKey string, page attribution.PageContext, visit VisitContext) {
	code := s.store.Read(ctx, visitorKey, page)
	if code == "" {
		return // organic visit, nothing to attribute
	}

	s.recorder.RecordClick(ctx, visitorKey, code, visit.Page, visit.Referrer, visit.UserAgent)

	var existing models.Referral
	err := s.db.WithContext(ctx).Where("visitor_key = ?", visitorKey).First(&existing).Error
	if err == nil {
		return // referral already exists, binding is permanent
	}
	if err != gorm.ErrRecordNotFound {
		log.Printf("[Lifecycle] referral lookup failed for visitor %s: %v", visitorKey, err)
		return
	}

	referral := models.Referral{
		VisitorKey:  visitorKey,
		Status:      models.ReferralStatusClicked,
		Source:      "referral",
		UTMSource:   visit.UTMSource,
		UTMMedium:   visit.UTMMedium,
		UTMCampaign: visit.UTMCampaign,
	}
	if partner, err := s.repo.GetPartnerByCode(ctx, code); err == nil && partner.Status != models.PartnerStatusBlocked {
		referral.PartnerID = &partner.ID
	}

	if err := s.db.WithContext(ctx).Create(&referral).Error; err != nil {
		log.Printf("[Lifecycle] failed to create referral for visitor %s: %v", visitorKey, err)
	}
}

// Register advances (or creates) a referral when the prospect signs up.
// If the referral is not yet attributed, the persisted attribution
// binding is consulted; an existing partner binding is never overwritten.
func (s *LifecycleService) Register(ctx context.Context, visitorKey, email, name string) (*models.Referral, error) {
	var referral models.Referral
	err := s.db.WithContext(ctx).Where("visitor_key = ?", visitorKey).First(&referral).Error

	if err == gorm.ErrRecordNotFound {
		referral = models.Referral{
			VisitorKey: visitorKey,
			Email:      email,
			Name:       name,
			Status:     models.ReferralStatusRegistered,
			Source:     "registration",
		}
		s.bindPartner(ctx, &referral, visitorKey)
		if createErr := s.db.WithContext(ctx).Create(&referral).Error; createErr != nil {
			return nil, fmt.Errorf("failed to create referral: %w", createErr)
		}
		return &referral, nil
	}
	if err != nil {
		return nil, err
	}

	if referral.PartnerID == nil {
		s.bindPartner(ctx, &referral, visitorKey)
		if referral.PartnerID != nil {
			if err := s.db.WithContext(ctx).Model(&referral).Update("partner_id", referral.PartnerID).Error; err != nil {
				return nil, err
			}
		}
	}

	updates := map[string]interface{}{"email": email, "name": name}
	if CanTransition(referral.Status, models.ReferralStatusRegistered) {
		updates["status"] = models.ReferralStatusRegistered
		referral.Status = models.ReferralStatusRegistered
	}
	if err := s.db.WithContext(ctx).Model(&referral).Updates(updates).Error; err != nil {
		return nil, err
	}
	referral.Email = email
	referral.Name = name
	return &referral, nil
}

// bindPartner attributes a referral from the stored visitor binding.
func (s *LifecycleService) bindPartner(ctx context.Context, referral *models.Referral, visitorKey string) {
	code := s.store.Read(ctx, visitorKey, attribution.PageContext{})
	if code == "" {
		return
	}
	partner, err := s.repo.GetPartnerByCode(ctx, code)
	if err != nil || partner.Status == models.PartnerStatusBlocked {
		return
	}
	referral.PartnerID = &partner.ID
}

// MarkContacted records a manual contact note from an admin.
func (s *LifecycleService) MarkContacted(ctx context.Context, referralID uint) error {
	return s.ApplyTransition(ctx, referralID, models.ReferralStatusContacted)
}

// MarkChurned applies an inactivity signal. Only paid or active
// referrals can churn; churned is terminal.
func (s *LifecycleService) MarkChurned(ctx context.Context, referralID uint) error {
	return s.ApplyTransition(ctx, referralID, models.ReferralStatusChurned)
}

// PaymentReceived applies an external payment event: it advances the
// referral (first payment lands it in PAID, subsequent payments in
// ACTIVE), then invokes the commission engine. The state transition,
// including any active-count and tier change, commits fully before the
// commission computation reads the partner's tier.
func (s *LifecycleService) PaymentReceived(ctx context.Context, referralID uint, payment models.PaymentEvent) (*models.CommissionRecord, error) {
	if err := s.commission.ValidatePayment(payment); err != nil {
		return nil, err
	}

	referral, err := s.repo.GetReferralByID(ctx, referralID)
	if err != nil {
		return nil, fmt.Errorf("referral not found: %w", err)
	}

	var target models.ReferralStatus
	switch referral.Status {
	case models.ReferralStatusPaid:
		target = models.ReferralStatusActive
	case models.ReferralStatusActive, models.ReferralStatusChurned:
		target = "" // no state change; the lifetime model still pays out
	default:
		target = models.ReferralStatusPaid
	}

	if target != "" {
		if err := s.ApplyTransition(ctx, referralID, target); err != nil {
			return nil, err
		}
	}

	return s.commission.ComputeCommission(ctx, referralID, payment)
}

// ApplyTransition validates and applies one lifecycle transition,
// adjusting the partner's active-referral count and tier in the same
// transaction when the referral enters or leaves ACTIVE. A transition to
// the referral's current state is a silent no-op.
func (s *LifecycleService) ApplyTransition(ctx context.Context, referralID uint, to models.ReferralStatus) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		referral, err := s.repo.GetReferralForUpdate(tx, referralID)
		if err != nil {
			return fmt.Errorf("referral not found: %w", err)
		}

		from := referral.Status
		if from == to {
			return nil
		}
		if !CanTransition(from, to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
		}

		if err := tx.Model(referral).Updates(map[string]interface{}{
			"status":     to,
			"updated_at": time.Now(),
		}).Error; err != nil {
			return err
		}

		if referral.PartnerID == nil {
			return nil
		}

		var delta int
		if to == models.ReferralStatusActive && from != models.ReferralStatusActive {
			delta = 1
		}
		if from == models.ReferralStatusActive && to != models.ReferralStatusActive {
			delta = -1
		}
		if delta == 0 {
			return nil
		}

		partner, err := s.repo.GetPartnerForUpdate(tx, *referral.PartnerID)
		if err != nil {
			return err
		}
		if err := tx.Model(partner).
			Update("active_referrals", gorm.Expr("active_referrals + ?", delta)).Error; err != nil {
			return err
		}
		partner.ActiveReferrals += delta

		if _, err := s.tiers.ReevaluateTx(tx, partner); err != nil {
			return err
		}

		log.Printf("[Lifecycle] referral %d: %s -> %s (partner %d now has %d active)",
			referral.ID, from, to, partner.ID, partner.ActiveReferrals)
		return nil
	})
}
