package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"referral-platform/internal/models"
)

// Repository provides the row-level data access the services share.
// The ForUpdate variants take a transaction handle and lock the row so
// concurrent payment events for the same referral serialize.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// GetPartnerByCode retrieves a partner by its referral code
func (r *Repository) GetPartnerByCode(ctx context.Context, code string) (*models.Partner, error) {
	var partner models.Partner
	if err := r.db.WithContext(ctx).Where("referral_code = ?", code).First(&partner).Error; err != nil {
		return nil, err
	}
	return &partner, nil
}

// GetReferralByID retrieves a referral by ID
func (r *Repository) GetReferralByID(ctx context.Context, referralID uint) (*models.Referral, error) {
	var referral models.Referral
	if err := r.db.WithContext(ctx).First(&referral, referralID).Error; err != nil {
		return nil, err
	}
	return &referral, nil
}

// GetReferralForUpdate locks and returns a referral row inside tx.
func (r *Repository) GetReferralForUpdate(tx *gorm.DB, referralID uint) (*models.Referral, error) {
	var referral models.Referral
	if err := withRowLock(tx).First(&referral, referralID).Error; err != nil {
		return nil, err
	}
	return &referral, nil
}

// GetPartnerForUpdate locks and returns a partner row inside tx.
func (r *Repository) GetPartnerForUpdate(tx *gorm.DB, partnerID uint) (*models.Partner, error) {
	var partner models.Partner
	if err := withRowLock(tx).First(&partner, partnerID).Error; err != nil {
		return nil, err
	}
	return &partner, nil
}

// withRowLock adds SELECT ... FOR UPDATE where the dialect supports it.
// SQLite serializes writers on its own and rejects the clause.
func withRowLock(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// DB returns the underlying handle for callers that open transactions.
func (r *Repository) DB() *gorm.DB {
	return r.db
}
