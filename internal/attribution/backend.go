package attribution

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"referral-platform/internal/models"
)

// Backend is a durable visitor -> referral code binding store. Put must
// be first-write-wins: writing a key that already holds a value is a
// successful no-op.
type Backend interface {
	Get(ctx context.Context, visitorKey string) (string, error)
	Put(ctx context.Context, visitorKey, code string) error
}

// GormBackend stores bindings in an attribution_bindings table. The same
// implementation serves both the primary (Postgres) and the fallback
// (embedded SQLite) store.
type GormBackend struct {
	db *gorm.DB
}

func NewGormBackend(db *gorm.DB) *GormBackend {
	return &GormBackend{db: db}
}

// Get returns the bound code for a visitor, or "" when no binding exists.
func (b *GormBackend) Get(ctx context.Context, visitorKey string) (string, error) {
	var binding models.AttributionBinding
	err := b.db.WithContext(ctx).Where("visitor_key = ?", visitorKey).First(&binding).Error
	if err == gorm.ErrRecordNotFound {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return binding.ReferralCode, nil
}

// Put binds a visitor to a code. An existing binding is left untouched.
func (b *GormBackend) Put(ctx context.Context, visitorKey, code string) error {
	binding := models.AttributionBinding{
		VisitorKey:   visitorKey,
		ReferralCode: code,
		CapturedAt:   time.Now(),
	}
	return b.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "visitor_key"}},
		DoNothing: true,
	}).Create(&binding).Error
}
