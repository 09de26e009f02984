package tracking

import (
	"context"
	"log"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"referral-platform/internal/attribution"
	"referral-platform/internal/models"
)

// Recorder emits at-most-one click event per referral code per visitor.
// A per-visitor marker remembers the last code whose click was
// acknowledged by the ingestion endpoint; a matching incoming code makes
// no network call at all. Delivery happens off the request path through
// a buffered queue drained by a dispatcher job.
type Recorder struct {
	db     *gorm.DB
	client *IngestClient
	queue  chan Event
}

func NewRecorder(db *gorm.DB, client *IngestClient, queueSize int) *Recorder {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &Recorder{
		db:     db,
		client: client,
		queue:  make(chan Event, queueSize),
	}
}

// RecordClick enqueues a click event for a visitor unless one was already
// acknowledged for the same code. Fire-and-forget: it never blocks the
// caller and never returns an error to the visitor path.
func (r *Recorder) RecordClick(ctx context.Context, visitorKey, code, page, referrer, userAgent string) {
	if visitorKey == "" || !attribution.ValidCode(code) {
		return
	}
	code = attribution.Normalize(code)

	var marker models.ClickMarker
	err := r.db.WithContext(ctx).Where("visitor_key = ?", visitorKey).First(&marker).Error
	if err == nil && marker.LastCode == code {
		return // already recorded for this code on this device
	}
	if err != nil && err != gorm.ErrRecordNotFound {
		log.Printf("[ClickRecorder] marker lookup failed for visitor %s: %v", visitorKey, err)
		// Fall through: worst case is a duplicate event, not a lost one.
	}

	ev := Event{
		VisitorKey: visitorKey,
		Ref:        code,
		Page:       page,
		Referrer:   referrer,
		UserAgent:  userAgent,
	}

	select {
	case r.queue <- ev:
	default:
		// Queue full: drop and retry on the visitor's next arrival.
		log.Printf("[ClickRecorder] queue full, dropping click for visitor %s", visitorKey)
	}
}

// Queue exposes the pending click events for the dispatcher job.
func (r *Recorder) Queue() <-chan Event {
	return r.queue
}

// Deliver sends one event to the ingestion endpoint and advances the
// visitor's marker only on acknowledgment, so a failed delivery is
// retried on the next visit.
func (r *Recorder) Deliver(ctx context.Context, ev Event) {
	if err := r.client.Send(ctx, ev); err != nil {
		log.Printf("[ClickRecorder] delivery failed for visitor %s code %s: %v", ev.VisitorKey, ev.Ref, err)
		return
	}

	marker := models.ClickMarker{
		VisitorKey: ev.VisitorKey,
		LastCode:   ev.Ref,
		UpdatedAt:  time.Now(),
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "visitor_key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"last_code":  ev.Ref,
			"updated_at": marker.UpdatedAt,
		}),
	}).Create(&marker).Error
	if err != nil {
		log.Printf("[ClickRecorder] marker update failed for visitor %s: %v", ev.VisitorKey, err)
	}
}
