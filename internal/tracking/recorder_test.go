package tracking

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"referral-platform/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}
	if err := db.AutoMigrate(&models.ClickMarker{}); err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}
	db.Exec("DELETE FROM click_markers")
	return db
}

// drain pulls at most one queued event, reporting whether there was one.
func drain(r *Recorder) (Event, bool) {
	select {
	case ev := <-r.Queue():
		return ev, true
	default:
		return Event{}, false
	}
}

func TestRecordClickIdempotent(t *testing.T) {
	db := setupTestDB(t)

	var delivered int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		delivered++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	recorder := NewRecorder(db, NewIngestClient(server.URL), 16)
	ctx := context.Background()

	// Two identical clicks before delivery: the second one still enqueues
	// because the marker only advances on acknowledgment, but after the
	// first delivery the marker blocks further events for the same code.
	recorder.RecordClick(ctx, "visitor-1", "ABCD1234", "/landing", "", "test-agent")
	ev, ok := drain(recorder)
	if !ok {
		t.Fatal("expected a queued click event")
	}
	recorder.Deliver(ctx, ev)

	if delivered != 1 {
		t.Fatalf("expected 1 delivered event, got %d", delivered)
	}

	recorder.RecordClick(ctx, "visitor-1", "ABCD1234", "/landing", "", "test-agent")
	if _, ok := drain(recorder); ok {
		t.Error("same code should not enqueue a second event after acknowledgment")
	}
	if delivered != 1 {
		t.Errorf("expected exactly 1 outbound event, got %d", delivered)
	}
}

func TestRecordClickNewCodeEmitsAgain(t *testing.T) {
	db := setupTestDB(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	recorder := NewRecorder(db, NewIngestClient(server.URL), 16)
	ctx := context.Background()

	recorder.RecordClick(ctx, "visitor-2", "CODEA111", "/", "", "")
	ev, _ := drain(recorder)
	recorder.Deliver(ctx, ev)

	// A different code is a new click even on the same device.
	recorder.RecordClick(ctx, "visitor-2", "CODEB222", "/", "", "")
	ev, ok := drain(recorder)
	if !ok {
		t.Fatal("expected an event for the new code")
	}
	if ev.Ref != "CODEB222" {
		t.Errorf("expected event for CODEB222, got %s", ev.Ref)
	}
}

func TestDeliveryFailureLeavesMarkerForRetry(t *testing.T) {
	db := setupTestDB(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	recorder := NewRecorder(db, NewIngestClient(server.URL), 16)
	ctx := context.Background()

	recorder.RecordClick(ctx, "visitor-3", "RETRY123", "/", "", "")
	ev, ok := drain(recorder)
	if !ok {
		t.Fatal("expected a queued event")
	}
	recorder.Deliver(ctx, ev)

	var count int64
	db.Model(&models.ClickMarker{}).Where("visitor_key = ?", "visitor-3").Count(&count)
	if count != 0 {
		t.Error("marker must not advance on transport failure")
	}

	// Next visit retries the same code.
	recorder.RecordClick(ctx, "visitor-3", "RETRY123", "/", "", "")
	if _, ok := drain(recorder); !ok {
		t.Error("expected a retry event after failed delivery")
	}
}

func TestRecordClickRejectsInvalidCode(t *testing.T) {
	db := setupTestDB(t)
	recorder := NewRecorder(db, NewIngestClient(""), 16)

	recorder.RecordClick(context.Background(), "visitor-4", "no", "/", "", "")
	if _, ok := drain(recorder); ok {
		t.Error("invalid code should not enqueue an event")
	}
}
