package jobs

import (
	"context"
	"log"

	"referral-platform/internal/tracking"
)

// ClickDispatcher drains the click recorder's queue and delivers events
// to the external ingestion endpoint. Delivery happens here so the
// visitor-facing path never waits on the network.
type ClickDispatcher struct {
	recorder *tracking.Recorder
	stopChan chan struct{}
}

// NewClickDispatcher creates a new click dispatcher job
func NewClickDispatcher(recorder *tracking.Recorder) *ClickDispatcher {
	return &ClickDispatcher{
		recorder: recorder,
		stopChan: make(chan struct{}),
	}
}

// Start begins draining the click queue
func (cd *ClickDispatcher) Start() {
	log.Println("[ClickDispatcher] Starting click dispatch job")

	for {
		select {
		case ev := <-cd.recorder.Queue():
			cd.recorder.Deliver(context.Background(), ev)
		case <-cd.stopChan:
			log.Println("[ClickDispatcher] Stopping click dispatch job")
			return
		}
	}
}

// Stop stops the dispatch loop
func (cd *ClickDispatcher) Stop() {
	close(cd.stopChan)
}
