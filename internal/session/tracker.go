package session

import (
	"sync"
	"time"

	"github.com/spacecat/sage/internal/captioning"
	"github.com/spacecat/sage/internal/models"
)

// GenerationStatus is a point-in-time view of the latest generation run
type GenerationStatus struct {
	RunID      string                  `json:"run_id,omitempty"`
	Kind       string                  `json:"kind,omitempty"` // "caption" or "batch"
	Running    bool                    `json:"running"`
	Progress   *models.BatchProgress   `json:"progress,omitempty"`
	Outcome    *captioning.Outcome     `json:"outcome,omitempty"`
	Result     *captioning.BatchResult `json:"result,omitempty"`
	StartedAt  time.Time               `json:"started_at,omitempty"`
	FinishedAt *time.Time              `json:"finished_at,omitempty"`
}

// Tracker consumes run channels and keeps the latest run's status.
// Messages from a superseded run are dropped.
type Tracker struct {
	mu     sync.Mutex
	status GenerationStatus
}

// Snapshot returns a copy of the current status
func (t *Tracker) Snapshot() GenerationStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *Tracker) start(runID, kind string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = GenerationStatus{RunID: runID, Kind: kind, Running: true, StartedAt: time.Now()}
}

func (t *Tracker) update(runID string, fn func(s *GenerationStatus)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.RunID != runID {
		return
	}
	fn(&t.status)
}

func finish(s *GenerationStatus) {
	now := time.Now()
	s.Running = false
	s.FinishedAt = &now
}

// TrackCaption follows a single caption run and forwards its outcome
func (t *Tracker) TrackCaption(runID string, in <-chan captioning.Outcome) <-chan captioning.Outcome {
	t.start(runID, "caption")
	out := make(chan captioning.Outcome, 1)
	go func() {
		defer close(out)
		for o := range in {
			o := o
			t.update(runID, func(s *GenerationStatus) { s.Outcome = &o })
			out <- o
		}
		t.update(runID, finish)
	}()
	return out
}

// TrackBatch follows a batch run and forwards its events. size should match
// the buffer of in so forwarding never blocks on an absent reader.
func (t *Tracker) TrackBatch(runID string, in <-chan captioning.Event, size int) <-chan captioning.Event {
	t.start(runID, "batch")
	out := make(chan captioning.Event, size)
	go func() {
		defer close(out)
		for ev := range in {
			ev := ev
			t.update(runID, func(s *GenerationStatus) {
				if ev.Progress != nil {
					s.Progress = ev.Progress
				}
				if ev.Result != nil {
					s.Result = ev.Result
				}
			})
			out <- ev
		}
		t.update(runID, finish)
	}()
	return out
}
