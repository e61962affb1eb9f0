package captioning

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/spacecat/sage/internal/models"
)

// EventType tags a message emitted by a generation run
type EventType string

const (
	EventProgress       EventType = "progress"
	EventBatchComplete  EventType = "batch_complete"
	EventBatchCancelled EventType = "batch_cancelled"
)

// BatchResult is the terminal payload of a batch run
type BatchResult struct {
	RunID    string    `json:"run_id,omitempty"`
	Status   EventType `json:"status"`
	Outcomes []Outcome `json:"outcomes"`
}

// Summary counts outcomes by status
type Summary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

func (r BatchResult) Summary() Summary {
	s := Summary{Total: len(r.Outcomes)}
	for _, o := range r.Outcomes {
		switch o.Status {
		case StatusSuccess:
			s.Succeeded++
		case StatusFailure:
			s.Failed++
		case StatusCancelled:
			s.Cancelled++
		}
	}
	return s
}

// Generator produces one outcome per request; *Engine implements it
type Generator interface {
	Generate(ctx context.Context, req models.CaptionRequest) Outcome
}

// Coordinator runs a generator over an ordered list of images, one at a time.
// A Coordinator is good for a single run.
type Coordinator struct {
	gen     Generator
	stopped atomic.Bool
}

func NewCoordinator(gen Generator) *Coordinator {
	return &Coordinator{gen: gen}
}

// Stop asks the run to end before its next item
func (c *Coordinator) Stop() { c.stopped.Store(true) }

// Stopped reports whether Stop has been called
func (c *Coordinator) Stopped() bool { return c.stopped.Load() }

// Run calls onProgress before each item and onComplete exactly once at the end.
func (c *Coordinator) Run(
	ctx context.Context,
	images []string,
	settings *models.CaptionSettings,
	onProgress func(models.BatchProgress),
	onComplete func(BatchResult),
) {
	notified := false
	notify := func(res BatchResult) {
		if notified {
			return
		}
		notified = true
		onComplete(res)
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Batch run aborted", "panic", r)
			notify(BatchResult{
				Status:   EventBatchComplete,
				Outcomes: []Outcome{Failure("", KindInternal, fmt.Sprintf("batch aborted: %v", r))},
			})
		}
	}()

	outcomes := make([]Outcome, 0, len(images))
	for i, name := range images {
		if c.Stopped() || ctx.Err() != nil {
			slog.Info("Batch run cancelled", "processed", len(outcomes), "total", len(images))
			notify(BatchResult{Status: EventBatchCancelled, Outcomes: outcomes})
			return
		}

		if onProgress != nil {
			onProgress(models.BatchProgress{CurrentIndex: i + 1, Total: len(images), ImageName: name})
		}

		outcomes = append(outcomes, c.gen.Generate(ctx, models.CaptionRequest{
			ImageName: name,
			Settings:  settings,
		}))
	}

	notify(BatchResult{Status: EventBatchComplete, Outcomes: outcomes})
}
