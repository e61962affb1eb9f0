package captioning

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/spacecat/sage/internal/metrics"
	"github.com/spacecat/sage/internal/models"
)

// Event is a message from a running batch
type Event struct {
	Type     EventType             `json:"type"`
	RunID    string                `json:"run_id"`
	Progress *models.BatchProgress `json:"progress,omitempty"`
	Result   *BatchResult          `json:"result,omitempty"`
}

// Terminal reports whether no further events follow
func (e Event) Terminal() bool { return e.Type != EventProgress }

// Processor owns generation for one session. Starting a run cancels the
// previous one and waits for it to finish first, so at most one model call
// is in flight at a time.
type Processor struct {
	gen Generator

	mu      sync.Mutex
	current *run
}

type run struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	coord  *Coordinator
	done   chan struct{}
}

func (r *run) stop() {
	r.coord.Stop()
	r.cancel()
}

func NewProcessor(gen Generator) *Processor {
	return &Processor{gen: gen}
}

func (p *Processor) begin(parent context.Context) *run {
	p.mu.Lock()
	defer p.mu.Unlock()

	if prev := p.current; prev != nil {
		prev.stop()
		<-prev.done
	}

	ctx, cancel := context.WithCancel(parent)
	r := &run{
		id:     uuid.New().String()[:8],
		ctx:    ctx,
		cancel: cancel,
		coord:  NewCoordinator(p.gen),
		done:   make(chan struct{}),
	}
	p.current = r
	return r
}

// Caption generates a caption for one image in the background.
// The channel yields exactly one Outcome and is then closed.
func (p *Processor) Caption(ctx context.Context, imageName string, settings *models.CaptionSettings) (string, <-chan Outcome) {
	r := p.begin(ctx)
	out := make(chan Outcome, 1)

	go func() {
		defer close(r.done)
		defer r.cancel()
		defer close(out)
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("Caption generation aborted", "run_id", r.id, "image", imageName, "panic", rec)
				out <- Failure(imageName, KindInternal, fmt.Sprintf("generation aborted: %v", rec))
			}
		}()

		out <- p.gen.Generate(r.ctx, models.CaptionRequest{ImageName: imageName, Settings: settings})
	}()

	return r.id, out
}

// Batch captions images in order in the background. The channel carries
// progress events followed by exactly one terminal event, then is closed.
func (p *Processor) Batch(ctx context.Context, images []string, settings *models.CaptionSettings) (string, <-chan Event) {
	r := p.begin(ctx)
	events := make(chan Event, len(images)+1)

	go func() {
		defer close(r.done)
		defer r.cancel()
		defer close(events)

		slog.Info("Batch run started", "run_id", r.id, "images", len(images))
		r.coord.Run(r.ctx, images, settings,
			func(bp models.BatchProgress) {
				events <- Event{Type: EventProgress, RunID: r.id, Progress: &bp}
			},
			func(res BatchResult) {
				res.RunID = r.id
				s := res.Summary()
				slog.Info("Batch run finished",
					"run_id", r.id,
					"status", res.Status,
					"succeeded", s.Succeeded,
					"failed", s.Failed,
					"cancelled", s.Cancelled)
				metrics.IncBatchRun(string(res.Status))
				events <- Event{Type: res.Status, RunID: r.id, Result: &res}
			},
		)
	}()

	return r.id, events
}

// RunID returns the id of the most recently started run, or ""
func (p *Processor) RunID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return ""
	}
	return p.current.id
}

// Cancel stops the current run, if any, without waiting for it
func (p *Processor) Cancel() {
	p.mu.Lock()
	r := p.current
	p.mu.Unlock()
	if r != nil {
		slog.Info("Cancelling generation", "run_id", r.id)
		r.stop()
	}
}

// Wait blocks until the current run, if any, has finished
func (p *Processor) Wait() {
	p.mu.Lock()
	r := p.current
	p.mu.Unlock()
	if r != nil {
		<-r.done
	}
}

// Shutdown cancels the current run and waits for it
func (p *Processor) Shutdown() {
	p.Cancel()
	p.Wait()
}
