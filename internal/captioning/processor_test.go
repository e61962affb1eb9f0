package captioning

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spacecat/sage/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingGenerator waits for cancellation on every request
type blockingGenerator struct {
	started  chan string
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (g *blockingGenerator) Generate(ctx context.Context, req models.CaptionRequest) Outcome {
	n := g.inFlight.Add(1)
	defer g.inFlight.Add(-1)
	if n > g.maxSeen.Load() {
		g.maxSeen.Store(n)
	}
	g.started <- req.ImageName
	<-ctx.Done()
	return Cancelled(req.ImageName)
}

func drain(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var all []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return all
			}
			all = append(all, ev)
		case <-timeout:
			t.Fatal("timed out waiting for events")
		}
	}
}

func TestProcessorBatchEvents(t *testing.T) {
	p := NewProcessor(&echoGenerator{})
	runID, events := p.Batch(context.Background(), []string{"a.jpg", "b.jpg"}, testSettings())

	all := drain(t, events)
	require.Len(t, all, 3)
	assert.Equal(t, EventProgress, all[0].Type)
	assert.Equal(t, EventProgress, all[1].Type)
	last := all[2]
	assert.True(t, last.Terminal())
	assert.Equal(t, EventBatchComplete, last.Type)
	assert.Equal(t, runID, last.RunID)
	assert.Equal(t, runID, last.Result.RunID)
	assert.Len(t, last.Result.Outcomes, 2)
}

func TestProcessorCancel(t *testing.T) {
	gen := &blockingGenerator{started: make(chan string, 4)}
	p := NewProcessor(gen)
	_, events := p.Batch(context.Background(), []string{"a.jpg", "b.jpg", "c.jpg"}, testSettings())

	assert.Equal(t, "a.jpg", <-gen.started)
	p.Cancel()

	all := drain(t, events)
	last := all[len(all)-1]
	assert.Equal(t, EventBatchCancelled, last.Type)
	require.Len(t, last.Result.Outcomes, 1)
	assert.Equal(t, StatusCancelled, last.Result.Outcomes[0].Status)
}

func TestProcessorSingleFlight(t *testing.T) {
	gen := &blockingGenerator{started: make(chan string, 4)}
	p := NewProcessor(gen)

	_, first := p.Batch(context.Background(), []string{"a.jpg", "b.jpg"}, testSettings())
	assert.Equal(t, "a.jpg", <-gen.started)

	_, second := p.Caption(context.Background(), "z.jpg", testSettings())

	// the first run is fully stopped before the second starts
	firstEvents := drain(t, first)
	assert.Equal(t, EventBatchCancelled, firstEvents[len(firstEvents)-1].Type)
	assert.Equal(t, "z.jpg", <-gen.started)
	assert.EqualValues(t, 1, gen.maxSeen.Load())

	p.Cancel()
	out, ok := <-second
	require.True(t, ok)
	assert.Equal(t, StatusCancelled, out.Status)
	_, ok = <-second
	assert.False(t, ok)
}

func TestProcessorCaption(t *testing.T) {
	p := NewProcessor(&echoGenerator{})
	_, out := p.Caption(context.Background(), "a.jpg", testSettings())

	got := <-out
	assert.Equal(t, Success("a.jpg", "caption for a.jpg"), got)
	p.Wait()
}
