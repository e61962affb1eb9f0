package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/spacecat/sage/internal/captioning"
	"github.com/spacecat/sage/internal/ingest"
	"github.com/spacecat/sage/internal/models"
	"github.com/spacecat/sage/internal/providers"
	"github.com/spacecat/sage/internal/storage"
)

// Options configures a Session
type Options struct {
	// BackupDir receives session_backup_* folders
	BackupDir string
	Clients   map[models.ModelType]providers.Provider
	Engine    []captioning.Option
}

// Session is one working set of images: the workspace directory, its caption
// database, the ingestion worker and the caption processor.
type Session struct {
	dir       string
	backupDir string

	store     *storage.Store
	queue     *ingest.Queue
	processor *captioning.Processor
	tracker   *Tracker

	// genMu makes starting a run and tracking it one step
	genMu sync.Mutex
}

// Open prepares the workspace directory and its database
func Open(ctx context.Context, dir string, opts Options) (*Session, error) {
	if dir == "" {
		return nil, errors.New("workspace directory is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	store, err := openStore(ctx, dir)
	if err != nil {
		return nil, err
	}

	engine := captioning.NewEngine(dir, store, opts.Clients, opts.Engine...)
	s := &Session{
		dir:       dir,
		backupDir: opts.BackupDir,
		store:     store,
		queue:     ingest.NewQueue(dir, store),
		processor: captioning.NewProcessor(engine),
		tracker:   &Tracker{},
	}
	slog.Debug("Session opened", "dir", dir)
	return s, nil
}

// Close stops background work and closes the database
func (s *Session) Close() error {
	s.processor.Shutdown()
	s.queue.Stop()
	return s.store.Close()
}

func (s *Session) Dir() string { return s.dir }

func (s *Session) Store() *storage.Store { return s.store }

// Tracker records the latest generation run for pollers
func (s *Session) Tracker() *Tracker { return s.tracker }

// SubmitFiles queues files and directories for import
func (s *Session) SubmitFiles(paths []string) (int, error) {
	return s.queue.Submit(paths)
}

// PollIngestion reports import progress, handing over finished records once
func (s *Session) PollIngestion() ingest.Progress {
	return s.queue.Poll()
}

// WaitIngestion blocks until the import worker is idle
func (s *Session) WaitIngestion(ctx context.Context) error {
	return s.queue.Wait(ctx)
}

// StopIngestion stops the import worker before its next file
func (s *Session) StopIngestion() {
	s.queue.Stop()
}

// GenerateCaption captions one image in the background, replacing any running
// generation. The run is recorded in the Tracker; the caller may ignore the channel.
func (s *Session) GenerateCaption(ctx context.Context, imageName string, settings *models.CaptionSettings) (string, <-chan captioning.Outcome) {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	runID, out := s.processor.Caption(ctx, imageName, settings)
	return runID, s.tracker.TrackCaption(runID, out)
}

// GenerateBatch captions images in order in the background, replacing any
// running generation. The run is recorded in the Tracker; the caller may ignore the channel.
func (s *Session) GenerateBatch(ctx context.Context, imageNames []string, settings *models.CaptionSettings) (string, <-chan captioning.Event) {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	runID, events := s.processor.Batch(ctx, imageNames, settings)
	return runID, s.tracker.TrackBatch(runID, events, len(imageNames)+1)
}

// CancelGeneration stops the running generation, if any
func (s *Session) CancelGeneration() {
	s.processor.Cancel()
}

// GetCaption returns the stored caption, or "" when there is none
func (s *Session) GetCaption(ctx context.Context, imageName string) (string, error) {
	rec, err := s.store.GetCaption(ctx, imageName)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return rec.Caption, nil
}

func (s *Session) GetAllCaptions(ctx context.Context) ([]models.CaptionRecord, error) {
	return s.store.GetAllCaptions(ctx)
}

// SaveCaption stores a caption edited by the user
func (s *Session) SaveCaption(ctx context.Context, imageName, caption string) error {
	if err := checkName(imageName); err != nil {
		return err
	}
	return s.store.UpsertCaption(ctx, imageName, caption)
}

func (s *Session) MarkViewed(ctx context.Context, imageName string) error {
	if err := checkName(imageName); err != nil {
		return err
	}
	return s.store.MarkViewed(ctx, imageName)
}

func (s *Session) UnmarkViewed(ctx context.Context, imageName string) error {
	return s.store.UnmarkViewed(ctx, imageName)
}

func (s *Session) ListViewed(ctx context.Context) ([]models.ViewedMark, error) {
	return s.store.ListViewed(ctx)
}
