package ingest

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spacecat/sage/internal/metrics"
	"github.com/spacecat/sage/internal/models"
)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
}

// IsImage reports whether the file name has a supported image extension
func IsImage(name string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}

// SidecarPath returns the same-base-name .txt path next to an image
func SidecarPath(imagePath string) string {
	return strings.TrimSuffix(imagePath, filepath.Ext(imagePath)) + ".txt"
}

// CaptionWriter receives captions imported from sidecar files
type CaptionWriter interface {
	UpsertCaption(ctx context.Context, imageName, caption string) error
}

// Progress is a snapshot of an ingestion run
type Progress struct {
	Percent  int                 `json:"progress"`
	Complete bool                `json:"complete"`
	Files    []models.FileRecord `json:"files,omitempty"`
}

type entry struct {
	path    string
	sidecar bool
}

// Queue copies submitted images into a workspace on a background worker
type Queue struct {
	workspace string
	store     CaptionWriter

	mu        sync.Mutex
	pending   []entry
	total     int
	processed int
	percent   int
	files     []models.FileRecord
	sources   map[string]string // workspace name -> source path, this run
	running   bool
	stopping  bool
	done      chan struct{}
}

func NewQueue(workspace string, store CaptionWriter) *Queue {
	return &Queue{workspace: workspace, store: store}
}

// Submit expands directories, enqueues supported images and starts the worker
// if it is not already running. It returns the number of entries queued.
func (q *Queue) Submit(paths []string) (int, error) {
	var entries []entry
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			slog.Warn("Skipping unreadable path", "path", p, "err", err)
			continue
		}

		if info.IsDir() {
			images, err := expandDir(p)
			if err != nil {
				slog.Warn("Failed to walk directory", "path", p, "err", err)
			}
			for _, img := range images {
				entries = append(entries, entry{path: img})
			}
			continue
		}

		if !IsImage(p) {
			slog.Debug("Skipping unsupported file", "path", p)
			continue
		}
		entries = append(entries, entry{path: p})
		if sidecar := SidecarPath(p); fileExists(sidecar) {
			entries = append(entries, entry{path: sidecar, sidecar: true})
		}
	}

	if len(entries) == 0 {
		return 0, fmt.Errorf("no supported images found in %d path(s)", len(paths))
	}

	if err := os.MkdirAll(q.workspace, 0755); err != nil {
		return 0, fmt.Errorf("failed to create workspace: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.running {
		q.total, q.processed, q.percent = 0, 0, 0
		q.sources = map[string]string{}
	}
	q.pending = append(q.pending, entries...)
	q.total += len(entries)
	q.stopping = false
	if !q.running {
		q.running = true
		q.done = make(chan struct{})
		go q.work(q.done)
	}

	slog.Info("Queued files for import", "entries", len(entries), "total", q.total)
	return len(entries), nil
}

func expandDir(root string) ([]string, error) {
	var images []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			slog.Warn("Skipping unreadable entry", "path", path, "err", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && IsImage(path) {
			images = append(images, path)
		}
		return nil
	})
	sort.Strings(images)
	return images, err
}

func (q *Queue) work(done chan struct{}) {
	defer close(done)

	for {
		q.mu.Lock()
		if q.stopping || len(q.pending) == 0 {
			if len(q.pending) == 0 {
				q.percent = 100
			}
			q.pending = nil
			q.running = false
			q.mu.Unlock()
			return
		}
		e := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()

		var rec *models.FileRecord
		if !e.sidecar {
			rec = q.importImage(e.path)
		}

		q.mu.Lock()
		if rec != nil {
			q.addRecord(*rec)
		}
		q.processed++
		if p := q.processed * 100 / q.total; p > q.percent {
			q.percent = p
		}
		q.mu.Unlock()
	}
}

// addRecord replaces an earlier record of the same name; caller holds q.mu
func (q *Queue) addRecord(rec models.FileRecord) {
	for i := range q.files {
		if q.files[i].Name == rec.Name {
			q.files[i] = rec
			return
		}
	}
	q.files = append(q.files, rec)
}

func (q *Queue) importImage(src string) *models.FileRecord {
	name := filepath.Base(src)
	dst := filepath.Join(q.workspace, name)

	q.mu.Lock()
	prev, dup := q.sources[name]
	if q.sources != nil {
		q.sources[name] = src
	}
	q.mu.Unlock()
	if dup && prev != src {
		slog.Warn("Image name already imported in this run, overwriting", "name", name, "previous", prev, "src", src)
		metrics.IncIngested("overwritten")
	}

	if err := copyFile(src, dst); err != nil {
		slog.Error("Failed to import image", "src", src, "err", err)
		metrics.IncIngested("failed")
		return nil
	}
	metrics.IncIngested("copied")

	info, err := os.Stat(dst)
	if err != nil {
		slog.Error("Imported image vanished", "path", dst, "err", err)
		return nil
	}

	rec := &models.FileRecord{Name: name, Path: dst, SizeBytes: info.Size()}
	if mt, err := mimetype.DetectFile(dst); err == nil {
		rec.MIMEType = mt.String()
		if !strings.HasPrefix(rec.MIMEType, "image/") {
			slog.Warn("Imported file does not look like an image", "path", dst, "mime", rec.MIMEType)
		}
	}

	sidecar := SidecarPath(src)
	data, err := os.ReadFile(sidecar)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("Failed to read sidecar caption", "path", sidecar, "err", err)
		}
		return rec
	}
	caption := strings.TrimSpace(string(data))
	if err := q.store.UpsertCaption(context.Background(), name, caption); err != nil {
		slog.Warn("Failed to import sidecar caption", "path", sidecar, "err", err)
		return rec
	}
	metrics.IncIngested("sidecar")
	rec.HasCaption = true
	slog.Debug("Imported sidecar caption", "image", name)
	return rec
}

func copyFile(src, dst string) error {
	srcAbs, _ := filepath.Abs(src)
	dstAbs, _ := filepath.Abs(dst)
	if srcAbs == dstAbs {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	tmp := dst + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Poll returns the current progress. Once the worker has drained the queue the
// accumulated records are handed over exactly once and the counters reset.
func (q *Queue) Poll() Progress {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running || q.done == nil {
		return Progress{Percent: q.percent}
	}

	p := Progress{Percent: q.percent, Complete: true, Files: q.files}
	q.files = nil
	q.total, q.processed, q.percent = 0, 0, 0
	return p
}

// Running reports whether the worker is active
func (q *Queue) Running() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

// Stop asks the worker to exit before the next entry and waits for it
func (q *Queue) Stop() {
	q.mu.Lock()
	q.stopping = true
	done := q.done
	q.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Wait blocks until the worker has drained the queue or ctx is done
func (q *Queue) Wait(ctx context.Context) error {
	q.mu.Lock()
	done := q.done
	q.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
