package session

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spacecat/sage/internal/captioning"
	"github.com/spacecat/sage/internal/ingest"
	"github.com/spacecat/sage/internal/models"
	"github.com/spacecat/sage/internal/storage"
)

var (
	// ErrInvalidName is returned for image names that are not plain file names
	ErrInvalidName = errors.New("invalid image name")
	// ErrInvalidImage is returned when edited image data cannot be decoded
	ErrInvalidImage = errors.New("invalid image data")
)

// openStore opens the session database, replacing it with a fresh one when
// the integrity check fails. The damaged file is kept as captions.db.backup_<unix>.
func openStore(ctx context.Context, dir string) (*storage.Store, error) {
	path := filepath.Join(dir, storage.FileName)

	store, err := storage.Open(ctx, path)
	if err == nil {
		if err = store.CheckIntegrity(ctx); err == nil {
			return store, nil
		}
		store.Close()
	}

	backup := fmt.Sprintf("%s.backup_%d", path, time.Now().Unix())
	slog.Error("Caption database is damaged, reinitializing", "path", path, "backup", backup, "err", err)
	if renameErr := os.Rename(path, backup); renameErr != nil && !errors.Is(renameErr, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to move damaged database aside: %w", renameErr)
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		_ = os.Remove(path + suffix)
	}

	return storage.Open(ctx, path)
}

func checkName(name string) error {
	if !captioning.IsPlainName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// ListFiles returns the workspace images sorted by name
func (s *Session) ListFiles(ctx context.Context) ([]models.FileRecord, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read workspace: %w", err)
	}
	captions, err := s.store.CaptionMap(ctx)
	if err != nil {
		return nil, err
	}

	var files []models.FileRecord
	for _, e := range entries {
		if !e.Type().IsRegular() || !ingest.IsImage(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(s.dir, e.Name())
		_, has := captions[e.Name()]
		rec := models.FileRecord{
			Name:       e.Name(),
			Path:       path,
			SizeBytes:  info.Size(),
			HasCaption: has,
		}
		if mt, err := mimetype.DetectFile(path); err == nil {
			rec.MIMEType = mt.String()
		}
		files = append(files, rec)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// ImageNames returns the names of all workspace images in order
func (s *Session) ImageNames(ctx context.Context) ([]string, error) {
	files, err := s.ListFiles(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}
	return names, nil
}

// ImageDataURL returns the image as a data: URL with its sniffed MIME type
func (s *Session) ImageDataURL(name string) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}
	mt := mimetype.Detect(data)
	return "data:" + mt.String() + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// SaveImage writes an edited image, sent as a base64 data URL, into the
// workspace. The image is re-encoded to match the extension of name: JPEG
// output is flattened onto white, and names that are not .jpg/.jpeg/.png are
// saved as <base>.png. It returns the name actually written.
func (s *Session) SaveImage(ctx context.Context, name, dataURL string) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	payload := dataURL
	if _, after, ok := strings.Cut(dataURL, ","); ok {
		payload = after
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	mt := mimetype.Detect(data)
	if !mt.Is("image/png") && !mt.Is("image/jpeg") && !mt.Is("image/gif") {
		return "", fmt.Errorf("%w: unsupported content type %s", ErrInvalidImage, mt.String())
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	var buf bytes.Buffer
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		flat := image.NewRGBA(img.Bounds())
		draw.Draw(flat, flat.Bounds(), image.White, image.Point{}, draw.Src)
		draw.Draw(flat, flat.Bounds(), img, img.Bounds().Min, draw.Over)
		err = jpeg.Encode(&buf, flat, &jpeg.Options{Quality: 100})
	case ".png":
		err = png.Encode(&buf, img)
	default:
		name = strings.TrimSuffix(name, filepath.Ext(name)) + ".png"
		err = png.Encode(&buf, img)
	}
	if err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}

	dst := filepath.Join(s.dir, name)
	tmp := dst + ".part"
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("failed to write image: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to write image: %w", err)
	}

	slog.Info("Saved edited image", "name", name, "source_type", mt.String(), "bytes", buf.Len())
	return name, nil
}

// Backup copies the workspace into a timestamped folder under the backup
// directory and returns its path.
func (s *Session) Backup(ctx context.Context) (string, error) {
	if s.backupDir == "" {
		return "", errors.New("no backup directory configured")
	}
	dst := filepath.Join(s.backupDir, "session_backup_"+time.Now().Format("20060102_150405"))
	if err := os.MkdirAll(dst, 0755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	dbPath := filepath.Join(s.dir, storage.FileName)
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.dir, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		if strings.HasPrefix(path, dbPath) || !d.Type().IsRegular() {
			return nil
		}
		return copyFile(path, target)
	})
	if err != nil {
		return "", fmt.Errorf("failed to back up workspace: %w", err)
	}

	if err := s.store.BackupTo(ctx, filepath.Join(dst, storage.FileName)); err != nil {
		return "", err
	}

	slog.Info("Session backed up", "path", dst)
	return dst, nil
}

// Clear backs the workspace up, then removes its files and empties the database
func (s *Session) Clear(ctx context.Context) (string, error) {
	backup, err := s.Backup(ctx)
	if err != nil {
		return "", err
	}

	s.processor.Shutdown()
	s.queue.Stop()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return backup, fmt.Errorf("failed to read workspace: %w", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), storage.FileName) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.dir, e.Name())); err != nil {
			slog.Warn("Failed to remove workspace file", "name", e.Name(), "err", err)
		}
	}
	if err := s.store.Reset(ctx); err != nil {
		return backup, err
	}

	slog.Info("Session cleared", "backup", backup)
	return backup, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
