package export

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spacecat/sage/internal/captioning"
	"github.com/spacecat/sage/internal/ingest"
	"github.com/spacecat/sage/internal/models"
)

// CaptionLister reads every stored caption
type CaptionLister interface {
	GetAllCaptions(ctx context.Context) ([]models.CaptionRecord, error)
}

// Sidecars writes <base>.txt for every stored caption into dir
func Sidecars(ctx context.Context, store CaptionLister, dir string) (int, error) {
	records, err := store.GetAllCaptions(ctx)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create export directory: %w", err)
	}

	written := 0
	for _, rec := range records {
		if !captioning.IsPlainName(rec.ImageName) {
			slog.Warn("Skipping caption with unsafe image name", "image", rec.ImageName)
			continue
		}
		path := filepath.Join(dir, sidecarName(rec.ImageName))
		if err := os.WriteFile(path, []byte(rec.Caption), 0644); err != nil {
			slog.Error("Failed to write caption file", "path", path, "err", err)
			continue
		}
		written++
	}

	slog.Info("Exported caption files", "dir", dir, "count", written)
	return written, nil
}

// Session copies every workspace image plus its caption file into
// <exportDir>/spacecat_export_<timestamp> and returns that folder
func Session(ctx context.Context, store CaptionLister, workspace, exportDir string) (string, int, error) {
	records, err := store.GetAllCaptions(ctx)
	if err != nil {
		return "", 0, err
	}
	captions := make(map[string]string, len(records))
	for _, rec := range records {
		captions[rec.ImageName] = rec.Caption
	}

	entries, err := os.ReadDir(workspace)
	if err != nil {
		return "", 0, fmt.Errorf("failed to read workspace: %w", err)
	}

	dst := filepath.Join(exportDir, "spacecat_export_"+time.Now().Format("20060102_150405"))
	if err := os.MkdirAll(dst, 0755); err != nil {
		return "", 0, fmt.Errorf("failed to create export directory: %w", err)
	}

	exported := 0
	for _, e := range entries {
		if ctx.Err() != nil {
			return dst, exported, ctx.Err()
		}
		if !e.Type().IsRegular() || !ingest.IsImage(e.Name()) {
			continue
		}
		if err := copyFile(filepath.Join(workspace, e.Name()), filepath.Join(dst, e.Name())); err != nil {
			slog.Error("Failed to export image", "image", e.Name(), "err", err)
			continue
		}
		if caption, ok := captions[e.Name()]; ok {
			if err := os.WriteFile(filepath.Join(dst, sidecarName(e.Name())), []byte(caption), 0644); err != nil {
				slog.Error("Failed to export caption", "image", e.Name(), "err", err)
			}
		}
		exported++
	}

	slog.Info("Exported session", "dir", dst, "images", exported)
	return dst, exported, nil
}

func sidecarName(imageName string) string {
	return strings.TrimSuffix(imageName, filepath.Ext(imageName)) + ".txt"
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
