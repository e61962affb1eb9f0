package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// maxDownloadBytes caps a single remote image
const maxDownloadBytes = 64 << 20

// IsURL reports whether s names a remote http(s) resource
func IsURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// Fetcher downloads remote images into a staging directory so they can be
// submitted to a Queue like local files.
type Fetcher struct {
	HTTPClient *http.Client
}

// NewFetcher creates a fetcher with a 30s per-request timeout
func NewFetcher() *Fetcher {
	return &Fetcher{
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Fetch downloads each URL into dir and returns the local paths of the ones
// that turned out to be images. Failures are logged and skipped.
func (f *Fetcher) Fetch(ctx context.Context, urls []string, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}

	var paths []string
	for i, u := range urls {
		if err := ctx.Err(); err != nil {
			return paths, err
		}
		p, err := f.download(ctx, u, dir, i)
		if err != nil {
			slog.Warn("Skipping remote image", "url", u, "err", err)
			continue
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func (f *Fetcher) download(ctx context.Context, rawURL, dir string, seq int) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("invalid image URL: %w", err)
	}
	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("image URL returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read image data: %w", err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("empty response body")
	}
	if len(data) > maxDownloadBytes {
		return "", fmt.Errorf("image larger than %d bytes", maxDownloadBytes)
	}

	mt := mimetype.Detect(data)
	name := downloadName(rawURL, mt.Extension(), seq)
	if !mt.Is("image/jpeg") && !mt.Is("image/png") && !mt.Is("image/gif") {
		return "", fmt.Errorf("unsupported content type %s", mt.String())
	}

	out := filepath.Join(dir, name)
	if err := os.WriteFile(out, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write image file: %w", err)
	}
	return out, nil
}

// downloadName keeps the URL's base name when it already has a supported
// extension, otherwise it synthesises one from the sniffed type.
func downloadName(rawURL, ext string, seq int) string {
	base := ""
	if u, err := url.Parse(rawURL); err == nil {
		base = path.Base(u.Path)
	}
	if base == "" || base == "." || base == "/" {
		base = fmt.Sprintf("download_%03d", seq)
	}
	if IsImage(base) {
		return base
	}
	if ext == ".jpeg" {
		ext = ".jpg"
	}
	return strings.TrimSuffix(base, filepath.Ext(base)) + ext
}
