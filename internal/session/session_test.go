package session

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spacecat/sage/internal/captioning"
	"github.com/spacecat/sage/internal/models"
	"github.com/spacecat/sage/internal/openai"
	"github.com/spacecat/sage/internal/providers"
	"github.com/spacecat/sage/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

func openSession(t *testing.T, clients map[models.ModelType]providers.Provider) *Session {
	t.Helper()
	root := t.TempDir()
	s, err := Open(context.Background(), filepath.Join(root, "current"), Options{
		BackupDir: filepath.Join(root, "backups"),
		Clients:   clients,
		Engine:    []captioning.Option{captioning.WithRetry(3, 0)},
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenReinitializesDamagedDatabase(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, storage.FileName)
	require.NoError(t, os.WriteFile(dbPath, []byte(strings.Repeat("not a database ", 200)), 0644))

	s, err := Open(context.Background(), dir, Options{})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.SaveCaption(context.Background(), "a.jpg", "fresh"))
	matches, err := filepath.Glob(dbPath + ".backup_*")
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestListFilesAndDataURL(t *testing.T) {
	ctx := context.Background()
	s := openSession(t, nil)
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "b.png"), pngBytes, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "a.jpg"), []byte{0xff, 0xd8, 0xff, 0xdb}, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "a.txt"), []byte("sidecar"), 0644))
	require.NoError(t, s.SaveCaption(ctx, "b.png", "a tiny png"))

	files, err := s.ListFiles(ctx)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "a.jpg", files[0].Name)
	assert.False(t, files[0].HasCaption)
	assert.True(t, files[1].HasCaption)

	url, err := s.ImageDataURL("b.png")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "data:image/png;base64,"))

	_, err = s.ImageDataURL("../secrets.png")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestGetCaptionMissingIsEmpty(t *testing.T) {
	caption, err := openSession(t, nil).GetCaption(context.Background(), "nope.jpg")
	require.NoError(t, err)
	assert.Equal(t, "", caption)
}

func TestBackupAndClear(t *testing.T) {
	ctx := context.Background()
	s := openSession(t, nil)
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "a.jpg"), []byte("jpeg"), 0644))
	require.NoError(t, s.SaveCaption(ctx, "a.jpg", "kept in backup"))
	require.NoError(t, s.MarkViewed(ctx, "a.jpg"))

	backup, err := s.Clear(ctx)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(backup, "a.jpg"))
	assert.True(t, strings.HasPrefix(filepath.Base(backup), "session_backup_"))

	files, err := s.ListFiles(ctx)
	require.NoError(t, err)
	assert.Empty(t, files)
	all, err := s.GetAllCaptions(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	copied, err := storage.Open(ctx, filepath.Join(backup, storage.FileName))
	require.NoError(t, err)
	defer copied.Close()
	rec, err := copied.GetCaption(ctx, "a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "kept in backup", rec.Caption)
}

func TestIngestThenBatchCaption(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"A still life with fruit."}}]}`))
	}))
	defer srv.Close()

	client := openai.New(srv.Client())
	s := openSession(t, map[models.ModelType]providers.Provider{models.ModelTypeOpenAI: client})

	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "one.png"), pngBytes, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "two.png"), pngBytes, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "two.txt"), []byte("imported caption"), 0644))

	_, err := s.SubmitFiles([]string{src})
	require.NoError(t, err)
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, s.WaitIngestion(waitCtx))
	progress := s.PollIngestion()
	require.Len(t, progress.Files, 2)

	settings := &models.CaptionSettings{
		Caption:  models.CaptionConfig{CaptionType: models.CaptionDescriptive, CaptionLength: models.LengthAny},
		Endpoint: models.ModelEndpointConfig{ModelType: models.ModelTypeOpenAI, APIKey: "k", Model: "gpt-4o", BaseURL: srv.URL},
	}
	names, err := s.ImageNames(ctx)
	require.NoError(t, err)
	runID, events := s.GenerateBatch(ctx, names, settings)
	var terminal *captioning.Event
	for ev := range events {
		if ev.Terminal() {
			ev := ev
			terminal = &ev
		}
	}
	require.NotNil(t, terminal)
	assert.Equal(t, runID, terminal.RunID)

	require.Eventually(t, func() bool { return !s.Tracker().Snapshot().Running }, 5*time.Second, 10*time.Millisecond)
	status := s.Tracker().Snapshot()
	assert.Equal(t, runID, status.RunID)
	require.NotNil(t, status.Result)
	assert.Equal(t, captioning.EventBatchComplete, status.Result.Status)
	assert.Equal(t, captioning.Summary{Total: 2, Succeeded: 2}, status.Result.Summary())

	caption, err := s.GetCaption(ctx, "two.png")
	require.NoError(t, err)
	assert.Equal(t, "A still life with fruit.", caption)
}

func TestTrackerFollowsLatestRunUnderConcurrentStarts(t *testing.T) {
	ctx := context.Background()
	stub := providers.ProviderFunc(func(ctx context.Context, req providers.Request) (string, error) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(5 * time.Millisecond):
			return "A caption.", nil
		}
	})
	s := openSession(t, map[models.ModelType]providers.Provider{models.ModelTypeOpenAI: stub})
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "a.jpg"), []byte("img"), 0644))

	settings := &models.CaptionSettings{
		Caption:  models.CaptionConfig{CaptionType: models.CaptionDescriptive, CaptionLength: models.LengthAny},
		Endpoint: models.ModelEndpointConfig{ModelType: models.ModelTypeOpenAI, APIKey: "k", Model: "gpt-4o"},
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				s.GenerateCaption(ctx, "a.jpg", settings)
			} else {
				s.GenerateBatch(ctx, []string{"a.jpg", "a.jpg"}, settings)
			}
		}(i)
	}
	wg.Wait()
	s.processor.Wait()

	require.Eventually(t, func() bool { return !s.Tracker().Snapshot().Running }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, s.processor.RunID(), s.Tracker().Snapshot().RunID)
}

func TestGenerateCaptionForwardsOutcome(t *testing.T) {
	stub := providers.ProviderFunc(func(context.Context, providers.Request) (string, error) {
		return "A harbour at night.", nil
	})
	s := openSession(t, map[models.ModelType]providers.Provider{models.ModelTypeOpenAI: stub})
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "a.jpg"), []byte("img"), 0644))

	settings := &models.CaptionSettings{
		Caption:  models.CaptionConfig{CaptionType: models.CaptionDescriptive},
		Endpoint: models.ModelEndpointConfig{ModelType: models.ModelTypeOpenAI, APIKey: "k", Model: "gpt-4o"},
	}
	runID, out := s.GenerateCaption(context.Background(), "a.jpg", settings)
	outcome := <-out
	assert.Equal(t, captioning.StatusSuccess, outcome.Status)

	require.Eventually(t, func() bool { return !s.Tracker().Snapshot().Running }, 5*time.Second, 10*time.Millisecond)
	status := s.Tracker().Snapshot()
	assert.Equal(t, runID, status.RunID)
	require.NotNil(t, status.Outcome)
	assert.Equal(t, "A harbour at night.", status.Outcome.Caption)
}

func pngDataURL(t *testing.T) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.NRGBA{R: 200, G: 40, B: 40, A: uint8(60 * x)})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestSaveImage(t *testing.T) {
	ctx := context.Background()
	s := openSession(t, nil)
	dataURL := pngDataURL(t)

	tests := []struct {
		name     string
		expected string
		format   string
	}{
		{"photo.jpg", "photo.jpg", "jpeg"},
		{"photo.JPEG", "photo.JPEG", "jpeg"},
		{"sketch.png", "sketch.png", "png"},
		{"anim.gif", "anim.png", "png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			saved, err := s.SaveImage(ctx, tt.name, dataURL)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, saved)

			f, err := os.Open(filepath.Join(s.Dir(), saved))
			require.NoError(t, err)
			defer f.Close()
			img, format, err := image.Decode(f)
			require.NoError(t, err)
			assert.Equal(t, tt.format, format)
			assert.Equal(t, 4, img.Bounds().Dx())
		})
	}
	assert.NoFileExists(t, filepath.Join(s.Dir(), "anim.gif"))

	t.Run("jpeg output is opaque", func(t *testing.T) {
		f, err := os.Open(filepath.Join(s.Dir(), "photo.jpg"))
		require.NoError(t, err)
		defer f.Close()
		img, err := jpeg.Decode(f)
		require.NoError(t, err)
		_, _, _, a := img.At(0, 0).RGBA()
		assert.EqualValues(t, 0xffff, a)
	})
}

func TestSaveImageRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	s := openSession(t, nil)
	valid := pngDataURL(t)

	_, err := s.SaveImage(ctx, "../outside.png", valid)
	assert.ErrorIs(t, err, ErrInvalidName)
	assert.NoFileExists(t, filepath.Join(filepath.Dir(s.Dir()), "outside.png"))

	_, err = s.SaveImage(ctx, "a.png", "data:image/png;base64,!!!not-base64")
	assert.ErrorIs(t, err, ErrInvalidImage)

	_, err = s.SaveImage(ctx, "a.png", "data:text/plain;base64,"+base64.StdEncoding.EncodeToString([]byte("hello there")))
	assert.ErrorIs(t, err, ErrInvalidImage)
	assert.NoFileExists(t, filepath.Join(s.Dir(), "a.png"))
}
