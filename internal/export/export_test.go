package export

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spacecat/sage/internal/captioning"
	"github.com/spacecat/sage/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type fakeStore struct {
	records []models.CaptionRecord
	saved   map[string]string
}

func (f *fakeStore) GetAllCaptions(context.Context) ([]models.CaptionRecord, error) {
	return f.records, nil
}

func (f *fakeStore) UpsertCaption(_ context.Context, name, caption string) error {
	if f.saved == nil {
		f.saved = map[string]string{}
	}
	f.saved[name] = caption
	return nil
}

func sampleStore() *fakeStore {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &fakeStore{records: []models.CaptionRecord{
		{ImageName: "a.jpg", Caption: "an apple", UpdatedAt: ts},
		{ImageName: "b.photo.png", Caption: "a banana", UpdatedAt: ts},
	}}
}

func TestSidecars(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	n, err := Sidecars(context.Background(), sampleStore(), dir)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	tests := []struct {
		file     string
		expected string
	}{
		{"a.txt", "an apple"},
		{"b.photo.txt", "a banana"},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			data, err := os.ReadFile(filepath.Join(dir, tt.file))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(data))
		})
	}
}

func TestSidecarsSkipsUnsafeNames(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "out")
	store := &fakeStore{records: []models.CaptionRecord{
		{ImageName: "../escape.jpg", Caption: "outside"},
		{ImageName: "nested/b.jpg", Caption: "nested"},
		{ImageName: "ok.jpg", Caption: "inside"},
	}}

	n, err := Sidecars(context.Background(), store, dir)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.FileExists(t, filepath.Join(dir, "ok.txt"))
	assert.NoFileExists(t, filepath.Join(root, "escape.txt"))
	assert.NoDirExists(t, filepath.Join(dir, "nested"))
}

func TestSession(t *testing.T) {
	workspace := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(workspace, "a.jpg"), []byte("jpeg"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(workspace, "c.gif"), []byte("gif"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(workspace, "captions.db"), []byte("db"), 0644))

	dst, n, err := Session(context.Background(), sampleStore(), workspace, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, strings.HasPrefix(filepath.Base(dst), "spacecat_export_"))

	assert.FileExists(t, filepath.Join(dst, "a.jpg"))
	assert.FileExists(t, filepath.Join(dst, "a.txt"))
	assert.FileExists(t, filepath.Join(dst, "c.gif"))
	assert.NoFileExists(t, filepath.Join(dst, "c.txt"))
	assert.NoFileExists(t, filepath.Join(dst, "captions.db"))
}

func TestParquetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dataset", "captions.parquet")
	n, err := Parquet(context.Background(), sampleStore(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rows, err := LoadParquet(path)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "a.jpg", rows[0].FileName)
	assert.Equal(t, "a banana", rows[1].Text)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).UnixMilli(), rows[0].UpdatedAt)

	target := &fakeStore{}
	imported, err := ImportParquet(context.Background(), path, target)
	require.NoError(t, err)
	assert.Equal(t, 2, imported)
	assert.Equal(t, "an apple", target.saved["a.jpg"])
}

func TestLoadParquetMissing(t *testing.T) {
	_, err := LoadParquet(filepath.Join(t.TempDir(), "nope.parquet"))
	assert.Error(t, err)
}

func TestReportYAML(t *testing.T) {
	settings := &models.CaptionSettings{
		Caption:  models.CaptionConfig{CaptionType: models.CaptionDescriptive, CaptionLength: "short"},
		Endpoint: models.ModelEndpointConfig{ModelType: models.ModelTypeOpenAI, Model: "gpt-4o", APIKey: "secret"},
	}
	result := captioning.BatchResult{
		RunID:  "abc12345",
		Status: captioning.EventBatchCancelled,
		Outcomes: []captioning.Outcome{
			captioning.Success("a.jpg", "an apple"),
			captioning.Failure("b.jpg", captioning.KindExhaustedRetries, "failed after 3 attempts"),
		},
	}

	path := filepath.Join(t.TempDir(), "reports", "run.yaml")
	require.NoError(t, NewReport(settings, result).SaveYAML(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret")

	var loaded Report
	require.NoError(t, yaml.Unmarshal(data, &loaded))
	assert.Equal(t, "batch_cancelled", loaded.Status)
	assert.Equal(t, "Write a short descriptive caption for this image in a formal tone.", loaded.Config.Prompt)
	assert.Equal(t, 1, loaded.Summary.Succeeded)
	assert.Equal(t, 1, loaded.Summary.Failed)
	require.Len(t, loaded.Results, 2)
	assert.Equal(t, "exhausted_retries", loaded.Results[1].ErrorKind)
}
