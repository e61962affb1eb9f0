package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spacecat/sage/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SAGE_DATA_DIR", "/data/sage")
	t.Setenv("SAGE_WORKSPACE", "")
	t.Setenv("SAGE_REQUEST_TIMEOUT", "not-a-duration")
	t.Setenv("SAGE_MAX_ATTEMPTS", "5")
	t.Setenv("SAGE_LOG_LEVEL", "debug")

	cfg := Load()
	assert.Equal(t, filepath.Join("/data/sage", "sessions", "current"), cfg.Workspace)
	assert.Equal(t, filepath.Join("/data/sage", "settings.yaml"), cfg.SettingsFile)
	assert.Equal(t, filepath.Join("/data/sage", "sessions", "backups"), cfg.BackupDir())
	assert.Equal(t, 120*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, time.Second, cfg.RetryDelay)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"Warning", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLogLevel(tt.input); got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestLoadSettingsMissingFile(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", `"sk-from-env"`)

	s, err := LoadSettings(filepath.Join(t.TempDir(), "settings.yaml"))
	require.NoError(t, err)
	assert.Equal(t, models.ModelTypeOpenAI, s.ModelType)
	assert.Equal(t, "gpt-4o", s.OpenAI.Model)
	assert.Equal(t, "sk-from-env", s.OpenAI.APIKey)
	assert.Equal(t, models.CaptionDescriptive, s.Prompts.CaptionType)
	assert.Equal(t, "medium-length", s.Prompts.CaptionLength)
}

func TestSettingsRoundTripAndEndpoint(t *testing.T) {
	t.Setenv("VLLM_API_KEY", "")
	path := filepath.Join(t.TempDir(), "nested", "settings.yaml")

	s := DefaultSettings()
	s.ModelType = models.ModelTypeVLLM
	s.VLLM = Endpoint{APIKey: "vk", Model: "joycaption", BaseURL: "http://gpu:8000/v1"}
	s.Prompts.ExtraOptions = []string{"Mention {name}."}
	s.Prompts.CustomName = "Rex"
	require.NoError(t, s.Save(path))

	loaded, err := LoadSettings(path)
	require.NoError(t, err)

	cs := loaded.CaptionSettings()
	assert.Equal(t, models.ModelEndpointConfig{
		ModelType: models.ModelTypeVLLM,
		APIKey:    "vk",
		Model:     "joycaption",
		BaseURL:   "http://gpu:8000/v1",
	}, cs.Endpoint)
	assert.Equal(t, []string{"Mention {name}."}, cs.Caption.ExtraOptions)
	assert.Equal(t, "Rex", cs.Caption.CustomName)
}

func TestLoadSettingsInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model_type: [unterminated"), 0644))

	_, err := LoadSettings(path)
	assert.Error(t, err)
}

func TestRedacted(t *testing.T) {
	s := DefaultSettings()
	s.OpenAI.APIKey = "sk-1234567890"
	s.Gemini.APIKey = "ab"

	r := s.Redacted()
	assert.Equal(t, "sk-1****", r.OpenAI.APIKey)
	assert.Equal(t, "****", r.Gemini.APIKey)
	assert.Equal(t, "", r.VLLM.APIKey)
	assert.Equal(t, "sk-1234567890", s.OpenAI.APIKey)
}

func TestSetupLoggerWithWriters(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelInfo)

	logger.Debug("hidden")
	logger.Info("caption generated", "image", "a.jpg")

	assert.Contains(t, stderr.String(), "caption generated")
	assert.NotContains(t, stderr.String(), "hidden")
	assert.Contains(t, file.String(), `"image":"a.jpg"`)
}

func TestSetupLoggerWritesFile(t *testing.T) {
	cfg := Config{LogFile: filepath.Join(t.TempDir(), "logs", "sage.log"), LogLevel: slog.LevelInfo, LogMaxSizeMB: 1}
	logger, cleanup := SetupLogger(cfg)
	logger.Info("hello")
	require.NoError(t, cleanup())

	data, err := os.ReadFile(cfg.LogFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
}
