package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/spacecat/sage/internal/config"
	"github.com/spacecat/sage/internal/models"
	"github.com/spacecat/sage/internal/session"
)

// SettingsLoader returns the current user settings
type SettingsLoader func() (config.Settings, error)

type Handler struct {
	ctx       context.Context
	session   *session.Session
	settings  SettingsLoader
	exportDir string
}

// New returns a handler serving sess. Generation runs started through it
// live as long as ctx, not the request that started them.
func New(ctx context.Context, sess *session.Session, settings SettingsLoader, exportDir string) *Handler {
	return &Handler{
		ctx:       ctx,
		session:   sess,
		settings:  settings,
		exportDir: exportDir,
	}
}

// Routes registers every API endpoint on mux
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/api/files", h.HandleFiles)
	mux.HandleFunc("/api/import-progress", h.HandleImportProgress)
	mux.HandleFunc("/api/images/", h.HandleImage)
	mux.HandleFunc("/api/captions", h.HandleCaptions)
	mux.HandleFunc("/api/captions/", h.HandleCaptionDetail)
	mux.HandleFunc("/api/batch", h.HandleBatch)
	mux.HandleFunc("/api/generation", h.HandleGeneration)
	mux.HandleFunc("/api/cancel", h.HandleCancel)
	mux.HandleFunc("/api/viewed", h.HandleViewed)
	mux.HandleFunc("/api/viewed/", h.HandleViewedDetail)
	mux.HandleFunc("/api/export", h.HandleExport)
	mux.HandleFunc("/api/settings", h.HandleSettings)
	mux.HandleFunc("/api/session/backup", h.HandleBackup)
	mux.HandleFunc("/api/session/clear", h.HandleClear)
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *Handler) writeJSONStatus(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	if code >= http.StatusInternalServerError {
		slog.Error(message)
	} else {
		slog.Debug(message, "code", code)
	}
	http.Error(w, message, code)
}

func (h *Handler) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, session.ErrInvalidName) || errors.Is(err, session.ErrInvalidImage) {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.writeError(w, err.Error(), http.StatusInternalServerError)
}

// decode reads an optional JSON body; an empty body leaves v untouched
func decode(r *http.Request, v interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// generationOverrides lets a request adjust the stored settings for one run
type generationOverrides struct {
	ModelType models.ModelType      `json:"model_type,omitempty"`
	Caption   *models.CaptionConfig `json:"caption,omitempty"`
}

func (h *Handler) captionSettings(o generationOverrides) (*models.CaptionSettings, error) {
	s, err := h.settings()
	if err != nil {
		return nil, err
	}
	if o.ModelType != "" {
		s.ModelType = o.ModelType
	}
	if o.Caption != nil {
		s.Prompts = *o.Caption
	}
	return s.CaptionSettings(), nil
}

// pathName extracts the image name following prefix
func pathName(path, prefix string) string {
	return strings.Trim(strings.TrimPrefix(path, prefix), "/")
}
