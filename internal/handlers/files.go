package handlers

import (
	"net/http"
	"path/filepath"
)

func (h *Handler) HandleFiles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		files, err := h.session.ListFiles(r.Context())
		if err != nil {
			h.writeError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		h.writeJSON(w, files)
	case http.MethodPost:
		var request struct {
			Paths []string `json:"paths"`
		}
		if err := decode(r, &request); err != nil {
			h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
			return
		}
		if len(request.Paths) == 0 {
			h.writeError(w, "paths is required", http.StatusBadRequest)
			return
		}
		queued, err := h.session.SubmitFiles(request.Paths)
		if err != nil {
			h.writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.writeJSONStatus(w, http.StatusAccepted, map[string]any{"queued": queued})
	default:
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) HandleImportProgress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.writeJSON(w, h.session.PollIngestion())
}

// HandleImage returns an image as a data URL (GET) or replaces it with an
// edited version sent as a data URL (PUT)
func (h *Handler) HandleImage(w http.ResponseWriter, r *http.Request) {
	name := pathName(r.URL.Path, "/api/images/")
	switch r.Method {
	case http.MethodGet:
		url, err := h.session.ImageDataURL(name)
		if err != nil {
			h.writeStoreError(w, err)
			return
		}
		h.writeJSON(w, map[string]string{"name": name, "data_url": url})
	case http.MethodPut:
		var request struct {
			DataURL string `json:"data_url"`
		}
		if err := decode(r, &request); err != nil {
			h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
			return
		}
		if request.DataURL == "" {
			h.writeError(w, "data_url is required", http.StatusBadRequest)
			return
		}
		saved, err := h.session.SaveImage(r.Context(), name, request.DataURL)
		if err != nil {
			h.writeStoreError(w, err)
			return
		}
		h.writeJSON(w, map[string]string{"name": saved, "path": filepath.Join(h.session.Dir(), saved)})
	default:
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
