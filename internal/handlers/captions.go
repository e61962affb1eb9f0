package handlers

import (
	"net/http"
	"strings"
)

func (h *Handler) HandleCaptions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	captions, err := h.session.GetAllCaptions(r.Context())
	if err != nil {
		h.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, captions)
}

// HandleCaptionDetail serves /api/captions/{name} and /api/captions/{name}/generate
func (h *Handler) HandleCaptionDetail(w http.ResponseWriter, r *http.Request) {
	name := pathName(r.URL.Path, "/api/captions/")
	if base, ok := strings.CutSuffix(name, "/generate"); ok {
		h.handleGenerate(w, r, base)
		return
	}

	switch r.Method {
	case http.MethodGet:
		caption, err := h.session.GetCaption(r.Context(), name)
		if err != nil {
			h.writeError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		h.writeJSON(w, map[string]string{"image_name": name, "caption": caption})
	case http.MethodPut:
		var request struct {
			Caption string `json:"caption"`
		}
		if err := decode(r, &request); err != nil {
			h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
			return
		}
		if err := h.session.SaveCaption(r.Context(), name, request.Caption); err != nil {
			h.writeStoreError(w, err)
			return
		}
		h.writeJSON(w, map[string]string{"image_name": name, "caption": request.Caption})
	default:
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request, name string) {
	if r.Method != http.MethodPost {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var overrides generationOverrides
	if err := decode(r, &overrides); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	settings, err := h.captionSettings(overrides)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	runID, _ := h.session.GenerateCaption(h.ctx, name, settings)

	h.writeJSONStatus(w, http.StatusAccepted, map[string]string{"run_id": runID})
}
