package handlers

import (
	"net/http"

	"github.com/spacecat/sage/internal/captioning"
)

func (h *Handler) HandleBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var request struct {
		generationOverrides
		Images []string `json:"images"`
	}
	if err := decode(r, &request); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	for _, name := range request.Images {
		if !captioning.IsPlainName(name) {
			h.writeError(w, "Invalid image name: "+name, http.StatusBadRequest)
			return
		}
	}

	images := request.Images
	if len(images) == 0 {
		var err error
		images, err = h.session.ImageNames(r.Context())
		if err != nil {
			h.writeError(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}

	settings, err := h.captionSettings(request.generationOverrides)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	runID, _ := h.session.GenerateBatch(h.ctx, images, settings)

	h.writeJSONStatus(w, http.StatusAccepted, map[string]any{"run_id": runID, "total": len(images)})
}

// HandleGeneration reports the status of the latest generation run
func (h *Handler) HandleGeneration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.writeJSON(w, h.session.Tracker().Snapshot())
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.session.CancelGeneration()
	h.writeJSON(w, map[string]bool{"cancelled": true})
}
