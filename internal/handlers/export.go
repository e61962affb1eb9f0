package handlers

import (
	"net/http"
	"path/filepath"

	"github.com/spacecat/sage/internal/export"
)

func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var request struct {
		Format string `json:"format"` // session, txt or parquet
		Dir    string `json:"dir"`
	}
	if err := decode(r, &request); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	dir := request.Dir
	if dir == "" {
		dir = h.exportDir
	}

	store := h.session.Store()
	switch request.Format {
	case "", "session":
		path, n, err := export.Session(r.Context(), store, h.session.Dir(), dir)
		if err != nil {
			h.writeError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		h.writeJSON(w, map[string]any{"path": path, "count": n})
	case "txt":
		if request.Dir == "" {
			dir = h.session.Dir()
		}
		n, err := export.Sidecars(r.Context(), store, dir)
		if err != nil {
			h.writeError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		h.writeJSON(w, map[string]any{"path": dir, "count": n})
	case "parquet":
		path := filepath.Join(dir, "captions.parquet")
		n, err := export.Parquet(r.Context(), store, path)
		if err != nil {
			h.writeError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		h.writeJSON(w, map[string]any{"path": path, "count": n})
	default:
		h.writeError(w, "Invalid format. Must be 'session', 'txt', or 'parquet'", http.StatusBadRequest)
	}
}
