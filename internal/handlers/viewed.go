package handlers

import (
	"net/http"
)

func (h *Handler) HandleViewed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	marks, err := h.session.ListViewed(r.Context())
	if err != nil {
		h.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, marks)
}

func (h *Handler) HandleViewedDetail(w http.ResponseWriter, r *http.Request) {
	name := pathName(r.URL.Path, "/api/viewed/")

	var err error
	switch r.Method {
	case http.MethodPut:
		err = h.session.MarkViewed(r.Context(), name)
	case http.MethodDelete:
		err = h.session.UnmarkViewed(r.Context(), name)
	default:
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
