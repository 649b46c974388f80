package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"coshub/services/gallery"
)

// GalleryHandler serves the read-only views of the CMS mirror.
type GalleryHandler struct {
	syncer *gallery.Syncer
}

func NewGalleryHandler(syncer *gallery.Syncer) *GalleryHandler {
	return &GalleryHandler{syncer: syncer}
}

// Register mounts the gallery routes.
func (h *GalleryHandler) Register(r *mux.Router) {
	r.HandleFunc("/api/gallery/cosplayers", h.ListCosplayers).Methods(http.MethodGet)
	r.HandleFunc("/api/gallery/images", h.ListImages).Methods(http.MethodGet)
}

// ListCosplayers returns the mirrored cosplayer documents.
func (h *GalleryHandler) ListCosplayers(w http.ResponseWriter, r *http.Request) {
	var docs json.RawMessage
	if err := h.syncer.ListCosplayers(r.Context(), &docs); err != nil {
		writeError(w, http.StatusBadGateway, "failed to fetch cosplayers from the gallery")
		return
	}
	if len(docs) == 0 {
		docs = json.RawMessage("[]")
	}
	w.Header().Set("Cache-Control", "s-maxage=300, stale-while-revalidate=3600")
	writeJSON(w, http.StatusOK, docs)
}

// ListImages returns a page of mirrored images for one username.
func (h *GalleryHandler) ListImages(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if username == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}

	limit := queryInt(r, "limit", 20)
	offset := queryInt(r, "offset", 0)

	var docs json.RawMessage
	if err := h.syncer.ListImages(r.Context(), username, limit, offset, &docs); err != nil {
		writeError(w, http.StatusBadGateway, "failed to fetch images from the gallery")
		return
	}
	if len(docs) == 0 {
		docs = json.RawMessage("[]")
	}
	w.Header().Set("Cache-Control", "s-maxage=60, stale-while-revalidate=300")
	writeJSON(w, http.StatusOK, docs)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
