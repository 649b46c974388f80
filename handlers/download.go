package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"coshub/models"
	"coshub/services/auth"
	"coshub/services/cosplayers"
	"coshub/services/downloader"
)

// DownloadHandler runs the download pipeline and exposes job status.
type DownloadHandler struct {
	downloads *downloader.Service
	auth      *auth.Service
	store     *cosplayers.Store
}

// NewDownloadHandler creates the handler. store may be nil when download
// status should not be written back to the collection.
func NewDownloadHandler(downloads *downloader.Service, authSvc *auth.Service, store *cosplayers.Store) *DownloadHandler {
	return &DownloadHandler{downloads: downloads, auth: authSvc, store: store}
}

// Register mounts the download routes.
func (h *DownloadHandler) Register(r *mux.Router) {
	r.HandleFunc("/api/download", h.Download).Methods(http.MethodPost)
	r.HandleFunc("/api/download/status/{jobId}", h.Status).Methods(http.MethodGet)
}

type downloadRequest struct {
	Username  string                 `json:"username"`
	AuthToken string                 `json:"auth_token"`
	CT0       string                 `json:"ct0"`
	Test      bool                   `json:"test"`
	Options   models.DownloadOptions `json:"options"`
}

// Download resolves credentials through the fallback chain and runs twmd for
// the requested username. test:true only confirms that credentials resolve.
func (h *DownloadHandler) Download(w http.ResponseWriter, r *http.Request) {
	var req downloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}

	creds, source := h.auth.Resolve(models.Credentials{AuthToken: req.AuthToken, CT0: req.CT0})
	if !creds.HasBoth() {
		writeError(w, http.StatusUnauthorized,
			"credentials are not configured; save them via /api/auth or set the environment variables")
		return
	}

	if req.Test || req.Options.Test {
		writeJSON(w, http.StatusOK, map[string]any{
			"success":    true,
			"test":       true,
			"username":   req.Username,
			"authStatus": "verified",
			"source":     string(source),
		})
		return
	}

	h.setStoreStatus(r, req.Username, models.DownloadStatus{
		IsDownloading: true,
		Progress:      0,
		Message:       "starting download",
	})

	result, err := h.downloads.Download(r.Context(), req.Username, req.Options, creds)
	if err != nil {
		h.setStoreStatus(r, req.Username, models.DownloadStatus{
			IsDownloading: false,
			Message:       "download failed",
			Error:         err.Error(),
		})
		if errors.Is(err, downloader.ErrTwmdNotFound) {
			writeError(w, http.StatusInternalServerError, "twmd binary not found; check the setup")
			return
		}
		writeError(w, http.StatusInternalServerError, "download failed")
		return
	}

	h.setStoreStatus(r, req.Username, models.DownloadStatus{
		IsDownloading: false,
		Progress:      100,
		Message:       result.Message,
	})
	writeJSON(w, http.StatusOK, result)
}

// Status reports the progress of a download job.
func (h *DownloadHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, ok := h.downloads.JobStatus(mux.Vars(r)["jobId"])
	if !ok {
		writeError(w, http.StatusNotFound, "unknown job")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// setStoreStatus is best-effort: an untracked username is not an error here.
func (h *DownloadHandler) setStoreStatus(r *http.Request, username string, status models.DownloadStatus) {
	if h.store == nil {
		return
	}
	if err := h.store.UpdateDownloadStatus(r.Context(), username, status); err != nil &&
		!errors.Is(err, cosplayers.ErrProfileNotFound) {
		log.Printf("[download] update status for %s: %v", username, err)
	}
}
