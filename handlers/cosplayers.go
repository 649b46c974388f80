package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"

	"github.com/gorilla/mux"

	"coshub/models"
	"coshub/services/cosplayers"
	"coshub/services/syncstorage"
)

// CosplayerHandler serves the collection: the read-through with
// reconciliation, every mutation, and the share link.
type CosplayerHandler struct {
	store   *cosplayers.Store
	baseURL *url.URL
}

// NewCosplayerHandler creates the handler. baseURL is the public address
// share links are built on.
func NewCosplayerHandler(store *cosplayers.Store, baseURL *url.URL) *CosplayerHandler {
	return &CosplayerHandler{store: store, baseURL: baseURL}
}

// Register mounts the collection routes.
func (h *CosplayerHandler) Register(r *mux.Router) {
	r.HandleFunc("/api/cosplayers", h.List).Methods(http.MethodGet)
	r.HandleFunc("/api/cosplayers", h.Add).Methods(http.MethodPost)
	r.HandleFunc("/api/cosplayers", h.ClearAll).Methods(http.MethodDelete)
	r.HandleFunc("/api/cosplayers/{id}", h.Update).Methods(http.MethodPatch)
	r.HandleFunc("/api/cosplayers/{id}", h.Remove).Methods(http.MethodDelete)
	r.HandleFunc("/api/cosplayers/{id}/follow", h.ToggleFollow).Methods(http.MethodPost)
	r.HandleFunc("/api/cosplayers/{username}/media", h.AppendMedia).Methods(http.MethodPost)
	r.HandleFunc("/api/cosplayers/{username}/status", h.UpdateStatus).Methods(http.MethodPut)
	r.HandleFunc("/api/cosplayers/{username}/avatar", h.UpdateAvatar).Methods(http.MethodPost)
	r.HandleFunc("/api/sync/link", h.ShareLink).Methods(http.MethodGet)
}

// List is the read-through: it reconciles the local collection against the
// sync channels before answering. Consuming a share payload persists it and
// redirects to the cleaned URL so a reload cannot re-trigger it.
func (h *CosplayerHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	local, err := h.store.List(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load collection")
		return
	}

	urlProfiles, cleaned, urlOK := syncstorage.DecodeShareURL(r.URL)
	cookieProfiles, cookieOK := syncstorage.DecodeCookies(r.Cookies())

	outcome := syncstorage.Resolve(local, urlProfiles, urlOK, cookieProfiles, cookieOK)
	if outcome.Persist {
		if err := h.store.Replace(ctx, outcome.Profiles); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to persist synced collection")
			return
		}
		log.Printf("[sync] collection loaded from %s sync (%d profiles)", outcome.Source, len(outcome.Profiles))
	}
	if outcome.MirrorCookie {
		setSyncCookies(w, outcome.Profiles)
	}

	if urlOK && cleaned != nil {
		http.Redirect(w, r, cleaned.String(), http.StatusFound)
		return
	}

	writeJSON(w, http.StatusOK, outcome.Profiles)
}

// Add creates (or returns the already-tracked) profile for a username.
func (h *CosplayerHandler) Add(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username    string `json:"username"`
		DisplayName string `json:"displayName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Username == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}

	profile, err := h.store.AddProfile(r.Context(), body.Username, body.DisplayName)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to add profile")
		return
	}
	h.mirror(r.Context(), w)
	writeJSON(w, http.StatusOK, profile)
}

// Update applies a partial profile update by id.
func (h *CosplayerHandler) Update(w http.ResponseWriter, r *http.Request) {
	var updates models.ProfileUpdate
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		writeError(w, http.StatusBadRequest, "invalid update payload")
		return
	}

	err := h.store.UpdateProfile(r.Context(), mux.Vars(r)["id"], updates)
	h.finishMutation(w, r, err)
}

// ToggleFollow flips the follow flag by id.
func (h *CosplayerHandler) ToggleFollow(w http.ResponseWriter, r *http.Request) {
	err := h.store.ToggleFollow(r.Context(), mux.Vars(r)["id"])
	h.finishMutation(w, r, err)
}

// Remove deletes a profile by id.
func (h *CosplayerHandler) Remove(w http.ResponseWriter, r *http.Request) {
	err := h.store.RemoveProfile(r.Context(), mux.Vars(r)["id"])
	h.finishMutation(w, r, err)
}

// ClearAll drops the whole collection.
func (h *CosplayerHandler) ClearAll(w http.ResponseWriter, r *http.Request) {
	if err := h.store.ClearAll(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to clear collection")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// AppendMedia concatenates media onto a profile. Callers pre-filter
// filenames they already know.
func (h *CosplayerHandler) AppendMedia(w http.ResponseWriter, r *http.Request) {
	var media []models.Media
	if err := json.NewDecoder(r.Body).Decode(&media); err != nil {
		writeError(w, http.StatusBadRequest, "invalid media payload")
		return
	}

	err := h.store.AppendMedia(r.Context(), mux.Vars(r)["username"], media)
	h.finishMutation(w, r, err)
}

// UpdateStatus replaces a profile's download status.
func (h *CosplayerHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var status models.DownloadStatus
	if err := json.NewDecoder(r.Body).Decode(&status); err != nil {
		writeError(w, http.StatusBadRequest, "invalid status payload")
		return
	}

	err := h.store.UpdateDownloadStatus(r.Context(), mux.Vars(r)["username"], status)
	h.finishMutation(w, r, err)
}

// UpdateAvatar re-probes the avatar services for a username.
func (h *CosplayerHandler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	err := h.store.UpdateAvatar(r.Context(), mux.Vars(r)["username"])
	h.finishMutation(w, r, err)
}

// ShareLink answers with the share URL for the current collection.
func (h *CosplayerHandler) ShareLink(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.store.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load collection")
		return
	}

	link, err := syncstorage.ShareURL(h.baseURL, profiles)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to build share link")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": link})
}

func (h *CosplayerHandler) finishMutation(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, cosplayers.ErrProfileNotFound) {
		writeError(w, http.StatusNotFound, "profile not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "mutation failed")
		return
	}
	h.mirror(r.Context(), w)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// mirror opportunistically refreshes the cookie mirror after a write.
func (h *CosplayerHandler) mirror(ctx context.Context, w http.ResponseWriter) {
	profiles, err := h.store.List(ctx)
	if err != nil {
		return
	}
	setSyncCookies(w, profiles)
}

func setSyncCookies(w http.ResponseWriter, profiles []models.Profile) {
	cookies, ok := syncstorage.EncodeCookies(profiles)
	if !ok {
		return
	}
	for _, c := range cookies {
		http.SetCookie(w, c)
	}
}
