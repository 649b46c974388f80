package handlers

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"github.com/gorilla/mux"

	"coshub/models"
	"coshub/services/auth"
)

// AuthHandler exposes credential management, verification and site login.
type AuthHandler struct {
	auth *auth.Service
}

func NewAuthHandler(authSvc *auth.Service) *AuthHandler {
	return &AuthHandler{auth: authSvc}
}

// Register mounts the auth routes.
func (h *AuthHandler) Register(r *mux.Router) {
	r.HandleFunc("/api/auth", h.Status).Methods(http.MethodGet)
	r.HandleFunc("/api/auth", h.Save).Methods(http.MethodPost)
	r.HandleFunc("/api/auth", h.Clear).Methods(http.MethodDelete)
	r.HandleFunc("/api/auth/verify", h.Verify).Methods(http.MethodPost)
	r.HandleFunc("/api/login", h.Login).Methods(http.MethodPost)
}

// Status reports whether credentials resolve and from where. With
// values=true the actual tokens are included, which the download pipeline's
// internal callers rely on.
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("values") == "true" {
		creds, source := h.auth.Resolve(models.Credentials{})
		writeJSON(w, http.StatusOK, map[string]string{
			"auth_token": creds.AuthToken,
			"ct0":        creds.CT0,
			"source":     string(source),
		})
		return
	}
	writeJSON(w, http.StatusOK, h.auth.Status())
}

// Save stores a credential pair.
func (h *AuthHandler) Save(w http.ResponseWriter, r *http.Request) {
	var creds models.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, http.StatusBadRequest, "auth_token and ct0 are required")
		return
	}
	if err := h.auth.Save(creds); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "credentials saved",
		"note":    "environment variables still take precedence when set",
	})
}

// Clear drops stored credentials.
func (h *AuthHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Clear(); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to clear credentials")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "credentials cleared",
		"note":    "environment variables are not affected",
	})
}

// Verify runs the gallery-dl simulation; callers are rate-limited by IP.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	result, err := h.auth.Verify(r.Context(), callerKey(r))
	if errors.Is(err, auth.ErrRateLimited) {
		writeError(w, http.StatusTooManyRequests, "too many verification attempts, try again later")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "verification failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Login exchanges the site password for a session token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Password == "" {
		writeError(w, http.StatusBadRequest, "password is required")
		return
	}

	token, err := h.auth.Login(body.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid password")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func callerKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
