// Package auth owns the credential pair the downloader depends on, the
// gallery-dl based verification of that pair, and site login sessions.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-password/password"
	"github.com/spf13/afero"
	"golang.org/x/crypto/bcrypt"

	"coshub/config"
	"coshub/models"
	"coshub/utils"
)

// ErrNoCredentials is returned when no source in the fallback chain yields a
// usable token pair.
var ErrNoCredentials = errors.New("credentials are not configured")

// ErrRateLimited is returned when a caller verifies too often.
var ErrRateLimited = errors.New("too many verification attempts")

// CredentialSource reports where a resolved pair came from.
type CredentialSource string

const (
	SourceEnv     CredentialSource = "env"
	SourceStore   CredentialSource = "store"
	SourceRequest CredentialSource = "request"
	SourceNone    CredentialSource = "none"
)

const (
	envAuthToken = "TWITTER_AUTH_TOKEN"
	envCT0       = "TWITTER_CT0"

	verifyWindow      = time.Minute
	verifyMaxAttempts = 3
	verifyTimeout     = 30 * time.Second
)

// Runner executes an external binary; satisfied by downloader.ExecRunner.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) (stdout, stderr string, err error)
}

// VerifyResult classifies a credential verification run.
type VerifyResult struct {
	IsValid bool   `json:"isValid"`
	Message string `json:"message,omitempty"`
	Details string `json:"details,omitempty"`
}

// Service resolves, stores and verifies downloader credentials, and issues
// site login sessions.
type Service struct {
	cfg    config.AuthConfig
	store  CredentialStore
	fs     afero.Fs
	runner Runner

	passwordHash []byte

	mu       sync.Mutex
	attempts map[string][]time.Time
	sessions map[string]time.Time
}

// NewService builds the auth service. When no site password hash is
// configured, a password is generated and logged once so a fresh install is
// reachable.
func NewService(cfg config.AuthConfig, store CredentialStore, fs afero.Fs, runner Runner) (*Service, error) {
	s := &Service{
		cfg:      cfg,
		store:    store,
		fs:       fs,
		runner:   runner,
		attempts: make(map[string][]time.Time),
		sessions: make(map[string]time.Time),
	}

	if cfg.SitePasswordHash != "" {
		s.passwordHash = []byte(cfg.SitePasswordHash)
		return s, nil
	}

	generated, err := password.Generate(16, 4, 0, false, false)
	if err != nil {
		return nil, fmt.Errorf("generate site password: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(generated), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash site password: %w", err)
	}
	s.passwordHash = hash
	log.Printf("[auth] no site password configured, generated one for this run: %s", generated)
	return s, nil
}

// Resolve walks the fallback chain: environment, injected store, then the
// per-request override.
func (s *Service) Resolve(override models.Credentials) (models.Credentials, CredentialSource) {
	if creds := (models.Credentials{AuthToken: os.Getenv(envAuthToken), CT0: os.Getenv(envCT0)}); creds.HasBoth() {
		return creds, SourceEnv
	}
	if creds, ok := s.store.Get(); ok {
		return creds, SourceStore
	}
	if override.HasBoth() {
		return override, SourceRequest
	}
	return models.Credentials{}, SourceNone
}

// Save validates and stores a token pair, and renders the gallery-dl config
// next to it so verification runs against the same values.
func (s *Service) Save(creds models.Credentials) error {
	creds.AuthToken = strings.TrimSpace(creds.AuthToken)
	creds.CT0 = strings.TrimSpace(creds.CT0)
	if len(creds.AuthToken) < 10 || len(creds.CT0) < 10 {
		return errors.New("both tokens are required and must look like real values")
	}
	creds.UpdatedAt = time.Now().UTC().Format(time.RFC3339)

	if err := s.store.Set(creds); err != nil {
		return err
	}
	if err := s.writeGalleryDLConfig(creds); err != nil {
		return fmt.Errorf("write gallery-dl config: %w", err)
	}
	return nil
}

// Clear drops stored credentials. Environment variables stay untouched.
func (s *Service) Clear() error {
	return s.store.Clear()
}

// Status describes what the fallback chain currently yields, without
// exposing token values.
func (s *Service) Status() map[string]any {
	creds, source := s.Resolve(models.Credentials{})
	return map[string]any{
		"hasAuthToken": creds.AuthToken != "",
		"hasCt0":       creds.CT0 != "",
		"source":       string(source),
		"updatedAt":    creds.UpdatedAt,
	}
}

// galleryDLConfigPath is where Verify expects the rendered config.
func (s *Service) galleryDLConfigPath() string {
	return filepath.Join(s.cfg.AuthDir, "gallery-dl-config.json")
}

func (s *Service) writeGalleryDLConfig(creds models.Credentials) error {
	cfg := map[string]any{
		"extractor": map[string]any{
			"twitter": map[string]any{
				"cookies": map[string]string{
					"auth_token": creds.AuthToken,
					"ct0":        creds.CT0,
				},
				"include":  "timeline",
				"retweets": false,
				"replies":  false,
			},
		},
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := s.fs.MkdirAll(s.cfg.AuthDir, 0700); err != nil {
		return err
	}
	return afero.WriteFile(s.fs, s.galleryDLConfigPath(), data, 0600)
}

// Verify runs a one-item simulated gallery-dl fetch against a known account
// and classifies authorization failures from stderr. Callers are
// rate-limited per key.
func (s *Service) Verify(ctx context.Context, callerKey string) (VerifyResult, error) {
	if !s.allowAttempt(callerKey) {
		return VerifyResult{}, ErrRateLimited
	}

	if ok, _ := afero.Exists(s.fs, s.galleryDLConfigPath()); !ok {
		return VerifyResult{IsValid: false, Message: "credentials are not configured"}, nil
	}

	runCtx, cancel := context.WithTimeout(ctx, verifyTimeout)
	defer cancel()

	stdout, stderr, err := s.runner.Run(runCtx, "", s.galleryDLBinary(),
		"--config", s.galleryDLConfigPath(),
		"--simulate",
		"--range", "1-1",
		"https://x.com/Twitter")
	combined := stdout + "\n" + stderr

	if isAuthFailure(combined) {
		return VerifyResult{
			IsValid: false,
			Message: "credentials are invalid or expired",
			Details: strings.TrimSpace(stderr),
		}, nil
	}
	if err != nil {
		return VerifyResult{
			IsValid: false,
			Message: "verification run failed",
			Details: err.Error(),
		}, nil
	}
	return VerifyResult{IsValid: true, Message: "credentials are valid"}, nil
}

func (s *Service) galleryDLBinary() string {
	if s.cfg.GalleryDLPath != "" {
		return s.cfg.GalleryDLPath
	}
	return "gallery-dl"
}

func isAuthFailure(output string) bool {
	for _, marker := range []string{"AuthorizationError", "Login required", "401", "403"} {
		if strings.Contains(output, marker) {
			return true
		}
	}
	return false
}

// allowAttempt is a fixed-window limiter keyed by caller.
func (s *Service) allowAttempt(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	recent := s.attempts[key][:0]
	for _, t := range s.attempts[key] {
		if now.Sub(t) < verifyWindow {
			recent = append(recent, t)
		}
	}
	if len(recent) >= verifyMaxAttempts {
		s.attempts[key] = recent
		return false
	}
	s.attempts[key] = append(recent, now)
	return true
}

// Login checks the site password and issues a session token.
func (s *Service) Login(password string) (string, error) {
	if err := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password)); err != nil {
		return "", errors.New("invalid password")
	}
	token, err := utils.GenerateSessionToken()
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.sessions[token] = time.Now().Add(30 * 24 * time.Hour)
	s.mu.Unlock()
	return token, nil
}

// ValidSession reports whether a session token is live.
func (s *Service) ValidSession(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	expiry, ok := s.sessions[token]
	if !ok {
		return false
	}
	if time.Now().After(expiry) {
		delete(s.sessions, token)
		return false
	}
	return true
}
