package auth

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"

	"coshub/models"
)

// CredentialStore holds the downloader token pair. It replaces the old
// module-global with something a handler gets injected, so multiple
// instances and tests stay honest.
type CredentialStore interface {
	Get() (models.Credentials, bool)
	Set(creds models.Credentials) error
	Clear() error
}

// MemoryStore keeps credentials for the process lifetime only.
type MemoryStore struct {
	mu    sync.RWMutex
	creds models.Credentials
	set   bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Get() (models.Credentials, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds, s.set
}

func (s *MemoryStore) Set(creds models.Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = creds
	s.set = true
	return nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = models.Credentials{}
	s.set = false
	return nil
}

const credentialFilename = "twitter-cookies.json"

// FileStore persists credentials as JSON under the auth directory.
type FileStore struct {
	fs   afero.Fs
	path string
}

func NewFileStore(fs afero.Fs, authDir string) *FileStore {
	return &FileStore{fs: fs, path: filepath.Join(authDir, credentialFilename)}
}

func (s *FileStore) Get() (models.Credentials, bool) {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		return models.Credentials{}, false
	}
	var creds models.Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return models.Credentials{}, false
	}
	return creds, creds.HasBoth()
}

func (s *FileStore) Set(creds models.Credentials) error {
	if err := s.fs.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("create auth directory: %w", err)
	}
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	if err := afero.WriteFile(s.fs, s.path, data, 0600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return nil
}

func (s *FileStore) Clear() error {
	if err := s.fs.Remove(s.path); err != nil {
		if exists, _ := afero.Exists(s.fs, s.path); !exists {
			return nil
		}
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}
