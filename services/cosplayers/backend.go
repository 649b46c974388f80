package cosplayers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"path/filepath"

	"github.com/spf13/afero"

	"coshub/models"
)

// Backend is the capability the store is written against. The collection is
// always read and written as a whole; merging between divergent copies is the
// sync layer's job, never the backend's.
type Backend interface {
	// Read returns the current collection. Implementations local to this
	// process recover from corrupt storage by returning an empty collection.
	Read(ctx context.Context) ([]models.Profile, error)
	// Write replaces the stored collection in full.
	Write(ctx context.Context, profiles []models.Profile) error
	// Clear removes the stored collection entirely.
	Clear(ctx context.Context) error
}

// collectionFilename is the fixed storage key for the file backend.
const collectionFilename = "cosplayers.json"

// FileBackend persists the collection as a single JSON document on an afero
// filesystem. It is the synchronous-local variant: a missing or unreadable
// document reads as empty so the caller never fails on corrupt storage.
type FileBackend struct {
	fs   afero.Fs
	path string
}

// NewFileBackend returns a file backend rooted at dir.
func NewFileBackend(fs afero.Fs, dir string) *FileBackend {
	return &FileBackend{fs: fs, path: filepath.Join(dir, collectionFilename)}
}

// Read loads the collection document. Corruption is logged and swallowed.
func (b *FileBackend) Read(ctx context.Context) ([]models.Profile, error) {
	data, err := afero.ReadFile(b.fs, b.path)
	if err != nil {
		return []models.Profile{}, nil
	}

	var profiles []models.Profile
	if err := json.Unmarshal(data, &profiles); err != nil {
		log.Printf("[store] corrupt collection at %s, starting empty: %v", b.path, err)
		return []models.Profile{}, nil
	}
	if profiles == nil {
		profiles = []models.Profile{}
	}
	return profiles, nil
}

// Write replaces the document. The write goes through a temp file and a
// rename so a crash mid-write cannot leave a truncated collection behind.
func (b *FileBackend) Write(ctx context.Context, profiles []models.Profile) error {
	if profiles == nil {
		profiles = []models.Profile{}
	}
	data, err := json.Marshal(profiles)
	if err != nil {
		return fmt.Errorf("encode collection: %w", err)
	}

	dir := filepath.Dir(b.path)
	if err := b.fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	tmp := b.path + ".tmp"
	if err := afero.WriteFile(b.fs, tmp, data, 0644); err != nil {
		return fmt.Errorf("write collection: %w", err)
	}
	if err := b.fs.Rename(tmp, b.path); err != nil {
		return fmt.Errorf("replace collection: %w", err)
	}
	return nil
}

// Clear removes the document. A missing document is not an error.
func (b *FileBackend) Clear(ctx context.Context) error {
	if err := b.fs.Remove(b.path); err != nil {
		if exists, _ := afero.Exists(b.fs, b.path); !exists {
			return nil
		}
		return fmt.Errorf("clear collection: %w", err)
	}
	return nil
}
