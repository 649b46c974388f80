package cosplayers

import (
	"context"

	"coshub/internal/database"
	"coshub/models"
)

// DatabaseBackend is the asynchronous-remote variant of the collection
// backend. Unlike the file backend it does not swallow storage errors; the
// caller sees them and decides.
type DatabaseBackend struct {
	repo *database.ProfileRepository
}

// NewDatabaseBackend returns a backend over the given repository.
func NewDatabaseBackend(repo *database.ProfileRepository) *DatabaseBackend {
	return &DatabaseBackend{repo: repo}
}

func (b *DatabaseBackend) Read(ctx context.Context) ([]models.Profile, error) {
	return b.repo.ReadAll(ctx)
}

func (b *DatabaseBackend) Write(ctx context.Context, profiles []models.Profile) error {
	return b.repo.ReplaceAll(ctx, profiles)
}

func (b *DatabaseBackend) Clear(ctx context.Context) error {
	return b.repo.DeleteAll(ctx)
}
