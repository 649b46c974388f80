package cosplayers

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"coshub/models"
)

// ErrProfileNotFound is returned by mutations whose id or username matches
// no profile in the collection.
var ErrProfileNotFound = errors.New("profile not found")

// Store implements the collection mutation API over a Backend. Every
// operation is a whole-collection read-modify-write; the backend write
// replaces the stored collection in full.
type Store struct {
	backend Backend
	avatars *AvatarResolver

	now func() time.Time
}

// NewStore returns a store over the given backend. A nil resolver disables
// probing and uses generated avatars directly.
func NewStore(backend Backend, avatars *AvatarResolver) *Store {
	return &Store{
		backend: backend,
		avatars: avatars,
		now:     time.Now,
	}
}

// List returns the current collection.
func (s *Store) List(ctx context.Context) ([]models.Profile, error) {
	return s.backend.Read(ctx)
}

// Replace overwrites the collection wholesale. The sync layer uses it to
// persist a reconciliation winner.
func (s *Store) Replace(ctx context.Context, profiles []models.Profile) error {
	return s.backend.Write(ctx, profiles)
}

// AddProfile creates a profile for username. Adding an already-tracked
// username is a no-op that returns the existing profile, never an error.
func (s *Store) AddProfile(ctx context.Context, username, displayName string) (models.Profile, error) {
	profiles, err := s.backend.Read(ctx)
	if err != nil {
		return models.Profile{}, err
	}

	for _, p := range profiles {
		if p.Username == username {
			return p, nil
		}
	}

	avatar := FallbackAvatarURL(username)
	if s.avatars != nil {
		avatar = s.avatars.Resolve(ctx, username)
	}

	if displayName == "" {
		displayName = username
	}

	now := s.now()
	profile := models.Profile{
		ID:          fmt.Sprintf("%d-%s", now.UnixMilli(), username),
		Username:    username,
		DisplayName: displayName,
		Avatar:      avatar,
		Bio:         fmt.Sprintf("Cosplayer @%s", username),
		Hashtag:     fmt.Sprintf("#%scos", username),
		Following:   rand.IntN(50) + 1,
		Followers:   fmt.Sprintf("%.1fK", rand.Float64()*300+10),
		IsFollowed:  false,
		Media:       []models.Media{},
		DownloadStatus: &models.DownloadStatus{
			IsDownloading: false,
			Progress:      0,
			Message:       "waiting",
		},
		AddedAt: now.UnixMilli(),
	}

	profiles = append(profiles, profile)
	if err := s.backend.Write(ctx, profiles); err != nil {
		return models.Profile{}, err
	}
	return profile, nil
}

// ToggleFollow flips the follow flag of the profile with the given id.
func (s *Store) ToggleFollow(ctx context.Context, id string) error {
	return s.mutateByID(ctx, id, func(p *models.Profile) {
		p.IsFollowed = !p.IsFollowed
	})
}

// UpdateProfile applies the non-nil fields of updates to the profile with
// the given id. Identity fields (id, username, addedAt) are not touchable.
func (s *Store) UpdateProfile(ctx context.Context, id string, updates models.ProfileUpdate) error {
	return s.mutateByID(ctx, id, func(p *models.Profile) {
		if updates.DisplayName != nil {
			p.DisplayName = *updates.DisplayName
		}
		if updates.Avatar != nil {
			p.Avatar = *updates.Avatar
		}
		if updates.CustomAvatar != nil {
			p.CustomAvatar = *updates.CustomAvatar
		}
		if updates.Bio != nil {
			p.Bio = *updates.Bio
		}
		if updates.Hashtag != nil {
			p.Hashtag = *updates.Hashtag
		}
		if updates.Location != nil {
			p.Location = *updates.Location
		}
		if updates.Following != nil {
			p.Following = *updates.Following
		}
		if updates.Followers != nil {
			p.Followers = *updates.Followers
		}
		if updates.SocialLinks != nil {
			p.SocialLinks = updates.SocialLinks
		}
		if updates.Stats != nil {
			p.Stats = updates.Stats
		}
		p.IsManuallyEdited = true
	})
}

// UpdateAvatar re-probes the avatar services for username and stores the
// result.
func (s *Store) UpdateAvatar(ctx context.Context, username string) error {
	avatar := FallbackAvatarURL(username)
	if s.avatars != nil {
		avatar = s.avatars.Resolve(ctx, username)
	}
	return s.mutateByUsername(ctx, username, func(p *models.Profile) {
		p.Avatar = avatar
	})
}

// AppendMedia concatenates media onto the profile's list. It does not
// de-duplicate by filename; callers pre-filter already-known filenames.
func (s *Store) AppendMedia(ctx context.Context, username string, media []models.Media) error {
	return s.mutateByUsername(ctx, username, func(p *models.Profile) {
		p.Media = append(p.Media, media...)
	})
}

// UpdateDownloadStatus replaces the profile's download status wholesale.
func (s *Store) UpdateDownloadStatus(ctx context.Context, username string, status models.DownloadStatus) error {
	return s.mutateByUsername(ctx, username, func(p *models.Profile) {
		p.DownloadStatus = &status
	})
}

// RemoveProfile deletes the profile with the given id. The removal reaches
// the cookie mirror on the next write-through.
func (s *Store) RemoveProfile(ctx context.Context, id string) error {
	profiles, err := s.backend.Read(ctx)
	if err != nil {
		return err
	}

	kept := profiles[:0]
	found := false
	for _, p := range profiles {
		if p.ID == id {
			found = true
			continue
		}
		kept = append(kept, p)
	}
	if !found {
		return ErrProfileNotFound
	}
	return s.backend.Write(ctx, kept)
}

// ClearAll drops the whole collection.
func (s *Store) ClearAll(ctx context.Context) error {
	return s.backend.Clear(ctx)
}

func (s *Store) mutateByID(ctx context.Context, id string, mutate func(*models.Profile)) error {
	return s.mutate(ctx, func(p *models.Profile) bool { return p.ID == id }, mutate)
}

func (s *Store) mutateByUsername(ctx context.Context, username string, mutate func(*models.Profile)) error {
	return s.mutate(ctx, func(p *models.Profile) bool { return p.Username == username }, mutate)
}

func (s *Store) mutate(ctx context.Context, match func(*models.Profile) bool, mutate func(*models.Profile)) error {
	profiles, err := s.backend.Read(ctx)
	if err != nil {
		return err
	}

	found := false
	for i := range profiles {
		if match(&profiles[i]) {
			mutate(&profiles[i])
			found = true
		}
	}
	if !found {
		return ErrProfileNotFound
	}
	return s.backend.Write(ctx, profiles)
}
