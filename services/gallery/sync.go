package gallery

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/afero"

	"coshub/utils"
)

const uploadConcurrency = 4

// Syncer pushes a batch of downloaded files for one username into the CMS,
// skipping files whose names are already mirrored.
type Syncer struct {
	client *Client
	fs     afero.Fs
}

// NewSyncer returns a syncer reading files from the given filesystem.
func NewSyncer(client *Client, fs afero.Fs) *Syncer {
	return &Syncer{client: client, fs: fs}
}

// SyncUser ensures the cosplayer document exists, uploads every file not yet
// mirrored, and bumps the aggregate counters. It returns how many files were
// actually uploaded.
func (s *Syncer) SyncUser(ctx context.Context, username string, paths []string) (int, error) {
	if !s.client.Enabled() {
		return 0, nil
	}

	docID, err := s.ensureCosplayer(ctx, username)
	if err != nil {
		return 0, err
	}

	var existing []string
	err = s.client.Query(ctx,
		`*[_type == "cosplayerImage" && username == $username].originalFilename`,
		map[string]any{"username": username}, &existing)
	if err != nil {
		return 0, fmt.Errorf("list existing filenames: %w", err)
	}
	known := make(map[string]bool, len(existing))
	for _, name := range existing {
		known[name] = true
	}

	var uploaded atomic.Int64
	p := pool.New().WithErrors().WithMaxGoroutines(uploadConcurrency)
	for _, path := range paths {
		filename := filepath.Base(path)
		if known[filename] {
			continue
		}
		p.Go(func() error {
			if err := s.uploadOne(ctx, username, path, filename); err != nil {
				// One bad file should not abort the batch.
				log.Printf("[gallery] upload %s: %v", filename, err)
				return nil
			}
			uploaded.Add(1)
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return int(uploaded.Load()), err
	}

	if uploaded.Load() > 0 {
		if err := s.bumpCosplayer(ctx, docID, len(known)+int(uploaded.Load())); err != nil {
			log.Printf("[gallery] update cosplayer counters for %s: %v", username, err)
		}
	}
	return int(uploaded.Load()), nil
}

// ListCosplayers returns the mirrored cosplayer documents, newest first.
func (s *Syncer) ListCosplayers(ctx context.Context, out any) error {
	return s.client.Query(ctx,
		`*[_type == "cosplayer"] | order(lastUpdated desc) { _id, username, displayName, imageCount, lastUpdated }`,
		nil, out)
}

// ListImages returns a page of mirrored images for one username.
func (s *Syncer) ListImages(ctx context.Context, username string, limit, offset int, out any) error {
	return s.client.Query(ctx,
		`*[_type == "cosplayerImage" && username == $username] | order(uploadedAt desc) [$offset...$end] { _id, username, originalFilename, imageAsset, uploadedAt }`,
		map[string]any{"username": username, "offset": offset, "end": offset + limit}, out)
}

func (s *Syncer) ensureCosplayer(ctx context.Context, username string) (string, error) {
	var docID string
	err := s.client.Query(ctx,
		`*[_type == "cosplayer" && username == $username][0]._id`,
		map[string]any{"username": username}, &docID)
	if err != nil {
		return "", fmt.Errorf("look up cosplayer document: %w", err)
	}
	if docID != "" {
		return docID, nil
	}

	docID = fmt.Sprintf("cosplayer.%s", utils.Slug(username))
	err = s.client.Mutate(ctx, []map[string]any{
		{"createIfNotExists": map[string]any{
			"_id":         docID,
			"_type":       "cosplayer",
			"username":    username,
			"displayName": username,
			"imageCount":  0,
			"lastUpdated": time.Now().UTC().Format(time.RFC3339),
		}},
	})
	if err != nil {
		return "", fmt.Errorf("create cosplayer document: %w", err)
	}
	return docID, nil
}

func (s *Syncer) uploadOne(ctx context.Context, username, path, filename string) error {
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	assetID, err := s.client.UploadImage(ctx, filename, mimetype.Detect(data).String(), data)
	if err != nil {
		return err
	}

	return s.client.Mutate(ctx, []map[string]any{
		{"create": map[string]any{
			"_id":              fmt.Sprintf("cosplayerImage.%s", uuid.NewString()),
			"_type":            "cosplayerImage",
			"username":         username,
			"originalFilename": filename,
			"imageAsset": map[string]any{
				"_type": "image",
				"asset": map[string]any{"_type": "reference", "_ref": assetID},
			},
			"uploadedAt": time.Now().UTC().Format(time.RFC3339),
		}},
	})
}

func (s *Syncer) bumpCosplayer(ctx context.Context, docID string, imageCount int) error {
	return s.client.Mutate(ctx, []map[string]any{
		{"patch": map[string]any{
			"id": docID,
			"set": map[string]any{
				"imageCount":  imageCount,
				"lastUpdated": time.Now().UTC().Format(time.RFC3339),
			},
		}},
	})
}
