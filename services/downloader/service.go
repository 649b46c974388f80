package downloader

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/spf13/afero"

	"coshub/config"
	"coshub/models"
)

const downloadTimeout = 5 * time.Minute

// ErrTwmdNotFound is returned when the twmd binary is missing.
var ErrTwmdNotFound = errors.New("twmd binary not found")

// GalleryUploader mirrors downloaded files into the gallery CMS. The upload
// runs in the background; the downloader never waits on it.
type GalleryUploader interface {
	SyncUser(ctx context.Context, username string, paths []string) (int, error)
}

// Service runs the twmd download pipeline for one username at a time:
// cookie-file generation, subprocess invocation, output scan, WebP
// post-processing and a fire-and-forget gallery upload.
type Service struct {
	cfg       config.DownloaderConfig
	converter *Converter
	fs        afero.Fs
	runner    Runner
	gallery   GalleryUploader

	mu   sync.Mutex
	jobs map[string]models.DownloadStatus
}

// NewService returns a downloader. gallery may be nil to disable mirroring.
func NewService(cfg config.DownloaderConfig, converter *Converter, fs afero.Fs, runner Runner, gallery GalleryUploader) *Service {
	if cfg.DefaultCount <= 0 {
		cfg.DefaultCount = 200
	}
	return &Service{
		cfg:       cfg,
		converter: converter,
		fs:        fs,
		runner:    runner,
		gallery:   gallery,
		jobs:      make(map[string]models.DownloadStatus),
	}
}

// JobStatus reports the progress of a download job.
func (s *Service) JobStatus(jobID string) (models.DownloadStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, ok := s.jobs[jobID]
	return status, ok
}

func (s *Service) setJob(jobID string, status models.DownloadStatus) {
	s.mu.Lock()
	s.jobs[jobID] = status
	s.mu.Unlock()
}

// Download runs the whole pipeline and returns the produced files. A failed
// twmd exit is tolerated: whatever landed on disk still counts.
func (s *Service) Download(ctx context.Context, username string, opts models.DownloadOptions, creds models.Credentials) (*models.DownloadResult, error) {
	if !creds.HasBoth() {
		return nil, errors.New("credentials are not configured")
	}

	if !validUsername(username) {
		return nil, fmt.Errorf("invalid username %q", username)
	}

	jobID := uuid.NewString()
	s.setJob(jobID, models.DownloadStatus{IsDownloading: true, Progress: 5, Message: "preparing"})

	// twmd creates <downloads>/<username>/img itself; the scan path has to
	// match its naming exactly.
	userDir := filepath.Join(s.cfg.DownloadsDir, username)
	imgDir := filepath.Join(userDir, "img")
	if err := s.fs.MkdirAll(imgDir, 0755); err != nil {
		return nil, fmt.Errorf("create download directory: %w", err)
	}

	if ok, _ := afero.Exists(s.fs, s.cfg.TwmdPath); !ok {
		return nil, ErrTwmdNotFound
	}

	cookiesPath := filepath.Join(s.cfg.TwmdDir, "twmd_cookies.json")
	if err := writeCookieFile(s.fs, cookiesPath, creds); err != nil {
		return nil, err
	}

	args := buildArgs(username, s.cfg.DownloadsDir, opts, s.cfg.DefaultCount)
	log.Printf("[download] running %s %s", s.cfg.TwmdPath, strings.Join(args, " "))
	s.setJob(jobID, models.DownloadStatus{IsDownloading: true, Progress: 30, Message: "downloading"})

	runCtx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	stdout, stderr, runErr := s.runner.Run(runCtx, s.cfg.TwmdDir, s.cfg.TwmdPath, args...)
	if runErr != nil {
		// Partial downloads are worth keeping; scan whatever made it.
		log.Printf("[download] twmd exited with error for %s: %v (stderr: %s)", username, runErr, strings.TrimSpace(stderr))
	} else if trimmed := strings.TrimSpace(stdout); trimmed != "" {
		log.Printf("[download] twmd output for %s: %s", username, trimmed)
	}

	s.setJob(jobID, models.DownloadStatus{IsDownloading: true, Progress: 70, Message: "scanning files"})
	downloaded, err := s.scanImages(imgDir)
	if err != nil {
		return nil, err
	}

	finalFiles := downloaded
	if len(downloaded) > 0 && s.converter != nil {
		s.setJob(jobID, models.DownloadStatus{IsDownloading: true, Progress: 85, Message: "converting to webp"})
		webps, convErr := s.converter.ConvertDir(ctx, imgDir)
		if convErr != nil {
			log.Printf("[download] webp conversion skipped for %s: %v", username, convErr)
		} else if len(webps) > 0 {
			finalFiles = webps
		}
	}

	files := make([]models.DownloadedFile, 0, len(finalFiles))
	for _, name := range finalFiles {
		files = append(files, models.DownloadedFile{
			Filename: name,
			URL:      fmt.Sprintf("/downloads/%s/img/%s", username, name),
			Type:     s.detectType(filepath.Join(imgDir, name)),
		})
	}

	if s.gallery != nil && len(finalFiles) > 0 {
		paths := make([]string, len(finalFiles))
		for i, name := range finalFiles {
			paths[i] = filepath.Join(imgDir, name)
		}
		go s.uploadToGallery(username, paths)
	}

	s.setJob(jobID, models.DownloadStatus{IsDownloading: false, Progress: 100, Message: "done"})

	return &models.DownloadResult{
		Success:         true,
		Message:         fmt.Sprintf("downloaded %d media files from %s", len(files), username),
		Username:        username,
		DownloadedCount: len(files),
		Files:           files,
		JobID:           jobID,
	}, nil
}

// uploadToGallery mirrors the files without blocking the download response.
func (s *Service) uploadToGallery(username string, paths []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	uploaded, err := s.gallery.SyncUser(ctx, username, paths)
	if err != nil {
		log.Printf("[download] gallery upload failed for %s: %v", username, err)
		return
	}
	log.Printf("[download] gallery upload finished for %s: %d files", username, uploaded)
}

// validUsername accepts the handle alphabet Twitter allows. Anything else
// would double as a path component under the download root.
func validUsername(username string) bool {
	if username == "" || len(username) > 15 {
		return false
	}
	for _, r := range username {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		default:
			return false
		}
	}
	return true
}

func buildArgs(username, downloadsDir string, opts models.DownloadOptions, defaultCount int) []string {
	args := []string{
		"-u", username,
		"-o", downloadsDir,
		"-C", // use the cookie file
		"-M", // media tweets only, no retweets
		"-U", // update mode, fetch only what is missing
	}

	if opts.ImageOnly {
		args = append(args, "-i")
	} else {
		args = append(args, "-a")
	}

	count := opts.Count
	if count <= 0 {
		count = defaultCount
	}
	args = append(args, "-n", strconv.Itoa(count))

	if opts.HighQuality {
		args = append(args, "-s", "large")
	}
	return args
}

func (s *Service) scanImages(imgDir string) ([]string, error) {
	entries, err := afero.ReadDir(s.fs, imgDir)
	if err != nil {
		// twmd may not have created the directory when nothing matched.
		return nil, nil
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".jpg", ".jpeg", ".png", ".webp":
			files = append(files, entry.Name())
		}
	}
	return files, nil
}

func (s *Service) detectType(path string) string {
	f, err := s.fs.Open(path)
	if err != nil {
		return fallbackType(path)
	}
	defer f.Close()

	mtype, err := mimetype.DetectReader(f)
	if err != nil {
		return fallbackType(path)
	}
	return mtype.String()
}

func fallbackType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".mp4":
		return "video/mp4"
	default:
		return "image/jpeg"
	}
}
