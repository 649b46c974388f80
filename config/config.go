package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Settings is the persisted service configuration.
type Settings struct {
	Server     ServerConfig     `json:"server"`
	Storage    StorageConfig    `json:"storage"`
	Downloader DownloaderConfig `json:"downloader"`
	Converter  ConverterConfig  `json:"converter"`
	Gallery    GalleryConfig    `json:"gallery"`
	Auth       AuthConfig       `json:"auth"`
	Log        LogConfig        `json:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Listen  string `json:"listen"`
	BaseURL string `json:"baseUrl"`
}

// StorageConfig selects and configures the collection backend.
type StorageConfig struct {
	// Driver is "file" or "sqlite".
	Driver       string `json:"driver"`
	DataDir      string `json:"dataDir"`
	DatabasePath string `json:"databasePath"`
}

// DownloaderConfig configures the twmd pipeline.
type DownloaderConfig struct {
	TwmdPath     string `json:"twmdPath"`
	TwmdDir      string `json:"twmdDir"`
	DownloadsDir string `json:"downloadsDir"`
	DefaultCount int    `json:"defaultCount"`
}

// ConverterConfig configures WebP post-processing.
type ConverterConfig struct {
	ScriptPath string `json:"scriptPath"`
	Python     string `json:"python"`
	Quality    int    `json:"quality"`
	MaxWidth   int    `json:"maxWidth"`
}

// GalleryConfig configures the CMS mirror client.
type GalleryConfig struct {
	BaseURL    string `json:"baseUrl"`
	ProjectID  string `json:"projectId"`
	Dataset    string `json:"dataset"`
	Token      string `json:"token"`
	APIVersion string `json:"apiVersion"`
}

// AuthConfig configures site access and credential storage.
type AuthConfig struct {
	// SitePasswordHash is a bcrypt hash. Empty means a password is generated
	// and logged at startup.
	SitePasswordHash string `json:"sitePasswordHash,omitempty"`
	AuthDir          string `json:"authDir"`
	GalleryDLPath    string `json:"galleryDlPath"`
}

// LogConfig configures process log rotation. An empty File logs to stderr.
type LogConfig struct {
	File       string `json:"file,omitempty"`
	MaxSizeMB  int    `json:"maxSizeMb"`
	MaxBackups int    `json:"maxBackups"`
}

// DefaultSettings returns the configuration used when no settings file exists.
func DefaultSettings() Settings {
	return Settings{
		Server: ServerConfig{
			Listen:  ":3000",
			BaseURL: "http://localhost:3000",
		},
		Storage: StorageConfig{
			Driver:       "file",
			DataDir:      "data",
			DatabasePath: filepath.Join("data", "coshub.db"),
		},
		Downloader: DownloaderConfig{
			TwmdPath:     filepath.Join("twitter-media-downloader", "twmd"),
			TwmdDir:      "twitter-media-downloader",
			DownloadsDir: filepath.Join("public", "downloads"),
			DefaultCount: 200,
		},
		Converter: ConverterConfig{
			ScriptPath: "convert_to_webp.py",
			Python:     "python3",
			Quality:    95,
			MaxWidth:   0,
		},
		Gallery: GalleryConfig{
			Dataset:    "production",
			APIVersion: "2024-01-01",
		},
		Auth: AuthConfig{
			AuthDir:       ".auth",
			GalleryDLPath: "gallery-dl",
		},
		Log: LogConfig{
			MaxSizeMB:  20,
			MaxBackups: 3,
		},
	}
}

// Manager loads and saves settings at a fixed path. Load returns defaults
// when the file does not exist yet.
type Manager struct {
	path string
	mu   sync.RWMutex
}

// NewManager returns a manager for the given settings path.
func NewManager(path string) *Manager {
	return &Manager{path: path}
}

// Load reads the settings file, falling back to defaults when absent.
func (m *Manager) Load() (Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSettings(), nil
		}
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}

	settings := DefaultSettings()
	if err := json.Unmarshal(data, &settings); err != nil {
		return Settings{}, fmt.Errorf("parse settings: %w", err)
	}
	return settings, nil
}

// Save writes the settings file, creating the parent directory if needed.
func (m *Manager) Save(settings Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	dir := filepath.Dir(m.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create settings directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}
