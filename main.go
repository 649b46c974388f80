package main

import (
	"flag"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/natefinch/lumberjack.v2"

	"coshub/config"
	"coshub/handlers"
	"coshub/internal/database"
	"coshub/services/auth"
	"coshub/services/cosplayers"
	"coshub/services/downloader"
	"coshub/services/gallery"
	"coshub/utils"
)

func main() {
	settingsPath := flag.String("config", "settings.json", "path to the settings file")
	flag.Parse()

	manager := config.NewManager(*settingsPath)
	settings, err := manager.Load()
	if err != nil {
		log.Fatalf("[main] load settings: %v", err)
	}

	if settings.Log.File != "" {
		log.SetOutput(&lumberjack.Logger{
			Filename:   settings.Log.File,
			MaxSize:    settings.Log.MaxSizeMB,
			MaxBackups: settings.Log.MaxBackups,
		})
	}

	fs := afero.NewOsFs()

	backend, cleanup, err := newBackend(settings.Storage, fs)
	if err != nil {
		log.Fatalf("[main] storage: %v", err)
	}
	defer cleanup()

	avatars := cosplayers.NewAvatarResolver(&http.Client{})
	store := cosplayers.NewStore(backend, avatars)

	galleryClient := gallery.NewClient(settings.Gallery, nil)
	syncer := gallery.NewSyncer(galleryClient, fs)

	runner := downloader.ExecRunner{}
	converter := downloader.NewConverter(settings.Converter, fs, runner)

	var uploader downloader.GalleryUploader
	if galleryClient.Enabled() {
		uploader = syncer
	}
	downloads := downloader.NewService(settings.Downloader, converter, fs, runner, uploader)

	credStore := auth.NewFileStore(fs, settings.Auth.AuthDir)
	authSvc, err := auth.NewService(settings.Auth, credStore, fs, runner)
	if err != nil {
		log.Fatalf("[main] auth: %v", err)
	}

	baseURL, err := url.Parse(settings.Server.BaseURL)
	if err != nil {
		log.Fatalf("[main] invalid base URL %q: %v", settings.Server.BaseURL, err)
	}

	router := utils.NewRouter()
	handlers.NewCosplayerHandler(store, baseURL).Register(router)
	handlers.NewDownloadHandler(downloads, authSvc, store).Register(router)
	handlers.NewAuthHandler(authSvc).Register(router)
	if galleryClient.Enabled() {
		handlers.NewGalleryHandler(syncer).Register(router)
	}

	router.PathPrefix("/downloads/").Handler(
		http.StripPrefix("/downloads/", http.FileServer(http.Dir(settings.Downloader.DownloadsDir))))

	server := &http.Server{
		Addr:         settings.Server.Listen,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // download runs answer on this connection
	}

	log.Printf("[main] coshub listening on %s (storage driver %s)", settings.Server.Listen, settings.Storage.Driver)
	if err := server.ListenAndServe(); err != nil {
		log.Fatalf("[main] server stopped: %v", err)
	}
}

// newBackend selects the collection backend from the storage driver.
func newBackend(cfg config.StorageConfig, fs afero.Fs) (cosplayers.Backend, func(), error) {
	switch cfg.Driver {
	case "sqlite":
		db, err := database.NewDB(database.Config{DatabasePath: cfg.DatabasePath})
		if err != nil {
			return nil, nil, err
		}
		return cosplayers.NewDatabaseBackend(db.Repository), func() { db.Close() }, nil
	default:
		return cosplayers.NewFileBackend(fs, cfg.DataDir), func() {}, nil
	}
}
