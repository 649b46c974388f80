package downloader

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"log"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gen2brain/webp"
	"github.com/spf13/afero"
	"golang.org/x/image/draw"

	"coshub/config"
)

const convertTimeout = 3 * time.Minute

// Converter re-encodes downloaded images as WebP. When an external converter
// script is configured and present it is preferred; otherwise conversion
// happens in-process. Either way a failed conversion leaves the original
// file usable, never the run broken.
type Converter struct {
	cfg    config.ConverterConfig
	fs     afero.Fs
	runner Runner
}

// NewConverter returns a converter over the given filesystem and runner.
func NewConverter(cfg config.ConverterConfig, fs afero.Fs, runner Runner) *Converter {
	if cfg.Quality <= 0 || cfg.Quality > 100 {
		cfg.Quality = 95
	}
	return &Converter{cfg: cfg, fs: fs, runner: runner}
}

// ConvertDir converts every jpg/jpeg/png in dir to WebP and returns the
// resulting .webp filenames. An empty result with nil error means nothing
// was converted; callers fall back to the unconverted files.
func (c *Converter) ConvertDir(ctx context.Context, dir string) ([]string, error) {
	if c.scriptAvailable() {
		if err := c.runScript(ctx, dir); err != nil {
			log.Printf("[convert] converter script failed, falling back to native encoder: %v", err)
			c.convertNative(dir)
		}
	} else {
		c.convertNative(dir)
	}

	return c.listWebP(dir)
}

func (c *Converter) scriptAvailable() bool {
	if c.cfg.ScriptPath == "" {
		return false
	}
	ok, _ := afero.Exists(c.fs, c.cfg.ScriptPath)
	return ok
}

func (c *Converter) runScript(ctx context.Context, dir string) error {
	runCtx, cancel := context.WithTimeout(ctx, convertTimeout)
	defer cancel()

	python := c.cfg.Python
	if python == "" {
		python = "python3"
	}

	_, stderr, err := c.runner.Run(runCtx, "", python, c.cfg.ScriptPath, dir, "-q", strconv.Itoa(c.cfg.Quality))
	if err != nil {
		return fmt.Errorf("run converter: %w (stderr: %s)", err, strings.TrimSpace(stderr))
	}
	return nil
}

// convertNative decodes and re-encodes each image in-process. Per-file
// failures are logged and skipped so one bad download cannot sink the batch.
func (c *Converter) convertNative(dir string) {
	entries, err := afero.ReadDir(c.fs, dir)
	if err != nil {
		log.Printf("[convert] read dir %s: %v", dir, err)
		return
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".jpg" && ext != ".jpeg" && ext != ".png" {
			continue
		}

		src := filepath.Join(dir, entry.Name())
		dst := strings.TrimSuffix(src, ext) + ".webp"
		if err := c.convertFile(src, dst, ext); err != nil {
			log.Printf("[convert] %s: %v", entry.Name(), err)
			continue
		}
		if err := c.fs.Remove(src); err != nil {
			log.Printf("[convert] remove original %s: %v", entry.Name(), err)
		}
	}
}

func (c *Converter) convertFile(src, dst, ext string) error {
	f, err := c.fs.Open(src)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	var img image.Image
	switch ext {
	case ".png":
		img, err = png.Decode(f)
	default:
		img, err = jpeg.Decode(f)
	}
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}

	if c.cfg.MaxWidth > 0 && img.Bounds().Dx() > c.cfg.MaxWidth {
		img = downscale(img, c.cfg.MaxWidth)
	}

	out, err := c.fs.Create(dst)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	defer out.Close()

	if err := webp.Encode(out, img, webp.Options{Lossless: false, Quality: c.cfg.Quality}); err != nil {
		return fmt.Errorf("encode webp: %w", err)
	}
	return nil
}

func downscale(img image.Image, maxWidth int) image.Image {
	bounds := img.Bounds()
	height := bounds.Dy() * maxWidth / bounds.Dx()
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

func (c *Converter) listWebP(dir string) ([]string, error) {
	entries, err := afero.ReadDir(c.fs, dir)
	if err != nil {
		return nil, fmt.Errorf("rescan %s: %w", dir, err)
	}
	var webps []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(strings.ToLower(entry.Name()), ".webp") {
			webps = append(webps, entry.Name())
		}
	}
	return webps, nil
}
