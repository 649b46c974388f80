package downloader

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coshub/config"
)

func writeTestImage(t *testing.T, fs afero.Fs, path string, width, height int, encode func(*bytes.Buffer, image.Image) error) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	var buf bytes.Buffer
	require.NoError(t, encode(&buf, img))
	require.NoError(t, afero.WriteFile(fs, path, buf.Bytes(), 0644))
}

func encodePNG(buf *bytes.Buffer, img image.Image) error { return png.Encode(buf, img) }
func encodeJPEG(buf *bytes.Buffer, img image.Image) error {
	return jpeg.Encode(buf, img, nil)
}

func TestConvertDirNative(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTestImage(t, fs, "img/a.png", 4, 4, encodePNG)
	writeTestImage(t, fs, "img/b.jpg", 4, 4, encodeJPEG)
	require.NoError(t, afero.WriteFile(fs, "img/notes.txt", []byte("keep"), 0644))

	conv := NewConverter(config.ConverterConfig{Quality: 90}, fs, &fakeRunner{})

	webps, err := conv.ConvertDir(context.Background(), "img")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.webp", "b.webp"}, webps)

	// originals are replaced, unrelated files survive
	for _, gone := range []string{"img/a.png", "img/b.jpg"} {
		exists, _ := afero.Exists(fs, gone)
		assert.False(t, exists, gone)
	}
	exists, _ := afero.Exists(fs, "img/notes.txt")
	assert.True(t, exists)
}

func TestConvertDirSkipsUndecodableFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "img/broken.jpg", []byte("not an image"), 0644))
	writeTestImage(t, fs, "img/good.png", 2, 2, encodePNG)

	conv := NewConverter(config.ConverterConfig{}, fs, &fakeRunner{})

	webps, err := conv.ConvertDir(context.Background(), "img")
	require.NoError(t, err)
	assert.Equal(t, []string{"good.webp"}, webps)

	exists, _ := afero.Exists(fs, "img/broken.jpg")
	assert.True(t, exists, "an undecodable original stays in place")
}

func TestConvertDirPrefersScript(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "convert_to_webp.py", []byte("#"), 0644))

	runner := &fakeRunner{onRun: func() {
		afero.WriteFile(fs, "img/scripted.webp", []byte("webp"), 0644)
	}}
	conv := NewConverter(config.ConverterConfig{
		ScriptPath: "convert_to_webp.py",
		Python:     "python3",
		Quality:    95,
	}, fs, runner)

	webps, err := conv.ConvertDir(context.Background(), "img")
	require.NoError(t, err)
	assert.Equal(t, []string{"scripted.webp"}, webps)

	assert.Equal(t, "python3", runner.name)
	assert.Equal(t, []string{"convert_to_webp.py", "img", "-q", "95"}, runner.args)
}

func TestConvertDirScriptFailureFallsBackToNative(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "convert_to_webp.py", []byte("#"), 0644))
	writeTestImage(t, fs, "img/a.png", 2, 2, encodePNG)

	runner := &fakeRunner{err: assert.AnError}
	conv := NewConverter(config.ConverterConfig{ScriptPath: "convert_to_webp.py"}, fs, runner)

	webps, err := conv.ConvertDir(context.Background(), "img")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.webp"}, webps)
	assert.Equal(t, 1, runner.called)
}

func TestConverterQualityBounds(t *testing.T) {
	conv := NewConverter(config.ConverterConfig{Quality: 0}, afero.NewMemMapFs(), &fakeRunner{})
	assert.Equal(t, 95, conv.cfg.Quality)

	conv = NewConverter(config.ConverterConfig{Quality: 150}, afero.NewMemMapFs(), &fakeRunner{})
	assert.Equal(t, 95, conv.cfg.Quality)
}
