package testing

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"fro-server/internal/platform/config"
	"fro-server/internal/platform/logging"
)

var dsnCounter atomic.Int64

// SetupTestConfig returns the default config with logs under a temp dir.
func SetupTestConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Server.IP = "127.0.0.1"
	cfg.Log.Level = "DEBUG"
	cfg.Log.Dir = t.TempDir()
	cfg.Log.File = "test.log"
	cfg.Web.Enabled = false
	cfg.Preferences.Type = "memory"
	cfg.Preferences.SQLite.DSN = MemoryDSN()
	return cfg
}

// SetupTestLogger builds a logger writing to a temp dir and discarding console output.
func SetupTestLogger(t *testing.T) *logging.Logger {
	t.Helper()

	logger, err := logging.New(logging.Config{
		Level:    "DEBUG",
		Dir:      t.TempDir(),
		Filename: "test.log",
		Console:  io.Discard,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = logger.Close() })
	return logger
}

// MemoryDSN returns a unique shared-cache in-memory sqlite DSN.
func MemoryDSN() string {
	return fmt.Sprintf("file:fro-test-%d?mode=memory&cache=shared", dsnCounter.Add(1))
}

// SolidImage returns a w x h image filled with c.
func SolidImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// JPEGBytes encodes a small green test image as JPEG.
func JPEGBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, SolidImage(w, h, color.RGBA{G: 160, A: 255}), nil))
	return buf.Bytes()
}

// PNGBytes encodes a small green test image as PNG.
func PNGBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, SolidImage(w, h, color.RGBA{G: 160, A: 255})))
	return buf.Bytes()
}
