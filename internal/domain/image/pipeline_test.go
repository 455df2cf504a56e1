package image

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fixtures "fro-server/internal/platform/testing"
)

func newPipeline(t *testing.T, limits Limits) *Pipeline {
	return NewPipeline(Options{Limits: limits, JPEGQuality: 85, Logger: fixtures.SetupTestLogger(t)})
}

func TestProcessAcceptsJPEGAndPNG(t *testing.T) {
	p := newPipeline(t, DefaultLimits())
	ctx := context.Background()

	jpg, err := p.Process(ctx, Input{Reader: bytes.NewReader(fixtures.JPEGBytes(t, 16, 8)), Source: "upload"})
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", jpg.MIMEType)
	assert.Equal(t, 16, jpg.Width)
	assert.Equal(t, 8, jpg.Height)

	png, err := p.Process(ctx, Input{Reader: bytes.NewReader(fixtures.PNGBytes(t, 4, 4)), DeclaredFormat: "png"})
	require.NoError(t, err)
	assert.Equal(t, "image/png", png.MIMEType)
}

func TestProcessRejects(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxWidth = 32

	tests := []struct {
		name    string
		data    func(t *testing.T) []byte
		format  string
		wantErr error
	}{
		{name: "empty", data: func(*testing.T) []byte { return nil }, wantErr: ErrEmpty},
		{name: "text", data: func(*testing.T) []byte { return []byte("not an image at all") }, wantErr: ErrUndecodable},
		{name: "pdf", data: func(*testing.T) []byte { return []byte("%PDF-1.7 ...") }, wantErr: ErrSuspicious},
		{name: "svg", data: func(*testing.T) []byte { return []byte(`<svg onload="x()"></svg>`) }, wantErr: ErrSuspicious},
		{name: "too wide", data: func(t *testing.T) []byte { return fixtures.JPEGBytes(t, 64, 4) }, wantErr: ErrTooLarge},
		{name: "bmp declared", data: func(t *testing.T) []byte { return fixtures.JPEGBytes(t, 4, 4) }, format: "bmp", wantErr: ErrUnsupportedFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPipeline(t, limits)
			_, err := p.Process(context.Background(), Input{Reader: bytes.NewReader(tt.data(t)), DeclaredFormat: tt.format})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestProcessEnforcesSizeLimitWhileStreaming(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxFileSize = 64
	p := newPipeline(t, limits)

	_, err := p.Process(context.Background(), Input{Reader: strings.NewReader(strings.Repeat("x", 1024))})
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestEncodeFrameMatchesUploadedJPEG(t *testing.T) {
	p := newPipeline(t, DefaultLimits())
	ctx := context.Background()

	captured, err := p.EncodeFrame(ctx, fixtures.SolidImage(20, 10, color.RGBA{R: 10, G: 120, B: 30, A: 255}))
	require.NoError(t, err)

	uploaded, err := p.Process(ctx, Input{Reader: bytes.NewReader(captured.Data)})
	require.NoError(t, err)

	assert.Equal(t, captured.MIMEType, uploaded.MIMEType)
	assert.Equal(t, captured.Data, uploaded.Data)
	assert.Equal(t, captured.Width, uploaded.Width)
}

func TestEncodeFrameRejectsEmptyFrame(t *testing.T) {
	p := newPipeline(t, DefaultLimits())
	_, err := p.EncodeFrame(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestCheckFrameSize(t *testing.T) {
	p := newPipeline(t, DefaultLimits())
	assert.NoError(t, p.CheckFrameSize(1920, 1080))
	assert.ErrorIs(t, p.CheckFrameSize(9000, 10), ErrTooLarge)
	assert.ErrorIs(t, p.CheckFrameSize(1<<30, 1<<30), ErrTooLarge)
	assert.Error(t, p.CheckFrameSize(0, 10))

	unlimited := newPipeline(t, Limits{})
	assert.NoError(t, unlimited.CheckFrameSize(4000, 3000))
	assert.ErrorIs(t, unlimited.CheckFrameSize(1<<30, 1<<30), ErrTooLarge)
}
