package image

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"

	"fro-server/internal/platform/logging"
)

// Pipeline turns raw bytes or decoded frames into validated Payloads. Camera
// captures and file uploads both go through it, so their payloads are
// interchangeable.
type Pipeline struct {
	validator   *SecurityValidator
	limits      Limits
	jpegQuality int
	logger      *logging.Logger
}

// Options configures the pipeline.
type Options struct {
	Limits      Limits
	JPEGQuality int
	Logger      *logging.Logger
}

// Input describes a streaming image source.
type Input struct {
	Reader         io.Reader
	DeclaredFormat string
	Source         string
}

func NewPipeline(opts Options) *Pipeline {
	if opts.Logger == nil {
		opts.Logger = logging.DefaultLogger
	}
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = jpeg.DefaultQuality
	}
	return &Pipeline{
		validator:   NewSecurityValidator(opts.Limits, opts.Logger),
		limits:      opts.Limits,
		jpegQuality: opts.JPEGQuality,
		logger:      opts.Logger,
	}
}

// CheckFrameSize reports whether a width x height frame may be allocated.
// Without a configured pixel cap the default one applies.
func (p *Pipeline) CheckFrameSize(width, height int) error {
	limits := p.limits
	if limits.MaxPixels <= 0 {
		limits.MaxPixels = DefaultLimits().MaxPixels
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrUndecodable, width, height)
	}
	return limits.CheckDimensions(width, height)
}

// Process reads input to EOF, bounded by the size limit, and validates it.
func (p *Pipeline) Process(ctx context.Context, input Input) (*Payload, error) {
	if input.Reader == nil {
		return nil, ErrEmpty
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	maxSize := p.limits.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultLimits().MaxFileSize
	}
	limited := &io.LimitedReader{R: input.Reader, N: maxSize + 1}

	buf := bytes.NewBuffer(make([]byte, 0, 32*1024))
	if _, err := io.Copy(buf, limited); err != nil {
		return nil, fmt.Errorf("read image from %s: %w", sourceName(input.Source), err)
	}
	if limited.N <= 0 {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrTooLarge, maxSize)
	}

	return p.ProcessBytes(ctx, buf.Bytes(), input.DeclaredFormat)
}

// ProcessBytes validates raw and wraps it in a Payload. raw is copied.
func (p *Pipeline) ProcessBytes(ctx context.Context, raw []byte, declaredFormat string) (*Payload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result, err := p.validator.Validate(raw, declaredFormat)
	if err != nil {
		return nil, err
	}

	data := make([]byte, len(raw))
	copy(data, raw)
	return &Payload{
		Data:     data,
		MIMEType: MIMEType(result.Format),
		Width:    result.Width,
		Height:   result.Height,
	}, nil
}

// EncodeFrame encodes a decoded frame as JPEG and validates the result.
func (p *Pipeline) EncodeFrame(ctx context.Context, frame image.Image) (*Payload, error) {
	if frame == nil || frame.Bounds().Empty() {
		return nil, ErrEmpty
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: p.jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return p.ProcessBytes(ctx, buf.Bytes(), "jpeg")
}

func sourceName(source string) string {
	if source == "" {
		return "stream"
	}
	return source
}
