package capture

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"fro-server/internal/domain/eventbus"
	"fro-server/internal/domain/image"
	"fro-server/internal/platform/logging"
)

// Fallback is the file-selection path used when no camera can be opened.
// Files go through the same pipeline as captures.
type Fallback struct {
	mu       sync.Mutex
	active   bool
	reason   string
	pipeline *image.Pipeline
	notifier *eventbus.Notifier
	logger   *logging.Logger
}

func NewFallback(pipeline *image.Pipeline, notifier *eventbus.Notifier, logger *logging.Logger) *Fallback {
	return &Fallback{pipeline: pipeline, notifier: notifier, logger: logger}
}

// Activate shows the upload prompt.
func (f *Fallback) Activate(reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = true
	f.reason = reason
	f.logger.InfoTag("CAMERA", "file upload fallback activated: %s", reason)
}

func (f *Fallback) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

func (f *Fallback) Reason() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reason
}

// Dismiss hides the upload prompt.
func (f *Fallback) Dismiss() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = false
	f.reason = ""
}

// ReadSelectedFile reads and validates a user-selected file. Failures wrap
// ErrFileRead and are not retried. A successful read dismisses the prompt.
func (f *Fallback) ReadSelectedFile(ctx context.Context, r io.Reader, filename string) (*image.Payload, error) {
	const op = "capture.Fallback.ReadSelectedFile"

	payload, err := f.pipeline.Process(ctx, image.Input{
		Reader:         r,
		DeclaredFormat: formatFromFilename(filename),
		Source:         filename,
	})
	if err != nil {
		f.logger.WarnTag("CAMERA", "selected file %q rejected: %v", filename, err)
		f.notifier.Notify(eventbus.NoticeError, noticeFileFailTitle, noticeFileFailBody)
		return nil, captureError(op, "read selected file", ErrFileRead, err)
	}

	f.Dismiss()
	f.logger.InfoTag("CAMERA", "selected file %q accepted (%s, %d bytes)", filename, payload.MIMEType, payload.Size())
	return payload, nil
}

// formatFromFilename returns the image format implied by the extension, or ""
// when the extension is missing or not an image type.
func formatFromFilename(filename string) string {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), ".")) {
	case "jpg", "jpeg":
		return "jpeg"
	case "png":
		return "png"
	case "gif":
		return "gif"
	case "webp":
		return "webp"
	default:
		return ""
	}
}
