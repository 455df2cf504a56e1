package capture

import (
	"errors"
	"fmt"

	platformerrors "fro-server/internal/platform/errors"
)

var (
	// ErrCameraUnavailable means no stream could be opened: unsupported
	// platform, permission denied or device missing.
	ErrCameraUnavailable = errors.New("camera unavailable")
	ErrCaptureFailed     = errors.New("capture failed")
	ErrFileRead          = errors.New("file read failed")
	ErrNoSession         = errors.New("no active capture session")
)

func captureError(op, message string, sentinel, cause error) error {
	wrapped := sentinel
	if cause != nil {
		wrapped = fmt.Errorf("%w: %w", sentinel, cause)
	}
	return &platformerrors.Error{
		Kind:    platformerrors.KindCapture,
		Op:      op,
		Message: message,
		Cause:   wrapped,
	}
}
