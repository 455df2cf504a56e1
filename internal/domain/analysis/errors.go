package analysis

import (
	"context"
	"errors"
	"fmt"

	platformerrors "fro-server/internal/platform/errors"
)

var (
	ErrNoImage               = errors.New("no image to analyze")
	ErrBusy                  = errors.New("analysis already in progress")
	ErrIdentificationInvalid = errors.New("plant could not be identified")
	ErrRemote                = errors.New("analysis service failed")
	ErrTimeout               = errors.New("analysis service timed out")
)

func analysisError(kind platformerrors.Kind, op, message string, sentinel, cause error) error {
	wrapped := sentinel
	if cause != nil {
		wrapped = fmt.Errorf("%w: %w", sentinel, cause)
	}
	return &platformerrors.Error{Kind: kind, Op: op, Message: message, Cause: wrapped}
}

// remoteError classifies a collaborator failure as a timeout or a generic
// remote failure.
func remoteError(op, message string, callCtx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return analysisError(platformerrors.KindRemote, op, message, ErrTimeout, err)
	}
	return analysisError(platformerrors.KindRemote, op, message, ErrRemote, err)
}
