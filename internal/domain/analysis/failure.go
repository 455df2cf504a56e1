package analysis

import (
	"errors"
)

// FailureMessage is the user-facing text for an analysis error.
func FailureMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoImage):
		return noticeNoImageBody
	case errors.Is(err, ErrIdentificationInvalid):
		return failureUnidentified
	case errors.Is(err, ErrTimeout):
		return failureTimeout
	default:
		return failureGeneric
	}
}
