package moderation

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned synchronously for caller contract
	// violations such as a blank handle.
	ErrInvalidArgument = errors.New("moderation: invalid argument")

	// ErrNotFound is returned when a callback names a transaction this
	// service never created.
	ErrNotFound = errors.New("moderation: transaction not found")

	// ErrRateLimited is returned by report intake when a reporter files
	// reports faster than the throttle allows.
	ErrRateLimited = errors.New("moderation: reporter rate limited")

	// ErrTargetGone means the target was deleted or already banned before it
	// could be submitted.
	ErrTargetGone = errors.New("moderation: target deleted or banned")

	// ErrEmptyPayload means the target has no text and no eligible image.
	ErrEmptyPayload = errors.New("moderation: nothing to submit")

	errUnknownTarget = errors.New("moderation: unknown target")
)

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidArgument}, args...)...)
}
