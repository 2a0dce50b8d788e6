package dispatch

import (
	"errors"
	"fmt"
)

// ErrNoSender indicates the dispatcher has no configured sender
// address. A configuration problem, never retried.
var ErrNoSender = errors.New("no sender address configured")

// ErrDisabled indicates alerting is switched off; the send was
// skipped, not attempted.
var ErrDisabled = errors.New("alerting is disabled")

// ErrRateLimited indicates the notification storm guard dropped the
// send.
var ErrRateLimited = errors.New("notification rate limited")

// RenderError wraps a template rendering failure. Rendering is
// deterministic, so these are never retried.
type RenderError struct {
	Err error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render notification body: %v", e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// DeliveryError reports a send that did not go through, either because
// a terminal transport error stopped it or because retries were
// exhausted. Attempts counts the send attempts actually made.
type DeliveryError struct {
	Attempts int
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
