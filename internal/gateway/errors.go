package gateway

import (
	"errors"
	"fmt"
)

// ErrInvalidSignature rejects a webhook whose signature does not match the shared secret.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// Error is returned for any failed gateway call.
type Error struct {
	Op         string
	StatusCode int
	Message    string
	// OutcomeUnknown is set when the gateway may have acted on the request even though no
	// usable answer came back (timeout, dropped connection, 5xx). Only a later verify can tell.
	OutcomeUnknown bool
	Err            error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("gateway %s failed (status %d): %s", e.Op, e.StatusCode, msg)
	}
	return fmt.Sprintf("gateway %s failed: %s", e.Op, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func IsOutcomeUnknown(err error) bool {
	var ge *Error
	return errors.As(err, &ge) && ge.OutcomeUnknown
}
