package handler

import (
	"errors"
	"fmt"
	"strings"
)

// TeardownError is returned by Invoke when the handler succeeded but an
// interceptor failed to close, for example a metrics batch flushed empty
// with RaiseOnEmptyMetrics set. When the handler failed, its error is
// returned instead and teardown errors are only logged.
type TeardownError struct {
	Errors []error
}

func (e *TeardownError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		msgs = append(msgs, err.Error())
	}
	return "handler: teardown failed: " + strings.Join(msgs, "; ")
}

// Unwrap returns the individual teardown errors.
func (e *TeardownError) Unwrap() []error {
	return e.Errors
}

// PanicError is returned by the Recovery middleware in place of a panic.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic recovered: %v", e.Value)
}

// ErrInvalidPayload is returned when an event cannot be decoded or is
// larger than HANDLER_MAX_REQUEST_SIZE.
var ErrInvalidPayload = errors.New("invalid payload")
