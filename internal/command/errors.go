package command

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyPayload indicates a zero-length (or whitespace-only) message.
	ErrEmptyPayload = errors.New("empty payload")

	// ErrNotObject indicates the payload decoded to something other than a JSON object.
	ErrNotObject = errors.New("payload is not a JSON object")
)

// ParseError means the whole message was rejected and must be dropped.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse command: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ValidationError means a single field was rejected; the rest of the
// directive is still applied.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid field %q: %s", e.Field, e.Reason)
}

// IsParseError reports whether err is (or wraps) a ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
