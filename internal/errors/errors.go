// Package errors defines the error kinds shared by the archive packages and
// the wrapping helpers used throughout webarchive.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Error kinds. Match with errors.Is against any error returned by webarchive.
var (
	// ErrConfiguration: missing or invalid settings, unknown URI scheme,
	// unresolved destination template.
	ErrConfiguration = stderrors.New("configuration error")
	// ErrCodec: malformed or truncated record or index line.
	ErrCodec = stderrors.New("codec error")
	// ErrFormat: container structurally invalid or unsupported manifest version.
	ErrFormat = stderrors.New("format error")
	// ErrNotFound: container, manifest or member absent.
	ErrNotFound = stderrors.New("not found")
	// ErrRange: locator outside the bounds of its member.
	ErrRange = stderrors.New("range error")
	// ErrState: operation invalid in the writer's current state.
	ErrState = stderrors.New("state error")
)

// Error is a classified error. It unwraps to both its Kind and its cause.
type Error struct {
	Kind error
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	s := e.Op
	if s != "" {
		s += ": "
	}
	s += e.Kind.Error()
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// New returns an error of the given kind.
func New(kind error, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind. A nil err yields nil.
func Wrap(kind error, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// WrapWithContext wraps an error with additional context information.
func WrapWithContext(err error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, err)
}

// WrapWithContextf wraps an error with formatted context information.
func WrapWithContextf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
