package listen

import (
	"errors"
	"fmt"
)

// Kind classifies failures of the audio tools.
type Kind string

const (
	KindFileNotFound      Kind = "file_not_found"
	KindUnsupportedFormat Kind = "unsupported_format"
	KindSessionNotFound   Kind = "session_not_found"
	KindRemote            Kind = "remote_service"
)

// Sentinels for errors.Is.
var (
	ErrFileNotFound      = &Error{Kind: KindFileNotFound}
	ErrUnsupportedFormat = &Error{Kind: KindUnsupportedFormat}
	ErrSessionNotFound   = &Error{Kind: KindSessionNotFound}
	ErrRemote            = &Error{Kind: KindRemote}
)

// Error carries the kind of failure and what it concerns: the file path as
// given by the caller, or the session id.
type Error struct {
	Kind    Kind
	Subject string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Subject != "":
		return fmt.Sprintf("%s %s: %v", e.Kind, e.Subject, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Subject != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Subject)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func remoteError(err error) error {
	return &Error{Kind: KindRemote, Err: err}
}
