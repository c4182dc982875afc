package review

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed set of failure categories surfaced by the
// engine. Every error returned across a package boundary is an *Error
// carrying one of these kinds plus a human-readable message; none is
// process-fatal.
type ErrorKind uint8

const (
	KindUnknown ErrorKind = iota
	KindNotARepository
	KindBareRepository
	KindMissingHeadRevision
	KindGit
	KindIO
	KindUnimplemented
	KindInternal
	KindPluginNotRegistered
	KindPlugin
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotARepository:
		return "not_a_repository"
	case KindBareRepository:
		return "bare_repository"
	case KindMissingHeadRevision:
		return "missing_head_revision"
	case KindGit:
		return "git"
	case KindIO:
		return "io"
	case KindUnimplemented:
		return "unimplemented"
	case KindInternal:
		return "internal"
	case KindPluginNotRegistered:
		return "plugin_not_registered"
	case KindPlugin:
		return "plugin"
	default:
		return "unknown"
	}
}

// Error is the engine's typed failure. Err optionally preserves the
// underlying cause for unwrapping.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches two *Error values by kind so callers can compare against
// kind-only sentinels with errors.Is.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

// NewError builds a typed error with a fixed message.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Errorf builds a typed error with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError attaches a kind and message to an underlying cause.
func WrapError(kind ErrorKind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the kind from any error in err's chain, or
// KindUnknown when err carries no typed failure.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err's chain contains a typed failure of kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
