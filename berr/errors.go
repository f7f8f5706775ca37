// Package berr defines the error taxonomy shared by every bender
// component. Errors carry a Kind so callers (and the CLI) can decide how
// to react without string-matching messages, and chain an optional cause
// the way github.com/pkg/errors does.
package berr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies an Error for programmatic handling.
type Kind int

const (
	// Io covers filesystem and subprocess failures.
	Io Kind = iota
	// Parse covers YAML and target-expression syntax errors.
	Parse
	// Validate covers manifest semantics violations.
	Validate
	// Resolve covers unsatisfiable constraints, cycles, and missing
	// lockfile entries discovered during resolution.
	Resolve
	// Git covers non-zero exits from the git binary.
	Git
	// Offline covers a network operation attempted under local-only mode.
	Offline
	// Lockfile covers a lockfile inconsistent with the manifest.
	Lockfile
)

func (k Kind) String() string {
	switch k {
	case Io:
		return "io"
	case Parse:
		return "parse"
	case Validate:
		return "validate"
	case Resolve:
		return "resolve"
	case Git:
		return "git"
	case Offline:
		return "offline"
	case Lockfile:
		return "lockfile"
	default:
		return "error"
	}
}

// Error is the chained error type produced by every component in this
// module. It always carries a Kind and a human-readable message; Cause
// may be nil for a leaf error.
type Error struct {
	Kind  Kind
	msg   string
	cause error
}

// New creates a leaf error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, msg: msg}
}

// Newf creates a leaf error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap chains cause under a new message of the given kind. If cause is
// nil, Wrap returns nil, mirroring errors.Wrap's nil-safety.
func Wrap(kind Kind, cause error, msg string) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, msg: msg, cause: cause}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(kind Kind, cause error, format string, args ...interface{}) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...), cause: cause}
}

func (e *Error) Error() string {
	if e.cause == nil {
		return e.msg
	}
	return fmt.Sprintf("%s: %s", e.msg, e.cause)
}

// Unwrap exposes the chained cause to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.cause
}

// Cause returns the deepest non-berr cause, matching the convention
// github.com/pkg/errors callers expect when they report a chained error.
// A chain that ends in a leaf *Error returns that leaf.
func Cause(err error) error {
	for {
		e, ok := err.(*Error)
		if !ok || e.cause == nil {
			return errors.Cause(err)
		}
		err = e.cause
	}
}

// KindOf reports the Kind of err if it is (or wraps) a *berr.Error, and
// false otherwise.
func KindOf(err error) (Kind, bool) {
	var be *Error
	for err != nil {
		if e, ok := err.(*Error); ok {
			be = e
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if be == nil {
		return 0, false
	}
	return be.Kind, true
}
