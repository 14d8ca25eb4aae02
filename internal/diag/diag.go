// Package diag defines the error kinds shared by every stage of the
// compiler core. Stages return ordinary errors; kinds are attached with
// New/Errorf and recovered with KindOf, so callers can match on the class
// of failure without parsing messages.
package diag

import (
	"errors"
	"fmt"
)

// Kind classifies a compilation failure.
type Kind int

const (
	// KindNone is the zero Kind and never attached to an error.
	KindNone Kind = iota
	// KindOom reports an allocation failure.
	KindOom
	// KindBadAlignment reports a word access at a non word-aligned code index.
	KindBadAlignment
	// KindAssertionFailed reports a broken compiler invariant, e.g. a missing
	// lowering rule or an unknown instruction encoding. These are bugs in the
	// compiler, not in the program being compiled.
	KindAssertionFailed
	// KindJumpTooFar reports a branch target that is out of range even after
	// long-branch expansion.
	KindJumpTooFar
	// KindFileOpen, KindFileWrite and KindFileClose report I/O failures while
	// emitting the executable.
	KindFileOpen
	KindFileWrite
	KindFileClose
	// KindDivideByZero reports a compile-time constant division by zero.
	KindDivideByZero
)

func (k Kind) String() string {
	switch k {
	case KindOom:
		return "out of memory"
	case KindBadAlignment:
		return "bad alignment"
	case KindAssertionFailed:
		return "assertion failed"
	case KindJumpTooFar:
		return "jump too far"
	case KindFileOpen:
		return "file open"
	case KindFileWrite:
		return "file write"
	case KindFileClose:
		return "file close"
	case KindDivideByZero:
		return "divide by zero"
	default:
		return "unknown"
	}
}

// Error is an error carrying a Kind.
type Error struct {
	Kind Kind
	msg  string
}

func (e *Error) Error() string {
	if e.msg == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.msg)
}

// New returns an error of the given kind.
func New(k Kind) error { return &Error{Kind: k} }

// Errorf returns an error of the given kind with a formatted message.
func Errorf(k Kind, format string, args ...interface{}) error {
	return &Error{Kind: k, msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the Kind carried by err, or KindNone.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindNone
}
