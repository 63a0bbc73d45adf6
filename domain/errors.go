package domain

import (
	"fmt"

	"emperror.dev/errors"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.NewPlain("not found")

// Kind classifies a processing failure so callers can map it to a status
// code and decide whether the sender may retry.
type Kind uint8

const (
	// KindStorage is the zero value: errors without a kind are treated as storage failures.
	KindStorage Kind = iota
	KindMalformed
	KindVerification
	KindDependency
)

func (k Kind) String() string {
	switch k {
	case KindMalformed:
		return "malformed"
	case KindVerification:
		return "verification failure"
	case KindDependency:
		return "dependency unavailable"
	default:
		return "storage failure"
	}
}

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Malformed(op string, err error) error {
	return &Error{Kind: KindMalformed, Op: op, Err: err}
}

func Verification(op string, err error) error {
	return &Error{Kind: KindVerification, Op: op, Err: err}
}

func Unavailable(op string, err error) error {
	return &Error{Kind: KindDependency, Op: op, Err: err}
}

// KindOf returns the kind of the outermost *Error in the chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStorage
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
