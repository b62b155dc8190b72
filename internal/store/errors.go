package store

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the stable, transport-visible classification of a failure.
type Kind string

const (
	KindValidation Kind = "validation_error"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindFormat     Kind = "format_error"
	KindStorage    Kind = "storage_error"
)

// Error is the single error type returned across the store boundary.
// Op names the operation, Field the offending input (validation only).
type Error struct {
	Kind  Kind
	Op    string
	Field string
	Msg   string
	Err   error
}

// Sentinels for errors.Is. Only the Kind is compared.
var (
	ErrValidation = &Error{Kind: KindValidation}
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrConflict   = &Error{Kind: KindConflict}
	ErrFormat     = &Error{Kind: KindFormat}
	ErrStorage    = &Error{Kind: KindStorage}
)

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	switch {
	case e.Msg != "":
		b.WriteString(e.Msg)
	case e.Err != nil:
		b.WriteString(e.Err.Error())
	default:
		b.WriteString(string(e.Kind))
	}
	if e.Field != "" {
		fmt.Fprintf(&b, " (field %q)", e.Field)
	}
	if e.Msg != "" && e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf reports the stable kind of err. Errors that did not originate in
// this package are treated as storage failures.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStorage
}

// FieldOf returns the offending field of a validation error, if any.
func FieldOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Field
	}
	return ""
}

func Validation(op, field, format string, args ...any) error {
	return &Error{Kind: KindValidation, Op: op, Field: field, Msg: fmt.Sprintf(format, args...)}
}

func NotFound(op, format string, args ...any) error {
	return &Error{Kind: KindNotFound, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func Conflict(op, format string, args ...any) error {
	return &Error{Kind: KindConflict, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func Format(op string, err error, format string, args ...any) error {
	return &Error{Kind: KindFormat, Op: op, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Storage wraps a persistence failure. Errors that already carry a kind are
// returned unchanged so a not-found raised inside a transaction survives.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: KindStorage, Op: op, Err: err}
}
