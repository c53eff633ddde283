package utils

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies failures so callers can decide how to surface them.
type ErrorKind string

const (
	KindNotFound      ErrorKind = "not_found"
	KindDataIntegrity ErrorKind = "data_integrity"
	KindTransient     ErrorKind = "transient"
	KindValidation    ErrorKind = "validation"
	KindConflict      ErrorKind = "conflict"
	KindWriteFailed   ErrorKind = "write_failed"
)

// Sentinel errors for errors.Is checks against a kind.
var (
	ErrNotFound      = &AppError{Kind: KindNotFound}
	ErrDataIntegrity = &AppError{Kind: KindDataIntegrity}
	ErrTransient     = &AppError{Kind: KindTransient}
	ErrValidation    = &AppError{Kind: KindValidation}
	ErrConflict      = &AppError{Kind: KindConflict}
	ErrWriteFailed   = &AppError{Kind: KindWriteFailed}
)

// AppError carries enough context (which id, which store) to display or log meaningfully.
type AppError struct {
	Kind    ErrorKind
	Op      string
	ID      string
	Store   string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Message != "" {
		b.WriteString(e.Message)
	} else {
		b.WriteString(string(e.Kind))
	}
	if e.ID != "" {
		fmt.Fprintf(&b, " (id=%s", e.ID)
		if e.Store != "" {
			fmt.Fprintf(&b, ", store=%s", e.Store)
		}
		b.WriteString(")")
	} else if e.Store != "" {
		fmt.Fprintf(&b, " (store=%s)", e.Store)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *AppError) Unwrap() error { return e.Err }

// Is matches any AppError of the same kind, so errors.Is(err, ErrNotFound) works.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func NewAppError(kind ErrorKind, op, message string) *AppError {
	return &AppError{Kind: kind, Op: op, Message: message}
}

func (e *AppError) WithID(id string) *AppError {
	e.ID = id
	return e
}

func (e *AppError) WithStore(store string) *AppError {
	e.Store = store
	return e
}

func (e *AppError) Wrap(err error) *AppError {
	e.Err = err
	return e
}

// KindOf returns the kind of the first AppError in the chain, or "" if none.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}
