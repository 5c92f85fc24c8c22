package api

import (
	"errors"
	"fmt"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest       = errors.New("bad request")
	ErrMethodNotAllowed = errors.New("method not allowed")
	ErrNotFound         = errors.New("not found")
	ErrInternal         = errors.New("internal error")
	ErrPanic            = errors.New("handler panic")
)

// opError ties an error kind to the handler operation that produced it.
type opError struct {
	Op   string
	Kind error
	Err  error
}

func (e *opError) Error() string {
	switch {
	case e.Kind == nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Err == nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	default:
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
}

// Unwrap exposes both the kind and the cause to errors.Is/As.
func (e *opError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// Wrap annotates err with op. Returns nil when err is nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &opError{Op: op, Err: err}
}

// WrapKind classifies err as kind and annotates it with op.
func WrapKind(op string, kind, err error) error {
	return &opError{Op: op, Kind: kind, Err: err}
}
