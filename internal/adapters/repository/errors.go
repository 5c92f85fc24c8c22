package repository

import "errors"

// Sentinel kinds for audit store errors.
var (
	ErrInvalidLimit  = errors.New("invalid audit limit")
	ErrInvalidRecord = errors.New("invalid audit record")
	ErrOpenStore     = errors.New("open audit store failed")
	ErrNotFound      = errors.New("prediction not found")
)
