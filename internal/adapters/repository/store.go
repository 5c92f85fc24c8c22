// Package repository persists the prediction audit trail.
package repository

import (
	"context"

	"github.com/okian/dropout/internal/domain/model"
)

// Store provides write-mostly access to audited predictions.
type Store interface {
	// Record appends a prediction. Records are never updated.
	Record(ctx context.Context, rec model.PredictionRecord) error

	// Recent returns up to n records, newest first.
	// Returns ErrInvalidLimit when n < 1.
	Recent(ctx context.Context, n int) ([]model.PredictionRecord, error)

	// Get returns a single record by id, or ErrNotFound.
	Get(ctx context.Context, id string) (model.PredictionRecord, error)

	// Count returns the number of audited predictions.
	Count(ctx context.Context) (int, error)

	// Close releases the underlying database.
	Close() error
}
