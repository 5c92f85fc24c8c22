package service_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/okian/dropout/internal/adapters/mq/queue"
	"github.com/okian/dropout/internal/adapters/repository"
	"github.com/okian/dropout/internal/domain/model"
	"github.com/okian/dropout/internal/domain/scoring"
	"github.com/okian/dropout/internal/domain/stats"
)

// identityScaler passes features through unchanged.
type identityScaler struct {
	err error
}

func (s identityScaler) Transform(fv model.FeatureVector) (model.ScaledFeatureVector, error) {
	if s.err != nil {
		return model.ScaledFeatureVector{}, s.err
	}
	return model.ScaledFeatureVector(fv.Values()), nil
}

func (identityScaler) Version() string { return "scaler-test" }

// funcModel scores with fn and counts calls.
type funcModel struct {
	fn     func(x model.ScaledFeatureVector) (float64, error)
	calls  atomic.Int64
	closed atomic.Bool
}

func (m *funcModel) Predict(_ context.Context, x model.ScaledFeatureVector) (float64, error) {
	m.calls.Add(1)
	return m.fn(x)
}

func (m *funcModel) Version() string { return "model-test" }
func (m *funcModel) Format() string  { return scoring.FormatJSON }
func (m *funcModel) Close() error {
	m.closed.Store(true)
	return nil
}

// incidentModel maps behavior incidents to a probability: 0 -> 0, 10 -> 1.
func incidentModel() *funcModel {
	return &funcModel{fn: func(x model.ScaledFeatureVector) (float64, error) {
		return x[2] / 10, nil
	}}
}

func artifacts(m scoring.Model) *scoring.Artifacts {
	return &scoring.Artifacts{Scaler: identityScaler{}, Model: m}
}

type staticDataset struct {
	rows []stats.Row
	err  error
}

func (d staticDataset) Rows(context.Context) ([]stats.Row, error) { return d.rows, d.err }

// memoryStore is an in-memory audit store.
type memoryStore struct {
	mu      sync.Mutex
	records []model.PredictionRecord
	failing bool
	closed  bool
}

func (s *memoryStore) Record(_ context.Context, rec model.PredictionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return errors.New("disk full")
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *memoryStore) Recent(_ context.Context, n int) ([]model.PredictionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.PredictionRecord, 0, n)
	for i := len(s.records) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.records[i])
	}
	return out, nil
}

func (s *memoryStore) Get(_ context.Context, id string) (model.PredictionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.ID == id {
			return r, nil
		}
	}
	return model.PredictionRecord{}, repository.ErrNotFound
}

func (s *memoryStore) Count(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records), nil
}

func (s *memoryStore) Close() error {
	s.closed = true
	return nil
}

// fullQueue refuses every record.
type fullQueue struct{}

func (fullQueue) Enqueue(context.Context, model.PredictionRecord) error { return queue.ErrFull }
func (fullQueue) Shutdown(context.Context) error                        { return nil }
