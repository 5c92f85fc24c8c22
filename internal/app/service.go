// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/okian/dropout/internal/adapters/repository"
	"github.com/okian/dropout/internal/domain/model"
	"github.com/okian/dropout/internal/domain/risk"
	"github.com/okian/dropout/internal/domain/scoring"
	"github.com/okian/dropout/internal/domain/stats"
	"github.com/okian/dropout/internal/domain/validation"
	"github.com/okian/dropout/pkg/logger"
	"github.com/okian/dropout/pkg/metrics"
)

// Client-facing messages for pipeline failures.
const (
	msgVectorize = "no se pudo construir el vector de características"
	msgScale     = "error al escalar las características"
	msgPredict   = "error en la inferencia del modelo"
	msgRange     = "el modelo produjo una probabilidad inválida"
	msgPanic     = "fallo inesperado en la inferencia"
)

// auditDrainTimeout bounds how long Close waits for queued audit records.
const auditDrainTimeout = 10 * time.Second

// Dataset supplies the historical rows for statistics. It is read on
// every call.
type Dataset interface {
	Rows(ctx context.Context) ([]stats.Row, error)
}

// AuditQueue hands audit records to background writers.
type AuditQueue interface {
	Enqueue(ctx context.Context, rec model.PredictionRecord) error
	Shutdown(ctx context.Context) error
}

// Service runs the inference pipeline and dataset statistics.
// The artifacts are read-only after construction so Infer is safe for
// concurrent use.
type Service struct {
	scaler scoring.Scaler
	model  scoring.Model

	dataset    Dataset
	audit      repository.Store
	auditQueue AuditQueue

	cacheSize int
	cache     *lru.Cache[model.FeatureVector, float64]

	now    func() time.Time
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithDataset sets the dataset used by Stats.
func WithDataset(d Dataset) Option {
	return func(s *Service) { s.dataset = d }
}

// WithAuditStore enables the prediction audit trail.
func WithAuditStore(store repository.Store) Option {
	return func(s *Service) { s.audit = store }
}

// WithAuditQueue writes audit records asynchronously through q. It only
// takes effect together with WithAuditStore, which still serves reads.
func WithAuditQueue(q AuditQueue) Option {
	return func(s *Service) { s.auditQueue = q }
}

// WithPredictionCacheSize bounds the exact-match prediction cache. 0 disables it.
func WithPredictionCacheSize(size int) Option {
	return func(s *Service) {
		if size >= 0 {
			s.cacheSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a Service around loaded artifacts.
func New(artifacts *scoring.Artifacts, opts ...Option) (*Service, error) {
	if artifacts == nil || artifacts.Scaler == nil || artifacts.Model == nil {
		return nil, ErrNoArtifacts
	}
	s := &Service{
		scaler: artifacts.Scaler,
		model:  artifacts.Model,
		now:    time.Now,
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cacheSize > 0 {
		cache, err := lru.New[model.FeatureVector, float64](s.cacheSize)
		if err != nil {
			return nil, fmt.Errorf("create prediction cache: %w", err)
		}
		s.cache = cache
	}
	metrics.SetArtifactInfo(s.model.Version(), s.scaler.Version(), s.model.Format())
	return s, nil
}

// Infer validates payload and scores it. Errors are *ValidationError or
// *InternalError.
func (s *Service) Infer(ctx context.Context, payload map[string]any) (model.PredictionResult, error) {
	start := time.Now()

	if out := validation.Validate(payload); !out.Valid {
		metrics.RecordValidationFailure(out.Field)
		s.logger.Debug(ctx, "prediction rejected",
			logger.String("field", out.Field),
			logger.String("reason", out.Message),
		)
		return model.PredictionResult{}, &ValidationError{Field: out.Field, Message: out.Message}
	}

	fv, p, err := s.score(ctx, payload)
	if err != nil {
		metrics.RecordInferenceError()
		metrics.RecordErrorByComponent("inference", "internal")
		s.logger.Error(ctx, "prediction failed", logger.Error(err))
		return model.PredictionResult{}, err
	}

	res := model.PredictionResult{
		Probability: p,
		Tier:        risk.Classify(p),
		GeneratedAt: s.now(),
	}

	metrics.RecordPrediction(string(res.Tier), res.Probability)
	metrics.RecordInferenceLatency(float64(time.Since(start).Microseconds()) / 1000)
	s.logger.Info(ctx, "prediction completed",
		logger.Float64("probabilidad_desercion", res.Probability),
		logger.String("riesgo", string(res.Tier)),
	)

	s.record(ctx, fv, res)
	return res, nil
}

// score runs vectorize, scale and predict. Panics in any step become
// *InternalError.
func (s *Service) score(ctx context.Context, payload map[string]any) (fv model.FeatureVector, p float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &InternalError{Message: msgPanic, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	fv, ok := validation.Vector(payload)
	if !ok {
		return fv, 0, &InternalError{Message: msgVectorize}
	}

	if s.cache != nil {
		if cached, hit := s.cache.Get(fv); hit {
			metrics.RecordPredictionCacheHit()
			return fv, cached, nil
		}
		metrics.RecordPredictionCacheMiss()
	}

	scaled, err := s.scaler.Transform(fv)
	if err != nil {
		return fv, 0, &InternalError{Message: msgScale, Err: err}
	}
	p, err = s.model.Predict(ctx, scaled)
	if err != nil {
		return fv, 0, &InternalError{Message: msgPredict, Err: err}
	}
	if math.IsNaN(p) || p < 0 || p > 1 {
		return fv, 0, &InternalError{Message: msgRange, Err: fmt.Errorf("probability %v outside [0,1]", p)}
	}

	if s.cache != nil {
		s.cache.Add(fv, p)
	}
	return fv, p, nil
}

// record writes the audit entry. Failures are logged and never reach the caller.
func (s *Service) record(ctx context.Context, fv model.FeatureVector, res model.PredictionResult) {
	if s.audit == nil {
		return
	}
	rec := model.PredictionRecord{
		ID:           uuid.NewString(),
		Features:     fv,
		Probability:  res.Probability,
		Tier:         res.Tier,
		ModelVersion: s.model.Version(),
		CreatedAt:    res.GeneratedAt,
	}
	if s.auditQueue != nil {
		if err := s.auditQueue.Enqueue(context.WithoutCancel(ctx), rec); err != nil {
			s.logger.Warn(ctx, "audit record dropped",
				logger.String("id", rec.ID),
				logger.Error(err),
			)
		}
		return
	}
	if err := s.audit.Record(context.WithoutCancel(ctx), rec); err != nil {
		s.logger.Error(ctx, "failed to audit prediction",
			logger.String("id", rec.ID),
			logger.Error(err),
		)
	}
}

// Stats reads the dataset and aggregates it. Errors are *ReportError.
func (s *Service) Stats(ctx context.Context) (snap stats.Snapshot, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = &ReportError{Err: fmt.Errorf("panic: %v", r)}
		}
		if err != nil {
			metrics.RecordStatsError()
			metrics.RecordErrorByComponent("stats", "report")
			s.logger.Error(ctx, "failed to generate statistics", logger.Error(err))
		}
	}()

	if s.dataset == nil {
		return stats.Snapshot{}, &ReportError{Err: ErrNoDataset}
	}
	rows, err := s.dataset.Rows(ctx)
	if err != nil {
		return stats.Snapshot{}, &ReportError{Err: err}
	}
	snap, err = stats.Compute(rows)
	if err != nil {
		return stats.Snapshot{}, &ReportError{Err: err}
	}

	metrics.UpdateDatasetRows(snap.Total)
	metrics.RecordStatsRequest(float64(time.Since(start).Microseconds()) / 1000)
	s.logger.Info(ctx, "statistics generated", logger.Int("total_estudiantes", snap.Total))
	return snap, nil
}

// AuditEnabled reports whether predictions are being audited.
func (s *Service) AuditEnabled() bool { return s.audit != nil }

// Recent returns the newest audited predictions.
func (s *Service) Recent(ctx context.Context, n int) ([]model.PredictionRecord, error) {
	if s.audit == nil {
		return nil, ErrAuditDisabled
	}
	return s.audit.Recent(ctx, n)
}

// Prediction returns one audited prediction by id.
func (s *Service) Prediction(ctx context.Context, id string) (model.PredictionRecord, error) {
	if s.audit == nil {
		return model.PredictionRecord{}, ErrAuditDisabled
	}
	return s.audit.Get(ctx, id)
}

// ModelVersion identifies the loaded model.
func (s *Service) ModelVersion() string { return s.model.Version() }

// ScalerVersion identifies the loaded scaler.
func (s *Service) ScalerVersion() string { return s.scaler.Version() }

// Close drains pending audit writes, then releases the audit store and the
// model.
func (s *Service) Close() error {
	var firstErr error
	if s.auditQueue != nil {
		ctx, cancel := context.WithTimeout(context.Background(), auditDrainTimeout)
		firstErr = s.auditQueue.Shutdown(ctx)
		cancel()
	}
	if s.audit != nil {
		if err := s.audit.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := s.model.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	s.logger.Info(context.Background(), "service closed")
	return firstErr
}
