// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/dropout/internal/domain/model"
	"github.com/okian/dropout/internal/domain/stats"
	"github.com/okian/dropout/internal/domain/types"
	"github.com/okian/dropout/pkg/logger"
)

const (
	defaultMaxBodyBytes = 1 << 20
	msgEncodeFailed     = "No se pudo serializar la respuesta"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the service package.
type Dependencies interface {
	PredictDependencies
	StatsDependencies
	PredictionsDependencies
}

// Server wires HTTP routes for the inference API.
type Server struct {
	healthHandler      *HealthHandler
	metricsHandler     *MetricsHandler
	statsHandler       *StatsHandler
	predictHandler     *PredictHandler
	predictionsHandler *PredictionsHandler

	origins []string
	log     logger.Logger
}

// Option configures a Server.
type Option func(*serverOptions)

type serverOptions struct {
	log            logger.Logger
	origins        []string
	maxBodyBytes   int64
	maxRecentLimit int
}

// WithLogger sets the logger used by handlers and middleware.
func WithLogger(l logger.Logger) Option {
	return func(o *serverOptions) {
		if l != nil {
			o.log = l
		}
	}
}

// WithAllowedOrigins sets the CORS allow list. "*" allows any origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(o *serverOptions) { o.origins = origins }
}

// WithMaxBodyBytes caps POST /predict bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(o *serverOptions) {
		if n > 0 {
			o.maxBodyBytes = n
		}
	}
}

// WithMaxRecentLimit caps GET /predictions?limit.
func WithMaxRecentLimit(n int) Option {
	return func(o *serverOptions) {
		if n > 0 {
			o.maxRecentLimit = n
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	o := serverOptions{
		log:            logger.Nop(),
		origins:        []string{"*"},
		maxBodyBytes:   defaultMaxBodyBytes,
		maxRecentLimit: defaultMaxRecentLimit,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Server{
		healthHandler:      NewHealthHandler(),
		metricsHandler:     NewMetricsHandler(),
		statsHandler:       NewStatsHandler(deps, o.log),
		predictHandler:     NewPredictHandler(deps, o.maxBodyBytes, o.log),
		predictionsHandler: NewPredictionsHandler(deps, o.maxRecentLimit, o.log),
		origins:            o.origins,
		log:                o.log,
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	mux.HandleFunc("/health", MetricsMiddleware(s.healthHandler.HandleHealth, "health"))
	mux.HandleFunc("/metrics", s.metricsHandler.HandleMetrics)
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/predict", MetricsMiddleware(s.predictHandler.HandlePredict, "predict"))
	mux.HandleFunc("/predictions", MetricsMiddleware(s.predictionsHandler.HandleRecent, "predictions"))
	mux.HandleFunc("/predictions/", MetricsMiddleware(s.predictionsHandler.HandleGet, "prediction"))
}

// Handler wraps mux with the cross-cutting middleware every route shares.
func (s *Server) Handler(mux http.Handler) http.Handler {
	return Chain(
		RequestIDMiddleware,
		RecoveryMiddleware(s.log),
		LoggingMiddleware(s.log),
		CORSMiddleware(s.origins),
	)(mux)
}

// PredictDependencies scores a raw JSON payload.
type PredictDependencies interface {
	Infer(ctx context.Context, payload map[string]any) (model.PredictionResult, error)
}

// StatsDependencies produces dataset statistics.
type StatsDependencies interface {
	Stats(ctx context.Context) (stats.Snapshot, error)
}

// writeJSON encodes v before writing any header. When v cannot be encoded
// a 500 envelope is sent instead and the encoding error is returned.
func writeJSON(w http.ResponseWriter, status int, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = json.Marshal(types.ErrorResponse{Error: types.TitleInternal, Message: msgEncodeFailed})
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
	return err
}

// writeError renders the {error, mensaje} envelope.
func writeError(w http.ResponseWriter, status int, title, message string) {
	if message == "" {
		message = http.StatusText(status)
	}
	_ = writeJSON(w, status, types.ErrorResponse{Error: title, Message: message})
}

// methodNotAllowed answers a request whose method the route does not serve.
func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	writeError(w, http.StatusMethodNotAllowed, types.TitleMethodNotAllowed, ErrMethodNotAllowed.Error())
}
