package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/dropout/internal/adapters/repository"
	service "github.com/okian/dropout/internal/app"
	"github.com/okian/dropout/internal/domain/model"
	"github.com/okian/dropout/internal/domain/types"
	"github.com/okian/dropout/pkg/logger"
)

const (
	defaultMaxRecentLimit = 100
	defaultRecentLimit    = 10

	msgAuditDisabled = "La auditoría de predicciones está deshabilitada"
	msgBadLimit      = "limit debe ser un entero entre 1 y %d"
	msgBadID         = "Identificador de predicción inválido"
	msgUnknownID     = "Predicción no encontrada: %s"
	msgAuditFailed   = "No se pudo leer la auditoría de predicciones"
)

// PredictionsDependencies reads the prediction audit trail.
type PredictionsDependencies interface {
	AuditEnabled() bool
	Recent(ctx context.Context, n int) ([]model.PredictionRecord, error)
	Prediction(ctx context.Context, id string) (model.PredictionRecord, error)
}

// PredictionsHandler serves audited predictions.
type PredictionsHandler struct {
	deps     PredictionsDependencies
	maxLimit int
	log      logger.Logger
}

// NewPredictionsHandler creates a new predictions handler.
func NewPredictionsHandler(deps PredictionsDependencies, maxLimit int, log logger.Logger) *PredictionsHandler {
	if maxLimit < 1 {
		maxLimit = defaultMaxRecentLimit
	}
	if log == nil {
		log = logger.Nop()
	}
	return &PredictionsHandler{deps: deps, maxLimit: maxLimit, log: log}
}

// HandleRecent handles GET /predictions?limit=N requests.
func (h *PredictionsHandler) HandleRecent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if !h.deps.AuditEnabled() {
		writeError(w, http.StatusNotFound, types.TitleNotFound, msgAuditDisabled)
		return
	}

	n := min(defaultRecentLimit, h.maxLimit)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > h.maxLimit {
			writeError(w, http.StatusBadRequest, types.TitleInvalidData, fmt.Sprintf(msgBadLimit, h.maxLimit))
			return
		}
		n = v
	}

	recs, err := h.deps.Recent(r.Context(), n)
	if err != nil {
		h.log.Error(r.Context(), "audit read failed", logger.Int("limit", n), logger.Error(Wrap("api.predictions", err)))
		writeError(w, http.StatusInternalServerError, types.TitleInternal, msgAuditFailed)
		return
	}
	_ = writeJSON(w, http.StatusOK, types.NewPredictionEntries(recs))
}

// HandleGet handles GET /predictions/{id} requests.
func (h *PredictionsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if !h.deps.AuditEnabled() {
		writeError(w, http.StatusNotFound, types.TitleNotFound, msgAuditDisabled)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/predictions/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, types.TitleInvalidData, msgBadID)
		return
	}

	rec, err := h.deps.Prediction(r.Context(), id)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, types.TitleNotFound, fmt.Sprintf(msgUnknownID, id))
	case errors.Is(err, service.ErrAuditDisabled):
		writeError(w, http.StatusNotFound, types.TitleNotFound, msgAuditDisabled)
	case err != nil:
		h.log.Error(r.Context(), "audit lookup failed", logger.String("id", id), logger.Error(Wrap("api.prediction", err)))
		writeError(w, http.StatusInternalServerError, types.TitleInternal, msgAuditFailed)
	default:
		_ = writeJSON(w, http.StatusOK, types.NewPredictionEntries([]model.PredictionRecord{rec})[0])
	}
}
