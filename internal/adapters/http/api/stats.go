package api

import (
	"net/http"

	"github.com/okian/dropout/internal/domain/types"
	"github.com/okian/dropout/pkg/logger"
)

// StatsHandler handles stats requests.
type StatsHandler struct {
	deps StatsDependencies
	log  logger.Logger
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(deps StatsDependencies, log logger.Logger) *StatsHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &StatsHandler{deps: deps, log: log}
}

// HandleStats handles GET /stats requests. The dataset is re-read on every call.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	snap, err := h.deps.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, types.TitleStatsFailed, err.Error())
		return
	}
	if err := writeJSON(w, http.StatusOK, types.NewStatsResponse(snap)); err != nil {
		h.log.Error(r.Context(), "stats response not encodable", logger.Error(Wrap("api.stats", err)))
	}
}
