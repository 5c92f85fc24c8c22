package api

import (
	"net/http"
	"time"

	"github.com/okian/dropout/internal/domain/types"
)

// HealthHandler handles liveness requests.
type HealthHandler struct {
	now func() time.Time
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{now: time.Now}
}

// HandleHealth handles GET /health requests. It never touches the model or
// the dataset, so it answers 200 for as long as the process is serving.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	_ = writeJSON(w, http.StatusOK, types.HealthResponse{
		Status:    "healthy",
		Timestamp: h.now().Format(types.TimestampLayout),
	})
}
