package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	service "github.com/okian/dropout/internal/app"
	"github.com/okian/dropout/internal/domain/types"
	"github.com/okian/dropout/pkg/logger"
)

// Client-facing messages for bodies that never reach validation.
const (
	msgMalformedJSON = "El cuerpo de la solicitud no es JSON válido"
	msgNotAnObject   = "El cuerpo de la solicitud debe ser un objeto JSON"
	msgBodyTooLarge  = "El cuerpo de la solicitud excede %d bytes"
	msgUnexpected    = "Error inesperado"
)

// PredictHandler handles prediction requests.
type PredictHandler struct {
	deps         PredictDependencies
	maxBodyBytes int64
	log          logger.Logger
}

// NewPredictHandler creates a new predict handler.
func NewPredictHandler(deps PredictDependencies, maxBodyBytes int64, log logger.Logger) *PredictHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}
	if log == nil {
		log = logger.Nop()
	}
	return &PredictHandler{deps: deps, maxBodyBytes: maxBodyBytes, log: log}
}

// HandlePredict handles POST /predict requests.
func (h *PredictHandler) HandlePredict(w http.ResponseWriter, r *http.Request) {
	const op = "api.predict"
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	payload, status, msg, err := h.decode(w, r)
	if err != nil {
		h.log.Debug(r.Context(), "rejected prediction body", logger.Error(WrapKind(op, ErrBadRequest, err)))
		writeError(w, status, types.TitleInvalidData, msg)
		return
	}

	res, err := h.deps.Infer(r.Context(), payload)
	if err != nil {
		h.writeInferError(w, r, op, err)
		return
	}
	_ = writeJSON(w, http.StatusOK, types.NewPredictResponse(res))
}

// decode reads a single JSON object. Numbers are kept as json.Number so
// validation sees exactly what the client sent.
func (h *PredictHandler) decode(w http.ResponseWriter, r *http.Request) (map[string]any, int, string, error) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	dec.UseNumber()

	var body any
	if err := dec.Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, http.StatusRequestEntityTooLarge, fmt.Sprintf(msgBodyTooLarge, tooLarge.Limit), err
		}
		return nil, http.StatusBadRequest, msgMalformedJSON, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, http.StatusBadRequest, msgMalformedJSON, errors.New("trailing data after JSON value")
	}
	payload, ok := body.(map[string]any)
	if !ok {
		return nil, http.StatusBadRequest, msgNotAnObject, fmt.Errorf("body is %T, not an object", body)
	}
	return payload, 0, "", nil
}

func (h *PredictHandler) writeInferError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var (
		verr *service.ValidationError
		ierr *service.InternalError
	)
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, types.TitleInvalidData, verr.Message)
	case errors.As(err, &ierr):
		writeError(w, http.StatusInternalServerError, types.TitleInternal, ierr.Message)
	default:
		h.log.Error(r.Context(), "unclassified inference error", logger.Error(WrapKind(op, ErrInternal, err)))
		writeError(w, http.StatusInternalServerError, types.TitleInternal, msgUnexpected)
	}
}
