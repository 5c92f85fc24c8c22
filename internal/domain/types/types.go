// Package types contains the JSON shapes exchanged over HTTP.
// Field names are part of the public contract and stay in Spanish.
package types

import (
	"time"

	"github.com/okian/dropout/internal/domain/model"
	"github.com/okian/dropout/internal/domain/stats"
)

// TimestampLayout is used for every timestamp rendered to clients.
const TimestampLayout = time.RFC3339Nano

// Error envelope titles.
const (
	TitleInvalidData      = "Datos inválidos"
	TitleInternal         = "Error interno del servidor"
	TitleStatsFailed      = "Error al generar estadísticas"
	TitleNotFound         = "Recurso no encontrado"
	TitleMethodNotAllowed = "Método no permitido"
)

// PredictResponse is the body of a successful POST /predict.
type PredictResponse struct {
	Probability float64 `json:"probabilidad_desercion"`
	Tier        string  `json:"riesgo"`
	Timestamp   string  `json:"timestamp"`
}

// NewPredictResponse renders a prediction result.
func NewPredictResponse(res model.PredictionResult) PredictResponse {
	return PredictResponse{
		Probability: res.Probability,
		Tier:        res.Tier.String(),
		Timestamp:   res.GeneratedAt.Format(TimestampLayout),
	}
}

// ErrorResponse is the error envelope shared by all endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"mensaje"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// FeatureStats mirrors stats.FeatureStats.
type FeatureStats struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"promedio"`
	Median float64 `json:"mediana"`
}

// StatsResponse is the body of GET /stats.
type StatsResponse struct {
	Total             int            `json:"total_estudiantes"`
	DropoutRate       float64        `json:"tasa_desercion"`
	MeanGrades        float64        `json:"promedio_calificaciones"`
	MeanAttendance    float64        `json:"promedio_asistencia"`
	MeanIncidents     float64        `json:"promedio_incidentes_comportamiento"`
	LabelDistribution map[string]int `json:"distribucion_desercion"`
	Grades            FeatureStats   `json:"estadisticas_calificaciones"`
	Attendance        FeatureStats   `json:"estadisticas_asistencia"`
	Incidents         FeatureStats   `json:"estadisticas_incidentes_comportamiento"`
}

// NewStatsResponse renders a dataset snapshot.
func NewStatsResponse(s stats.Snapshot) StatsResponse {
	dist := s.LabelDistribution
	if dist == nil {
		dist = map[string]int{}
	}
	return StatsResponse{
		Total:             s.Total,
		DropoutRate:       s.DropoutRate,
		MeanGrades:        s.Grades.Mean,
		MeanAttendance:    s.Attendance.Mean,
		MeanIncidents:     s.Incidents.Mean,
		LabelDistribution: dist,
		Grades:            featureStats(s.Grades),
		Attendance:        featureStats(s.Attendance),
		Incidents:         featureStats(s.Incidents),
	}
}

func featureStats(f stats.FeatureStats) FeatureStats {
	return FeatureStats{Min: f.Min, Max: f.Max, Mean: f.Mean, Median: f.Median}
}

// PredictionEntry is one audited prediction returned by GET /predictions.
type PredictionEntry struct {
	ID                string  `json:"id"`
	Grades            float64 `json:"calificaciones"`
	Attendance        float64 `json:"asistencia"`
	BehaviorIncidents float64 `json:"incidentes_comportamiento"`
	Probability       float64 `json:"probabilidad_desercion"`
	Tier              string  `json:"riesgo"`
	ModelVersion      string  `json:"version_modelo"`
	Timestamp         string  `json:"timestamp"`
}

// NewPredictionEntries renders audit records in the order given.
func NewPredictionEntries(recs []model.PredictionRecord) []PredictionEntry {
	out := make([]PredictionEntry, 0, len(recs))
	for _, r := range recs {
		out = append(out, PredictionEntry{
			ID:                r.ID,
			Grades:            r.Features.Grades,
			Attendance:        r.Features.Attendance,
			BehaviorIncidents: r.Features.BehaviorIncidents,
			Probability:       r.Probability,
			Tier:              r.Tier.String(),
			ModelVersion:      r.ModelVersion,
			Timestamp:         r.CreatedAt.Format(TimestampLayout),
		})
	}
	return out
}
