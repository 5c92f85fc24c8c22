// Package model contains domain models passed between layers.
package model

import "time"

// NumFeatures is the arity of every feature vector.
const NumFeatures = 3

// Payload keys. The order of FeatureNames is shared with the training
// pipeline that fitted the scaler and the model and must not change.
const (
	FieldGrades     = "calificaciones"
	FieldAttendance = "asistencia"
	FieldIncidents  = "incidentes_comportamiento"
	FieldLabel      = "desercion"
)

// FeatureNames lists the feature keys in fitted order.
var FeatureNames = [NumFeatures]string{FieldGrades, FieldAttendance, FieldIncidents}

// FeatureVector is a validated student record in fitted order.
// It is comparable and used directly as a cache key.
type FeatureVector struct {
	Grades            float64 // 0..100
	Attendance        float64 // 0..100
	BehaviorIncidents float64 // 0..10
}

// Values returns the features in fitted order.
func (f FeatureVector) Values() [NumFeatures]float64 {
	return [NumFeatures]float64{f.Grades, f.Attendance, f.BehaviorIncidents}
}

// ScaledFeatureVector is a FeatureVector after standardization.
type ScaledFeatureVector [NumFeatures]float64

// RiskTier is the discretized dropout probability band.
type RiskTier string

// Tier labels as reported to clients.
const (
	RiskLow    RiskTier = "Bajo"
	RiskMedium RiskTier = "Medio"
	RiskHigh   RiskTier = "Alto"
)

// String implements fmt.Stringer.
func (t RiskTier) String() string { return string(t) }

// PredictionResult is the outcome of one inference. Passed by value.
type PredictionResult struct {
	Probability float64
	Tier        RiskTier
	GeneratedAt time.Time
}

// PredictionRecord is an audited prediction.
type PredictionRecord struct {
	ID           string
	Features     FeatureVector
	Probability  float64
	Tier         RiskTier
	ModelVersion string
	CreatedAt    time.Time
}
