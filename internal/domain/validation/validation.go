// Package validation checks raw prediction payloads before they reach the
// scoring pipeline.
package validation

import (
	"encoding/json"
	"errors"
	"strconv"

	"github.com/okian/dropout/internal/domain/model"
)

// Messages returned to clients.
const (
	msgMissingPrefix = "Campo requerido faltante: "
	msgNotNumeric    = "Los valores deben ser numéricos"
)

// Outcome is the result of validating a payload.
type Outcome struct {
	Valid   bool
	Field   string // first failing field, empty when valid
	Message string // client-facing reason, empty when valid
}

type rule struct {
	field    string
	min, max float64
	message  string
}

// rules are evaluated in fitted feature order; the first failure wins.
var rules = [model.NumFeatures]rule{
	{model.FieldGrades, 0, 100, "Calificaciones debe estar entre 0 y 100"},
	{model.FieldAttendance, 0, 100, "Asistencia debe estar entre 0 y 100"},
	{model.FieldIncidents, 0, 10, "Incidentes de comportamiento debe estar entre 0 y 10"},
}

// Validate reports whether payload carries the three features as numbers
// within range. Presence is checked for all fields before any value is
// inspected, so a missing field is always reported ahead of a bad value.
func Validate(payload map[string]any) Outcome {
	for _, r := range rules {
		if _, ok := payload[r.field]; !ok {
			return invalid(r.field, msgMissingPrefix+r.field)
		}
	}
	for _, r := range rules {
		v, ok := Number(payload[r.field])
		if !ok {
			return invalid(r.field, msgNotNumeric)
		}
		// NaN fails both comparisons and is rejected as out of range.
		if !(v >= r.min && v <= r.max) {
			return invalid(r.field, r.message)
		}
	}
	return Outcome{Valid: true}
}

// Vector builds a FeatureVector from a payload that passed Validate.
func Vector(payload map[string]any) (model.FeatureVector, bool) {
	var values [model.NumFeatures]float64
	for i, name := range model.FeatureNames {
		v, ok := Number(payload[name])
		if !ok {
			return model.FeatureVector{}, false
		}
		values[i] = v
	}
	return model.FeatureVector{Grades: values[0], Attendance: values[1], BehaviorIncidents: values[2]}, true
}

// Number converts JSON and Go numeric values to float64. Booleans, strings
// and nil are not numbers.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		// Overflow yields ±Inf with ErrRange; the range check rejects it.
		f, err := n.Float64()
		return f, err == nil || errors.Is(err, strconv.ErrRange)
	default:
		return 0, false
	}
}

func invalid(field, message string) Outcome {
	return Outcome{Field: field, Message: message}
}
