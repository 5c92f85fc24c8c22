// Package stats aggregates descriptive statistics over the historical
// student dataset.
package stats

import (
	"errors"
	"slices"
	"strconv"

	"github.com/okian/dropout/internal/domain/model"
)

// ErrEmptyDataset is returned when there are no rows to aggregate.
var ErrEmptyDataset = errors.New("dataset has no rows")

// Row is one historical student record.
type Row struct {
	Features model.FeatureVector
	Label    float64 // 1 dropped out, 0 stayed
}

// FeatureStats summarizes a single feature column.
type FeatureStats struct {
	Min    float64
	Max    float64
	Mean   float64
	Median float64
}

// Snapshot is a read-only aggregate over a full dataset scan.
type Snapshot struct {
	Total             int
	DropoutRate       float64
	Grades            FeatureStats
	Attendance        FeatureStats
	Incidents         FeatureStats
	LabelDistribution map[string]int
}

// Compute scans every row. The dropout rate is the mean of the label column
// and the distribution counts rows per distinct label value.
func Compute(rows []Row) (Snapshot, error) {
	if len(rows) == 0 {
		return Snapshot{}, ErrEmptyDataset
	}

	cols := [model.NumFeatures][]float64{}
	for i := range cols {
		cols[i] = make([]float64, 0, len(rows))
	}
	dist := make(map[string]int)
	var labelSum float64
	for _, r := range rows {
		for i, v := range r.Features.Values() {
			cols[i] = append(cols[i], v)
		}
		labelSum += r.Label
		dist[LabelKey(r.Label)]++
	}

	return Snapshot{
		Total:             len(rows),
		DropoutRate:       labelSum / float64(len(rows)),
		Grades:            summarize(cols[0]),
		Attendance:        summarize(cols[1]),
		Incidents:         summarize(cols[2]),
		LabelDistribution: dist,
	}, nil
}

// LabelKey renders a label value without trailing zeros, e.g. "0" or "1".
func LabelKey(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// summarize sorts values in place.
func summarize(values []float64) FeatureStats {
	slices.Sort(values)
	var sum float64
	for _, v := range values {
		sum += v
	}
	n := len(values)
	median := values[n/2]
	if n%2 == 0 {
		median = (values[n/2-1] + values[n/2]) / 2
	}
	return FeatureStats{
		Min:    values[0],
		Max:    values[n-1],
		Mean:   sum / float64(n),
		Median: median,
	}
}
