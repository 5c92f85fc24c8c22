package loadtest

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/okian/dropout/internal/domain/model"
)

// Generator produces synthetic prediction payloads. It is not safe for
// concurrent use.
type Generator struct {
	rng          *rand.Rand
	invalidRatio float64
}

// NewGenerator creates a generator. A zero seed is replaced by the clock.
func NewGenerator(seed uint64, invalidRatio float64) *Generator {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Generator{
		rng:          rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		invalidRatio: clamp(invalidRatio, 0, 1),
	}
}

// Generate returns n cases; roughly invalidRatio of them carry a single
// defect the service must reject.
func (g *Generator) Generate(n int) []Case {
	cases := make([]Case, n)
	for i := range cases {
		c := Case{Index: i, Payload: g.student(), Valid: true}
		if g.rng.Float64() < g.invalidRatio {
			g.corrupt(&c)
		}
		cases[i] = c
	}
	return cases
}

// student draws one plausible record.
func (g *Generator) student() map[string]any {
	return map[string]any{
		model.FieldGrades:     round2(clamp(gradesMean+g.rng.NormFloat64()*gradesStdDev, 0, percentMax)),
		model.FieldAttendance: round2(clamp(attendanceMean+g.rng.NormFloat64()*attendanceStdDev, 0, percentMax)),
		model.FieldIncidents:  clamp(float64(g.poisson(incidentsLambda)), 0, incidentsMax),
	}
}

// corrupt injects exactly one defect into a random field.
func (g *Generator) corrupt(c *Case) {
	field := model.FeatureNames[g.rng.IntN(model.NumFeatures)]
	c.Valid = false
	c.Field = field

	switch g.rng.IntN(3) {
	case 0:
		c.Defect = DefectMissing
		delete(c.Payload, field)
	case 1:
		c.Defect = DefectOutOfRange
		upper := percentMax
		if field == model.FieldIncidents {
			upper = incidentsMax
		}
		if g.rng.IntN(2) == 0 {
			c.Payload[field] = -1 - float64(g.rng.IntN(50))
		} else {
			c.Payload[field] = upper + 1 + float64(g.rng.IntN(50))
		}
	default:
		c.Defect = DefectNotNumeric
		if g.rng.IntN(2) == 0 {
			c.Payload[field] = "alto"
		} else {
			c.Payload[field] = true
		}
	}
}

// poisson samples with Knuth's multiplication method; fine for small lambda.
func (g *Generator) poisson(lambda float64) int {
	limit := math.Exp(-lambda)
	k, p := 0, 1.0
	for {
		p *= g.rng.Float64()
		if p <= limit {
			return k
		}
		k++
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*PercentageMultiplier) / PercentageMultiplier
}
