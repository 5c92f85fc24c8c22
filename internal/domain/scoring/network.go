package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/okian/dropout/internal/domain/model"
)

// Layer types understood by the JSON model format.
const (
	layerDense     = "dense"
	layerBatchNorm = "batch_normalization"
	layerDropout   = "dropout"
)

const defaultBatchNormEpsilon = 1e-3

type networkFile struct {
	Version string      `json:"version"`
	Layers  []layerFile `json:"layers"`
}

type layerFile struct {
	Type string `json:"type"`

	// dense
	Kernel     [][]float64 `json:"kernel,omitempty"`
	Bias       []float64   `json:"bias,omitempty"`
	Activation string      `json:"activation,omitempty"`

	// batch_normalization
	Gamma          []float64 `json:"gamma,omitempty"`
	Beta           []float64 `json:"beta,omitempty"`
	MovingMean     []float64 `json:"moving_mean,omitempty"`
	MovingVariance []float64 `json:"moving_variance,omitempty"`
	Epsilon        *float64  `json:"epsilon,omitempty"`

	// dropout
	Rate float64 `json:"rate,omitempty"`
}

type layer interface {
	forward(in []float64) []float64
	width() int
}

// Network is a feed-forward network evaluated in inference mode.
type Network struct {
	layers  []layer
	version string
}

// LoadNetwork reads a JSON layer export from path and checks that widths
// chain from the feature count down to a single output.
func LoadNetwork(path string) (*Network, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f networkFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, invalidf("decode model: %v", err)
	}
	return buildNetwork(f, pickVersion(f.Version, data))
}

func buildNetwork(f networkFile, version string) (*Network, error) {
	if len(f.Layers) == 0 {
		return nil, invalidf("model has no layers")
	}
	n := &Network{version: version}
	width := model.NumFeatures
	for i, lf := range f.Layers {
		l, err := buildLayer(lf, width)
		if err != nil {
			return nil, invalidf("layer %d (%s): %v", i, lf.Type, err)
		}
		if l == nil {
			continue
		}
		n.layers = append(n.layers, l)
		width = l.width()
	}
	if width != 1 {
		return nil, invalidf("model output width is %d, want 1", width)
	}
	return n, nil
}

func buildLayer(lf layerFile, in int) (layer, error) {
	switch lf.Type {
	case layerDense:
		return newDense(lf, in)
	case layerBatchNorm:
		return newBatchNorm(lf, in)
	case layerDropout:
		// identity at inference
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown layer type %q", lf.Type)
	}
}

// Predict runs a forward pass and returns the single output unit.
func (n *Network) Predict(_ context.Context, x model.ScaledFeatureVector) (float64, error) {
	out := x[:]
	for _, l := range n.layers {
		out = l.forward(out)
	}
	if len(out) != 1 {
		return 0, fmt.Errorf("%w: output width %d", ErrInvalidArtifact, len(out))
	}
	return out[0], nil
}

// Version identifies the trained weights.
func (n *Network) Version() string { return n.version }

// Format reports FormatJSON.
func (n *Network) Format() string { return FormatJSON }

// Close is a no-op.
func (n *Network) Close() error { return nil }

type dense struct {
	kernel [][]float64 // [in][out]
	bias   []float64
	act    func(float64) float64
}

func newDense(lf layerFile, in int) (*dense, error) {
	if len(lf.Kernel) != in {
		return nil, fmt.Errorf("kernel has %d rows, want %d", len(lf.Kernel), in)
	}
	out := len(lf.Bias)
	if out == 0 {
		return nil, fmt.Errorf("empty bias")
	}
	for i, row := range lf.Kernel {
		if len(row) != out {
			return nil, fmt.Errorf("kernel row %d has %d columns, want %d", i, len(row), out)
		}
		if err := allFinite(row); err != nil {
			return nil, fmt.Errorf("kernel row %d: %w", i, err)
		}
	}
	if err := allFinite(lf.Bias); err != nil {
		return nil, fmt.Errorf("bias: %w", err)
	}
	act, err := activation(lf.Activation)
	if err != nil {
		return nil, err
	}
	return &dense{kernel: lf.Kernel, bias: lf.Bias, act: act}, nil
}

func (d *dense) width() int { return len(d.bias) }

func (d *dense) forward(in []float64) []float64 {
	out := make([]float64, len(d.bias))
	copy(out, d.bias)
	for i, x := range in {
		row := d.kernel[i]
		for j := range out {
			out[j] += x * row[j]
		}
	}
	for j := range out {
		out[j] = d.act(out[j])
	}
	return out
}

// batchNorm applies the moving statistics folded into scale and shift.
type batchNorm struct {
	scale []float64
	shift []float64
}

func newBatchNorm(lf layerFile, in int) (*batchNorm, error) {
	for name, v := range map[string][]float64{
		"gamma":           lf.Gamma,
		"beta":            lf.Beta,
		"moving_mean":     lf.MovingMean,
		"moving_variance": lf.MovingVariance,
	} {
		if len(v) != in {
			return nil, fmt.Errorf("%s has %d values, want %d", name, len(v), in)
		}
		if err := allFinite(v); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}
	eps := defaultBatchNormEpsilon
	if lf.Epsilon != nil {
		eps = *lf.Epsilon
	}
	if eps < 0 || !finite(eps) {
		return nil, fmt.Errorf("epsilon must be a non-negative number")
	}
	bn := &batchNorm{scale: make([]float64, in), shift: make([]float64, in)}
	for i := range in {
		v := lf.MovingVariance[i] + eps
		if v <= 0 {
			return nil, fmt.Errorf("moving_variance[%d]+epsilon must be positive", i)
		}
		bn.scale[i] = lf.Gamma[i] / math.Sqrt(v)
		bn.shift[i] = lf.Beta[i] - lf.MovingMean[i]*bn.scale[i]
	}
	return bn, nil
}

func (b *batchNorm) width() int { return len(b.scale) }

func (b *batchNorm) forward(in []float64) []float64 {
	out := make([]float64, len(in))
	for i, x := range in {
		out[i] = x*b.scale[i] + b.shift[i]
	}
	return out
}

func activation(name string) (func(float64) float64, error) {
	switch name {
	case "", "linear":
		return func(x float64) float64 { return x }, nil
	case "relu":
		return func(x float64) float64 { return math.Max(0, x) }, nil
	case "sigmoid":
		return sigmoid, nil
	case "tanh":
		return math.Tanh, nil
	default:
		return nil, fmt.Errorf("unknown activation %q", name)
	}
}

func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

func allFinite(v []float64) error {
	for i, x := range v {
		if !finite(x) {
			return fmt.Errorf("%w at index %d", ErrNonFinite, i)
		}
	}
	return nil
}
