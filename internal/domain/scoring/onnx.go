package scoring

import (
	"context"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/okian/dropout/internal/domain/model"
)

// ortEnv manages global ONNX Runtime initialization (process-wide singleton).
var ortEnv struct {
	once sync.Once
	err  error
}

// initORT initializes the ONNX Runtime environment. Only the first call has
// any effect.
func initORT(libPath string) error {
	ortEnv.once.Do(func() {
		ort.SetSharedLibraryPath(libPath)
		ortEnv.err = ort.InitializeEnvironment()
	})
	return ortEnv.err
}

// ONNXModel runs an exported network through onnxruntime. It expects one
// float32 input of shape [N,3] and reads the first output of shape [N,1].
type ONNXModel struct {
	session    *ort.DynamicAdvancedSession
	inputName  string
	outputName string
	version    string
}

// LoadONNX opens the model at path using the runtime library at libPath.
func LoadONNX(path, libPath string) (*ONNXModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := initORT(libPath); err != nil {
		return nil, fmt.Errorf("onnx: failed to initialize runtime: %w", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to read model info: %w", err)
	}
	if len(inputs) != 1 {
		return nil, invalidf("onnx model has %d inputs, want 1", len(inputs))
	}
	if len(outputs) == 0 {
		return nil, invalidf("onnx model has no outputs")
	}
	in := inputs[0]
	if dims := in.Dimensions; len(dims) != 2 || (dims[1] != model.NumFeatures && dims[1] != -1) {
		return nil, invalidf("onnx input %q has shape %v, want [N,%d]", in.Name, dims, model.NumFeatures)
	}
	if in.DataType != ort.TensorElementDataTypeFloat {
		return nil, invalidf("onnx input %q is %v, want float32", in.Name, in.DataType)
	}
	out := outputs[0]

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session options: %w", err)
	}
	defer opts.Destroy()
	_ = opts.SetIntraOpNumThreads(1)
	_ = opts.SetInterOpNumThreads(1)

	session, err := ort.NewDynamicAdvancedSession(path, []string{in.Name}, []string{out.Name}, opts)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session: %w", err)
	}

	return &ONNXModel{
		session:    session,
		inputName:  in.Name,
		outputName: out.Name,
		version:    contentVersion(data),
	}, nil
}

// Predict runs a single-row inference. Like Network it does not observe
// ctx; a session run is short and not interruptible.
func (m *ONNXModel) Predict(_ context.Context, x model.ScaledFeatureVector) (float64, error) {
	row := make([]float32, model.NumFeatures)
	for i, v := range x {
		row[i] = float32(v)
	}

	tIn, err := ort.NewTensor(ort.NewShape(1, model.NumFeatures), row)
	if err != nil {
		return 0, fmt.Errorf("onnx: failed to create input tensor: %w", err)
	}
	defer tIn.Destroy()

	tOut, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		return 0, fmt.Errorf("onnx: failed to create output tensor: %w", err)
	}
	defer tOut.Destroy()

	if err := m.session.Run([]ort.Value{tIn}, []ort.Value{tOut}); err != nil {
		return 0, fmt.Errorf("onnx: inference failed: %w", err)
	}
	return float64(tOut.GetData()[0]), nil
}

// Version is the content hash of the model file.
func (m *ONNXModel) Version() string { return m.version }

// Format reports FormatONNX.
func (m *ONNXModel) Format() string { return FormatONNX }

// Close releases the ONNX session resources.
func (m *ONNXModel) Close() error {
	return m.session.Destroy()
}
