// Package scoring loads the fitted scaler and trained model produced by the
// training pipeline and exposes them as read-only scoring artifacts.
package scoring

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/okian/dropout/internal/domain/model"
	"github.com/okian/dropout/pkg/logger"
)

// Model formats.
const (
	FormatAuto = "auto"
	FormatJSON = "json"
	FormatONNX = "onnx"
)

// Artifact names used in startup errors.
const (
	ArtifactModel   = "model"
	ArtifactScaler  = "scaler"
	ArtifactDataset = "dataset"
)

// Scaler standardizes feature vectors with parameters fixed at fit time.
type Scaler interface {
	Transform(fv model.FeatureVector) (model.ScaledFeatureVector, error)
	Version() string
}

// Model maps a scaled feature vector to a dropout probability.
// Implementations must be safe for concurrent use.
type Model interface {
	Predict(ctx context.Context, x model.ScaledFeatureVector) (float64, error)
	Version() string
	Format() string
	Close() error
}

// Option applies a configuration option to Load.
type Option func(*loadOptions)

type loadOptions struct {
	modelPath   string
	scalerPath  string
	format      string
	onnxLibPath string
	log         logger.Logger
}

// WithModelPath sets the model artifact location.
func WithModelPath(path string) Option {
	return func(o *loadOptions) { o.modelPath = path }
}

// WithScalerPath sets the scaler artifact location.
func WithScalerPath(path string) Option {
	return func(o *loadOptions) { o.scalerPath = path }
}

// WithFormat selects the model format: auto, json or onnx.
func WithFormat(format string) Option {
	return func(o *loadOptions) {
		if format != "" {
			o.format = strings.ToLower(format)
		}
	}
}

// WithONNXLibraryPath sets the onnxruntime shared library location.
func WithONNXLibraryPath(path string) Option {
	return func(o *loadOptions) { o.onnxLibPath = path }
}

// WithLogger sets the logger used while loading.
func WithLogger(l logger.Logger) Option {
	return func(o *loadOptions) {
		if l != nil {
			o.log = l
		}
	}
}

// Artifacts bundles the scaler and model. Built once at startup and
// read-only afterwards.
type Artifacts struct {
	Scaler Scaler
	Model  Model
}

// Load reads both artifacts. Every failure is a *StartupError.
func Load(ctx context.Context, opts ...Option) (*Artifacts, error) {
	o := loadOptions{format: FormatAuto, log: logger.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	if err := RequireFile(ArtifactScaler, o.scalerPath); err != nil {
		return nil, err
	}
	if err := RequireFile(ArtifactModel, o.modelPath); err != nil {
		return nil, err
	}

	scaler, err := LoadStandardScaler(o.scalerPath)
	if err != nil {
		return nil, &StartupError{Artifact: ArtifactScaler, Path: o.scalerPath, Err: err}
	}

	format, err := ResolveFormat(o.format, o.modelPath)
	if err != nil {
		return nil, &StartupError{Artifact: ArtifactModel, Path: o.modelPath, Err: err}
	}

	var m Model
	switch format {
	case FormatONNX:
		lib := o.onnxLibPath
		if lib == "" {
			lib = filepath.Join(filepath.Dir(o.modelPath), "libonnxruntime.so")
		}
		m, err = LoadONNX(o.modelPath, lib)
	default:
		m, err = LoadNetwork(o.modelPath)
	}
	if err != nil {
		return nil, &StartupError{Artifact: ArtifactModel, Path: o.modelPath, Err: err}
	}

	o.log.Info(ctx, "scoring artifacts loaded",
		logger.String("model_path", o.modelPath),
		logger.String("model_format", m.Format()),
		logger.String("model_version", m.Version()),
		logger.String("scaler_path", o.scalerPath),
		logger.String("scaler_version", scaler.Version()),
	)

	return &Artifacts{Scaler: scaler, Model: m}, nil
}

// Close releases model resources.
func (a *Artifacts) Close() error {
	if a == nil || a.Model == nil {
		return nil
	}
	return a.Model.Close()
}

// ResolveFormat picks the concrete model format. auto selects onnx for
// .onnx files and json otherwise.
func ResolveFormat(format, path string) (string, error) {
	switch strings.ToLower(format) {
	case "", FormatAuto:
		if strings.EqualFold(filepath.Ext(path), ".onnx") {
			return FormatONNX, nil
		}
		return FormatJSON, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatONNX:
		return FormatONNX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// RequireFile reports a *StartupError unless path names a regular file.
func RequireFile(artifact, path string) error {
	if path == "" {
		return &StartupError{Artifact: artifact, Path: path, Err: ErrArtifactMissing}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &StartupError{Artifact: artifact, Path: path, Err: ErrArtifactMissing}
		}
		return &StartupError{Artifact: artifact, Path: path, Err: err}
	}
	if info.IsDir() {
		return &StartupError{Artifact: artifact, Path: path, Err: fmt.Errorf("%w: is a directory", ErrArtifactMissing)}
	}
	return nil
}
