// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(...) initializer to build a Config with defaults.
// - All future functions must accept context.Context as the first parameter.
// - External errors must be wrapped via this package's error kinds.
package config

// Default values.
const (
	defaultAddr                = ":5000"
	defaultModelPath           = "ml/model/dropout_model.json"
	defaultScalerPath          = "ml/model/scaler.json"
	defaultDatasetPath         = "ml/data/student_data.csv"
	defaultPredictionCacheSize = 1024
	defaultMaxBodyBytes        = 1 << 20
	defaultMaxRecentLimit      = 100
	defaultLogMaxSizeMB        = 100
	defaultLogMaxBackups       = 5
	defaultLogMaxAgeDays       = 28
	defaultAuditWorkers        = 1
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoder: console or json.
	LogFormat string `koanf:"log_format"`

	// LogFile enables a rotating log file next to stdout when set.
	LogFile       string `koanf:"log_file"`
	LogMaxSizeMB  int    `koanf:"log_max_size_mb"`
	LogMaxBackups int    `koanf:"log_max_backups"`
	LogMaxAgeDays int    `koanf:"log_max_age_days"`

	// Addr configures the HTTP listen address, e.g. ":5000".
	Addr string `koanf:"addr"`

	// ModelPath points at the trained model artifact.
	ModelPath string `koanf:"model_path"`

	// ModelFormat is auto, json or onnx. auto picks by file extension.
	ModelFormat string `koanf:"model_format"`

	// ScalerPath points at the fitted scaler artifact.
	ScalerPath string `koanf:"scaler_path"`

	// ONNXLibraryPath locates the onnxruntime shared library. Empty means
	// libonnxruntime.so next to the model file.
	ONNXLibraryPath string `koanf:"onnx_library_path"`

	// DatasetPath is the historical CSV used by GET /stats.
	DatasetPath string `koanf:"dataset_path"`

	// DatasetEncoding is utf-8, latin1 or windows-1252.
	DatasetEncoding string `koanf:"dataset_encoding"`

	// AuditDBPath enables the SQLite prediction audit trail when set.
	AuditDBPath string `koanf:"audit_db_path"`

	// AuditQueueSize moves audit writes off the request path through a
	// bounded queue. 0 writes synchronously.
	AuditQueueSize int `koanf:"audit_queue_size"`

	// AuditWorkers is the number of background audit writers.
	AuditWorkers int `koanf:"audit_workers"`

	// PredictionCacheSize bounds the exact-match prediction cache. 0 disables it.
	PredictionCacheSize int `koanf:"prediction_cache_size"`

	// MaxBodyBytes caps POST /predict request bodies.
	MaxBodyBytes int64 `koanf:"max_body_bytes"`

	// AllowedOrigins lists CORS origins; "*" allows any.
	AllowedOrigins []string `koanf:"allowed_origins"`

	// MaxRecentLimit caps GET /predictions?limit.
	MaxRecentLimit int `koanf:"max_recent_limit"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "console",
		LogMaxSizeMB:        defaultLogMaxSizeMB,
		LogMaxBackups:       defaultLogMaxBackups,
		LogMaxAgeDays:       defaultLogMaxAgeDays,
		Addr:                defaultAddr,
		ModelPath:           defaultModelPath,
		ModelFormat:         "auto",
		ScalerPath:          defaultScalerPath,
		DatasetPath:         defaultDatasetPath,
		DatasetEncoding:     "utf-8",
		AuditWorkers:        defaultAuditWorkers,
		PredictionCacheSize: defaultPredictionCacheSize,
		MaxBodyBytes:        defaultMaxBodyBytes,
		AllowedOrigins:      []string{"*"},
		MaxRecentLimit:      defaultMaxRecentLimit,
	}
}
