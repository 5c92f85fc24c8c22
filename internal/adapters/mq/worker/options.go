package worker

import (
	"time"

	"github.com/okian/dropout/pkg/logger"
)

// Option applies a configuration option to the AuditWorker.
type Option func(*AuditWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *AuditWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *AuditWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithWriteTimeout bounds a single store write.
func WithWriteTimeout(d time.Duration) Option {
	return func(w *AuditWorker) {
		if d > 0 {
			w.writeTimeout = d
		}
	}
}
