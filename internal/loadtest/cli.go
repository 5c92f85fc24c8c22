package loadtest

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/okian/dropout/pkg/logger"
)

// SetupLogging configures logging to both console and file.
// If logFile is empty, a timestamped filename is generated.
func SetupLogging(logFile string, verbose bool) error {
	if logFile == "" {
		timestamp := time.Now().Format("20060102_150405")
		logFile = "load_test_" + timestamp + ".log"
	}

	if err := logger.Init(logger.WithFile(logFile, 0, 0, 0)); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		_ = logger.SetLevelString("debug")
	}
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return nil
}

// ShowHelp prints usage information for the load test tool.
func ShowHelp() {
	_, _ = os.Stdout.WriteString(`Dropout Risk Load Test Tool
===========================

Submits synthetic student records to a running dropout risk service and
checks that every answer is consistent: accepted records carry a tier that
matches their probability, rejected records name the injected defect, and
resubmitted records score identically.

Usage:
  go run ./cmd/load-test [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:5000")
  -requests int
        Number of prediction requests to submit (default 1000)
  -invalid-ratio float
        Fraction of requests carrying a deliberate defect (default 0.2)
  -workers int
        Number of concurrent workers (default CPU cores * 2)
  -timeout duration
        HTTP request timeout (default 30s)
  -seed uint
        Generator seed; 0 picks one from the clock (default 0)
  -log string
        Log file for test output (default: load_test_TIMESTAMP.log)
  -verbose
        Log every mismatch
  -help
        Show this help message

Examples:
  # Test with default settings
  go run ./cmd/load-test

  # Heavier run against another host
  go run ./cmd/load-test -requests 20000 -workers 32 -url http://localhost:8080

  # Reproducible run with only valid records
  go run ./cmd/load-test -seed 42 -invalid-ratio 0
`)
}
