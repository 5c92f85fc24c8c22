package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/dropout/internal/loadtest"
	"github.com/okian/dropout/pkg/logger"
)

// Default configuration constants.
const (
	defaultRequests     = 1000
	defaultInvalidRatio = 0.2
	defaultWorkers      = 2 // multiplier for runtime.NumCPU()
	defaultTimeout      = 30 * time.Second
	defaultTestTimeout  = 10 * time.Minute
)

func main() {
	var (
		baseURL      = flag.String("url", "http://localhost:5000", "Base URL of the service")
		requests     = flag.Int("requests", defaultRequests, "Number of prediction requests to submit")
		invalidRatio = flag.Float64("invalid-ratio", defaultInvalidRatio, "Fraction of requests carrying a deliberate defect")
		workers      = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		timeout      = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		seed         = flag.Uint64("seed", 0, "Generator seed; 0 picks one from the clock")
		logFile      = flag.String("log", "", "Log file for test output (default: load_test_TIMESTAMP.log)")
		verbose      = flag.Bool("verbose", false, "Log every mismatch")
		help         = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		loadtest.ShowHelp()
		return
	}

	if err := loadtest.SetupLogging(*logFile, *verbose); err != nil {
		_, _ = os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), defaultTestTimeout)
	defer cancel()

	config := &loadtest.Config{
		BaseURL:      *baseURL,
		Requests:     *requests,
		InvalidRatio: *invalidRatio,
		Workers:      *workers,
		Timeout:      *timeout,
		LogFile:      *logFile,
		Verbose:      *verbose,
		Seed:         *seed,
		Logger:       logger.Get(),
	}

	if _, err := loadtest.Run(ctx, config); err != nil {
		_, _ = os.Stderr.WriteString("Test failed: " + err.Error() + "\n")
		_ = logger.Sync()
		cancel()
		os.Exit(1)
	}
}
