package loadtest

import (
	"time"

	"github.com/okian/dropout/internal/domain/types"
	"github.com/okian/dropout/pkg/logger"
)

// Config holds configuration for a load test run.
type Config struct {
	BaseURL      string        // Base URL of the service
	Requests     int           // Number of prediction requests to submit
	InvalidRatio float64       // Fraction of requests that are deliberately invalid
	Workers      int           // Number of concurrent workers
	Timeout      time.Duration // HTTP request timeout
	LogFile      string        // Log file for test output
	Verbose      bool          // Log every mismatch
	Seed         uint64        // Generator seed; 0 picks one from the clock
	ResubmitN    int           // Valid payloads resubmitted to check determinism
	Logger       logger.Logger // Defaults to a no-op logger
}

// Case is one generated request and what the service should answer.
type Case struct {
	Index   int
	Payload map[string]any
	Valid   bool
	Field   string // field the service must reject, empty for valid cases
	Defect  string // kind of defect injected, empty for valid cases
}

// Outcome is what the service answered for a Case.
type Outcome struct {
	Case       Case
	StatusCode int
	Prediction *types.PredictResponse
	Rejection  *types.ErrorResponse
	Err        error
	Latency    time.Duration
}

// Report holds run statistics.
type Report struct {
	RunID          string
	Generated      int
	Submitted      int
	Succeeded      int
	Rejected       int
	Failed         int
	Mismatches     int
	Resubmitted    int
	NonDeterminism int
	TierCounts     map[string]int
	Stats          *types.StatsResponse
	StartTime      time.Time
	EndTime        time.Time
	Duration       time.Duration
}
