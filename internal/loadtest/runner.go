package loadtest

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/dropout/internal/domain/types"
	"github.com/okian/dropout/pkg/logger"
)

// Run executes the complete load test workflow.
func Run(ctx context.Context, config *Config) (*Report, error) {
	report := &Report{
		RunID:      uuid.NewString(),
		TierCounts: map[string]int{},
		StartTime:  time.Now(),
	}
	log := config.Logger
	if log == nil {
		log = logger.Nop()
	}
	log = log.Named("loadtest")
	client := newHTTPClient(config.BaseURL, config.Timeout)

	log.Info(ctx, "starting dropout load test",
		logger.String("run_id", report.RunID),
		logger.String("url", config.BaseURL),
		logger.Int("requests", config.Requests),
		logger.Int("workers", config.Workers),
		logger.Float64("invalid_ratio", config.InvalidRatio),
	)

	// Step 1: Check service health
	if err := checkServiceHealth(ctx, client); err != nil {
		return report, err
	}
	log.Info(ctx, "service is healthy")

	// Step 2: Generate payloads
	cases := NewGenerator(config.Seed, config.InvalidRatio).Generate(config.Requests)
	report.Generated = len(cases)

	// Step 3: Submit concurrently
	outcomes := submitCases(ctx, client, config, cases, log)

	// Step 4: Verify responses
	verifyOutcomes(ctx, outcomes, report, config.Verbose, log)

	// Step 5: Resubmit a sample of valid payloads
	resubmit := config.ResubmitN
	if resubmit <= 0 {
		resubmit = DefaultResubmit
	}
	verifyDeterminism(ctx, client, outcomes, resubmit, report, log)

	// Step 6: Fetch dataset statistics
	var st types.StatsResponse
	if err := client.getJSON(ctx, "/stats", &st); err != nil {
		log.Warn(ctx, "stats unavailable", logger.Error(err))
	} else {
		report.Stats = &st
	}

	report.EndTime = time.Now()
	report.Duration = report.EndTime.Sub(report.StartTime)
	displayFinalStats(ctx, report, log)

	if report.Failed > 0 || report.Mismatches > 0 || report.NonDeterminism > 0 {
		return report, fmt.Errorf("%w: %d failed, %d mismatched, %d non-deterministic",
			ErrInconsistent, report.Failed, report.Mismatches, report.NonDeterminism)
	}
	return report, nil
}

// checkServiceHealth checks if the service is healthy.
func checkServiceHealth(ctx context.Context, client *HTTPClient) error {
	var health types.HealthResponse
	if err := client.getJSON(ctx, "/health", &health); err != nil {
		return fmt.Errorf("%w: %v", ErrUnhealthy, err)
	}
	if health.Status != "healthy" {
		return fmt.Errorf("%w: status %q", ErrUnhealthy, health.Status)
	}
	return nil
}

// submitCases posts every case using a worker pool. Outcomes are indexed
// like cases.
func submitCases(ctx context.Context, client *HTTPClient, config *Config, cases []Case, log logger.Logger) []Outcome {
	workers := config.Workers
	if workers <= 0 {
		workers = 1
	}
	log.Info(ctx, "submitting predictions", logger.Int("cases", len(cases)), logger.Int("workers", workers))

	outcomes := make([]Outcome, len(cases))
	var submitted, ok, rejected, failed atomic.Int64

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(ProgressInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				log.Info(ctx, "progress",
					logger.Int("submitted", int(submitted.Load())),
					logger.Int("total", len(cases)),
					logger.Int("ok", int(ok.Load())),
					logger.Int("rejected", int(rejected.Load())),
					logger.Int("failed", int(failed.Load())),
				)
			}
		}
	}()

	caseChan := make(chan Case, workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range caseChan {
				start := time.Now()
				status, pred, rej, err := client.predict(ctx, c.Payload)
				outcomes[c.Index] = Outcome{
					Case:       c,
					StatusCode: status,
					Prediction: pred,
					Rejection:  rej,
					Err:        err,
					Latency:    time.Since(start),
				}

				submitted.Add(1)
				switch {
				case err != nil:
					failed.Add(1)
				case status == http.StatusOK:
					ok.Add(1)
				default:
					rejected.Add(1)
				}
			}
		}()
	}

	func() {
		defer close(caseChan)
		for _, c := range cases {
			select {
			case <-ctx.Done():
				return
			case caseChan <- c:
			}
		}
	}()
	wg.Wait()
	close(done)

	// Cases never sent because ctx ended.
	for i := range outcomes {
		if outcomes[i].StatusCode == 0 && outcomes[i].Err == nil {
			outcomes[i] = Outcome{Case: cases[i], Err: ctx.Err()}
		}
	}
	return outcomes
}

// displayFinalStats logs the final run summary.
func displayFinalStats(ctx context.Context, report *Report, log logger.Logger) {
	throughput := 0.0
	if secs := report.Duration.Seconds(); secs > 0 {
		throughput = float64(report.Submitted) / secs
	}
	fields := []logger.Field{
		logger.String("run_id", report.RunID),
		logger.Duration("duration", report.Duration),
		logger.Int("generated", report.Generated),
		logger.Int("submitted", report.Submitted),
		logger.Int("succeeded", report.Succeeded),
		logger.Int("rejected", report.Rejected),
		logger.Int("failed", report.Failed),
		logger.Int("mismatches", report.Mismatches),
		logger.Int("resubmitted", report.Resubmitted),
		logger.Int("non_deterministic", report.NonDeterminism),
		logger.Float64("requests_per_second", throughput),
		logger.Any("tiers", report.TierCounts),
	}
	if report.Stats != nil {
		fields = append(fields,
			logger.Int("dataset_students", report.Stats.Total),
			logger.Float64("dataset_dropout_rate", report.Stats.DropoutRate),
		)
	}
	log.Info(ctx, "load test finished", fields...)
}
