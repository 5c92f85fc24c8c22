package loadtest

import (
	"context"
	"net/http"
	"time"

	"github.com/okian/dropout/internal/domain/risk"
	"github.com/okian/dropout/internal/domain/types"
	"github.com/okian/dropout/internal/domain/validation"
	"github.com/okian/dropout/pkg/logger"
)

// verifyOutcomes checks every response against the local validation and
// tiering rules and fills the report counters.
func verifyOutcomes(ctx context.Context, outcomes []Outcome, report *Report, verbose bool, log logger.Logger) {
	log.Info(ctx, "verifying responses", logger.Int("outcomes", len(outcomes)))

	for _, o := range outcomes {
		if o.Err != nil {
			report.Failed++
			if verbose {
				log.Warn(ctx, "request failed", logger.Int("case", o.Case.Index), logger.Error(o.Err))
			}
			continue
		}
		report.Submitted++

		var problem string
		switch o.StatusCode {
		case http.StatusOK:
			report.Succeeded++
			problem = checkPrediction(o)
			if problem == "" {
				report.TierCounts[o.Prediction.Tier]++
			}
		case http.StatusBadRequest:
			report.Rejected++
			problem = checkRejection(o)
		default:
			problem = "unexpected status"
		}

		if problem != "" {
			report.Mismatches++
			if verbose {
				log.Warn(ctx, "response mismatch",
					logger.Int("case", o.Case.Index),
					logger.Int("status", o.StatusCode),
					logger.String("problem", problem),
					logger.String("defect", o.Case.Defect),
					logger.String("field", o.Case.Field),
				)
			}
		}
	}
}

// checkPrediction returns a description of what is wrong with a 200
// response, or "" when it is consistent.
func checkPrediction(o Outcome) string {
	if !o.Case.Valid {
		return "invalid payload was accepted"
	}
	p := o.Prediction
	if p == nil {
		return "missing prediction body"
	}
	if p.Probability < 0 || p.Probability > 1 {
		return "probability outside [0,1]"
	}
	tier, err := risk.ParseTier(p.Tier)
	if err != nil {
		return err.Error()
	}
	if tier != risk.Classify(p.Probability) {
		return "tier does not match probability"
	}
	if _, err := time.Parse(types.TimestampLayout, p.Timestamp); err != nil {
		return "timestamp is not RFC 3339"
	}
	return ""
}

// checkRejection returns a description of what is wrong with a 400
// response, or "" when it names the expected defect.
func checkRejection(o Outcome) string {
	if o.Case.Valid {
		return "valid payload was rejected"
	}
	r := o.Rejection
	if r == nil {
		return "missing error envelope"
	}
	if r.Error != types.TitleInvalidData {
		return "unexpected error title"
	}
	want := validation.Validate(o.Case.Payload)
	if want.Field != o.Case.Field {
		return "generator defect not detected locally"
	}
	if r.Message != want.Message {
		return "unexpected error message"
	}
	return ""
}

// verifyDeterminism resubmits up to n accepted payloads and expects
// identical probabilities and tiers.
func verifyDeterminism(ctx context.Context, client *HTTPClient, outcomes []Outcome, n int, report *Report, log logger.Logger) {
	for _, o := range outcomes {
		if report.Resubmitted >= n {
			break
		}
		if o.Err != nil || o.StatusCode != http.StatusOK || o.Prediction == nil {
			continue
		}
		report.Resubmitted++

		status, again, _, err := client.predict(ctx, o.Case.Payload)
		if err != nil || status != http.StatusOK || again == nil ||
			again.Probability != o.Prediction.Probability || again.Tier != o.Prediction.Tier {
			report.NonDeterminism++
			log.Warn(ctx, "resubmitted payload scored differently",
				logger.Int("case", o.Case.Index),
				logger.Int("status", status),
				logger.Float64("first", o.Prediction.Probability),
			)
		}
	}
	log.Info(ctx, "determinism check finished",
		logger.Int("resubmitted", report.Resubmitted),
		logger.Int("non_deterministic", report.NonDeterminism),
	)
}
