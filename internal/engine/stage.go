package engine

import (
	"context"
	"fmt"

	"github.com/decisionstack/decision-engine/internal/models"
)

// SignalFeatures is the normalized view of an incident produced by the
// signal stage.
type SignalFeatures struct {
	Service      string
	Component    string
	Magnitude    float64
	SeverityHint models.Severity
	Observations []string
}

// Candidate is the decision stage's proposed action.
type Candidate struct {
	Action     models.Action
	Confidence float64
	Urgency    string
	Details    string
}

// Review is the critic stage's adjusted view of the candidate.
type Review struct {
	Action     models.Action
	Confidence float64
	Flagged    bool
	Risks      []string
}

// Verdict is the supervisor's final ruling.
type Verdict struct {
	Action     models.Action
	Confidence float64
	Impact     models.Impact
}

// StageContext accumulates the state built by prior stages. A stage writes
// only its own slot; everything set before it is read-only.
type StageContext struct {
	Incident  models.Incident
	Signal    *SignalFeatures
	Candidate *Candidate
	Review    *Review
	Verdict   *Verdict
}

// Stage is one step of the reasoning pipeline. Execute consumes the
// accumulated context, records the stage's contribution on it, and returns
// the trace thought for the audit trail. Returning an *AbortError
// short-circuits the pipeline and fails the job.
type Stage interface {
	Name() models.StageName
	Execute(ctx context.Context, sc *StageContext) (string, error)
}

// AbortError deliberately stops the pipeline. The code and reason become the
// failed job's client-visible error.
type AbortError struct {
	Code   models.ErrorCode
	Reason string
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

// Abort builds an AbortError with a formatted reason.
func Abort(code models.ErrorCode, format string, args ...any) error {
	return &AbortError{Code: code, Reason: fmt.Sprintf(format, args...)}
}

func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
