package engine

import (
	"context"
	"fmt"

	"github.com/decisionstack/decision-engine/internal/models"
)

// sev1DeltaPct is the metric deviation treated as a full-magnitude anomaly.
const sev1DeltaPct = 400.0

// SignalStage normalizes the incoming incident into structured signal
// features. It is deterministic for a given incident.
type SignalStage struct{}

// NewSignalStage creates the signal extraction stage.
func NewSignalStage() *SignalStage {
	return &SignalStage{}
}

func (s *SignalStage) Name() models.StageName {
	return models.StageSignal
}

// Execute validates the incident shape and derives the anomaly magnitude.
// Malformed incidents abort the pipeline with INVALID_INPUT.
func (s *SignalStage) Execute(_ context.Context, sc *StageContext) (string, error) {
	in := sc.Incident

	if in.Service == "" {
		return "", Abort(models.ErrCodeInvalidInput, "incident is missing service")
	}
	if in.Metric == "" {
		return "", Abort(models.ErrCodeInvalidInput, "incident is missing metric")
	}
	if in.DeltaPct < 0 {
		return "", Abort(models.ErrCodeInvalidInput, "delta_pct must be non-negative, got %.2f", in.DeltaPct)
	}

	hint, ok := severityScore(in.Severity)
	if !ok {
		return "", Abort(models.ErrCodeInvalidInput, "unrecognized severity hint %q", in.Severity)
	}

	magnitude := clamp(in.DeltaPct/sev1DeltaPct, 0, 1)
	if hint > magnitude {
		magnitude = hint
	}

	observations := []string{
		fmt.Sprintf("%s deviated %.0f%% on %s", in.Metric, in.DeltaPct, in.Service),
	}
	if in.Severity != "" {
		observations = append(observations, fmt.Sprintf("submitter severity hint: %s", in.Severity))
	}

	sc.Signal = &SignalFeatures{
		Service:      in.Service,
		Component:    in.Metric,
		Magnitude:    magnitude,
		SeverityHint: in.Severity,
		Observations: observations,
	}

	thought := fmt.Sprintf(
		"Observed %.0f%% deviation of %s on %s; normalized anomaly magnitude %.2f.",
		in.DeltaPct, in.Metric, in.Service, magnitude,
	)
	return thought, nil
}

// severityScore maps qualitative hints to the 0-1 scale. An empty hint scores
// zero; unknown labels are rejected.
func severityScore(sev models.Severity) (float64, bool) {
	switch sev {
	case "":
		return 0, true
	case models.SeverityLow:
		return 0.2, true
	case models.SeverityMedium:
		return 0.5, true
	case models.SeverityHigh:
		return 0.8, true
	case models.SeverityCritical:
		return 1.0, true
	default:
		return 0, false
	}
}
