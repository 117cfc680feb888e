package engine

import (
	"context"
	"fmt"

	"github.com/decisionstack/decision-engine/internal/models"
)

// DecisionStage synthesizes a candidate action and confidence from the
// signal features. It is a pure function of its inputs.
type DecisionStage struct {
	pack *PolicyPack
}

// NewDecisionStage creates the candidate synthesis stage.
func NewDecisionStage(pack *PolicyPack) *DecisionStage {
	if pack == nil {
		pack = DefaultPolicyPack()
	}
	return &DecisionStage{pack: pack}
}

func (s *DecisionStage) Name() models.StageName {
	return models.StageDecision
}

// Execute maps the anomaly magnitude onto the triage playbook.
func (s *DecisionStage) Execute(_ context.Context, sc *StageContext) (string, error) {
	sig := sc.Signal
	if sig == nil {
		return "", fmt.Errorf("decision stage requires signal features")
	}

	t := s.pack.Thresholds
	var (
		action     models.Action
		urgency    string
		confidence float64
	)
	switch {
	case sig.Magnitude >= t.SEV1MinMagnitude:
		action = models.ActionDeclareSev1
		urgency = "critical"
		confidence = 0.55 + 0.4*sig.Magnitude
	case sig.Magnitude >= t.EscalateMagnitude:
		action = models.ActionInvestigate
		urgency = "high"
		confidence = 0.55 + 0.4*sig.Magnitude
	default:
		action = models.ActionMonitor
		urgency = "low"
		confidence = 0.9 - 0.35*sig.Magnitude
	}

	sc.Candidate = &Candidate{
		Action:     action,
		Confidence: clamp(confidence, 0, 1),
		Urgency:    urgency,
		Details:    s.pack.Playbook(action).Details,
	}

	thought := fmt.Sprintf(
		"Mapped anomaly magnitude %.2f to triage action %s (%s urgency, confidence %.2f).",
		sig.Magnitude, action, urgency, sc.Candidate.Confidence,
	)
	return thought, nil
}
