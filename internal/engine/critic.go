package engine

import (
	"context"
	"fmt"

	"github.com/decisionstack/decision-engine/internal/models"
)

// cryWolfPenalty shaves confidence from SEV1 candidates to price in the cost
// of a false mobilization.
const cryWolfPenalty = 0.02

// CriticStage reviews the candidate decision against the signal features and
// the governance thresholds. It may flag the candidate for human review and
// adjust confidence, but never escalates the action.
type CriticStage struct {
	pack *PolicyPack
}

// NewCriticStage creates the review stage.
func NewCriticStage(pack *PolicyPack) *CriticStage {
	if pack == nil {
		pack = DefaultPolicyPack()
	}
	return &CriticStage{pack: pack}
}

func (s *CriticStage) Name() models.StageName {
	return models.StageCritic
}

func (s *CriticStage) Execute(_ context.Context, sc *StageContext) (string, error) {
	cand := sc.Candidate
	sig := sc.Signal
	if cand == nil || sig == nil {
		return "", fmt.Errorf("critic stage requires signal features and a candidate")
	}

	action := cand.Action
	confidence := cand.Confidence
	var risks []string

	switch cand.Action {
	case models.ActionDeclareSev1:
		risks = append(risks, "a transient spike would make this a costly false mobilization")
		confidence -= cryWolfPenalty
	case models.ActionMonitor:
		risks = append(risks, "a hidden cascading failure could go unwatched")
	}

	flagged := false
	if confidence < s.pack.Thresholds.ReviewMinConfidence {
		flagged = true
		risks = append(risks, fmt.Sprintf("confidence %.2f below review threshold %.2f", confidence, s.pack.Thresholds.ReviewMinConfidence))
	}
	// The built-in signal stage floors a critical-hint magnitude at 1.0,
	// which always clears the declaration threshold. This conflict check
	// guards signal features computed outside that stage.
	if sig.SeverityHint == models.SeverityCritical &&
		(cand.Action == models.ActionMonitor || cand.Action == models.ActionInvestigate) &&
		sig.Magnitude < s.pack.Thresholds.SEV1MinMagnitude {
		flagged = true
		risks = append(risks, "critical severity hint conflicts with a non-escalating candidate")
	}
	if flagged {
		action = models.ActionNeedsReview
	}

	sc.Review = &Review{
		Action:     action,
		Confidence: clamp(confidence, 0, 1),
		Flagged:    flagged,
		Risks:      risks,
	}

	verdictNote := "candidate holds"
	if flagged {
		verdictNote = "routed to human review"
	}
	thought := fmt.Sprintf(
		"Validated %s against risk appetite: %d risk(s) noted, adjusted confidence %.2f, %s.",
		cand.Action, len(risks), sc.Review.Confidence, verdictNote,
	)
	return thought, nil
}
