package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/decisionstack/decision-engine/internal/models"
)

// SupervisorStage is the final gate. It applies the governance thresholds,
// finalizes the action, and computes the impact estimate. It is the only
// stage authorized to finalize DECLARE_SEV1_INCIDENT.
type SupervisorStage struct {
	pack *PolicyPack
}

// NewSupervisorStage creates the supervisory gate stage.
func NewSupervisorStage(pack *PolicyPack) *SupervisorStage {
	if pack == nil {
		pack = DefaultPolicyPack()
	}
	return &SupervisorStage{pack: pack}
}

func (s *SupervisorStage) Name() models.StageName {
	return models.StageSupervisor
}

func (s *SupervisorStage) Execute(_ context.Context, sc *StageContext) (string, error) {
	sig, cand, rev := sc.Signal, sc.Candidate, sc.Review
	if sig == nil || cand == nil || rev == nil {
		return "", fmt.Errorf("supervisor stage requires all prior contributions")
	}

	t := s.pack.Thresholds
	action := rev.Action
	confidence := rev.Confidence
	var notes []string

	// A critic flag can be overridden when confidence clears the
	// auto-declare bar; mediocre or uncertain candidates stay flagged.
	if rev.Flagged && confidence >= t.AutoDeclareMinConfidence {
		action = cand.Action
		notes = append(notes, "overrode review flag under policy thresholds")
	}

	if action == models.ActionDeclareSev1 {
		if confidence < t.AutoDeclareMinConfidence || sig.Magnitude < t.SEV1MinMagnitude {
			action = models.ActionInvestigate
			notes = append(notes, "declaration gate not met, downgraded to investigation")
		} else {
			notes = append(notes, "declaration gate met")
		}
	}

	playbook := s.pack.Playbook(action)
	scale := 0.5 + 0.5*sig.Magnitude
	impact := models.Impact{
		EstimatedTimeSavedMinutes:   playbook.TimeSavedMinutes * scale,
		EstimatedRiskReductionScore: clamp(playbook.RiskReduction*scale, 0, 10),
	}

	sc.Verdict = &Verdict{
		Action:     action,
		Confidence: clamp(confidence, 0, 1),
		Impact:     impact,
	}

	if len(notes) == 0 {
		notes = append(notes, "review upheld")
	}
	thought := fmt.Sprintf(
		"Finalized %s (%s) with confidence %.2f; estimated %.1f minutes saved, risk reduction %.1f/10.",
		action, strings.Join(notes, "; "), sc.Verdict.Confidence,
		impact.EstimatedTimeSavedMinutes, impact.EstimatedRiskReductionScore,
	)
	return thought, nil
}
