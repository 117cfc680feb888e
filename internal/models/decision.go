package models

import "time"

// Action enumerates the final decisions the pipeline can produce.
type Action string

const (
	ActionDeclareSev1 Action = "DECLARE_SEV1_INCIDENT"
	ActionInvestigate Action = "INVESTIGATE"
	ActionMonitor     Action = "MONITOR"
	ActionNeedsReview Action = "NEEDS_REVIEW"
)

// Valid reports whether the action is one of the defined enum values.
func (a Action) Valid() bool {
	switch a {
	case ActionDeclareSev1, ActionInvestigate, ActionMonitor, ActionNeedsReview:
		return true
	}
	return false
}

// StageName identifies one step of the reasoning pipeline.
type StageName string

const (
	StageSignal     StageName = "SIGNAL"
	StageDecision   StageName = "DECISION"
	StageCritic     StageName = "CRITIC"
	StageSupervisor StageName = "SUPERVISOR"
)

// DisplayName returns the presentation label for a stage. The mapping is
// exhaustive over the defined stages; anything else renders verbatim.
func (s StageName) DisplayName() string {
	switch s {
	case StageSignal:
		return "Signal Analyst"
	case StageDecision:
		return "Decision Maker"
	case StageCritic:
		return "Risk Officer"
	case StageSupervisor:
		return "Chief Decision Officer"
	default:
		return string(s)
	}
}

// TraceEntry records one stage's rationale. Entries are append-only and
// ordered by execution.
type TraceEntry struct {
	Agent     StageName `json:"agent"`
	Thought   string    `json:"thought"`
	Timestamp time.Time `json:"timestamp"`
}

// Impact estimates the operational value of acting on the decision.
type Impact struct {
	EstimatedTimeSavedMinutes   float64 `json:"estimated_time_saved_minutes"`
	EstimatedRiskReductionScore float64 `json:"estimated_risk_reduction_score"`
}

// Decision is the finalized pipeline output for one incident.
type Decision struct {
	FinalDecision  Action       `json:"final_decision"`
	Confidence     float64      `json:"confidence"`
	Impact         Impact       `json:"impact"`
	ReasoningTrace []TraceEntry `json:"reasoning_trace"`
}
