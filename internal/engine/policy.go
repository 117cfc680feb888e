package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/decisionstack/decision-engine/internal/models"
)

// GovernancePolicy holds the thresholds gating escalation and the
// supervisor's authority to declare severe incidents.
type GovernancePolicy struct {
	// AutoDeclareMinConfidence is the minimum confidence for the supervisor
	// to finalize DECLARE_SEV1_INCIDENT or override a critic flag.
	AutoDeclareMinConfidence float64 `yaml:"autoDeclareMinConfidence"`
	// ReviewMinConfidence is the floor under which the critic routes the
	// candidate to human review.
	ReviewMinConfidence float64 `yaml:"reviewMinConfidence"`
	// SEV1MinMagnitude is the anomaly magnitude required before a SEV1
	// declaration is considered proportionate.
	SEV1MinMagnitude float64 `yaml:"sev1MinMagnitude"`
	// EscalateMagnitude is the magnitude above which an incident warrants
	// active investigation rather than monitoring.
	EscalateMagnitude float64 `yaml:"escalateMagnitude"`
}

// ActionPlaybook carries the execution details and base impact estimates for
// one action.
type ActionPlaybook struct {
	Action           models.Action `yaml:"action"`
	Details          string        `yaml:"details"`
	TimeSavedMinutes float64       `yaml:"timeSavedMinutes"`
	RiskReduction    float64       `yaml:"riskReduction"`
}

// PolicyPack bundles governance thresholds with per-action playbooks. It is
// loaded once per process and read-only at pipeline-run time.
type PolicyPack struct {
	Thresholds GovernancePolicy `yaml:"thresholds"`
	Playbooks  []ActionPlaybook `yaml:"playbooks"`
}

// DefaultPolicyPack returns the compiled-in governance defaults.
func DefaultPolicyPack() *PolicyPack {
	return &PolicyPack{
		Thresholds: GovernancePolicy{
			AutoDeclareMinConfidence: 0.9,
			ReviewMinConfidence:      0.65,
			SEV1MinMagnitude:         0.9,
			EscalateMagnitude:        0.6,
		},
		Playbooks: []ActionPlaybook{
			{
				Action:           models.ActionDeclareSev1,
				Details:          "Open the incident bridge, page the on-call, and prepare communication templates.",
				TimeSavedMinutes: 45,
				RiskReduction:    8.5,
			},
			{
				Action:           models.ActionInvestigate,
				Details:          "Assign a ticket to the next available SRE and check dashboards for correlation.",
				TimeSavedMinutes: 15,
				RiskReduction:    4.0,
			},
			{
				Action:           models.ActionMonitor,
				Details:          "Log the variance for trend analysis. No immediate intervention.",
				TimeSavedMinutes: 5,
				RiskReduction:    2.0,
			},
			{
				Action:           models.ActionNeedsReview,
				Details:          "Hold for human review before any automated action is taken.",
				TimeSavedMinutes: 10,
				RiskReduction:    3.0,
			},
		},
	}
}

// LoadPolicyPack loads a YAML policy pack from path. An empty or missing path
// falls back to the defaults; a malformed pack is an error.
func LoadPolicyPack(path string, logger *slog.Logger) (*PolicyPack, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pack := DefaultPolicyPack()
	if path == "" {
		return pack, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("policy pack not found, using defaults", slog.String("path", path))
			return pack, nil
		}
		return nil, fmt.Errorf("read policy pack: %w", err)
	}
	if err := yaml.Unmarshal(data, pack); err != nil {
		return nil, fmt.Errorf("parse policy pack: %w", err)
	}
	if err := pack.validate(); err != nil {
		return nil, fmt.Errorf("policy pack %s: %w", path, err)
	}
	return pack, nil
}

func (p *PolicyPack) validate() error {
	t := p.Thresholds
	for name, v := range map[string]float64{
		"autoDeclareMinConfidence": t.AutoDeclareMinConfidence,
		"reviewMinConfidence":      t.ReviewMinConfidence,
		"sev1MinMagnitude":         t.SEV1MinMagnitude,
		"escalateMagnitude":        t.EscalateMagnitude,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("threshold %s out of range: %f", name, v)
		}
	}
	for _, pb := range p.Playbooks {
		if !pb.Action.Valid() {
			return fmt.Errorf("playbook references unknown action %q", pb.Action)
		}
		if pb.TimeSavedMinutes < 0 || pb.RiskReduction < 0 || pb.RiskReduction > 10 {
			return fmt.Errorf("playbook %s has out-of-range impact estimates", pb.Action)
		}
	}
	return nil
}

// Playbook returns the playbook for an action, falling back to the MONITOR
// entry when the pack has no row for it.
func (p *PolicyPack) Playbook(action models.Action) ActionPlaybook {
	var fallback ActionPlaybook
	for _, pb := range p.Playbooks {
		if pb.Action == action {
			return pb
		}
		if pb.Action == models.ActionMonitor {
			fallback = pb
		}
	}
	return fallback
}
