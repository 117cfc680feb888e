package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/decisionstack/decision-engine/internal/models"
)

func TestLoadPolicyPackMissingFileUsesDefaults(t *testing.T) {
	pack, err := LoadPolicyPack("non-existent.yaml", nil)
	if err != nil {
		t.Fatalf("expected defaults, got %v", err)
	}
	if pack.Thresholds.AutoDeclareMinConfidence != 0.9 {
		t.Fatalf("unexpected defaults: %+v", pack.Thresholds)
	}
}

func TestLoadPolicyPackFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	if err := os.WriteFile(path, []byte(`thresholds:
  autoDeclareMinConfidence: 0.8
  reviewMinConfidence: 0.5
  sev1MinMagnitude: 0.85
  escalateMagnitude: 0.55
playbooks:
  - action: MONITOR
    details: "Watch it."
    timeSavedMinutes: 3
    riskReduction: 1.5
`), 0o644); err != nil {
		t.Fatalf("write policy: %v", err)
	}

	pack, err := LoadPolicyPack(path, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if pack.Thresholds.AutoDeclareMinConfidence != 0.8 {
		t.Fatalf("threshold not loaded: %+v", pack.Thresholds)
	}
	pb := pack.Playbook(models.ActionMonitor)
	if pb.Details != "Watch it." || pb.TimeSavedMinutes != 3 {
		t.Fatalf("playbook not loaded: %+v", pb)
	}
}

func TestLoadPolicyPackRejectsBadThresholds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	if err := os.WriteFile(path, []byte(`thresholds:
  autoDeclareMinConfidence: 1.5
`), 0o644); err != nil {
		t.Fatalf("write policy: %v", err)
	}

	if _, err := LoadPolicyPack(path, nil); err == nil {
		t.Fatalf("expected out-of-range threshold to be rejected")
	}
}

func TestPlaybookFallsBackToMonitor(t *testing.T) {
	pack := DefaultPolicyPack()
	pb := pack.Playbook(models.Action("SOMETHING_ELSE"))
	if pb.Action != models.ActionMonitor {
		t.Fatalf("expected MONITOR fallback, got %s", pb.Action)
	}
}
