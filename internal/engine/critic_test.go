package engine

import (
	"context"
	"testing"

	"github.com/decisionstack/decision-engine/internal/models"
)

func TestCriticFlagsLowConfidence(t *testing.T) {
	stage := NewCriticStage(nil)
	sc := &StageContext{
		Signal:    &SignalFeatures{Magnitude: 0.3},
		Candidate: &Candidate{Action: models.ActionInvestigate, Confidence: 0.5},
	}

	if _, err := stage.Execute(context.Background(), sc); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !sc.Review.Flagged {
		t.Fatalf("expected low-confidence candidate to be flagged")
	}
	if sc.Review.Action != models.ActionNeedsReview {
		t.Fatalf("flagged candidate should become NEEDS_REVIEW, got %s", sc.Review.Action)
	}
	if len(sc.Review.Risks) == 0 {
		t.Fatalf("expected at least one recorded risk")
	}
}

func TestCriticFlagsCriticalHintConflict(t *testing.T) {
	stage := NewCriticStage(nil)
	sc := &StageContext{
		Signal:    &SignalFeatures{Magnitude: 0.5, SeverityHint: models.SeverityCritical},
		Candidate: &Candidate{Action: models.ActionInvestigate, Confidence: 0.8},
	}

	if _, err := stage.Execute(context.Background(), sc); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !sc.Review.Flagged {
		t.Fatalf("expected critical-hint conflict to be flagged")
	}
	if sc.Review.Action != models.ActionNeedsReview {
		t.Fatalf("expected NEEDS_REVIEW, got %s", sc.Review.Action)
	}
}

func TestCriticAppliesSev1Penalty(t *testing.T) {
	stage := NewCriticStage(nil)
	sc := &StageContext{
		Signal:    &SignalFeatures{Magnitude: 1.0},
		Candidate: &Candidate{Action: models.ActionDeclareSev1, Confidence: 0.95},
	}

	if _, err := stage.Execute(context.Background(), sc); err != nil {
		t.Fatalf("execute: %v", err)
	}
	want := 0.95 - cryWolfPenalty
	if diff := sc.Review.Confidence - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("confidence = %f, want %f", sc.Review.Confidence, want)
	}
	if sc.Review.Flagged {
		t.Fatalf("confident declaration should not be flagged")
	}
	if sc.Review.Action != models.ActionDeclareSev1 {
		t.Fatalf("expected action to hold, got %s", sc.Review.Action)
	}
}

func TestCriticNeverEscalates(t *testing.T) {
	stage := NewCriticStage(nil)
	sc := &StageContext{
		Signal:    &SignalFeatures{Magnitude: 0.4},
		Candidate: &Candidate{Action: models.ActionMonitor, Confidence: 0.8},
	}

	if _, err := stage.Execute(context.Background(), sc); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if sc.Review.Action == models.ActionDeclareSev1 || sc.Review.Action == models.ActionInvestigate {
		t.Fatalf("critic escalated to %s", sc.Review.Action)
	}
}
