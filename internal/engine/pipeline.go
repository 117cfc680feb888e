package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/decisionstack/decision-engine/internal/metrics"
	"github.com/decisionstack/decision-engine/internal/models"
)

// Pipeline sequences the reasoning stages and produces the final Decision.
// It is the error boundary for stage execution: aborts and internal stage
// failures surface as errors, never as panics of the calling worker.
type Pipeline struct {
	logger *slog.Logger
	stages []Stage
	clock  clock.Clock
}

// NewPipeline constructs the staged decision pipeline. A nil pack uses the
// governance defaults; a nil clock uses wall time.
func NewPipeline(logger *slog.Logger, pack *PolicyPack, clk clock.Clock) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if pack == nil {
		pack = DefaultPolicyPack()
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Pipeline{
		logger: logger,
		stages: []Stage{
			NewSignalStage(),
			NewDecisionStage(pack),
			NewCriticStage(pack),
			NewSupervisorStage(pack),
		},
		clock: clk,
	}
}

// Run executes the stages strictly in order, accumulating one trace entry per
// stage that ran. On abort or stage failure it stops immediately and returns
// the error; subsequent stages do not run.
func (p *Pipeline) Run(ctx context.Context, incident models.Incident) (models.Decision, error) {
	sc := &StageContext{Incident: incident}
	trace := make([]models.TraceEntry, 0, len(p.stages))

	for _, stage := range p.stages {
		thought, err := p.execute(ctx, stage, sc)
		if err != nil {
			var abort *AbortError
			if errors.As(err, &abort) {
				p.logger.Info("pipeline aborted",
					slog.String("stage", string(stage.Name())),
					slog.String("reason", abort.Reason))
				return models.Decision{}, err
			}
			p.logger.Error("stage failed",
				slog.String("stage", string(stage.Name())),
				slog.Any("error", err))
			return models.Decision{}, err
		}
		trace = append(trace, models.TraceEntry{
			Agent:     stage.Name(),
			Thought:   thought,
			Timestamp: p.clock.Now().UTC(),
		})
	}

	if sc.Verdict == nil {
		return models.Decision{}, fmt.Errorf("pipeline finished without a verdict")
	}
	if !sc.Verdict.Action.Valid() {
		return models.Decision{}, fmt.Errorf("supervisor produced unknown action %q", sc.Verdict.Action)
	}

	impact := sc.Verdict.Impact
	if impact.EstimatedTimeSavedMinutes < 0 {
		impact.EstimatedTimeSavedMinutes = 0
	}
	impact.EstimatedRiskReductionScore = clamp(impact.EstimatedRiskReductionScore, 0, 10)

	return models.Decision{
		FinalDecision:  sc.Verdict.Action,
		Confidence:     clamp(sc.Verdict.Confidence, 0, 1),
		Impact:         impact,
		ReasoningTrace: trace,
	}, nil
}

// execute runs one stage, converting panics into errors so a broken stage
// fails the job instead of the worker process.
func (p *Pipeline) execute(ctx context.Context, stage Stage, sc *StageContext) (thought string, err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveStage(string(stage.Name()), time.Since(start))
		if r := recover(); r != nil {
			err = fmt.Errorf("stage %s panicked: %v", stage.Name(), r)
		}
	}()

	thought, err = stage.Execute(ctx, sc)
	if err != nil {
		var abort *AbortError
		if errors.As(err, &abort) {
			return "", err
		}
		return "", fmt.Errorf("stage %s: %w", stage.Name(), err)
	}
	return thought, nil
}
