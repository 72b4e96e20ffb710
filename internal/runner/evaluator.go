package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/signalnine/hypersweep/internal/fitness"
	"github.com/signalnine/hypersweep/internal/result"
	"github.com/signalnine/hypersweep/internal/space"
)

// TrialEvaluator turns a proposed trial into an outcome.
type TrialEvaluator interface {
	Evaluate(ctx context.Context, t *result.Trial) (*Outcome, error)
}

type Evaluator struct {
	Command   []string
	Space     *space.Space
	Launcher  Launcher
	TimeLimit time.Duration
	Mode      fitness.Mode
	Log       *slog.Logger
}

// Evaluate runs the trainer for t and classifies the result. Evaluation
// failures come back as an Outcome; the returned error is reserved for a
// trainer that could not be started or a cancelled ctx.
func (e *Evaluator) Evaluate(ctx context.Context, t *result.Trial) (*Outcome, error) {
	inv, err := BuildInvocation(e.Command, e.Space, t.Params)
	if err != nil {
		return nil, fmt.Errorf("building invocation for trial %d: %w", t.Number, err)
	}
	e.logger().Debug("launching trial", "trial", t.Number, "cmd", inv.String())

	res, err := e.Launcher.Launch(ctx, inv, e.TimeLimit)
	if err != nil {
		return nil, fmt.Errorf("trial %d: %w", t.Number, err)
	}

	out := Classify(res)
	if out.Kind == KindSuccess {
		b := e.Mode.Breakdown(out.Value)
		e.logger().Info("trial finished",
			"trial", t.Number,
			"fitness", out.Value,
			"solve_rate", b.SolveRate,
			"secondary", b.Secondary,
			"duration", out.Duration.Round(time.Millisecond))
	} else {
		e.logger().Warn("trial failed",
			"trial", t.Number,
			"kind", string(out.Kind),
			"exit_code", out.ExitCode,
			"duration", out.Duration.Round(time.Millisecond),
			"diagnostic", out.Diagnostic)
	}
	return out, nil
}

func (e *Evaluator) logger() *slog.Logger {
	if e.Log == nil {
		return slog.Default()
	}
	return e.Log
}
