package runner_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/signalnine/hypersweep/internal/fitness"
	"github.com/signalnine/hypersweep/internal/logger"
	"github.com/signalnine/hypersweep/internal/result"
	"github.com/signalnine/hypersweep/internal/runner"
	"github.com/signalnine/hypersweep/internal/space"
)

func evolvionSpace(t *testing.T) *space.Space {
	t.Helper()
	sp, err := space.New([]space.Param{
		{Name: "species_count", Kind: space.KindInt, Low: 4, High: 30},
		{Name: "min_species_count", Kind: space.KindInt, Low: 2, HighFrom: &space.Derived{Param: "species_count", Div: 3, Min: 2}},
		{Name: "weight_reset", Kind: space.KindFloat, Low: 0, High: 0.2},
		{Name: "weak_edge_pruning_enabled", Kind: space.KindBool},
	})
	if err != nil {
		t.Fatalf("space.New: %v", err)
	}
	return sp
}

func evolvionConfig() space.Config {
	// Deliberately not in declaration order.
	return space.NewConfig(
		space.Assignment{Name: "weak_edge_pruning_enabled", Value: false},
		space.Assignment{Name: "species_count", Value: int64(12)},
		space.Assignment{Name: "weight_reset", Value: 1e-05},
		space.Assignment{Name: "min_species_count", Value: int64(3)},
	)
}

func TestBuildInvocation(t *testing.T) {
	cmd := []string{"dotnet", "run", "--project", "Evolvatron.Eval/Evolvatron.Eval.csproj", "-c", "Release", "--"}
	inv, err := runner.BuildInvocation(cmd, evolvionSpace(t), evolvionConfig())
	if err != nil {
		t.Fatalf("BuildInvocation: %v", err)
	}
	if inv.Path != "dotnet" {
		t.Errorf("path = %q", inv.Path)
	}
	want := []string{
		"run", "--project", "Evolvatron.Eval/Evolvatron.Eval.csproj", "-c", "Release", "--",
		"species_count=12",
		"min_species_count=3",
		"weight_reset=1e-05",
		"weak_edge_pruning_enabled=false",
	}
	if !reflect.DeepEqual(inv.Args, want) {
		t.Errorf("args:\n got %q\nwant %q", inv.Args, want)
	}

	again, _ := runner.BuildInvocation(cmd, evolvionSpace(t), evolvionConfig())
	if !reflect.DeepEqual(inv, again) {
		t.Error("invocation is not deterministic")
	}
}

func TestBuildInvocationErrors(t *testing.T) {
	if _, err := runner.BuildInvocation(nil, evolvionSpace(t), evolvionConfig()); err == nil {
		t.Error("expected error for empty command")
	}
	partial := space.NewConfig(space.Assignment{Name: "species_count", Value: int64(5)})
	if _, err := runner.BuildInvocation([]string{"./t"}, evolvionSpace(t), partial); err == nil {
		t.Error("expected error for missing parameter")
	}
}

type fakeLauncher struct {
	got runner.Invocation
	res *runner.LaunchResult
	err error
}

func (f *fakeLauncher) Launch(_ context.Context, inv runner.Invocation, _ time.Duration) (*runner.LaunchResult, error) {
	f.got = inv
	return f.res, f.err
}

func TestEvaluatorEvaluate(t *testing.T) {
	fl := &fakeLauncher{res: &runner.LaunchResult{Stdout: []byte("Seed 1: solved\n60.25\n"), Duration: time.Second}}
	ev := &runner.Evaluator{
		Command:   []string{"./trainer"},
		Space:     evolvionSpace(t),
		Launcher:  fl,
		TimeLimit: time.Minute,
		Mode:      fitness.ModeEncoded,
		Log:       logger.Discard(),
	}
	trial := &result.Trial{Number: 4, Params: evolvionConfig()}
	out, err := ev.Evaluate(context.Background(), trial)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if out.Kind != runner.KindSuccess || out.Fitness() != 60.25 {
		t.Errorf("outcome = %+v", out)
	}
	if fl.got.Path != "./trainer" || len(fl.got.Args) != 4 {
		t.Errorf("invocation = %+v", fl.got)
	}
}

func TestEvaluatorLaunchFailureIsDriverError(t *testing.T) {
	fl := &fakeLauncher{err: runner.ErrLaunch}
	ev := &runner.Evaluator{Command: []string{"./trainer"}, Space: evolvionSpace(t), Launcher: fl, Log: logger.Discard()}
	_, err := ev.Evaluate(context.Background(), &result.Trial{Number: 1, Params: evolvionConfig()})
	if !errors.Is(err, runner.ErrLaunch) {
		t.Errorf("err = %v, want ErrLaunch", err)
	}
}

func TestEvaluatorFailureIsNotAnError(t *testing.T) {
	fl := &fakeLauncher{res: &runner.LaunchResult{ExitCode: 134, Stderr: []byte("core dumped")}}
	ev := &runner.Evaluator{Command: []string{"./trainer"}, Space: evolvionSpace(t), Launcher: fl, Log: logger.Discard()}
	out, err := ev.Evaluate(context.Background(), &result.Trial{Number: 2, Params: evolvionConfig()})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if out.Kind != runner.KindProcessError || !fitness.IsWorst(out.Fitness()) {
		t.Errorf("outcome = %+v", out)
	}
}
