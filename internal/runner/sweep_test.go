package runner_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/signalnine/hypersweep/internal/logger"
	"github.com/signalnine/hypersweep/internal/result"
	"github.com/signalnine/hypersweep/internal/runner"
	"github.com/signalnine/hypersweep/internal/space"
	"github.com/signalnine/hypersweep/internal/study"
)

type evaluatorFunc func(ctx context.Context, t *result.Trial) (*runner.Outcome, error)

func (f evaluatorFunc) Evaluate(ctx context.Context, t *result.Trial) (*runner.Outcome, error) {
	return f(ctx, t)
}

// flakySampler fails the first n proposals.
type flakySampler struct {
	study.Sampler
	failures atomic.Int32
}

func (f *flakySampler) Propose(ctx context.Context) (*result.Trial, error) {
	if f.failures.Add(-1) >= 0 {
		return nil, errors.New("database is locked")
	}
	return f.Sampler.Propose(ctx)
}

func newStudy(t *testing.T, store result.Store) *study.Study {
	t.Helper()
	s, err := study.Open(context.Background(), store, "sweep_test", evolvionSpace(t), space.NewRandomSuggester(42))
	if err != nil {
		t.Fatalf("study.Open: %v", err)
	}
	return s
}

func allFinished(t *testing.T, s *study.Study) []*result.Trial {
	t.Helper()
	trials, err := s.Enumerate(context.Background())
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	for _, tr := range trials {
		if !tr.Finished() {
			t.Errorf("trial %d left %s", tr.Number, tr.State)
		}
	}
	return trials
}

func TestSweepBounded(t *testing.T) {
	s := newStudy(t, result.NewMemoryStore())
	ev := evaluatorFunc(func(_ context.Context, tr *result.Trial) (*runner.Outcome, error) {
		if tr.Number%3 == 2 {
			return &runner.Outcome{Kind: runner.KindTimeout}, nil
		}
		return &runner.Outcome{Kind: runner.KindSuccess, Value: float64(tr.Number) + 0.5}, nil
	})

	var mu sync.Mutex
	seen := map[int]bool{}
	stats, err := runner.Sweep(context.Background(), &runner.SweepOpts{
		Sampler:   s,
		Evaluator: ev,
		Trials:    6,
		Parallel:  3,
		Log:       logger.Discard(),
		OnTrial: func(tr *result.Trial, _ result.Completion) {
			mu.Lock()
			defer mu.Unlock()
			seen[tr.Number] = true
		},
	})
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if stats.Completed != 4 || stats.Failed != 2 || stats.Interrupted {
		t.Errorf("stats = %+v", stats)
	}
	if len(seen) != 6 {
		t.Errorf("OnTrial saw %d trials, want 6", len(seen))
	}

	trials := allFinished(t, s)
	if len(trials) != 6 {
		t.Fatalf("got %d trials, want 6", len(trials))
	}
	for _, tr := range trials {
		if tr.State == result.StateComplete && tr.Attrs[runner.AttrFitness] != tr.Value {
			t.Errorf("trial %d missing fitness attr: %v", tr.Number, tr.Attrs)
		}
		if tr.State == result.StateFail && tr.Failure != "timeout" {
			t.Errorf("trial %d failure = %q", tr.Number, tr.Failure)
		}
	}
}

func TestSweepPersistentLaunchFailureIsTerminal(t *testing.T) {
	s := newStudy(t, result.NewMemoryStore())
	ev := evaluatorFunc(func(_ context.Context, tr *result.Trial) (*runner.Outcome, error) {
		return nil, fmt.Errorf("trial %d: %w: dotnet: not found", tr.Number, runner.ErrLaunch)
	})
	stats, err := runner.Sweep(context.Background(), &runner.SweepOpts{
		Sampler:    s,
		Evaluator:  ev,
		Trials:     10,
		Parallel:   1,
		MaxRetries: 2,
		Log:        logger.Discard(),
	})
	if !errors.Is(err, runner.ErrLaunch) {
		t.Fatalf("err = %v, want ErrLaunch", err)
	}
	if stats.DriverFailures != 3 {
		t.Errorf("driver failures = %d, want 3", stats.DriverFailures)
	}

	trials := allFinished(t, s)
	if len(trials) != 3 {
		t.Fatalf("got %d trials, want 3", len(trials))
	}
	for _, tr := range trials {
		if tr.Failure != string(runner.KindLaunchError) {
			t.Errorf("trial %d failure = %q, want launch_error", tr.Number, tr.Failure)
		}
	}
}

func TestSweepRetriesTransientStoreErrors(t *testing.T) {
	s := newStudy(t, result.NewMemoryStore())
	flaky := &flakySampler{Sampler: s}
	flaky.failures.Store(2)
	ev := evaluatorFunc(func(context.Context, *result.Trial) (*runner.Outcome, error) {
		return &runner.Outcome{Kind: runner.KindSuccess, Value: 1}, nil
	})
	stats, err := runner.Sweep(context.Background(), &runner.SweepOpts{
		Sampler:       flaky,
		Evaluator:     ev,
		Trials:        2,
		Parallel:      1,
		RetryInterval: time.Millisecond,
		MaxRetries:    3,
		Log:           logger.Discard(),
	})
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if stats.Completed != 2 || stats.DriverFailures != 2 {
		t.Errorf("stats = %+v", stats)
	}
	if n := len(allFinished(t, s)); n != 2 {
		t.Errorf("got %d trials, want 2", n)
	}
}

func TestSweepInterruptRecordsInFlightTrials(t *testing.T) {
	s := newStudy(t, result.NewMemoryStore())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var started sync.WaitGroup
	started.Add(2)
	ev := evaluatorFunc(func(ctx context.Context, tr *result.Trial) (*runner.Outcome, error) {
		started.Done()
		<-ctx.Done()
		return nil, ctx.Err()
	})
	go func() {
		started.Wait()
		cancel()
	}()

	stats, err := runner.Sweep(ctx, &runner.SweepOpts{
		Sampler:   s,
		Evaluator: ev,
		Parallel:  2,
		Log:       logger.Discard(),
	})
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if !stats.Interrupted || stats.Failed != 2 {
		t.Errorf("stats = %+v", stats)
	}
	trials := allFinished(t, s)
	if len(trials) != 2 {
		t.Fatalf("got %d trials, want 2", len(trials))
	}
	for _, tr := range trials {
		if tr.Failure != string(runner.KindInterrupted) {
			t.Errorf("trial %d failure = %q, want interrupted", tr.Number, tr.Failure)
		}
	}
}

func TestRetry(t *testing.T) {
	errLocked := errors.New("database is locked")
	tests := []struct {
		name       string
		failures   int
		maxRetries int
		wantCalls  int
		wantErr    bool
	}{
		{name: "first try", failures: 0, maxRetries: 3, wantCalls: 1},
		{name: "recovers within budget", failures: 3, maxRetries: 3, wantCalls: 4},
		{name: "budget exhausted", failures: 10, maxRetries: 2, wantCalls: 3, wantErr: true},
		{name: "unlimited", failures: 25, maxRetries: -1, wantCalls: 26},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := runner.Retry(context.Background(), time.Millisecond, tt.maxRetries, logger.Discard(), "opening study",
				func(context.Context) error {
					calls++
					if calls <= tt.failures {
						return errLocked
					}
					return nil
				})
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if tt.wantErr != (err != nil) {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, errLocked) {
				t.Errorf("err = %v, want it to wrap the last failure", err)
			}
		})
	}
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := runner.Retry(ctx, 10*time.Millisecond, -1, logger.Discard(), "opening study",
		func(context.Context) error { return errors.New("unable to open database file") })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}
