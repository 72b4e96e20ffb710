package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/signalnine/hypersweep/internal/result"
	"github.com/signalnine/hypersweep/internal/study"
)

type SweepOpts struct {
	Sampler   study.Sampler
	Evaluator TrialEvaluator
	// Trials bounds the number of trials run; 0 runs until ctx is cancelled.
	Trials   int
	Parallel int
	// RetryInterval is the pause after a driver failure.
	RetryInterval time.Duration
	// MaxRetries is how many consecutive driver failures a bounded sweep
	// tolerates before giving up. Unbounded sweeps retry forever.
	MaxRetries int
	// OnTrial is called after each recorded trial. Calls are serialized.
	OnTrial func(t *result.Trial, c result.Completion)
	Log     *slog.Logger
	Now     func() time.Time
}

type SweepStats struct {
	Completed      int
	Failed         int
	DriverFailures int
	Interrupted    bool
	Elapsed        time.Duration
}

// Sweep runs propose, evaluate, record cycles through a bounded pool until
// the trial budget is spent, ctx is cancelled, or driver failures persist in
// a bounded sweep. Cancellation is not an error: in-flight trials are
// recorded as interrupted and the stats so far are returned.
func Sweep(ctx context.Context, opts *SweepOpts) (*SweepStats, error) {
	d := &driver{opts: opts, log: opts.Log, now: opts.Now}
	if d.log == nil {
		d.log = slog.Default()
	}
	if d.now == nil {
		d.now = time.Now
	}
	start := d.now()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	p := NewPool(runCtx, opts.Parallel)
	for n := 0; opts.Trials == 0 || n < opts.Trials; n++ {
		if runCtx.Err() != nil {
			break
		}
		p.Go(func(ctx context.Context) error {
			if err := d.runSlot(ctx); err != nil {
				cancel()
				return err
			}
			return nil
		})
	}
	err := p.Wait()

	stats := &SweepStats{
		Completed:      int(d.completed.Load()),
		Failed:         int(d.failed.Load()),
		DriverFailures: int(d.driverFailures.Load()),
		Interrupted:    ctx.Err() != nil,
		Elapsed:        d.now().Sub(start),
	}
	return stats, err
}

type driver struct {
	opts *SweepOpts
	log  *slog.Logger
	now  func() time.Time

	consecutive    atomic.Int64
	completed      atomic.Int64
	failed         atomic.Int64
	driverFailures atomic.Int64

	callbackMu sync.Mutex
}

// attempt tracks one slot across retries so a trial is proposed once and
// recorded once.
type attempt struct {
	trial      *result.Trial
	completion *result.Completion
	launchErr  error
	recorded   bool
}

func (d *driver) runSlot(ctx context.Context) error {
	var a attempt
	for {
		err := d.step(ctx, &a)
		if err == nil {
			d.consecutive.Store(0)
			return nil
		}
		if ctx.Err() != nil {
			d.abandon(ctx, &a)
			return nil
		}

		n := d.consecutive.Add(1)
		d.driverFailures.Add(1)
		args := []any{"err", err, "consecutive", n}
		if a.trial != nil {
			args = append(args, "trial", a.trial.Number)
		}
		d.log.Error("driver failure", args...)

		if d.opts.Trials > 0 && int(n) > d.opts.MaxRetries {
			d.abandon(ctx, &a)
			return fmt.Errorf("giving up after %d consecutive driver failures: %w", n, err)
		}
		if !sleepCtx(ctx, d.opts.RetryInterval) {
			d.abandon(ctx, &a)
			return nil
		}
		if a.recorded {
			// The trial that failed to launch already used this slot.
			return nil
		}
	}
}

func (d *driver) step(ctx context.Context, a *attempt) error {
	if a.trial == nil {
		if err := ctx.Err(); err != nil {
			return err
		}
		t, err := d.opts.Sampler.Propose(ctx)
		if err != nil {
			return fmt.Errorf("proposing trial: %w", err)
		}
		a.trial = t
	}
	if a.completion == nil {
		out, err := d.opts.Evaluator.Evaluate(ctx, a.trial)
		if err != nil {
			kind := KindLaunchError
			if ctx.Err() != nil {
				kind = KindInterrupted
			}
			a.completion = &result.Completion{
				State:       result.StateFail,
				Failure:     string(kind),
				Diagnostic:  err.Error(),
				CompletedAt: d.now(),
			}
			a.launchErr = err
		} else {
			c := out.Completion(d.now())
			a.completion = &c
		}
	}
	if !a.recorded {
		if err := d.opts.Sampler.Record(ctx, a.trial.ID, *a.completion); err != nil {
			return fmt.Errorf("recording trial %d: %w", a.trial.Number, err)
		}
		a.recorded = true
		d.finished(a)
	}
	return a.launchErr
}

// abandon records a trial that is still running so it does not stay that way
// in the store. ctx may already be cancelled.
func (d *driver) abandon(ctx context.Context, a *attempt) {
	if a.trial == nil || a.recorded {
		return
	}
	c := result.Completion{
		State:       result.StateFail,
		Failure:     string(KindInterrupted),
		Diagnostic:  "sweep stopped before the trial finished",
		CompletedAt: d.now(),
	}
	if a.completion != nil {
		c = *a.completion
	}
	a.completion = &c
	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := d.opts.Sampler.Record(recCtx, a.trial.ID, c); err != nil {
		d.log.Error("could not record abandoned trial", "trial", a.trial.Number, "err", err)
		return
	}
	a.recorded = true
	d.finished(a)
}

func (d *driver) finished(a *attempt) {
	if a.completion.State == result.StateComplete {
		d.completed.Add(1)
	} else {
		d.failed.Add(1)
	}
	if d.opts.OnTrial == nil {
		return
	}
	d.callbackMu.Lock()
	defer d.callbackMu.Unlock()
	d.opts.OnTrial(a.trial, *a.completion)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Retry calls fn until it succeeds, pausing interval between attempts. It
// gives up after maxRetries retries; a negative maxRetries retries until ctx
// is done. A cancelled ctx returns ctx.Err().
func Retry(ctx context.Context, interval time.Duration, maxRetries int, log *slog.Logger, what string, fn func(context.Context) error) error {
	if log == nil {
		log = slog.Default()
	}
	for n := 1; ; n++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if maxRetries >= 0 && n > maxRetries {
			return fmt.Errorf("%s: giving up after %d attempts: %w", what, n, err)
		}
		log.Error(what+" failed", "err", err, "attempt", n)
		if !sleepCtx(ctx, interval) {
			return ctx.Err()
		}
	}
}
