package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/signalnine/hypersweep/internal/config"
)

// ErrLaunch marks a process that could not be started at all.
var ErrLaunch = errors.New("launch failed")

// Launcher runs one invocation under a wall-clock limit. It returns an error
// only when the process could not be started or ctx was cancelled; timeouts
// and exit codes are reported in the result.
type Launcher interface {
	Launch(ctx context.Context, inv Invocation, limit time.Duration) (*LaunchResult, error)
}

// ExecLauncher runs the trainer as a local child process in its own process
// group. A timeout or cancellation kills the whole group.
type ExecLauncher struct {
	Dir string
	Env []string
	// WaitDelay bounds how long output pipes are drained after the process
	// exits or is killed.
	WaitDelay time.Duration
}

func NewExecLauncher(t *config.Trainer) (*ExecLauncher, error) {
	env, err := TrainerEnv(t.EnvFile, t.Env)
	if err != nil {
		return nil, fmt.Errorf("reading trainer env: %w", err)
	}
	return &ExecLauncher{Dir: t.Dir, Env: env, WaitDelay: 5 * time.Second}, nil
}

func (l *ExecLauncher) Launch(ctx context.Context, inv Invocation, limit time.Duration) (*LaunchResult, error) {
	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if limit > 0 {
		runCtx, cancel = context.WithTimeout(ctx, limit)
	}
	defer cancel()

	cmd := exec.CommandContext(runCtx, inv.Path, inv.Args...)
	cmd.Dir = l.Dir
	cmd.Env = append(os.Environ(), l.Env...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	setProcessGroup(cmd)
	cmd.WaitDelay = l.WaitDelay
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = 5 * time.Second
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLaunch, inv.Path, err)
	}
	waitErr := cmd.Wait()
	// Anything the trainer left behind in its group goes too.
	_ = killGroup(cmd)

	res := &LaunchResult{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: cmd.ProcessState.ExitCode(),
		Duration: time.Since(start),
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		res.TimedOut = true
		return res, nil
	}
	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) && !errors.Is(waitErr, exec.ErrWaitDelay) {
		return res, fmt.Errorf("waiting for %s: %w", inv.Path, waitErr)
	}
	return res, nil
}
