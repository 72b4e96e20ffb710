package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/moby/moby/api/pkg/stdcopy"
	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/mount"
	"github.com/moby/moby/client"

	"github.com/signalnine/hypersweep/internal/config"
	"github.com/signalnine/hypersweep/internal/runner"
)

// WorkDir is where the trainer directory is mounted inside the container.
const WorkDir = "/work"

// Launcher runs each trial in a fresh container. The container is killed on
// timeout or cancellation and always removed.
type Launcher struct {
	Image       string
	Dir         string
	Env         []string
	CPULimit    float64
	MemoryLimit int64
	UserID      string
}

func NewLauncher(t *config.Trainer) (*Launcher, error) {
	env, err := runner.TrainerEnv(t.EnvFile, t.Env)
	if err != nil {
		return nil, fmt.Errorf("reading trainer env: %w", err)
	}
	l := &Launcher{
		Image:       t.Image,
		Env:         env,
		CPULimit:    t.CPULimit,
		MemoryLimit: t.MemoryLimit,
		UserID:      fmt.Sprintf("%d:%d", os.Getuid(), os.Getgid()),
	}
	if t.Dir != "" {
		dir, err := filepath.Abs(t.Dir)
		if err != nil {
			return nil, fmt.Errorf("resolving trainer dir: %w", err)
		}
		l.Dir = dir
	}
	return l, nil
}

func (l *Launcher) Launch(ctx context.Context, inv runner.Invocation, limit time.Duration) (*runner.LaunchResult, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("%w: creating docker client: %v", runner.ErrLaunch, err)
	}
	defer cli.Close()

	initTrue := true
	hostCfg := &container.HostConfig{Init: &initTrue}
	if l.Dir != "" {
		hostCfg.Mounts = []mount.Mount{{
			Type:   mount.TypeBind,
			Source: l.Dir,
			Target: WorkDir,
		}}
	}
	if l.CPULimit > 0 {
		hostCfg.NanoCPUs = int64(l.CPULimit * 1e9)
	}
	if l.MemoryLimit > 0 {
		hostCfg.Memory = l.MemoryLimit
	}

	containerCfg := &container.Config{
		Image:  l.Image,
		Cmd:    append([]string{inv.Path}, inv.Args...),
		Env:    l.Env,
		Labels: map[string]string{Label: "true"},
	}
	if l.Dir != "" {
		containerCfg.WorkingDir = WorkDir
	}
	if l.UserID != "" {
		containerCfg.User = l.UserID
	}

	createResp, err := cli.ContainerCreate(ctx, client.ContainerCreateOptions{
		Config:     containerCfg,
		HostConfig: hostCfg,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: creating container: %v", runner.ErrLaunch, err)
	}
	containerID := createResp.ID
	defer func() {
		cli.ContainerRemove(context.Background(), containerID, client.ContainerRemoveOptions{Force: true})
	}()

	start := time.Now()
	if _, err := cli.ContainerStart(ctx, containerID, client.ContainerStartOptions{}); err != nil {
		return nil, fmt.Errorf("%w: starting container: %v", runner.ErrLaunch, err)
	}

	waitCtx, cancel := ctx, context.CancelFunc(func() {})
	if limit > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, limit)
	}
	defer cancel()

	res := &runner.LaunchResult{}
	waitResult := cli.ContainerWait(waitCtx, containerID, client.ContainerWaitOptions{
		Condition: container.WaitConditionNotRunning,
	})
	select {
	case err := <-waitResult.Error:
		cli.ContainerKill(context.Background(), containerID, client.ContainerKillOptions{Signal: "SIGKILL"})
		res.ExitCode = -1
		res.Duration = time.Since(start)
		l.collectLogs(cli, containerID, res)
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
			res.TimedOut = true
			return res, nil
		}
		return res, fmt.Errorf("waiting for container: %w", err)
	case status := <-waitResult.Result:
		res.ExitCode = int(status.StatusCode)
		res.Duration = time.Since(start)
		if status.Error != nil && status.Error.Message != "" {
			res.Stderr = append(res.Stderr, status.Error.Message...)
		}
		l.collectLogs(cli, containerID, res)
		return res, nil
	}
}

// collectLogs demultiplexes the container's stdout and stderr into res.
func (l *Launcher) collectLogs(cli *client.Client, containerID string, res *runner.LaunchResult) {
	logReader, err := cli.ContainerLogs(context.Background(), containerID, client.ContainerLogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return
	}
	defer logReader.Close()
	var stdout, stderr bytes.Buffer
	stdcopy.StdCopy(&stdout, &stderr, logReader)
	res.Stdout = stdout.Bytes()
	res.Stderr = append(stderr.Bytes(), res.Stderr...)
}
