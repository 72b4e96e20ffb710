package docker

import (
	"context"
	"fmt"

	"github.com/moby/moby/client"
)

// Label marks every container started by the launcher.
const Label = "hypersweep"

// Prune removes stopped containers carrying Label and returns how many were
// deleted. Launch already removes its containers; this sweeps up after
// crashed or killed sweeps.
func Prune(ctx context.Context) (int, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return 0, fmt.Errorf("creating docker client: %w", err)
	}
	defer cli.Close()

	res, err := cli.ContainerPrune(ctx, client.ContainerPruneOptions{
		Filters: make(client.Filters).Add("label", Label+"=true"),
	})
	if err != nil {
		return 0, fmt.Errorf("pruning containers: %w", err)
	}
	return len(res.Report.ContainersDeleted), nil
}
