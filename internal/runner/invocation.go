package runner

import (
	"errors"
	"strings"

	"github.com/signalnine/hypersweep/internal/space"
)

// Invocation is the command line for one trial.
type Invocation struct {
	Path string
	Args []string
}

func (inv Invocation) String() string {
	return strings.Join(append([]string{inv.Path}, inv.Args...), " ")
}

// BuildInvocation appends one name=value token per parameter, in declaration
// order, to the trainer's command prefix.
func BuildInvocation(command []string, sp *space.Space, cfg space.Config) (Invocation, error) {
	if len(command) == 0 {
		return Invocation{}, errors.New("trainer command is empty")
	}
	tokens, err := sp.Render(cfg)
	if err != nil {
		return Invocation{}, err
	}
	args := make([]string, 0, len(command)-1+len(tokens))
	args = append(args, command[1:]...)
	args = append(args, tokens...)
	return Invocation{Path: command[0], Args: args}, nil
}
