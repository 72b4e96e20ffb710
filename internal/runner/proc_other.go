//go:build !unix

package runner

import "os/exec"

// Without process groups only the direct child can be killed; that is the
// default behaviour of exec.CommandContext.
func setProcessGroup(cmd *exec.Cmd) {}

func killGroup(cmd *exec.Cmd) error { return nil }
