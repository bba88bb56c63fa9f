package executor

import (
	"errors"
	"os/exec"
)

// exitCode extracts an exit code from a Wait error. Signal-killed processes
// report -1, which is distinct from the spawn and timeout sentinels.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
