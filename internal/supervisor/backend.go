package supervisor

import (
	"fmt"
	"os"
	"os/exec"
)

// launchBackend starts the backend daemon as a fire-and-forget child. The
// supervisor never waits on it: the backend lives as long as the container.
// The child writes to the supervisor's own stdout/stderr rather than pipes,
// because pipe read ends vanish when the supervisor execs into the
// foreground service and a piped backend would then die on EPIPE.
func (s *Supervisor) launchBackend(argv []string) (int, error) {
	if len(argv) == 0 {
		return 0, fmt.Errorf("backend command must not be empty")
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	// Release the handle: the child is intentionally never reaped here, and
	// after the exec hand-off there is no supervisor left to reap it anyway.
	pid := cmd.Process.Pid
	_ = cmd.Process.Release()
	return pid, nil
}
