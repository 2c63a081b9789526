//go:build windows

package supervisor

import (
	"errors"
	"os"
	"os/exec"
	"os/signal"
)

// execProcess approximates process-image replacement where exec is not
// available: spawn the foreground service with inherited stdio, relay
// termination signals, and exit with the child's own exit code. The contract
// stays "exactly one primary process after hand-off" even though the
// mechanism differs.
func execProcess(argv0 string, argv, env []string) error {
	cmd := exec.Command(argv0, argv[1:]...)
	cmd.Env = env
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return err
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	go func() {
		for sig := range sigs {
			_ = cmd.Process.Signal(sig)
		}
	}()

	err := cmd.Wait()
	signal.Stop(sigs)
	close(sigs)
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		os.Exit(ee.ExitCode())
	}
	if err != nil {
		return err
	}
	os.Exit(0)
	return nil
}
