//go:build !windows

package supervisor

import "syscall"

// execProcess replaces the current process image. On success it never
// returns: the foreground service becomes the container's primary process
// and inherits stdio, environment and PID-1 signal responsibilities.
func execProcess(argv0 string, argv, env []string) error {
	return syscall.Exec(argv0, argv, env)
}
