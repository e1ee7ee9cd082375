//go:build !windows

package resource

import "syscall"

// stopProcess asks the process to exit gracefully via SIGTERM. The
// force-kill follows after the grace window if it does not comply.
func stopProcess(p Proc) error {
	return p.Signal(syscall.SIGTERM)
}
