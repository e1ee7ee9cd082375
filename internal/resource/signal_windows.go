//go:build windows

package resource

// stopProcess falls back to a hard kill: Windows has no SIGTERM delivery
// for arbitrary processes.
func stopProcess(p Proc) error {
	return p.Kill()
}
