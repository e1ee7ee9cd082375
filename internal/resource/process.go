package resource

import (
	"os"
	"time"
)

// Proc is the minimal surface the manager needs from a child process.
// *os.Process satisfies it.
type Proc interface {
	Signal(sig os.Signal) error
	Kill() error
}

// ProcessState is the phase of the termination state machine.
type ProcessState string

const (
	// ProcessRunning means the process is alive and within its budget.
	ProcessRunning ProcessState = "running"
	// ProcessTerminating means the graceful signal was sent and the kill
	// timer is armed.
	ProcessTerminating ProcessState = "terminating"
	// ProcessKilled means the force-kill was issued.
	ProcessKilled ProcessState = "killed"
)

// trackedProcess drives Running -> Terminating -> Killed with one timer
// per phase.
type trackedProcess struct {
	name      string
	proc      Proc
	startedAt time.Time
	state     ProcessState
	timer     *time.Timer
}

// TrackProcess registers a child process with a wall-clock budget. When
// the budget expires the process receives a graceful stop request, then a
// hard kill after the grace window. Tracking a name again replaces the
// previous entry.
func (m *Manager) TrackProcess(name string, proc Proc, timeout time.Duration) {
	m.mu.Lock()
	if prev, ok := m.processes[name]; ok {
		prev.stopTimer()
	}
	tp := &trackedProcess{
		name:      name,
		proc:      proc,
		startedAt: time.Now(),
		state:     ProcessRunning,
	}
	m.processes[name] = tp
	if timeout > 0 {
		tp.timer = time.AfterFunc(timeout, func() { m.terminate(name) })
	}
	m.mu.Unlock()
}

// UntrackProcess releases a process that exited on its own, disarming any
// pending timers.
func (m *Manager) UntrackProcess(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tp, ok := m.processes[name]; ok {
		tp.stopTimer()
		delete(m.processes, name)
	}
}

// ProcessStates returns a snapshot of tracked process states by name.
func (m *Manager) ProcessStates() map[string]ProcessState {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]ProcessState, len(m.processes))
	for name, tp := range m.processes {
		out[name] = tp.state
	}
	return out
}

// terminate moves a process from Running to Terminating: graceful signal
// now, force-kill after the grace window.
func (m *Manager) terminate(name string) {
	m.mu.Lock()
	tp, ok := m.processes[name]
	if !ok || tp.state != ProcessRunning {
		m.mu.Unlock()
		return
	}
	tp.state = ProcessTerminating
	tp.timer = time.AfterFunc(m.grace, func() { m.kill(name) })
	proc := tp.proc
	m.mu.Unlock()

	m.logger.Warn("process exceeded its budget, requesting graceful stop", "process", name)
	if err := stopProcess(proc); err != nil {
		m.logger.Warn("failed to signal process", "process", name, "error", err)
	}
}

// kill is the final phase: the process did not exit within the grace
// window and is force-killed.
func (m *Manager) kill(name string) {
	m.mu.Lock()
	tp, ok := m.processes[name]
	if !ok || tp.state == ProcessKilled {
		m.mu.Unlock()
		return
	}
	tp.state = ProcessKilled
	tp.stopTimer()
	proc := tp.proc
	m.mu.Unlock()

	m.logger.Warn("force-killing process", "process", name)
	if err := proc.Kill(); err != nil {
		m.logger.Warn("failed to kill process", "process", name, "error", err)
	}
}

// KillAll force-kills every tracked process. Invoked on engine shutdown.
func (m *Manager) KillAll() {
	m.mu.Lock()
	names := make([]string, 0, len(m.processes))
	for name, tp := range m.processes {
		tp.stopTimer()
		names = append(names, name)
	}
	m.mu.Unlock()

	for _, name := range names {
		m.kill(name)
	}

	m.mu.Lock()
	m.processes = make(map[string]*trackedProcess)
	m.mu.Unlock()
}

// KillLongRunning force-kills processes older than the given age. Used by
// the memory monitor's aggressive cleanup when crossing the critical
// threshold.
func (m *Manager) KillLongRunning(age time.Duration) int {
	cutoff := time.Now().Add(-age)

	m.mu.Lock()
	var names []string
	for name, tp := range m.processes {
		if tp.startedAt.Before(cutoff) {
			names = append(names, name)
		}
	}
	m.mu.Unlock()

	for _, name := range names {
		m.kill(name)
	}
	return len(names)
}

func (tp *trackedProcess) stopTimer() {
	if tp.timer != nil {
		tp.timer.Stop()
		tp.timer = nil
	}
}
