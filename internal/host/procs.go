package host

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"

	"github.com/GriffinCanCode/AgentOS/agentsys/internal/supervisor"
)

// ErrUnknownProcess means a stop was requested for a PID the manager does
// not own.
var ErrUnknownProcess = errors.New("unknown process")

// ExitFunc receives process death reports. The supervisor's OnProcessExit
// satisfies it once bound in main.
type ExitFunc func(ctx context.Context, pid supervisor.PID, exitCode int)

// ExecManager launches agent processes with os/exec. Each spawned agent
// runs the configured runner binary with the agent name as its argument;
// a watcher goroutine reports the exit code through the bound ExitFunc.
type ExecManager struct {
	mu      sync.Mutex
	runner  string
	args    []string
	running map[supervisor.PID]*exec.Cmd
	onExit  ExitFunc
}

// NewExecManager creates a manager around the runner binary.
func NewExecManager(runner string, args ...string) *ExecManager {
	return &ExecManager{
		runner:  runner,
		args:    args,
		running: make(map[supervisor.PID]*exec.Cmd),
	}
}

// BindExit sets the exit report sink. Must be called before Start.
func (m *ExecManager) BindExit(fn ExitFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExit = fn
}

// Start launches a process for the named agent.
func (m *ExecManager) Start(ctx context.Context, name string) (supervisor.PID, error) {
	args := append(append([]string{}, m.args...), name)
	cmd := exec.Command(m.runner, args...)
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start %s: %w", name, err)
	}
	pid := supervisor.PID(cmd.Process.Pid)

	m.mu.Lock()
	m.running[pid] = cmd
	onExit := m.onExit
	m.mu.Unlock()

	go m.watch(pid, cmd, onExit)
	return pid, nil
}

func (m *ExecManager) watch(pid supervisor.PID, cmd *exec.Cmd, onExit ExitFunc) {
	err := cmd.Wait()

	m.mu.Lock()
	_, owned := m.running[pid]
	delete(m.running, pid)
	m.mu.Unlock()

	// A Stop already reported this process; Wait just reaped it.
	if !owned || onExit == nil {
		return
	}

	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		} else {
			code = -1
		}
	}
	onExit(context.Background(), pid, code)
}

// Stop kills a process. The kill is deliberate, so the watcher must not
// report it as a crash; ownership is dropped before the signal lands.
func (m *ExecManager) Stop(ctx context.Context, pid supervisor.PID) error {
	m.mu.Lock()
	cmd, ok := m.running[pid]
	delete(m.running, pid)
	m.mu.Unlock()
	if !ok {
		return ErrUnknownProcess
	}
	if err := cmd.Process.Kill(); err != nil {
		return fmt.Errorf("kill pid %d: %w", pid, err)
	}
	return nil
}

// Count returns the number of live processes.
func (m *ExecManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.running)
}
