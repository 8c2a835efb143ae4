// Package process wraps a managed child process with lifecycle tracking.
//
// The language-analysis client owns exactly one child process at a time;
// this package gives it a handle with piped stdio, an exit channel, and
// signal helpers, so the supervisor can watch for crashes without
// touching exec.Cmd internals.
package process

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// State represents the state of a process.
type State int

const (
	// StateCreated indicates the process has been created but not started.
	StateCreated State = iota
	// StateRunning indicates the process is currently running.
	StateRunning
	// StateExited indicates the process has exited normally or with an error.
	StateExited
	// StateKilled indicates the process was killed by a signal.
	StateKilled
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateKilled:
		return "killed"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// Sentinel errors.
var (
	// ErrNotStarted is returned when operations require a started process.
	ErrNotStarted = fmt.Errorf("process not started")

	// ErrAlreadyStarted is returned when starting an already started process.
	ErrAlreadyStarted = fmt.Errorf("process already started")
)

// Process is a managed child process.
//
// Process is safe for concurrent use.
type Process struct {
	// ID is the unique identifier for this process.
	ID string

	// Name is a human-readable name for the process.
	Name string

	// Cmd is the underlying exec.Cmd.
	Cmd *exec.Cmd

	// Stdin provides write access to the process's stdin.
	Stdin io.WriteCloser

	// Stdout provides read access to the process's stdout.
	Stdout io.ReadCloser

	// Stderr provides read access to the process's stderr.
	Stderr io.ReadCloser

	// Started is the time the process was started.
	Started time.Time

	done     chan struct{}
	state    atomic.Int32
	exitCode atomic.Int32

	mu      sync.RWMutex
	exitErr error
	ended   time.Time

	waitOnce sync.Once
}

// New creates a managed process for cmd and pipes its stdio. Streams the
// caller already assigned on cmd are left alone.
func New(name string, cmd *exec.Cmd) (*Process, error) {
	p := &Process{
		ID:   uuid.NewString(),
		Name: name,
		Cmd:  cmd,
		done: make(chan struct{}),
	}
	p.state.Store(int32(StateCreated))
	p.exitCode.Store(-1) // -1 indicates not exited

	var created []io.Closer
	cleanup := func() {
		for _, c := range created {
			_ = c.Close()
		}
	}

	if cmd.Stdin == nil {
		stdin, err := cmd.StdinPipe()
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("create stdin pipe: %w", err)
		}
		p.Stdin = stdin
		created = append(created, stdin)
	}
	if cmd.Stdout == nil {
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("create stdout pipe: %w", err)
		}
		p.Stdout = stdout
		created = append(created, stdout)
	}
	if cmd.Stderr == nil {
		stderr, err := cmd.StderrPipe()
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("create stderr pipe: %w", err)
		}
		p.Stderr = stderr
		created = append(created, stderr)
	}

	return p, nil
}

// Start starts the process and begins exit tracking.
func (p *Process) Start() error {
	if p.State() != StateCreated {
		return ErrAlreadyStarted
	}

	if err := p.Cmd.Start(); err != nil {
		return fmt.Errorf("start process: %w", err)
	}

	p.Started = time.Now()
	p.state.Store(int32(StateRunning))

	go p.waitLoop()

	return nil
}

// waitLoop waits for the process to exit and updates state.
func (p *Process) waitLoop() {
	p.waitOnce.Do(func() {
		err := p.Cmd.Wait()

		p.mu.Lock()
		p.exitErr = err
		p.ended = time.Now()
		p.mu.Unlock()

		exitCode := 0
		state := StateExited

		if err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				exitCode = exitErr.ExitCode()
				if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
					state = StateKilled
				}
			} else {
				exitCode = -1
			}
		}

		p.exitCode.Store(int32(exitCode))
		p.state.Store(int32(state))
		close(p.done)
	})
}

// State returns the current process state.
func (p *Process) State() State {
	return State(p.state.Load())
}

// ExitCode returns the process exit code, or -1 if it has not exited.
func (p *Process) ExitCode() int {
	return int(p.exitCode.Load())
}

// ExitError returns any error from waiting on the process.
func (p *Process) ExitError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.exitErr
}

// Done returns a channel that is closed when the process exits.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// IsRunning returns true if the process is currently running.
func (p *Process) IsRunning() bool {
	return p.State() == StateRunning
}

// HasExited returns true if the process has exited or was killed.
func (p *Process) HasExited() bool {
	state := p.State()
	return state == StateExited || state == StateKilled
}

// PID returns the process ID, or -1 if not started.
func (p *Process) PID() int {
	if p.Cmd.Process == nil {
		return -1
	}
	return p.Cmd.Process.Pid
}

// Signal sends a signal to the process.
func (p *Process) Signal(sig os.Signal) error {
	if !p.IsRunning() {
		return fmt.Errorf("process not running: %w", ErrNotStarted)
	}
	if p.Cmd.Process == nil {
		return ErrNotStarted
	}
	return p.Cmd.Process.Signal(sig)
}

// Kill sends SIGKILL to the process.
func (p *Process) Kill() error {
	return p.Signal(syscall.SIGKILL)
}

// Terminate sends SIGTERM to the process.
func (p *Process) Terminate() error {
	return p.Signal(syscall.SIGTERM)
}

// Close closes the piped I/O handles. It does not kill the process.
func (p *Process) Close() error {
	var errs []error

	if p.Stdin != nil {
		if err := p.Stdin.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close stdin: %w", err))
		}
	}
	if p.Stdout != nil {
		if err := p.Stdout.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close stdout: %w", err))
		}
	}
	if p.Stderr != nil {
		if err := p.Stderr.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close stderr: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close process I/O: %v", errs)
	}
	return nil
}

// Runtime returns how long the process has been running, or its total
// runtime after exit.
func (p *Process) Runtime() time.Duration {
	if p.Started.IsZero() {
		return 0
	}
	p.mu.RLock()
	ended := p.ended
	p.mu.RUnlock()
	if ended.IsZero() {
		return time.Since(p.Started)
	}
	return ended.Sub(p.Started)
}
