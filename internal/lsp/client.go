package lsp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/tidwall/gjson"

	"github.com/dshills/cadet/internal/process"
)

// State is the supervisor's lifecycle state.
type State int

const (
	// StateStopped means no analysis process is running.
	StateStopped State = iota
	// StateStarting means a launch is in progress.
	StateStarting
	// StateRunning means the process is initialized and serving.
	StateRunning
	// StateCrashed means the process exited unexpectedly and a restart
	// is pending behind the backoff delay.
	StateCrashed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateCrashed:
		return "crashed"
	default:
		return "unknown"
	}
}

// ConnectivitySource reports whether the local emulator is reachable.
// The emulator monitor implements it.
type ConnectivitySource interface {
	Reachable() bool
}

// Notifier carries user-visible messages. The editor surface implements
// it; tests and the CLI host use a logger-backed one.
type Notifier interface {
	Error(msg string)
	Info(msg string)
}

// Config describes how to launch the analysis process.
type Config struct {
	// Command is the flow binary to run.
	Command string

	// ConfigPath is the workspace flow.json path, passed to the process.
	ConfigPath string

	// NumberOfAccounts is passed to the process as a string.
	NumberOfAccounts string

	// AccessCheckMode controls the process's validation strictness.
	AccessCheckMode string

	// WorkDir is the working directory for the process and the root URI
	// reported during initialization.
	WorkDir string

	// InitTimeout bounds the initialize handshake. Default: 30s.
	InitTimeout time.Duration

	// StopTimeout bounds graceful shutdown before the process is
	// killed. Default: 5s.
	StopTimeout time.Duration

	// Backoff is the crash-restart policy. Zero value means
	// DefaultBackoff.
	Backoff Backoff
}

// observerReg is one state-change registration.
type observerReg struct {
	id int
	fn func(State)
}

// Client supervises the analysis process.
//
// All lifecycle mutations (Start, Stop, Restart, crash recovery) are
// serialized by the shared mutex, which the emulator monitor also holds
// during its reconciliation tick. Remote-command calls bypass the lock
// on purpose and may race a restart.
//
// State observers run synchronously, in registration order, while the
// lock is held: they must return quickly and must not call back into
// the client.
type Client struct {
	mu *sync.Mutex

	cfg          Config
	connectivity ConnectivitySource
	notifier     Notifier
	log          *log.Logger

	// Current transport handle. Atomic so ExecuteCommand can read it
	// without the shared lock.
	transport atomic.Pointer[Transport]

	// Guarded by mu.
	proc       *process.Process
	cancelRead context.CancelFunc
	state      State
	generation uint64
	crashes    int
	lastStart  time.Time

	// buildCmd constructs the launch command; replaced in tests.
	buildCmd func(enableFlowClient bool) *exec.Cmd

	obsMu     sync.Mutex
	observers []observerReg
	nextObs   int
}

// NewClient creates a supervisor. The shared mutex must be the same lock
// the emulator monitor reconciles under.
func NewClient(shared *sync.Mutex, cfg Config, connectivity ConnectivitySource, notifier Notifier, logger *log.Logger) *Client {
	if cfg.InitTimeout == 0 {
		cfg.InitTimeout = 30 * time.Second
	}
	if cfg.StopTimeout == 0 {
		cfg.StopTimeout = 5 * time.Second
	}
	if cfg.Backoff == (Backoff{}) {
		cfg.Backoff = DefaultBackoff()
	}

	c := &Client{
		mu:           shared,
		cfg:          cfg,
		connectivity: connectivity,
		notifier:     notifier,
		log:          logger,
		state:        StateStopped,
	}
	c.buildCmd = func(enableFlowClient bool) *exec.Cmd {
		cmd := exec.Command(c.cfg.Command, "cadence", "language-server",
			fmt.Sprintf("--enable-flow-client=%t", enableFlowClient))
		cmd.Dir = c.cfg.WorkDir
		return cmd
	}
	return c
}

// Start launches the analysis process. A nil flag adopts the monitor's
// current emulator reachability. The whole operation runs under the
// shared lock; the lock is released on every exit path.
//
// A launch failure is reported through the Notifier, returned as a
// *LaunchError, and leaves the supervisor stopped; there is no
// automatic retry.
func (c *Client) Start(ctx context.Context, enableFlowClient *bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startLocked(ctx, enableFlowClient)
}

func (c *Client) startLocked(ctx context.Context, enableFlowClient *bool) error {
	if c.proc != nil {
		return ErrAlreadyStarted
	}

	enable := false
	switch {
	case enableFlowClient != nil:
		enable = *enableFlowClient
	case c.connectivity != nil:
		enable = c.connectivity.Reachable()
	}

	c.setStateLocked(StateStarting)

	proc, err := process.New("cadence-language-server", c.buildCmd(enable))
	if err != nil {
		return c.launchFailedLocked(err)
	}
	if err := proc.Start(); err != nil {
		_ = proc.Close()
		return c.launchFailedLocked(err)
	}

	readCtx, cancelRead := context.WithCancel(context.Background())
	t := NewTransport(proc.Stdout, proc.Stdin, nil, c.log)
	t.Start(readCtx)

	if err := c.initialize(ctx, t); err != nil {
		cancelRead()
		_ = t.Close()
		_ = proc.Close()
		if proc.IsRunning() {
			_ = proc.Kill()
		}
		return c.launchFailedLocked(err)
	}

	c.proc = proc
	c.cancelRead = cancelRead
	c.transport.Store(t)
	c.lastStart = time.Now()

	gen := c.generation
	go c.watch(proc, gen)

	c.setStateLocked(StateRunning)
	c.log.Info("analysis process started",
		"pid", proc.PID(), "enableFlowClient", enable)
	return nil
}

// initialize performs the handshake that moves the process to serving.
func (c *Client) initialize(ctx context.Context, t *Transport) error {
	params := InitializeParams{
		ProcessID:    os.Getpid(),
		RootURI:      fileURI(c.cfg.WorkDir),
		Capabilities: ClientCapabilities{},
		InitializationOptions: &InitializationOptions{
			ConfigPath:       c.cfg.ConfigPath,
			NumberOfAccounts: c.cfg.NumberOfAccounts,
			AccessCheckMode:  c.cfg.AccessCheckMode,
		},
	}

	initCtx, cancel := context.WithTimeout(ctx, c.cfg.InitTimeout)
	defer cancel()

	var result InitializeResult
	if err := t.Call(initCtx, "initialize", params, &result); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	if err := t.Notify(initCtx, "initialized", InitializedParams{}); err != nil {
		return fmt.Errorf("initialized notification: %w", err)
	}
	return nil
}

func (c *Client) launchFailedLocked(err error) error {
	lerr := &LaunchError{Command: c.cfg.Command, Err: err}
	c.log.Error("failed to launch analysis process", "err", err)
	if c.notifier != nil {
		c.notifier.Error("Failed to start the Cadence language server: " + err.Error())
	}
	c.setStateLocked(StateStopped)
	return lerr
}

// Stop shuts the analysis process down. Shutdown errors are swallowed;
// the handle is always cleared and observers notified.
func (c *Client) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked(ctx)
	return nil
}

func (c *Client) stopLocked(ctx context.Context) {
	// Detach the crash watcher and cancel any pending crash restart.
	c.generation++

	t := c.transport.Load()
	proc := c.proc

	if t != nil && !t.IsClosed() {
		sctx, cancel := context.WithTimeout(ctx, c.cfg.StopTimeout)
		_ = t.Call(sctx, "shutdown", nil, nil)
		_ = t.Notify(sctx, "exit", nil)
		cancel()
	}

	c.teardownLocked()

	if proc != nil && proc.IsRunning() {
		_ = proc.Terminate()
		select {
		case <-proc.Done():
		case <-time.After(c.cfg.StopTimeout):
			_ = proc.Kill()
		}
	}

	c.crashes = 0
	c.setStateLocked(StateStopped)
}

// teardownLocked clears the transport and process handles.
func (c *Client) teardownLocked() {
	if c.cancelRead != nil {
		c.cancelRead()
		c.cancelRead = nil
	}
	if t := c.transport.Swap(nil); t != nil {
		_ = t.Close()
	}
	if c.proc != nil {
		_ = c.proc.Close()
		c.proc = nil
	}
}

// Restart stops and starts the client as two independently locked
// phases. A concurrent connectivity transition or manual call can
// interleave between them; the window is kept deliberately rather than
// holding the lock across both phases.
func (c *Client) Restart(ctx context.Context, enableFlowClient *bool) error {
	if err := c.Stop(ctx); err != nil {
		return err
	}
	return c.Start(ctx, enableFlowClient)
}

// watch waits for the supervised process to exit. A deliberate stop
// bumps the generation first, so the watcher recognizes it and stands
// down; anything else is a crash: apply the backoff delay, re-read
// emulator reachability, and restart.
func (c *Client) watch(proc *process.Process, gen uint64) {
	<-proc.Done()

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return
	}
	c.generation++
	nextGen := c.generation
	c.teardownLocked()

	if time.Since(c.lastStart) > c.cfg.Backoff.ResetWindow {
		c.crashes = 0
	}
	c.crashes++
	attempt := c.crashes
	c.setStateLocked(StateCrashed)
	c.mu.Unlock()

	delay := c.cfg.Backoff.Delay(attempt)
	c.log.Warn("analysis process exited unexpectedly",
		"exitCode", proc.ExitCode(), "uptime", proc.Runtime(),
		"attempt", attempt, "delay", delay)
	time.Sleep(delay)

	// Reachability may have flipped while we waited.
	var flag *bool
	if c.connectivity != nil {
		v := c.connectivity.Reachable()
		flag = &v
	}

	c.mu.Lock()
	if c.generation != nextGen || c.proc != nil {
		// A manual start or stop intervened during the delay.
		c.mu.Unlock()
		return
	}
	err := c.startLocked(context.Background(), flag)
	c.mu.Unlock()

	if err != nil {
		c.log.Error("restart after crash failed", "err", err)
	}
}

// ExecuteCommand forwards a remote-command invocation to whatever
// transport handle currently exists. It does not take the shared lock,
// so it may race a restart and observe a stale or absent handle; that
// returns ErrNoTransport, never a panic.
func (c *Client) ExecuteCommand(ctx context.Context, command string, args ...any) (gjson.Result, error) {
	t := c.transport.Load()
	if t == nil {
		return gjson.Result{}, ErrNoTransport
	}

	var raw json.RawMessage
	params := ExecuteCommandParams{Command: command, Arguments: args}
	if err := t.Call(ctx, "workspace/executeCommand", params, &raw); err != nil {
		return gjson.Result{}, err
	}
	return gjson.ParseBytes(raw), nil
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Running reports whether the process is initialized and serving.
func (c *Client) Running() bool {
	return c.State() == StateRunning
}

// OnStateChange registers an observer invoked on every state
// transition, in registration order. The returned function removes the
// registration.
func (c *Client) OnStateChange(fn func(State)) (unsubscribe func()) {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()

	id := c.nextObs
	c.nextObs++
	c.observers = append(c.observers, observerReg{id: id, fn: fn})

	return func() {
		c.obsMu.Lock()
		defer c.obsMu.Unlock()
		for i, o := range c.observers {
			if o.id == id {
				c.observers = append(c.observers[:i], c.observers[i+1:]...)
				return
			}
		}
	}
}

// setStateLocked commits a transition and notifies observers. Repeated
// identical states are not re-announced.
func (c *Client) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s

	c.obsMu.Lock()
	obs := make([]observerReg, len(c.observers))
	copy(obs, c.observers)
	c.obsMu.Unlock()

	for _, o := range obs {
		o.fn(s)
	}
}

// fileURI converts a path into a file:// URI, or "" for an empty path.
func fileURI(path string) string {
	if path == "" {
		return ""
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return "file://" + filepath.ToSlash(abs)
}
