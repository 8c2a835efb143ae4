// Package app wires the client components together and manages their
// lifecycle: the toolchain registry, the emulator monitor, the
// analysis-process supervisor, and the flow.json watcher. All
// cross-component plumbing lives here; no component reaches for a
// global.
package app

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/dshills/cadet/internal/config"
	"github.com/dshills/cadet/internal/emulator"
	"github.com/dshills/cadet/internal/lsp"
	"github.com/dshills/cadet/internal/toolchain"
)

// Options configures the application.
type Options struct {
	// SettingsPath is the path to the TOML settings file. A missing
	// file yields the defaults.
	SettingsPath string

	// WorkspacePath is the Flow project directory. Relative settings
	// paths resolve against it.
	WorkspacePath string

	// FlowCommand overrides the flow CLI binary from the settings.
	FlowCommand string

	// EmulatorAddr overrides the emulator endpoint from the settings.
	EmulatorAddr string
}

// App is the central coordinator. It owns the shared lifecycle lock
// that serializes emulator transitions against process restarts.
type App struct {
	settings config.Settings
	opts     Options
	logger   *log.Logger

	// shared serializes monitor transitions and client lifecycle.
	shared sync.Mutex

	registry *toolchain.Registry
	monitor  *emulator.Monitor
	client   *lsp.Client
	watcher  *config.Watcher

	running atomic.Bool
}

// New creates an App with the given options. Components are
// constructed in dependency order; nothing is started yet.
func New(opts Options, logger *log.Logger) (*App, error) {
	settings, err := config.Load(opts.SettingsPath)
	if err != nil {
		return nil, &InitError{Component: "settings", Err: err}
	}
	if opts.FlowCommand != "" {
		settings.FlowCommand = opts.FlowCommand
	}
	if opts.EmulatorAddr != "" {
		settings.EmulatorAddr = opts.EmulatorAddr
	}

	a := &App{
		settings: settings,
		opts:     opts,
		logger:   logger,
	}

	a.registry = toolchain.NewRegistry(
		toolchain.ExecRunner{},
		logger.WithPrefix("toolchain"),
		settings.FlowCommand,
	)

	backoff := lsp.DefaultBackoff()
	backoff.Initial = settings.RestartDelay()
	backoff.Max = settings.RestartMaxDelay()
	backoff.Multiplier = settings.RestartMultiplier

	a.monitor = emulator.New(
		&a.shared,
		settings.EmulatorAddr,
		logger.WithPrefix("emulator"),
		a.onEmulatorTransition,
		emulator.WithInterval(settings.ProbeInterval()),
		emulator.WithProbeTimeout(settings.ProbeTimeout()),
	)

	a.client = lsp.NewClient(
		&a.shared,
		lsp.Config{
			Command:          settings.FlowCommand,
			ConfigPath:       a.flowConfigPath(),
			NumberOfAccounts: settings.NumberOfAccounts,
			AccessCheckMode:  settings.AccessCheckMode,
			WorkDir:          opts.WorkspacePath,
			Backoff:          backoff,
		},
		a.monitor,
		&logNotifier{logger: logger},
		logger.WithPrefix("lsp"),
	)

	return a, nil
}

// Start brings the components up: connectivity monitoring, the
// analysis process, and the flow.json watcher. The process launch
// flag comes from the monitor's current reading.
func (a *App) Start(ctx context.Context) error {
	if a.running.Swap(true) {
		return ErrAlreadyRunning
	}

	a.monitor.Start(ctx)

	if err := a.client.Start(ctx, nil); err != nil {
		// The supervisor reported the failure already; the app stays
		// up so the watcher and monitor can drive a later start.
		a.logger.Error("analysis process failed to start", "error", err)
	}

	watcher, err := config.NewWatcher(a.flowConfigPath(), a.onFlowConfigChange)
	if err != nil {
		a.logger.Warn("flow config watcher unavailable", "error", err)
	} else {
		a.watcher = watcher
	}

	return nil
}

// Shutdown stops everything in reverse dependency order.
func (a *App) Shutdown(ctx context.Context) error {
	if !a.running.Swap(false) {
		return nil
	}

	if a.watcher != nil {
		_ = a.watcher.Close()
		a.watcher = nil
	}
	a.monitor.Stop()
	err := a.client.Stop(ctx)
	a.registry.Dispose()
	return err
}

// Client returns the analysis-process supervisor.
func (a *App) Client() *lsp.Client { return a.client }

// Registry returns the toolchain version registry.
func (a *App) Registry() *toolchain.Registry { return a.registry }

// Monitor returns the emulator connectivity monitor.
func (a *App) Monitor() *emulator.Monitor { return a.monitor }

// Settings returns the effective settings after overrides.
func (a *App) Settings() config.Settings { return a.settings }

// flowConfigPath resolves the flow.json path against the workspace.
func (a *App) flowConfigPath() string {
	if filepath.IsAbs(a.settings.ConfigPath) {
		return a.settings.ConfigPath
	}
	return filepath.Join(a.opts.WorkspacePath, a.settings.ConfigPath)
}

// onEmulatorTransition restarts the analysis process with the new
// flow-client flag. The monitor holds the shared lock across
// probe-and-decide but releases it before calling here, so the
// restart can take it. The restart runs regardless of the current
// supervisor state: on a stopped client the stop phase is a no-op and
// the start phase is the recovery path after an earlier launch
// failure.
func (a *App) onEmulatorTransition(reachable bool) {
	a.logger.Info("emulator connectivity changed", "reachable", reachable)
	flag := reachable
	if err := a.client.Restart(context.Background(), &flag); err != nil {
		a.logger.Error("restart after connectivity change failed", "error", err)
	}
}

// onFlowConfigChange tells the running process to re-read flow.json.
func (a *App) onFlowConfigChange() {
	a.logger.Info("flow configuration changed", "path", a.flowConfigPath())
	a.client.ReloadConfiguration(context.Background())
}
