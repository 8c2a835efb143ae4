package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Settings is the full tunable surface of the extension client.
// Durations are expressed in milliseconds so the TOML stays plain
// integers.
type Settings struct {
	// FlowCommand is the CLI binary driving the toolchain: version
	// resolution and the language-server subcommand.
	FlowCommand string `toml:"flow_command"`

	// ConfigPath is the Flow project configuration file (flow.json).
	// Relative paths resolve against the workspace directory.
	ConfigPath string `toml:"config_path"`

	// NumberOfAccounts is forwarded verbatim in the initialization
	// options; the analysis process expects a decimal string.
	NumberOfAccounts string `toml:"number_of_accounts"`

	// AccessCheckMode selects the analysis strictness mode.
	AccessCheckMode string `toml:"access_check_mode"`

	// EmulatorAddr is the gRPC endpoint probed for connectivity.
	EmulatorAddr string `toml:"emulator_addr"`

	// ProbeIntervalMS is the time between connectivity probes.
	ProbeIntervalMS int64 `toml:"probe_interval_ms"`

	// ProbeTimeoutMS bounds a single connectivity probe.
	ProbeTimeoutMS int64 `toml:"probe_timeout_ms"`

	// RestartDelayMS is the wait before restarting a crashed process.
	RestartDelayMS int64 `toml:"restart_delay_ms"`

	// RestartMaxDelayMS caps the delay when RestartMultiplier grows it.
	RestartMaxDelayMS int64 `toml:"restart_max_delay_ms"`

	// RestartMultiplier grows the delay per consecutive crash.
	// Values at or below 1 keep the delay fixed.
	RestartMultiplier float64 `toml:"restart_multiplier"`
}

// ParseError describes an unreadable or invalid settings file.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("settings %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// DefaultSettings returns the settings used when no file is present.
func DefaultSettings() Settings {
	return Settings{
		FlowCommand:       "flow",
		ConfigPath:        "flow.json",
		NumberOfAccounts:  "3",
		AccessCheckMode:   "strict",
		EmulatorAddr:      "127.0.0.1:3569",
		ProbeIntervalMS:   1000,
		ProbeTimeoutMS:    300,
		RestartDelayMS:    5000,
		RestartMaxDelayMS: 60000,
		RestartMultiplier: 1.0,
	}
}

// ProbeInterval returns the probe cadence as a duration.
func (s Settings) ProbeInterval() time.Duration {
	return time.Duration(s.ProbeIntervalMS) * time.Millisecond
}

// ProbeTimeout returns the per-probe bound as a duration.
func (s Settings) ProbeTimeout() time.Duration {
	return time.Duration(s.ProbeTimeoutMS) * time.Millisecond
}

// RestartDelay returns the initial crash-restart delay as a duration.
func (s Settings) RestartDelay() time.Duration {
	return time.Duration(s.RestartDelayMS) * time.Millisecond
}

// RestartMaxDelay returns the crash-restart delay cap as a duration.
func (s Settings) RestartMaxDelay() time.Duration {
	return time.Duration(s.RestartMaxDelayMS) * time.Millisecond
}

// Load reads settings from the TOML file at path. A missing file is
// not an error; it yields the defaults. Fields absent from the file
// keep their default values.
func Load(path string) (Settings, error) {
	settings := DefaultSettings()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return settings, nil
		}
		return settings, &ParseError{Path: path, Err: err}
	}

	if err := toml.Unmarshal(data, &settings); err != nil {
		return DefaultSettings(), &ParseError{Path: path, Err: err}
	}
	return settings, nil
}
