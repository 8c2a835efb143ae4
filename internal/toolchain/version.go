package toolchain

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/tidwall/gjson"
)

// ToolBinary describes an installed command-line tool.
type ToolBinary struct {
	// Command is the binary name as invoked.
	Command string

	// Version is the installed semantic version.
	Version *semver.Version
}

// Equal reports whether two tool binaries are the same by value.
func (b *ToolBinary) Equal(other *ToolBinary) bool {
	if b == nil || other == nil {
		return b == other
	}
	if b.Command != other.Command {
		return false
	}
	if b.Version == nil || other.Version == nil {
		return b.Version == other.Version
	}
	return b.Version.Equal(other.Version)
}

// String returns "command vX.Y.Z".
func (b *ToolBinary) String() string {
	if b.Version == nil {
		return b.Command
	}
	return fmt.Sprintf("%s v%s", b.Command, b.Version)
}

// ParseError indicates malformed version output. It is internal to
// resolution: a binary whose output cannot be parsed resolves to no
// value, never to a surfaced error.
type ParseError struct {
	Output string
	Err    error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse version output %q: %v", e.Output, e.Err)
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// Runner executes a tool binary and captures its output.
// It exists so resolution can be tested without real binaries.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs binaries with os/exec.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// legacyVersionRE matches the plain-text version banner, e.g.
// "Version: v1.2.3".
var legacyVersionRE = regexp.MustCompile(`Version:\s*v(\S+)`)

// ParseVersion parses a semantic version, tolerating a leading "v".
func ParseVersion(s string) (*semver.Version, error) {
	v, err := semver.NewVersion(strings.TrimPrefix(strings.TrimSpace(s), "v"))
	if err != nil {
		return nil, &ParseError{Output: s, Err: err}
	}
	return v, nil
}

// parseJSONVersion extracts the version from the structured query output,
// expected to be `{"version":"<semver>"}`.
func parseJSONVersion(output []byte) (*semver.Version, error) {
	field := gjson.GetBytes(output, "version")
	if !field.Exists() {
		return nil, &ParseError{Output: string(output), Err: fmt.Errorf("missing version field")}
	}
	return ParseVersion(field.String())
}

// extractLegacyVersion scans plain-text output for the version banner.
// Returns nil if no parseable token is present.
func extractLegacyVersion(output []byte) *semver.Version {
	m := legacyVersionRE.FindSubmatch(output)
	if m == nil {
		return nil
	}
	v, err := ParseVersion(string(m[1]))
	if err != nil {
		return nil
	}
	return v
}

// ResolveVersion queries a binary for its installed version.
//
// The structured query is tried first; on any invocation or parse
// failure the plain-text query is tried, scanning stdout then stderr.
// An unrecoverable version yields (nil, nil): no value, not an error.
// Context cancellation is the only error returned, so the caller's
// cache retries on next access.
func ResolveVersion(ctx context.Context, runner Runner, name string) (*ToolBinary, error) {
	stdout, _, err := runner.Run(ctx, name, "version", "--output=json")
	if err == nil {
		if v, perr := parseJSONVersion(stdout); perr == nil {
			return &ToolBinary{Command: name, Version: v}, nil
		}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	stdout, stderr, err := runner.Run(ctx, name, "version")
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil && len(stdout) == 0 && len(stderr) == 0 {
		return nil, nil
	}

	if v := extractLegacyVersion(stdout); v != nil {
		return &ToolBinary{Command: name, Version: v}, nil
	}
	if v := extractLegacyVersion(stderr); v != nil {
		return &ToolBinary{Command: name, Version: v}, nil
	}
	return nil, nil
}
