package lsp

import (
	"errors"
	"fmt"
)

// Standard errors returned by the client.
var (
	// ErrAlreadyStarted indicates the analysis process is already running.
	ErrAlreadyStarted = errors.New("analysis client already started")

	// ErrShutdown indicates the transport has been shut down.
	ErrShutdown = errors.New("analysis client shut down")

	// ErrNoTransport indicates no transport handle is currently active.
	// Remote commands issued during a restart window may observe this.
	ErrNoTransport = errors.New("no active transport")
)

// RPCError represents a JSON-RPC error from the analysis process.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("rpc error %d: %s (data: %v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// LaunchError indicates the analysis process failed to start or to
// complete its initialize handshake. It is surfaced to the user; the
// supervisor stays stopped and does not retry.
type LaunchError struct {
	Command string
	Err     error
}

// Error implements the error interface.
func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch %s: %v", e.Command, e.Err)
}

// Unwrap returns the underlying error.
func (e *LaunchError) Unwrap() error {
	return e.Err
}

// RemoteCommandError indicates a remote command failed or returned a
// response that does not match its schema.
type RemoteCommandError struct {
	Command string
	Reason  string
	Err     error
}

// Error implements the error interface.
func (e *RemoteCommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("remote command %s: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("remote command %s: %s", e.Command, e.Reason)
}

// Unwrap returns the underlying error.
func (e *RemoteCommandError) Unwrap() error {
	return e.Err
}
