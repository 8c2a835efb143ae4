package lsp

import "encoding/json"

// InitializationOptions is the payload handed to the analysis process
// during initialization. All values are passed as strings; that is the
// shape the server expects.
type InitializationOptions struct {
	ConfigPath       string `json:"configPath"`
	NumberOfAccounts string `json:"numberOfAccounts"`
	AccessCheckMode  string `json:"accessCheckMode"`
}

// ClientCapabilities is intentionally empty: the analysis process needs
// no client capabilities beyond workspace/executeCommand, which is
// implied.
type ClientCapabilities struct{}

// InitializeParams is the initialize request payload.
type InitializeParams struct {
	ProcessID             int                    `json:"processId"`
	RootURI               string                 `json:"rootUri,omitempty"`
	Capabilities          ClientCapabilities     `json:"capabilities"`
	InitializationOptions *InitializationOptions `json:"initializationOptions,omitempty"`
}

// ServerInfo identifies the analysis process.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// InitializeResult is the initialize response payload. Capabilities are
// kept raw; this client does not negotiate features.
type InitializeResult struct {
	Capabilities json.RawMessage `json:"capabilities"`
	ServerInfo   *ServerInfo     `json:"serverInfo,omitempty"`
}

// InitializedParams is the (empty) initialized notification payload.
type InitializedParams struct{}

// ExecuteCommandParams carries a remote-command invocation.
type ExecuteCommandParams struct {
	Command   string `json:"command"`
	Arguments []any  `json:"arguments,omitempty"`
}
