// Package lsp drives the Cadence language-analysis process.
//
// The package owns the full client-side lifecycle: spawning the analysis
// process (`flow cadence language-server`), the JSON-RPC 2.0 stdio
// transport, the initialize handshake, crash detection with backoff, and
// typed wrappers over the remote commands the process exposes.
//
// # Architecture
//
//   - Client: lifecycle supervisor with an explicit state machine
//     (Stopped, Starting, Running, Crashed), serialized by one shared
//     mutex also held by the emulator connectivity monitor
//   - Transport: JSON-RPC 2.0 over the child process's stdio with
//     Content-Length framing
//   - Typed commands: CreateAccount, SwitchAccount, Accounts, Reset,
//     ReloadConfiguration, validated at the boundary
//
// # Concurrency
//
// Start, Stop and Restart all acquire the shared mutex; no two spawn or
// teardown sequences ever overlap. Remote-command calls deliberately do
// not take the lock: a call racing a restart may observe a torn-down
// handle and fail with ErrNoTransport, which callers tolerate.
package lsp
