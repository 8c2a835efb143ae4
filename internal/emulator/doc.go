// Package emulator detects whether the local blockchain emulator is
// reachable.
//
// A Monitor probes the emulator's gRPC port on a fixed interval and
// tracks only transitions: repeated identical readings never trigger
// action. When reachability flips, the transition callback is invoked
// outside the shared lock with the new reading, which the client
// supervisor uses as the launch flag for its next restart.
//
// A failed probe is not an error; it is the "unreachable" reading.
package emulator
