// Package config holds the extension settings and the flow.json
// watcher.
//
// Settings come from an optional TOML file; a missing file yields the
// defaults, and command-line flags override individual fields. The
// Watcher observes the Flow project configuration file and reports
// debounced change events so the analysis process can be told to
// reload.
package config
