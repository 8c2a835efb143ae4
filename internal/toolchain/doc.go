// Package toolchain tracks installed versions of command-line tools.
//
// Each tracked binary gets a reactive cache that resolves its version by
// invoking the binary itself. A registry aggregates the per-binary caches
// into a single derived list, recomputed whenever any entry changes.
//
// Version resolution prefers the structured query
// (`<binary> version --output=json`) and falls back to scraping the
// plain-text output, checking stderr as well because some flow releases
// misroute the version banner there. A binary whose version cannot be
// recovered resolves to no value rather than an error; the aggregate
// simply excludes it.
package toolchain
