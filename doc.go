// Package eidolon is an embeddable runtime-introspection agent for Go programs.
//
// An Agent periodically samples the runtime of the process it lives in:
//   - memory classes of the heap and the runtime itself, exposed as memory pools
//   - goroutines grouped by state
//   - modules linked into the binary
//   - completed garbage collection cycles, kept in a bounded window
//   - an optional interned string table statistic
//
// Every sample is assembled into an immutable snapshot, serialized once and published.
// Observers read the latest snapshot over HTTP, follow a WebSocket push stream or scrape
// the Prometheus exposition. Nothing is persisted beyond the in-memory event window.
//
// The agent either owns an HTTP server listening on Config.Address, or hands its routes to
// the host through Agent.Handler. Configuration is read from flags, EIDOLON_* environment
// variables and an optional .env file by cmd/server; embedders build a Config directly.
package eidolon
