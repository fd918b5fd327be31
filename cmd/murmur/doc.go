// Package main hosts the murmur CLI entrypoint and command graph.
//
// The Cobra-based command tree covers the daemon lifecycle, queue maintenance,
// one-shot transcription, cache inspection, status reporting, log tailing, and
// configuration scaffolding. Commands read queue state through the sqlite
// store directly; only status and logs prefer the daemon's HTTP API, falling
// back to the PID file and the current log file when the daemon is down.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
