// Package daemon coordinates the long-running murmur process.
//
// It ties the workflow manager and the HTTP API server into a single
// lifecycle guarded by a flock-based lock so only one daemon runs per log
// directory. A PID file written next to the lock lets the status command
// report liveness even when the API listener is disabled.
//
// Keep orchestration logic here: the work itself lives in the workflow and
// pipeline packages while the daemon focuses on startup, shutdown, and
// single-instance enforcement.
package daemon
