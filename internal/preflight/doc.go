// Package preflight provides readiness checks for the external tools,
// directories, and speech providers murmur depends on.
//
// The checks run in two contexts:
//   - The daemon calls RunAll once at startup and refuses to start when a
//     required check fails, so a broken setup surfaces before any queue
//     task is picked up.
//   - The status command uses the individual check functions
//     (CheckTools, CheckProvider, CheckDirectoryAccess) to render a
//     readiness table without touching the queue.
//
// Checks gated by a config toggle are skipped when the feature is off.
package preflight
