// Package cache persists expensive transcription artifacts between runs.
//
// Entries are flat files under one directory, each with a JSON sidecar
// describing what produced it. Corrupt or mismatched entries read as
// misses and are removed, so callers only ever see valid payloads.
// Sweep enforces the age, total-size, and free-space limits.
package cache
