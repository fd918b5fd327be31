// Package services defines shared utilities consumed by the transcription
// pipeline and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp queue task IDs, stage names, provider kinds,
//     and correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that translate failures
//     into consistent queue statuses and retry decisions.
//
// Use these helpers when wiring new pipeline logic so operational behaviour
// (error handling, observability, retries) stays uniform across the system.
package services
