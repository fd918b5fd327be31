// Package workflow drains the subtitle queue through the transcription stage.
//
// The Manager runs a single loop: reclaim tasks with stale heartbeats, pop the
// oldest pending task, mark it processing, and hand it to the stage handler
// while a heartbeat goroutine keeps the task's liveness timestamp fresh.
// Handler errors map to terminal statuses through services.FailureStatus;
// shutdown marks the in-flight task cancelled rather than leaving it stranded
// in processing. The manager also aggregates queue stats, exposes stage
// health, and publishes task and batch notifications.
package workflow
