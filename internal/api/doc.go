// Package api serves the daemon's localhost HTTP surface and defines the
// wire-format types it speaks. It translates internal queue and workflow
// models into transport-friendly DTOs so consumers never couple to
// internal types.
//
// Routes:
//
//	GET /healthz          liveness probe
//	GET /api/status       daemon, workflow, queue, and tool readiness
//	GET /api/queue        queue tasks, optionally filtered by ?status=
//	GET /api/queue/{id}   one queue task
//	GET /api/logs/tail    recent log events, ?limit= caps the count
//	GET /api/logs/stream  websocket feed of live log events
//
// DTOs use camelCase JSON tags. Internal enums (queue.Status, queue.Kind)
// are exposed as lowercase strings. Timestamps use RFC3339 with
// milliseconds.
package api
