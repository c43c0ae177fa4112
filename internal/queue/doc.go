// Package queue persists analysis jobs in SQLite and exposes helpers for
// driving their lifecycle.
//
// The Store manages database connections, schema initialization, stats
// queries, heartbeat tracking, stuck-job recovery, and the pending ->
// processing -> completed/failed transitions. Claiming a job is a single
// conditional UPDATE, so only one worker can own a job at a time; progress,
// completion and failure writes are guarded by the processing status and fail
// with ErrNotProcessing when a run no longer owns its record.
//
// Schema changes bump the version in schema.go; users clear the database to
// adopt the new schema.
package queue
