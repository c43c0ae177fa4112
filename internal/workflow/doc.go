// Package workflow runs queued analysis jobs.
//
// The Manager starts a fixed number of workers that claim pending jobs from
// the queue, hold a per-job lock file while the analysis pipeline runs, keep
// the job's heartbeat fresh, and persist sampled progress. Finished jobs are
// marked completed with their result document, failed with the error kind
// and message (plus any partial result), or returned to pending when the
// daemon is shutting down. Stale processing jobs left behind by a crashed
// worker are reclaimed once their heartbeat times out.
package workflow
