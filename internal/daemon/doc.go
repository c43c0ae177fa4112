// Package daemon owns the lifecycle of the long-running vidlens process.
//
// A Daemon holds a flock-based lock so only one instance serves a state
// directory, then starts the workflow manager together with the optional
// NATS dispatch consumer and Prometheus listener. Stop cancels them all and
// waits for in-flight jobs to be persisted before the lock is released.
package daemon
