// Package notifications delivers job events to ntfy.
//
// NewService returns a no-op implementation when no topic is configured, so
// the workflow can publish unconditionally. Completion and failure events are
// gated by the notifications.completed and notifications.errors settings.
package notifications
