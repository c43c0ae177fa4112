// Package preflight provides readiness checks for the directories, binaries
// and remote services vidlens depends on.
//
// The daemon runs RunAll at startup and logs failures; the doctor command
// renders the same results as a table. Checks for optional features (LLM
// classification, NATS intake) only run when the feature is configured.
package preflight
