// Package daemonrun wires configuration, logging, the queue store, the speech
// model and the analysis pipeline into a running daemon for the CLI's daemon
// command.
package daemonrun
