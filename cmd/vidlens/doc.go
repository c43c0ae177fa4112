// Command vidlens analyzes videos for motion and speech content.
//
// It runs one-off analyses (analyze), queues jobs for the daemon (submit),
// inspects and maintains the job queue (jobs), runs the background daemon
// (daemon), and checks the local installation (doctor, config).
package main
