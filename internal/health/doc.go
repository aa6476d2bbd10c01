// Package health holds the liveness and readiness probes served on both
// listeners.
//
// Probes compose with [All] and [Any]. [ShutdownGate] fails readiness as
// soon as draining begins; [DirReadable] fails it while the content
// directory cannot be listed.
package health
