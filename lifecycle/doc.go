// Package lifecycle coordinates process shutdown.
//
// Components that own a closable resource register a shutdown handler while
// the process starts. When a termination signal arrives, or a component
// reports a fatal failure through Fail, the coordinator runs every handler
// exactly once in registration order, waits a short settle delay and exits.
// The whole sequence is bounded by a hard timeout so the process never hangs
// on the way out.
package lifecycle
