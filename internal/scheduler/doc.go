// Package scheduler runs the hub's concurrent work.
//
// A Loop owns:
//   - a root context that is cancelled when shutdown's grace period ends
//   - tracked tasks started with Go (event handlers, pollers, module work)
//   - a run-queue drained by a single dispatcher goroutine, fed by Submit
//   - a bounded pool for blocking calls, used through RunBlocking
//
// # Foreign goroutines
//
// Client libraries such as the MQTT client call back on goroutines they
// own. Those callbacks must not touch kernel tables directly; they hand a
// function to Submit, which never blocks: it either enqueues or fails with
// ErrQueueFull / ErrStopped.
//
// # Shutdown
//
// Shutdown stops accepting new work, waits up to the grace period for
// tracked tasks, then cancels the root context. Tasks are expected to
// watch their context and to tolerate being interrupted.
//
// # Thread Safety
//
// All Loop methods are safe for concurrent use.
package scheduler
