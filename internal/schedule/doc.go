// Package schedule provides the in-process periodic timer service that
// drives check runs.
//
// Timers are registered against named handlers. A handler is a stable,
// human readable identity (e.g. "watch.check"); the timer id is an opaque
// handle returned on creation and used for listing and deletion. Multiple
// owners may share one timer; the schedule service itself does no
// reference counting, that lives with the caller.
//
// Ticks are executed on a small worker pool with a per-run timeout.
// Registering timers while stopped is supported: definitions are stored
// and bound to cron entries on the next Start.
package schedule
