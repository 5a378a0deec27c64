// Package history records item state changes in a local SQLite database.
//
// The history module owns the "history" configuration domain:
//
//	history:
//	  path: /var/lib/homecontrol/history.db
//	  retention_days: 30
//
// Every state_change event becomes one row holding the changed values as
// JSON. Writes go through the scheduler worker pool so the event bus never
// waits on disk I/O. Rows older than the retention period are pruned when
// the module starts.
package history
