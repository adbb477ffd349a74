// Package audit records security-relevant actions: sign-in and sign-out,
// role creation and edits, and user role replacement.
//
// # Loggers
//
// DBLogger writes to the audit_events table, FileLogger writes
// newline-delimited JSON to a file or stream, MultiLogger fans out to
// several destinations and NoopLogger discards everything.
//
//	event := audit.NewEvent(ctx, r, audit.EventTypeRoleCreate, audit.EventStatusSuccess)
//	event.ResourceType = audit.ResourceTypeRole
//	event.ResourceID = role.ID
//	_ = logger.Log(ctx, event)
//
// # Retention
//
// Pruner deletes events older than the configured retention window on a
// cron schedule (DefaultPruneSchedule unless overridden).
package audit
