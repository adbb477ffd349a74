// Package async runs short background tasks outside the request path.
//
// SafeGo bounds each task with a timeout and recovers panics. Errors go to
// the structured logger; the caller only gets a channel that closes when
// the task is finished.
package async
