// Package progress tracks queued, running and finished tasks so that clients can
// poll a task's queue position, completion percentage and ETA while the job
// itself streams results elsewhere.
//
// Task identifiers are opaque strings chosen by the caller. The legacy wire form
// "task(<id>)" is still accepted through ParseTaskID.
package progress
