// Package events provides the in-process event channel used to push incremental
// job progress and results to listeners.
//
// A Channel is a FIFO queue of (event, payload) records with a terminal "done"
// state. Producers push records from the job's goroutine; consumers pull them from
// their own goroutines and block while the backlog is empty.
//
// The primary components are:
// - Record: an immutable (event, payload) pair
// - Channel: the queue itself, with one-shot completion listeners
package events
