// Package jobstate holds the shared state of the job currently occupying the
// execution slot: the interrupt, skip and pause flags, the job and step counters
// progress pollers read, and the cancellation token handed to the running job.
//
// Only the job holding the slot mutates a JobContext; pollers read it concurrently
// and must tolerate seeing a transition half way through.
package jobstate
