// Package task serializes jobs on the shared compute resource.
//
// A Queue owns a single FIFO execution slot. Submit returns the job's results as
// a lazy stream: the job starts when the caller begins ranging over it and holds
// the slot until the stream ends. While a job runs the queue keeps the shared
// jobstate.JobContext and the progress registry up to date, appends a timing and
// memory footer to every result, and converts any failure into a single fallback
// result carrying an HTML error banner. SubmitAsync does the same on its own
// goroutine and delivers the results through an events.Channel.
package task
