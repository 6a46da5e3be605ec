// Package api handles incoming HTTP requests, routing, request validation,
// and response formatting. It is the adapter between HTTP clients and the job
// queue: generation requests are submitted as queued jobs whose results are
// streamed back as server-sent events, and the shared job state is exposed
// for progress polling and for interrupt, skip, pause and resume controls.
package api
