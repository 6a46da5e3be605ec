// Package generation defines the boundary between the job queue and the
// GPU-bound image generation pipeline.
//
// The Generator interface is what request handlers drive inside a queued job:
// Load prepares the model once at startup and Generate produces a batch of
// images, reporting progress through the shared jobstate.JobContext and
// honouring its interrupt, skip and pause flags. Simulator is a deterministic
// in-process implementation used when no accelerator is attached and in tests.
package generation
