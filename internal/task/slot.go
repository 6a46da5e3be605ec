package task

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Slot is the single execution slot guarding the compute resource. At most one
// holder at a time; waiters are admitted in FIFO order. Slots are not
// re-entrant: acquiring a slot you already hold blocks forever.
type Slot struct {
	sem  *semaphore.Weighted
	held atomic.Bool
}

// NewSlot creates a free Slot.
func NewSlot() *Slot {
	return &Slot{sem: semaphore.NewWeighted(1)}
}

// Acquire blocks until the slot is free or ctx is done. It has no timeout of its
// own.
func (s *Slot) Acquire(ctx context.Context) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	s.held.Store(true)
	return nil
}

// Release frees the slot. Releasing a free slot panics.
func (s *Slot) Release() {
	if !s.held.CompareAndSwap(true, false) {
		panic("task: Slot.Release called without matching Acquire")
	}
	s.sem.Release(1)
}

// Held reports whether a job currently owns the slot.
func (s *Slot) Held() bool {
	return s.held.Load()
}
