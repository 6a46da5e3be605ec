package jobstate

import (
	"context"
	"sync/atomic"
)

// CancelToken is a cooperative cancellation signal for one job. Long-running
// functions poll IsCancelled or watch the context returned by NewCancelToken.
type CancelToken struct {
	cancelled atomic.Bool
	cancel    context.CancelFunc
}

// NewCancelToken returns a token and a child of parent that is cancelled together
// with the token.
func NewCancelToken(parent context.Context) (*CancelToken, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	return &CancelToken{cancel: cancel}, ctx
}

// IsCancelled reports whether cancellation was requested.
func (t *CancelToken) IsCancelled() bool {
	if t == nil {
		return false
	}
	return t.cancelled.Load()
}

// RequestCancel marks the token cancelled and cancels its context. Safe to call
// more than once and from any goroutine.
func (t *CancelToken) RequestCancel() {
	if t == nil {
		return
	}
	t.cancelled.Store(true)
	if t.cancel != nil {
		t.cancel()
	}
}

// release frees the token's context without marking it cancelled
func (t *CancelToken) release() {
	if t != nil && t.cancel != nil {
		t.cancel()
	}
}
