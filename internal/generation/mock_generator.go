package generation

import (
	"context"
	"sync"

	"github.com/phrazzld/genqueue/internal/jobstate"
)

// MockGenerator implements the Generator interface for testing.
type MockGenerator struct {
	// LoadFn, if set, replaces the default Load behavior
	LoadFn func(ctx context.Context) error

	// GenerateFn, if set, replaces the default Generate behavior
	GenerateFn func(ctx context.Context, req Request, state *jobstate.JobContext, emit func(Image) error) error

	mu       sync.Mutex
	loads    int
	requests []Request
}

// NewMockGenerator creates a MockGenerator that emits one image per batch entry.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{}
}

// Load implements Generator
func (m *MockGenerator) Load(ctx context.Context) error {
	m.mu.Lock()
	m.loads++
	m.mu.Unlock()

	if m.LoadFn != nil {
		return m.LoadFn(ctx)
	}
	return nil
}

// Generate implements Generator
func (m *MockGenerator) Generate(
	ctx context.Context,
	req Request,
	state *jobstate.JobContext,
	emit func(Image) error,
) error {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.GenerateFn != nil {
		return m.GenerateFn(ctx, req, state, emit)
	}

	state.SetJobCount(req.BatchCount)
	for i := range req.BatchCount {
		img := Image{Index: i, Seed: req.Seed + int64(i), Prompt: req.Prompt, Steps: req.Steps}
		if err := emit(img); err != nil {
			return err
		}
		state.NextJob()
	}
	return nil
}

// Loads returns how many times Load was called
func (m *MockGenerator) Loads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loads
}

// Requests returns the requests passed to Generate, in call order
func (m *MockGenerator) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}
