package progress

import "sync"

// RegistryCall is one call observed by MockRegistry
type RegistryCall struct {
	Method  string
	ID      TaskID
	Results any
}

// MockRegistry implements the Registry interface for testing. It records every
// call in order.
type MockRegistry struct {
	mu    sync.Mutex
	calls []RegistryCall

	// OnCall, if set, is invoked after each call is recorded
	OnCall func(call RegistryCall)
}

// NewMockRegistry creates an empty MockRegistry
func NewMockRegistry() *MockRegistry {
	return &MockRegistry{calls: make([]RegistryCall, 0)}
}

func (m *MockRegistry) record(call RegistryCall) {
	m.mu.Lock()
	m.calls = append(m.calls, call)
	hook := m.OnCall
	m.mu.Unlock()

	if hook != nil {
		hook(call)
	}
}

// AddTaskToQueue implements Registry
func (m *MockRegistry) AddTaskToQueue(id TaskID) {
	m.record(RegistryCall{Method: "AddTaskToQueue", ID: id})
}

// StartTask implements Registry
func (m *MockRegistry) StartTask(id TaskID) {
	m.record(RegistryCall{Method: "StartTask", ID: id})
}

// RecordResults implements Registry
func (m *MockRegistry) RecordResults(id TaskID, results any) {
	m.record(RegistryCall{Method: "RecordResults", ID: id, Results: results})
}

// FinishTask implements Registry
func (m *MockRegistry) FinishTask(id TaskID) {
	m.record(RegistryCall{Method: "FinishTask", ID: id})
}

// Calls returns a copy of the recorded calls
func (m *MockRegistry) Calls() []RegistryCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([]RegistryCall, len(m.calls))
	copy(calls, m.calls)
	return calls
}

// Methods returns the recorded method names in call order
func (m *MockRegistry) Methods() []string {
	calls := m.Calls()
	methods := make([]string, len(calls))
	for i, call := range calls {
		methods[i] = call.Method
	}
	return methods
}

// Ensure MockRegistry implements Registry
var _ Registry = (*MockRegistry)(nil)
