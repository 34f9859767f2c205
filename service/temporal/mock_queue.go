package temporal

import (
	"context"
	"sync"
)

// MockEnqueuer is a mock implementation of Enqueuer for testing.
type MockEnqueuer struct {
	mu         sync.Mutex
	enqueued   []string
	enqueueErr error
}

// NewMockEnqueuer creates a new MockEnqueuer.
func NewMockEnqueuer() *MockEnqueuer {
	return &MockEnqueuer{}
}

// EnqueueTransaction records that a transaction was enqueued.
func (m *MockEnqueuer) EnqueueTransaction(ctx context.Context, transactionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.enqueueErr != nil {
		return m.enqueueErr
	}

	m.enqueued = append(m.enqueued, transactionID)
	return nil
}

// SetEnqueueError makes EnqueueTransaction return an error.
func (m *MockEnqueuer) SetEnqueueError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enqueueErr = err
}

// Enqueued returns the transaction IDs enqueued so far.
func (m *MockEnqueuer) Enqueued() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, len(m.enqueued))
	copy(out, m.enqueued)
	return out
}

// EnqueueCount returns the number of enqueued transactions.
func (m *MockEnqueuer) EnqueueCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.enqueued)
}

// Reset clears recorded enqueues and errors.
func (m *MockEnqueuer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enqueued = nil
	m.enqueueErr = nil
}
