package scriptlet

import (
	"context"
	"sync"
)

// MockExecutor is a mock implementation of Executor for testing
type MockExecutor struct {
	ExecuteFunc func(ctx context.Context, req Request) (Result, error)

	mu    sync.Mutex
	calls []Request
}

// Execute implements Executor.Execute
func (m *MockExecutor) Execute(ctx context.Context, req Request) (Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()

	if req.Suppressed {
		return Result{Skipped: true}, nil
	}
	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, req)
	}
	return Result{}, nil
}

// Calls returns every request received so far, in order
func (m *MockExecutor) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.calls))
	copy(out, m.calls)
	return out
}
