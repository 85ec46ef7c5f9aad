package workflow

import (
	"context"
	"sync"
)

// MockEngine is a test implementation of Engine.
//
// It records every delivery and supports error injection, including
// simulating the already-resolved condition:
//
//	eng := &workflow.MockEngine{Err: workflow.ErrTaskAlreadyResolved}
//	err := eng.SendTaskSuccess(ctx, "tok", []byte(`{}`))
//	// err == ErrTaskAlreadyResolved
type MockEngine struct {
	// Err, if set, is returned by every delivery.
	Err error

	// Successes records SendTaskSuccess invocations.
	Successes []MockDelivery

	// Failures records SendTaskFailure invocations.
	Failures []MockDelivery

	mu sync.Mutex
}

// MockDelivery records a single outcome delivery.
type MockDelivery struct {
	TaskToken string
	ErrorCode string
	Payload   []byte
}

// SendTaskSuccess records the delivery (implements Engine).
func (m *MockEngine) SendTaskSuccess(ctx context.Context, taskToken string, output []byte) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Successes = append(m.Successes, MockDelivery{TaskToken: taskToken, Payload: output})
	return m.Err
}

// SendTaskFailure records the delivery (implements Engine).
func (m *MockEngine) SendTaskFailure(ctx context.Context, taskToken string, errorCode string, cause []byte) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Failures = append(m.Failures, MockDelivery{TaskToken: taskToken, ErrorCode: errorCode, Payload: cause})
	return m.Err
}
