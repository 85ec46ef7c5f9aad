package warehouse

import (
	"context"
	"fmt"
	"sync"
)

// MockClient is a test implementation of Client.
//
// Use MockClient in tests to verify relay behavior without a real
// warehouse. It provides:
//   - An in-memory statement registry fed by ExecuteStatement
//   - Configurable describe/result/cancel responses
//   - Call history tracking
//   - Error injection
//   - Thread-safe operation
//
// Example usage:
//
//	mock := warehouse.NewMockClient()
//	resp, err := mock.ExecuteStatement(ctx, "SELECT 1", "name", true)
//	// resp["Id"] is a generated statement ID; the statement is listed
//	// in StateStarted until FinishStatement moves it to a terminal state.
type MockClient struct {
	// Err, if set, is returned by every method instead of a response.
	Err error

	// DescribeResponses maps statement IDs to canned describe payloads.
	DescribeResponses map[string]map[string]interface{}

	// ResultResponses maps statement IDs to canned result payloads.
	ResultResponses map[string]map[string]interface{}

	// ExecuteCalls records every ExecuteStatement invocation.
	ExecuteCalls []MockExecuteCall

	mu         sync.Mutex
	statements []StatementSummary
	nextID     int
}

// MockExecuteCall records a single ExecuteStatement invocation.
type MockExecuteCall struct {
	SQL           string
	StatementName string
	WithEvent     bool
}

// NewMockClient creates an empty mock warehouse.
func NewMockClient() *MockClient {
	return &MockClient{
		DescribeResponses: make(map[string]map[string]interface{}),
		ResultResponses:   make(map[string]map[string]interface{}),
	}
}

// AddStatement seeds the statement registry, for tests that need
// pre-existing executions (e.g. singleton guard scenarios).
func (m *MockClient) AddStatement(s StatementSummary) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statements = append(m.statements, s)
}

// FinishStatement moves a statement to a terminal state.
func (m *MockClient) FinishStatement(id string, state State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.statements {
		if m.statements[i].ID == id {
			m.statements[i].State = state
		}
	}
}

// ExecuteStatement registers the statement in StateStarted and returns a
// generated ID (implements Client).
func (m *MockClient) ExecuteStatement(ctx context.Context, sql, statementName string, withEvent bool) (map[string]interface{}, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ExecuteCalls = append(m.ExecuteCalls, MockExecuteCall{
		SQL:           sql,
		StatementName: statementName,
		WithEvent:     withEvent,
	})
	if m.Err != nil {
		return nil, m.Err
	}

	m.nextID++
	id := fmt.Sprintf("stmt-%04d", m.nextID)
	m.statements = append(m.statements, StatementSummary{
		ID:          id,
		Name:        statementName,
		QueryString: sql,
		State:       StateStarted,
	})
	return map[string]interface{}{
		"Id":            id,
		"StatementName": statementName,
	}, nil
}

// DescribeStatement returns the canned describe payload for an ID
// (implements Client).
func (m *MockClient) DescribeStatement(_ context.Context, id string) (map[string]interface{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	if resp, ok := m.DescribeResponses[id]; ok {
		return resp, nil
	}
	return map[string]interface{}{"Id": id}, nil
}

// GetStatementResult returns the canned result payload for an ID
// (implements Client).
func (m *MockClient) GetStatementResult(_ context.Context, id, nextToken string) (map[string]interface{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	if resp, ok := m.ResultResponses[id]; ok {
		return resp, nil
	}
	return map[string]interface{}{"Id": id, "Records": []interface{}{}}, nil
}

// CancelStatement marks the statement aborted (implements Client).
func (m *MockClient) CancelStatement(_ context.Context, id string) (map[string]interface{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	for i := range m.statements {
		if m.statements[i].ID == id {
			m.statements[i].State = StateAborted
		}
	}
	return map[string]interface{}{"Status": true}, nil
}

// ListStatements filters the registry by state and name (implements Client).
func (m *MockClient) ListStatements(_ context.Context, status State, statementName string) ([]StatementSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}

	var out []StatementSummary
	for _, s := range m.statements {
		if status != StateAll && s.State != status {
			continue
		}
		if statementName != "" && s.Name != statementName {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}
