package store

import (
	"context"
	"strconv"
	"sync"
)

// MemStore is an in-memory implementation of Store.
//
// It keeps correlation records in maps guarded by a mutex. Designed for:
//   - Testing and development
//   - Single-process deployments where persistence isn't required
//
// Data is lost when the process terminates; production deployments should
// use SQLiteStore or MySQLStore.
type MemStore struct {
	mu      sync.RWMutex
	records map[string]map[string]Record // executionARN -> invocationID -> record
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		records: make(map[string]map[string]Record),
	}
}

// Register creates a correlation record (implements Store).
//
// The create is conditional on no record existing under the same key;
// a duplicate returns ErrAlreadyRegistered and leaves the first record
// untouched.
func (m *MemStore) Register(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	byInvocation, ok := m.records[rec.ExecutionARN]
	if !ok {
		byInvocation = make(map[string]Record)
		m.records[rec.ExecutionARN] = byInvocation
	}
	if _, exists := byInvocation[rec.InvocationID]; exists {
		return ErrAlreadyRegistered
	}

	if rec.OutcomeDetails != nil {
		normalized, err := NormalizeNumbers(rec.OutcomeDetails)
		if err != nil {
			return err
		}
		rec.OutcomeDetails = normalized
	}
	byInvocation[rec.InvocationID] = rec
	return nil
}

// LatestInvocation returns the numerically greatest invocation ID for an
// execution ARN (implements Store).
func (m *MemStore) LatestInvocation(_ context.Context, executionARN string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byInvocation := m.records[executionARN]
	if len(byInvocation) == 0 {
		return "", ErrNoPriorSubmission
	}

	var (
		latest    string
		latestVal float64
		first     = true
	)
	for id := range byInvocation {
		val, err := strconv.ParseFloat(id, 64)
		if err != nil {
			continue // non-numeric IDs never reach the store, but skip defensively
		}
		if first || val > latestVal {
			latest = id
			latestVal = val
			first = false
		}
	}
	if first {
		return "", ErrNoPriorSubmission
	}
	return latest, nil
}

// TaskToken returns the resume handle for a statement identity
// (implements Store).
func (m *MemStore) TaskToken(_ context.Context, executionARN, invocationID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[executionARN][invocationID]
	if !ok || rec.TaskToken == "" {
		return "", ErrUntrackedStatement
	}
	return rec.TaskToken, nil
}

// Retire sets the expiry marker and outcome details (implements Store).
func (m *MemStore) Retire(_ context.Context, executionARN, invocationID string, expiresAt int64, details map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[executionARN][invocationID]
	if !ok {
		return nil
	}
	normalized, err := NormalizeNumbers(details)
	if err != nil {
		return err
	}
	rec.ExpiresAt = expiresAt
	rec.OutcomeDetails = normalized
	m.records[executionARN][invocationID] = rec
	return nil
}

// DeleteExpired removes records whose expiry marker has elapsed
// (implements Store).
func (m *MemStore) DeleteExpired(_ context.Context, now int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := 0
	for arn, byInvocation := range m.records {
		for id, rec := range byInvocation {
			if rec.ExpiresAt != 0 && rec.ExpiresAt <= now {
				delete(byInvocation, id)
				deleted++
			}
		}
		if len(byInvocation) == 0 {
			delete(m.records, arn)
		}
	}
	return deleted, nil
}

// Len returns the total number of records held. Intended for tests.
func (m *MemStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, byInvocation := range m.records {
		n += len(byInvocation)
	}
	return n
}

// Get returns a copy of the record for a statement identity, if present.
// Intended for audit lookups and tests.
func (m *MemStore) Get(executionARN, invocationID string) (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[executionARN][invocationID]
	return rec, ok
}
