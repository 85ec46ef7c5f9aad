package relay

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dshills/sqlrelay-go/relay/store"
	"github.com/dshills/sqlrelay-go/relay/workflow"
)

func notificationBody(statementName, state string) []byte {
	return []byte(fmt.Sprintf(`{"detail":{"statementName":%q,"state":%q},"time":"2026-08-31T12:00:00Z"}`, statementName, state))
}

func newTestResolver(t *testing.T, st store.Store, eng workflow.Engine) (*CompletionResolver, *Correlator) {
	t.Helper()
	c := newTestCorrelator(t, st)
	r, err := NewCompletionResolver(c, eng)
	if err != nil {
		t.Fatalf("NewCompletionResolver failed: %v", err)
	}
	return r, c
}

// TestHandleNotification_Success verifies the full resolve path: lookup,
// success delivery, retirement.
func TestHandleNotification_Success(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore()
	eng := &workflow.MockEngine{}
	resolver, correlator := newTestResolver(t, st, eng)

	identity, err := correlator.RegisterSubmission(ctx, "tok-1", testExecutionARN, "SELECT 1")
	if err != nil {
		t.Fatalf("RegisterSubmission failed: %v", err)
	}

	if err := resolver.HandleNotification(ctx, notificationBody(identity.String(), "FINISHED")); err != nil {
		t.Fatalf("HandleNotification failed: %v", err)
	}

	if len(eng.Successes) != 1 {
		t.Fatalf("expected 1 success delivery, got %d", len(eng.Successes))
	}
	if eng.Successes[0].TaskToken != "tok-1" {
		t.Errorf("expected delivery to 'tok-1', got %q", eng.Successes[0].TaskToken)
	}
	if len(eng.Failures) != 0 {
		t.Errorf("expected no failure deliveries, got %d", len(eng.Failures))
	}

	rec, ok := st.Get(identity.ExecutionARN, identity.InvocationID)
	if !ok {
		t.Fatalf("expected record to survive retirement until TTL expiry")
	}
	if rec.ExpiresAt == 0 {
		t.Errorf("expected record retired after completion")
	}
	if rec.OutcomeDetails == nil {
		t.Errorf("expected finished-event details recorded")
	}
}

// TestHandleNotification_Failure verifies failed statements are delivered as
// task failures with the fixed error code.
func TestHandleNotification_Failure(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore()
	eng := &workflow.MockEngine{}
	resolver, correlator := newTestResolver(t, st, eng)

	identity, err := correlator.RegisterSubmission(ctx, "tok-1", testExecutionARN, "SELECT 1")
	if err != nil {
		t.Fatalf("RegisterSubmission failed: %v", err)
	}

	if err := resolver.HandleNotification(ctx, notificationBody(identity.String(), "FAILED")); err != nil {
		t.Fatalf("HandleNotification failed: %v", err)
	}

	if len(eng.Failures) != 1 {
		t.Fatalf("expected 1 failure delivery, got %d", len(eng.Failures))
	}
	if eng.Failures[0].ErrorCode != FailureErrorCode {
		t.Errorf("expected error code %q, got %q", FailureErrorCode, eng.Failures[0].ErrorCode)
	}
}

// TestHandleNotification_DropsUntrackedNames verifies the normal
// drop-through branch: no store mutation, no workflow-engine call.
func TestHandleNotification_DropsUntrackedNames(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore()
	eng := &workflow.MockEngine{}
	resolver, _ := newTestResolver(t, st, eng)

	if err := resolver.HandleNotification(ctx, notificationBody("some-external-statement", "FINISHED")); err != nil {
		t.Fatalf("expected drop-through to return nil, got %v", err)
	}
	if len(eng.Successes) != 0 || len(eng.Failures) != 0 {
		t.Errorf("expected no workflow-engine calls")
	}
	if st.Len() != 0 {
		t.Errorf("expected no store mutation, got %d records", st.Len())
	}
}

// TestHandleNotification_LostLineage verifies that a workflow-driven name
// with no correlation record fails hard so the transport retries.
func TestHandleNotification_LostLineage(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore()
	eng := &workflow.MockEngine{}
	resolver, _ := newTestResolver(t, st, eng)

	untracked := Mint(testExecutionARN, "us-east-1")
	err := resolver.HandleNotification(ctx, notificationBody(untracked.String(), "FINISHED"))
	if !errors.Is(err, store.ErrUntrackedStatement) {
		t.Fatalf("expected ErrUntrackedStatement, got %v", err)
	}
	if len(eng.Successes) != 0 || len(eng.Failures) != 0 {
		t.Errorf("expected no workflow-engine calls on lost lineage")
	}
}

// TestHandleNotification_UnsupportedState verifies states other than
// FINISHED and FAILED are hard failures.
func TestHandleNotification_UnsupportedState(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore()
	eng := &workflow.MockEngine{}
	resolver, correlator := newTestResolver(t, st, eng)

	identity, err := correlator.RegisterSubmission(ctx, "tok-1", testExecutionARN, "SELECT 1")
	if err != nil {
		t.Fatalf("RegisterSubmission failed: %v", err)
	}

	err = resolver.HandleNotification(ctx, notificationBody(identity.String(), "ABORTED"))
	if !errors.Is(err, ErrUnsupportedOutcome) {
		t.Fatalf("expected ErrUnsupportedOutcome, got %v", err)
	}
}

// TestHandleNotification_DuplicateDelivery verifies at-least-once tolerance:
// redelivery after retirement resolves benignly instead of raising.
func TestHandleNotification_DuplicateDelivery(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore()
	eng := &workflow.MockEngine{}
	resolver, correlator := newTestResolver(t, st, eng)

	identity, err := correlator.RegisterSubmission(ctx, "tok-1", testExecutionARN, "SELECT 1")
	if err != nil {
		t.Fatalf("RegisterSubmission failed: %v", err)
	}
	body := notificationBody(identity.String(), "FINISHED")

	if err := resolver.HandleNotification(ctx, body); err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}

	// The workflow engine reports the task resolved on the redelivery.
	eng.Err = workflow.ErrTaskAlreadyResolved
	if err := resolver.HandleNotification(ctx, body); err != nil {
		t.Fatalf("expected second delivery to be benign, got %v", err)
	}

	rec, ok := st.Get(identity.ExecutionARN, identity.InvocationID)
	if !ok {
		t.Fatalf("expected record to exist")
	}
	if rec.ExpiresAt == 0 {
		t.Errorf("expected record to remain retired")
	}
}

// TestHandleNotification_MalformedBody verifies shape validation.
func TestHandleNotification_MalformedBody(t *testing.T) {
	ctx := context.Background()
	resolver, _ := newTestResolver(t, store.NewMemStore(), &workflow.MockEngine{})

	tests := []struct {
		name string
		body string
	}{
		{"not json", "not-json"},
		{"no detail", `{"time":"2026-08-31T12:00:00Z"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := resolver.HandleNotification(ctx, []byte(tt.body))
			if !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("expected ErrInvalidRequest, got %v", err)
			}
		})
	}
}
