package relay

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dshills/sqlrelay-go/relay/store"
	"github.com/dshills/sqlrelay-go/relay/warehouse"
	"github.com/dshills/sqlrelay-go/relay/workflow"
)

func newTestRouter(t *testing.T) (*Router, *store.MemStore, *warehouse.MockClient, *workflow.MockEngine) {
	t.Helper()
	st := store.NewMemStore()
	wh := warehouse.NewMockClient()
	eng := &workflow.MockEngine{}
	r, err := NewRouter(st, wh, eng, testConfig())
	if err != nil {
		t.Fatalf("NewRouter failed: %v", err)
	}
	return r, st, wh, eng
}

// TestRouter_SubmitAdHoc verifies the scenario: submit without taskToken or
// executionArn creates an immediately retired record under an ad-hoc
// identity and submits without event notification.
func TestRouter_SubmitAdHoc(t *testing.T) {
	ctx := context.Background()
	r, st, wh, _ := newTestRouter(t)

	resp, err := r.Handle(ctx, Request{SQLStatement: "SELECT 1"})
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	fields, ok := resp.(map[string]interface{})
	if !ok {
		t.Fatalf("expected sanitized map response, got %T", resp)
	}
	if _, ok := fields["Id"]; !ok {
		t.Errorf("expected warehouse response with Id, got %v", fields)
	}

	if len(wh.ExecuteCalls) != 1 {
		t.Fatalf("expected 1 execute call, got %d", len(wh.ExecuteCalls))
	}
	call := wh.ExecuteCalls[0]
	if call.WithEvent {
		t.Errorf("expected withEvent=false for callback-less submission")
	}
	if _, tracked := ParseStatementName(call.StatementName); tracked {
		t.Errorf("expected ad-hoc statement name, got workflow-driven %q", call.StatementName)
	}

	if st.Len() != 1 {
		t.Fatalf("expected 1 correlation record, got %d", st.Len())
	}
}

// TestRouter_SubmitWithCallback verifies withEvent tracks task token
// presence and the registered name is workflow-driven.
func TestRouter_SubmitWithCallback(t *testing.T) {
	ctx := context.Background()
	r, _, wh, _ := newTestRouter(t)

	_, err := r.Handle(ctx, Request{
		SQLStatement: "SELECT 1",
		TaskToken:    "tok-1",
		ExecutionARN: testExecutionARN,
	})
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	if len(wh.ExecuteCalls) != 1 {
		t.Fatalf("expected 1 execute call, got %d", len(wh.ExecuteCalls))
	}
	call := wh.ExecuteCalls[0]
	if !call.WithEvent {
		t.Errorf("expected withEvent=true when a task token is supplied")
	}
	if _, tracked := ParseStatementName(call.StatementName); !tracked {
		t.Errorf("expected workflow-driven statement name, got %q", call.StatementName)
	}
}

// TestRouter_SubmitUnsupportedAction verifies action validation on the
// submission path.
func TestRouter_SubmitUnsupportedAction(t *testing.T) {
	ctx := context.Background()
	r, st, _, _ := newTestRouter(t)

	_, err := r.Handle(ctx, Request{SQLStatement: "SELECT 1", Action: "dropTable"})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if st.Len() != 0 {
		t.Errorf("expected no record written for rejected action")
	}
}

// TestRouter_SingletonRejectsActiveDuplicate verifies the singleton guard
// aborts before any correlation state is written.
func TestRouter_SingletonRejectsActiveDuplicate(t *testing.T) {
	ctx := context.Background()
	r, st, wh, _ := newTestRouter(t)

	wh.AddStatement(warehouse.StatementSummary{
		ID:          "stmt-running",
		Name:        "external-name",
		QueryString: "SELECT 1",
		State:       warehouse.StateStarted,
	})

	_, err := r.Handle(ctx, Request{
		SQLStatement: "SELECT 1",
		Action:       ActionExecuteSingletonStatement,
	})
	if !errors.Is(err, ErrConcurrentExecution) {
		t.Fatalf("expected ErrConcurrentExecution, got %v", err)
	}
	if st.Len() != 0 {
		t.Errorf("expected no record written, got %d", st.Len())
	}
	if len(wh.ExecuteCalls) != 0 {
		t.Errorf("expected no execute call, got %d", len(wh.ExecuteCalls))
	}
}

// TestRouter_SingletonAllowsTerminalDuplicate verifies the guard only scans
// non-terminal states.
func TestRouter_SingletonAllowsTerminalDuplicate(t *testing.T) {
	ctx := context.Background()
	r, _, wh, _ := newTestRouter(t)

	wh.AddStatement(warehouse.StatementSummary{
		ID:          "stmt-done",
		Name:        "external-name",
		QueryString: "SELECT 1",
		State:       warehouse.StateFinished,
	})

	_, err := r.Handle(ctx, Request{
		SQLStatement: "SELECT 1",
		Action:       ActionExecuteSingletonStatement,
	})
	if err != nil {
		t.Fatalf("expected finished duplicate to be allowed, got %v", err)
	}
}

// TestRouter_QueryActions verifies describe/result/cancel dispatch with a
// literal statement ID.
func TestRouter_QueryActions(t *testing.T) {
	ctx := context.Background()
	r, _, wh, _ := newTestRouter(t)

	wh.DescribeResponses["stmt-1"] = map[string]interface{}{"Id": "stmt-1", "Status": "FINISHED"}
	wh.ResultResponses["stmt-1"] = map[string]interface{}{"Id": "stmt-1", "TotalNumRows": 2}

	tests := []struct {
		action  string
		wantKey string
	}{
		{ActionDescribeStatement, "Status"},
		{ActionGetStatementResult, "TotalNumRows"},
		{ActionCancelStatement, "Status"},
	}
	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			resp, err := r.Handle(ctx, Request{StatementID: "stmt-1", Action: tt.action})
			if err != nil {
				t.Fatalf("Handle failed: %v", err)
			}
			fields, ok := resp.(map[string]interface{})
			if !ok {
				t.Fatalf("expected map response, got %T", resp)
			}
			if _, ok := fields[tt.wantKey]; !ok {
				t.Errorf("expected key %q in response %v", tt.wantKey, fields)
			}
		})
	}
}

// TestRouter_LatestSentinel verifies LATEST resolves through the correlation
// store and the warehouse name listing.
func TestRouter_LatestSentinel(t *testing.T) {
	ctx := context.Background()
	r, _, wh, _ := newTestRouter(t)

	// Two submissions from the same execution; LATEST must resolve to the
	// second one.
	for i := 0; i < 2; i++ {
		if _, err := r.Handle(ctx, Request{
			SQLStatement: fmt.Sprintf("SELECT %d", i),
			TaskToken:    fmt.Sprintf("tok-%d", i),
			ExecutionARN: testExecutionARN,
		}); err != nil {
			t.Fatalf("submission %d failed: %v", i, err)
		}
	}

	latestName := wh.ExecuteCalls[1].StatementName
	wh.DescribeResponses["stmt-0002"] = map[string]interface{}{"Id": "stmt-0002", "StatementName": latestName}

	resp, err := r.Handle(ctx, Request{
		StatementID:  StatementIDLatest,
		ExecutionARN: testExecutionARN,
		Action:       ActionDescribeStatement,
	})
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	fields := resp.(map[string]interface{})
	if fields["Id"] != "stmt-0002" {
		t.Errorf("expected LATEST to resolve to stmt-0002, got %v", fields["Id"])
	}
}

// TestRouter_LatestRequiresExecutionARN verifies the sentinel's mandatory
// execution reference.
func TestRouter_LatestRequiresExecutionARN(t *testing.T) {
	ctx := context.Background()
	r, _, _, _ := newTestRouter(t)

	_, err := r.Handle(ctx, Request{StatementID: StatementIDLatest, Action: ActionDescribeStatement})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

// TestRouter_LatestWithoutPriorSubmission verifies the lost-lineage error
// surfaces to the caller.
func TestRouter_LatestWithoutPriorSubmission(t *testing.T) {
	ctx := context.Background()
	r, _, _, _ := newTestRouter(t)

	_, err := r.Handle(ctx, Request{
		StatementID:  StatementIDLatest,
		ExecutionARN: testExecutionARN,
		Action:       ActionDescribeStatement,
	})
	if !errors.Is(err, store.ErrNoPriorSubmission) {
		t.Fatalf("expected ErrNoPriorSubmission, got %v", err)
	}
}

// TestRouter_UnsupportedShape verifies requests matching no route fail
// validation.
func TestRouter_UnsupportedShape(t *testing.T) {
	ctx := context.Background()
	r, _, _, _ := newTestRouter(t)

	tests := []struct {
		name string
		req  Request
	}{
		{"empty", Request{}},
		{"statement id without action", Request{StatementID: "stmt-1"}},
		{"action without statement id", Request{Action: ActionDescribeStatement}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := r.Handle(ctx, tt.req); !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("expected ErrInvalidRequest, got %v", err)
			}
		})
	}
}

// TestRouter_BatchPartialFailure verifies independent element processing:
// good elements complete, dropped elements are not retried, and hard
// failures are surfaced for redelivery.
func TestRouter_BatchPartialFailure(t *testing.T) {
	ctx := context.Background()
	r, _, wh, eng := newTestRouter(t)

	if _, err := r.Handle(ctx, Request{
		SQLStatement: "SELECT 1",
		TaskToken:    "tok-1",
		ExecutionARN: testExecutionARN,
	}); err != nil {
		t.Fatalf("submission failed: %v", err)
	}
	registered := wh.ExecuteCalls[0].StatementName
	// A workflow-driven name whose record was never registered: lost lineage.
	lost := "arn:aws:states:us-east-1:123456789012:execution:Other:exec:" + NewInvocationID()

	resp, err := r.Handle(ctx, Request{Records: []NotificationRecord{
		{MessageID: "msg-good", Body: string(notificationBody(registered, "FINISHED"))},
		{MessageID: "msg-untracked", Body: string(notificationBody("external-name", "FINISHED"))},
		{MessageID: "msg-lost", Body: string(notificationBody(lost, "FINISHED"))},
	}})
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	if len(eng.Successes) != 1 {
		t.Errorf("expected 1 delivery for the tracked element, got %d", len(eng.Successes))
	}

	fields, ok := resp.(map[string]interface{})
	if !ok {
		t.Fatalf("expected map response, got %T", resp)
	}
	if fields["statusCode"] != float64(200) {
		t.Errorf("expected statusCode 200, got %v", fields["statusCode"])
	}
	failures, _ := fields["batchItemFailures"].([]interface{})
	if len(failures) != 1 {
		t.Fatalf("expected 1 batch item failure, got %v", fields["batchItemFailures"])
	}
	failure := failures[0].(map[string]interface{})
	if failure["itemIdentifier"] != "msg-lost" {
		t.Errorf("expected msg-lost to be surfaced for redelivery, got %v", failure["itemIdentifier"])
	}
}
