package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dshills/sqlrelay-go/relay/emit"
	"github.com/dshills/sqlrelay-go/relay/workflow"
)

// FailureErrorCode is the fixed error category attached to failed-statement
// outcomes delivered to the workflow engine. The full finished-event payload
// travels alongside as the serialized cause.
const FailureErrorCode = "FAILED"

// CompletionResolver maps finished-statement notifications back to the
// workflow tasks that issued them.
//
// For each notification it recovers the StatementIdentity from the
// statement name, looks up the recorded task token, delivers the outcome to
// the workflow engine, and retires the correlation record.
type CompletionResolver struct {
	correlator *Correlator
	engine     workflow.Engine
	emitter    emit.Emitter
	metrics    *Metrics
}

// NewCompletionResolver builds a resolver over a correlator and a workflow
// engine.
func NewCompletionResolver(c *Correlator, eng workflow.Engine, opts ...Option) (*CompletionResolver, error) {
	if c == nil {
		return nil, fmt.Errorf("correlator must not be nil")
	}
	if eng == nil {
		return nil, fmt.Errorf("workflow engine must not be nil")
	}
	o, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}
	return &CompletionResolver{
		correlator: c,
		engine:     eng,
		emitter:    o.emitter,
		metrics:    o.metrics,
	}, nil
}

// HandleNotification processes one finished-statement notification body.
//
// Outcomes:
//   - The statement name was not minted by this integration: the
//     notification is logged and dropped. Normal, expected, returns nil.
//   - No correlation record (or no task token) exists for a workflow-driven
//     name: lost lineage. Returns store.ErrUntrackedStatement wrapped, so
//     the delivery transport retries this element.
//   - The reported state is neither FINISHED nor FAILED: returns
//     ErrUnsupportedOutcome.
//   - The workflow task was already resolved (earlier duplicate delivery):
//     tolerated silently, the record is re-retired, returns nil.
func (r *CompletionResolver) HandleNotification(ctx context.Context, body []byte) error {
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("%w: notification body is not valid JSON: %v", ErrInvalidRequest, err)
	}
	detail, ok := payload["detail"].(map[string]interface{})
	if !ok {
		return fmt.Errorf("%w: notification has no detail object", ErrInvalidRequest)
	}
	statementName, _ := detail["statementName"].(string)

	identity, tracked := ParseStatementName(statementName)
	if !tracked {
		// Statements not submitted through this integration are not
		// tracked; nothing to resume.
		r.emitter.Emit(emit.Event{
			Statement: statementName,
			Msg:       "notification_dropped",
			Meta:      map[string]interface{}{"reason": "not started by a system that tracks state"},
		})
		r.metrics.RecordDroppedNotification()
		return nil
	}

	taskToken, err := r.correlator.TaskTokenFor(ctx, identity)
	if err != nil {
		// Lost lineage for a name this integration minted. Fatal for
		// this notification; re-raise so the transport retries.
		r.emitter.Emit(emit.Event{
			Statement: identity.String(),
			Msg:       "correlation_lookup_failed",
			Meta:      map[string]interface{}{"error": err.Error()},
		})
		return err
	}

	state, _ := detail["state"].(string)
	if err := r.deliverOutcome(ctx, taskToken, state, payload); err != nil {
		return err
	}
	r.metrics.RecordCompletion(state)

	return r.correlator.Retire(ctx, identity, payload)
}

// deliverOutcome forwards the finished-event payload to the workflow engine
// keyed by the resume token, mapping the reported state to exactly two
// terminal categories.
func (r *CompletionResolver) deliverOutcome(ctx context.Context, taskToken, state string, payload map[string]interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal finished-event details: %w", err)
	}

	var deliverErr error
	switch state {
	case "FINISHED":
		deliverErr = r.engine.SendTaskSuccess(ctx, taskToken, raw)
	case "FAILED":
		deliverErr = r.engine.SendTaskFailure(ctx, taskToken, FailureErrorCode, raw)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedOutcome, state)
	}

	if errors.Is(deliverErr, workflow.ErrTaskAlreadyResolved) {
		// The task already timed out or an earlier duplicate delivery
		// resolved it. Benign under at-least-once delivery.
		r.emitter.Emit(emit.Event{
			Msg:  "task_already_resolved",
			Meta: map[string]interface{}{"state": state},
		})
		r.metrics.RecordDuplicateDelivery()
		return nil
	}
	if deliverErr != nil {
		return fmt.Errorf("failed to deliver %s outcome: %w", state, deliverErr)
	}
	return nil
}
