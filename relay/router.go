package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/dshills/sqlrelay-go/relay/emit"
	"github.com/dshills/sqlrelay-go/relay/store"
	"github.com/dshills/sqlrelay-go/relay/warehouse"
	"github.com/dshills/sqlrelay-go/relay/workflow"
)

// Request action values.
const (
	ActionExecuteStatement          = "executeStatement"
	ActionExecuteSingletonStatement = "executeSingletonStatement"
	ActionDescribeStatement         = "describeStatement"
	ActionGetStatementResult        = "getStatementResult"
	ActionCancelStatement           = "cancelStatement"
)

// StatementIDLatest is the reserved statementId sentinel resolving to the
// most recent statement submitted by the request's executionArn.
const StatementIDLatest = "LATEST"

// Request is an inbound relay request. Field presence drives routing:
// Records routes to completion handling, SQLStatement to submission, and
// StatementID plus Action to the query actions.
type Request struct {
	SQLStatement string `json:"sqlStatement,omitempty"`
	TaskToken    string `json:"taskToken,omitempty"`
	ExecutionARN string `json:"executionArn,omitempty"`
	StatementID  string `json:"statementId,omitempty"`
	Action       string `json:"action,omitempty"`
	NextToken    string `json:"nextToken,omitempty"`

	// Records carries a batch of completion notification envelopes.
	Records []NotificationRecord `json:"Records,omitempty"`
}

// NotificationRecord is one completion notification envelope. Body is the
// JSON finished-event payload as delivered by the transport.
type NotificationRecord struct {
	MessageID string `json:"messageId,omitempty"`
	Body      string `json:"body"`
}

// BatchResult summarizes completion batch processing. Failures lists the
// elements whose hard failures should be redelivered by the transport;
// successfully processed and dropped elements are not retried.
type BatchResult struct {
	StatusCode int                `json:"statusCode"`
	Failures   []BatchItemFailure `json:"batchItemFailures,omitempty"`
}

// BatchItemFailure identifies one batch element that was not processed.
type BatchItemFailure struct {
	ItemIdentifier string `json:"itemIdentifier"`
}

// Router classifies inbound requests by shape and dispatches them to the
// submission, query-action, and completion handlers.
//
// Each request is handled by an independent, stateless invocation; all
// coordination between invocations goes through the correlation store.
type Router struct {
	correlator *Correlator
	resolver   *CompletionResolver
	warehouse  warehouse.Client
	emitter    emit.Emitter
	metrics    *Metrics
}

// NewRouter wires a complete relay: correlation store, warehouse client,
// and workflow engine, under a validated Config.
//
// Example:
//
//	st := store.NewMemStore()
//	router, err := relay.NewRouter(st, warehouseClient, engineClient, relay.Config{
//	    Region:        "us-east-1",
//	    RetentionDays: 7,
//	})
func NewRouter(st store.Store, wh warehouse.Client, eng workflow.Engine, cfg Config, opts ...Option) (*Router, error) {
	if wh == nil {
		return nil, fmt.Errorf("warehouse client must not be nil")
	}
	correlator, err := NewCorrelator(st, cfg, opts...)
	if err != nil {
		return nil, err
	}
	resolver, err := NewCompletionResolver(correlator, eng, opts...)
	if err != nil {
		return nil, err
	}
	o, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}
	return &Router{
		correlator: correlator,
		resolver:   resolver,
		warehouse:  wh,
		emitter:    o.emitter,
		metrics:    o.metrics,
	}, nil
}

// Correlator exposes the router's correlator, e.g. for wiring audits or a
// reaper callback.
func (r *Router) Correlator() *Correlator {
	return r.correlator
}

// Handle classifies and processes one inbound request.
//
// Every returned value is sanitized to a plain JSON-serializable structure
// with times rendered as ISO-8601 text. Errors follow the relay taxonomy:
// classification and benign cases are resolved internally; everything else
// propagates to the caller and is never retried here.
func (r *Router) Handle(ctx context.Context, req Request) (interface{}, error) {
	route, start := r.classify(req), time.Now()
	resp, err := r.dispatch(ctx, route, req)
	r.metrics.ObserveRequestLatency(route, float64(time.Since(start).Milliseconds()))
	if err != nil {
		r.emitter.Emit(emit.Event{
			Msg:  "request_failed",
			Meta: map[string]interface{}{"route": route, "error": err.Error()},
		})
		return nil, err
	}
	return Sanitize(resp)
}

func (r *Router) classify(req Request) string {
	switch {
	case len(req.Records) > 0:
		return "complete_statement"
	case req.SQLStatement != "":
		return "execute_statement"
	case req.StatementID != "" && req.Action != "":
		return req.Action
	default:
		return "unsupported"
	}
}

func (r *Router) dispatch(ctx context.Context, route string, req Request) (interface{}, error) {
	switch route {
	case "complete_statement":
		return r.handleBatch(ctx, req.Records)
	case "execute_statement":
		return r.handleSubmission(ctx, req)
	case ActionDescribeStatement:
		id, err := r.resolveStatementID(ctx, req)
		if err != nil {
			return nil, err
		}
		return r.warehouse.DescribeStatement(ctx, id)
	case ActionGetStatementResult:
		id, err := r.resolveStatementID(ctx, req)
		if err != nil {
			return nil, err
		}
		return r.warehouse.GetStatementResult(ctx, id, req.NextToken)
	case ActionCancelStatement:
		id, err := r.resolveStatementID(ctx, req)
		if err != nil {
			return nil, err
		}
		return r.warehouse.CancelStatement(ctx, id)
	default:
		return nil, fmt.Errorf("%w: unsupported invocation event", ErrInvalidRequest)
	}
}

// resolveStatementID translates the request's statementId into the
// warehouse's own identifier, resolving the LATEST sentinel through the
// correlation store. LATEST requires executionArn.
func (r *Router) resolveStatementID(ctx context.Context, req Request) (string, error) {
	if req.StatementID != StatementIDLatest {
		return req.StatementID, nil
	}
	if req.ExecutionARN == "" {
		return "", fmt.Errorf("%w: the field executionArn is mandatory for statementId=%q", ErrInvalidRequest, StatementIDLatest)
	}
	identity, err := r.correlator.LatestForExecution(ctx, req.ExecutionARN)
	if err != nil {
		return "", err
	}
	return warehouse.StatementIDForName(ctx, r.warehouse, identity.String())
}

// handleSubmission runs the submit flow: optional singleton guard,
// correlation registration, then submission to the warehouse. Event-based
// completion notification is requested iff a task token was supplied.
func (r *Router) handleSubmission(ctx context.Context, req Request) (interface{}, error) {
	singleton := false
	switch req.Action {
	case "", ActionExecuteStatement:
	case ActionExecuteSingletonStatement:
		singleton = true
	default:
		return nil, fmt.Errorf("%w: unsupported action %q to execute sqlStatement", ErrInvalidRequest, req.Action)
	}

	if singleton {
		active, err := HasActiveDuplicate(ctx, r.warehouse, req.SQLStatement)
		if err != nil {
			return nil, err
		}
		if active {
			// Abort before any correlation state is written.
			return nil, fmt.Errorf("%w: there is already an instance of this statement running", ErrConcurrentExecution)
		}
	}

	identity, err := r.correlator.RegisterSubmission(ctx, req.TaskToken, req.ExecutionARN, req.SQLStatement)
	if err != nil {
		return nil, err
	}

	withEvent := req.TaskToken != ""
	resp, err := r.warehouse.ExecuteStatement(ctx, req.SQLStatement, identity.String(), withEvent)
	if err != nil {
		return nil, fmt.Errorf("failed to submit statement %s: %w", identity, err)
	}
	r.metrics.RecordSubmission(singleton, withEvent)
	r.emitter.Emit(emit.Event{
		Statement: identity.String(),
		Msg:       "statement_submitted",
		Meta: map[string]interface{}{
			"executionArn": req.ExecutionARN,
			"withEvent":    withEvent,
		},
	})
	return resp, nil
}

// handleBatch processes completion notifications independently, continuing
// past per-element failures. Elements whose handling failed are surfaced in
// the result so the transport redelivers exactly those.
func (r *Router) handleBatch(ctx context.Context, records []NotificationRecord) (BatchResult, error) {
	result := BatchResult{StatusCode: 200}
	for _, record := range records {
		if err := r.resolver.HandleNotification(ctx, []byte(record.Body)); err != nil {
			r.emitter.Emit(emit.Event{
				Msg: "notification_failed",
				Meta: map[string]interface{}{
					"messageId": record.MessageID,
					"error":     err.Error(),
				},
			})
			result.Failures = append(result.Failures, BatchItemFailure{ItemIdentifier: record.MessageID})
		}
	}
	return result, nil
}
