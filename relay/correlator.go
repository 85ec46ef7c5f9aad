package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/dshills/sqlrelay-go/relay/emit"
	"github.com/dshills/sqlrelay-go/relay/store"
)

// Correlator implements the correlation semantics over a store.Store:
// identity minting, the resume-handle lineage precondition, immediate
// retirement of callback-less submissions, latest-invocation resolution,
// and retention computation.
type Correlator struct {
	store   store.Store
	cfg     Config
	emitter emit.Emitter
	now     func() time.Time
}

// NewCorrelator builds a Correlator. The Config is validated here; an
// invalid retention period or missing region is a construction error.
func NewCorrelator(st store.Store, cfg Config, opts ...Option) (*Correlator, error) {
	if st == nil {
		return nil, fmt.Errorf("store must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	o, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}
	return &Correlator{
		store:   st,
		cfg:     cfg,
		emitter: o.emitter,
		now:     o.now,
	}, nil
}

// RegisterSubmission mints a statement identity and durably records the
// correlation state for a new submission.
//
// If taskToken is empty the submission expects no callback: the record is
// created already retired (expiry set now) and exists only for audit and
// LATEST lookups. If taskToken is non-empty the execution reference must be
// workflow-driven — a callback-expecting submission with no recoverable
// lineage is a caller programming error, rejected before any write.
//
// Registration is create-once: a key collision returns
// store.ErrAlreadyRegistered and leaves the first record untouched.
func (c *Correlator) RegisterSubmission(ctx context.Context, taskToken, executionARN, sqlStatement string) (StatementIdentity, error) {
	identity := Mint(executionARN, c.cfg.Region)

	rec := store.Record{
		ExecutionARN: identity.ExecutionARN,
		InvocationID: identity.InvocationID,
		SQLStatement: sqlStatement,
	}
	if taskToken == "" {
		// No callback expected, so the record can expire on its own.
		rec.ExpiresAt = c.expiresAt()
	} else {
		if !identity.IsWorkflowDriven() {
			return StatementIdentity{}, fmt.Errorf(
				"%w: usage of taskToken requires a valid workflow executionArn, got %q",
				ErrInvalidRequest, executionARN)
		}
		rec.TaskToken = taskToken
	}

	if err := c.store.Register(ctx, rec); err != nil {
		return StatementIdentity{}, err
	}
	c.emitter.Emit(emit.Event{
		Statement: identity.String(),
		Msg:       "submission_registered",
		Meta: map[string]interface{}{
			"executionArn": identity.ExecutionARN,
			"callback":     taskToken != "",
		},
	})
	return identity, nil
}

// LatestForExecution resolves the most recent statement identity recorded
// for an execution reference. Invocation markers are compared as numbers,
// not strings. Fails with store.ErrNoPriorSubmission if the execution has
// never submitted a statement.
func (c *Correlator) LatestForExecution(ctx context.Context, executionARN string) (StatementIdentity, error) {
	invocationID, err := c.store.LatestInvocation(ctx, executionARN)
	if err != nil {
		return StatementIdentity{}, err
	}
	return StatementIdentity{ExecutionARN: executionARN, InvocationID: invocationID}, nil
}

// TaskTokenFor returns the resume handle recorded for a statement identity.
// Fails with store.ErrUntrackedStatement if the record is missing or was
// registered without a callback.
func (c *Correlator) TaskTokenFor(ctx context.Context, identity StatementIdentity) (string, error) {
	token, err := c.store.TaskToken(ctx, identity.ExecutionARN, identity.InvocationID)
	if err != nil {
		return "", fmt.Errorf("statement %s: %w", identity, err)
	}
	return token, nil
}

// Retire marks the correlation record for a statement as resolved,
// recording the finished-event details and a fresh expiry marker. The
// record stays readable until the reaper removes it after the retention
// period, which is what lets duplicate completion deliveries resolve
// benignly instead of reporting lost state.
func (c *Correlator) Retire(ctx context.Context, identity StatementIdentity, details map[string]interface{}) error {
	expiry := c.expiresAt()
	if err := c.store.Retire(ctx, identity.ExecutionARN, identity.InvocationID, expiry, details); err != nil {
		return fmt.Errorf("failed to retire statement %s: %w", identity, err)
	}
	c.emitter.Emit(emit.Event{
		Statement: identity.String(),
		Msg:       "statement_retired",
		Meta:      map[string]interface{}{"expiresAt": expiry},
	})
	return nil
}

// expiresAt computes the retention expiry, fresh at every call.
func (c *Correlator) expiresAt() int64 {
	return c.now().Add(time.Duration(c.cfg.RetentionDays) * 24 * time.Hour).Unix()
}
