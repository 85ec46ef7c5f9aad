// Package relay correlates asynchronously executed warehouse SQL statements
// with the suspended workflow tasks that issued them.
//
// A statement is submitted by one invocation, runs out-of-band in the
// warehouse for an unbounded time, and completes in a different invocation
// (a batch of finished-statement notifications). The relay makes that
// round-trip work by:
//
//   - Minting a parseable statement name that encodes the originating
//     workflow execution and an invocation marker (StatementIdentity).
//   - Durably recording the mapping from that name to the caller's task
//     token in a correlation store (Correlator over store.Store).
//   - Resolving finished-statement notifications back to the recorded task
//     token, delivering the outcome to the workflow engine, and retiring
//     the correlation record (CompletionResolver).
//   - Routing inbound requests by shape to the submit, describe, result,
//     cancel, and completion handlers (Router).
//
// The warehouse execution service and the workflow engine are external
// collaborators reached through the narrow interfaces in the warehouse and
// workflow subpackages. All coordination between invocations goes through
// the store; the relay itself keeps no cross-request state.
package relay
