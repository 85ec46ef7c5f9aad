package relay

import (
	"context"
	"fmt"

	"github.com/dshills/sqlrelay-go/relay/warehouse"
)

// HasActiveDuplicate reports whether a statement with identical text is
// already in a non-terminal state in the warehouse. Used to enforce
// singleton submission semantics.
//
// This is inherently a check-then-act race: the answer can be stale by the
// time the caller proceeds to submit, so the singleton guarantee is
// best-effort, not strict. Deployments needing strict exclusion would have
// to move the check into a store-level conditional write keyed by the
// statement text itself.
func HasActiveDuplicate(ctx context.Context, c warehouse.Client, sqlStatement string) (bool, error) {
	for _, state := range warehouse.ActiveStates() {
		statements, err := c.ListStatements(ctx, state, "")
		if err != nil {
			return false, fmt.Errorf("failed to list %s statements: %w", state, err)
		}
		for _, s := range statements {
			if s.QueryString == sqlStatement {
				return true, nil
			}
		}
	}
	return false, nil
}
