// Package action implements conda's path-action model: each action is one
// idempotent, reversible step of linking or unlinking a package into a
// prefix, grounded on path_actions.py's verify/execute/reverse/cleanup
// contract.
package action

import "context"

// Action is one step of a transaction's link or unlink plan.
type Action interface {
	// Verify checks preconditions (e.g. checksum/size of a source file)
	// without making any change. Called for every action before any
	// action in the same transaction executes.
	Verify(ctx context.Context) error
	// Execute performs the action. Must be a no-op if called again after
	// a successful Execute (idempotence).
	Execute(ctx context.Context) error
	// Reverse undoes a successful Execute. Called, in reverse order, on
	// every already-executed action in a transaction if a later action's
	// Execute fails.
	Reverse(ctx context.Context) error
	// Cleanup releases any resources (e.g. closed file handles) held
	// across Verify/Execute/Reverse. Always called last, regardless of
	// outcome.
	Cleanup(ctx context.Context) error
}

// base tracks the idempotence/reversal bookkeeping shared by every action
// variant, mirroring path_actions.py's _Action._verified/_execute_successful
// flags.
type base struct {
	verified bool
	executed bool
}
