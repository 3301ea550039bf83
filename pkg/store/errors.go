// Package store provides sentinel errors for store adapter operations.
package store

import "errors"

// Sentinel errors for store operations.
var (
	// ErrTransactionNotFound names a missing backlog transaction. The
	// adapters do not return it: GetTransaction reports a missing
	// transaction with ok=false.
	ErrTransactionNotFound = errors.New("store: transaction not found")

	// ErrBlockNotFound is returned by AppendVote when no bigchain block has
	// the given id. GetBlock reports a missing block with ok=false.
	ErrBlockNotFound = errors.New("store: block not found")
)
