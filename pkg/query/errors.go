package query

import "errors"

// Sentinel errors for query layer violations (§7). Unlike most validation
// failures, these signal ledger corruption. The boolean form
// txn.Engine.IsValid reports them as false like any other failure.
var (
	ErrChainCorruption = errors.New("query: chain corruption")
	ErrDoubleSpend     = errors.New("query: double spend")
)
