package txn

import "errors"

// Sentinel errors for transaction engine operations (§7).
var (
	ErrInvalidTransaction = errors.New("txn: invalid transaction")
	ErrInvalidPayload     = errors.New("txn: invalid payload")
)
