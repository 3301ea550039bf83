package consensus

import "errors"

// Sentinel errors for plugin-level validation failures (§7).
var (
	ErrInvalidHash             = errors.New("consensus: invalid hash")
	ErrInvalidSignature        = errors.New("consensus: invalid signature")
	ErrTransactionDoesNotExist = errors.New("consensus: transaction does not exist")
	ErrTransactionOwnerError   = errors.New("consensus: transaction owner error")
	ErrOperationError          = errors.New("consensus: operation error")
	ErrEmptyBlock              = errors.New("consensus: empty block")
)
