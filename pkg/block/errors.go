package block

import "errors"

// Sentinel errors for block engine operations (§7).
var (
	ErrEmptyBlock              = errors.New("block: empty block")
	ErrGenesisBlockAlreadyExists = errors.New("block: genesis block already exists")
	ErrImproperVote            = errors.New("block: improper vote")
)
