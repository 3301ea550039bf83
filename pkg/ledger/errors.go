package ledger

import "errors"

// ErrKeypairNotFound signals that Config carries no usable node keypair,
// per §6.3 and §7. It is raised at Ledger construction time, not by
// config.Load, since the keypair is a requirement of running a node, not
// a property of the configuration data itself.
var ErrKeypairNotFound = errors.New("ledger: keypair not found in configuration")

// ErrUnknownConsensusPlugin signals a ConsensusPlugin name New cannot
// resolve to a registered consensus.Plugin implementation.
var ErrUnknownConsensusPlugin = errors.New("ledger: unknown consensus plugin")
