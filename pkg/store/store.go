// Package store defines the typed view over the two collections the ledger
// core depends on — backlog and bigchain — per §4.2, and provides both a
// Postgres-backed adapter and an in-memory implementation for tests that
// don't need a live database.
package store

import (
	"context"

	"github.com/chainledger/core/pkg/crypto"
	"github.com/chainledger/core/pkg/model"
)

// Durability selects how durable a write must be before it returns, per
// §4.2: "Durability levels soft (buffered) and hard (fsynced) must be
// selectable per write."
type Durability int

const (
	// DurabilitySoft is a buffered write; it may not survive a crash.
	DurabilitySoft Durability = iota
	// DurabilityHard forces the write to be durable before returning.
	DurabilityHard
)

// BacklogStore is the typed view over the backlog collection: pending
// transactions awaiting inclusion in a block, keyed by id with a secondary
// index on assignee (§4.2).
type BacklogStore interface {
	// InsertTransaction adds tx (with its assignee already set) to the
	// backlog.
	InsertTransaction(ctx context.Context, tx model.Transaction, durability Durability) error
	// GetTransaction returns the backlog transaction with the given id, or
	// ok=false if absent.
	GetTransaction(ctx context.Context, id crypto.Hash) (tx model.Transaction, ok bool, err error)
	// TransactionsByAssignee returns every backlog transaction assigned to
	// assignee.
	TransactionsByAssignee(ctx context.Context, assignee crypto.PublicKey) ([]model.Transaction, error)
	// DeleteTransaction removes a transaction from the backlog, e.g. once
	// it has been absorbed into a block (an external responsibility per
	// §3's lifecycle, exposed here for the caller that does it).
	DeleteTransaction(ctx context.Context, id crypto.Hash) error
	// AllTransactions returns every pending transaction in the backlog.
	AllTransactions(ctx context.Context) ([]model.Transaction, error)
}

// BigchainStore is the typed view over the bigchain collection: decided
// block history, keyed by id with secondary indexes on transaction_id
// (multi-valued), payload_hash, and block_transaction_timestamp (§4.2).
type BigchainStore interface {
	// InsertBlock adds a newly created block to bigchain.
	InsertBlock(ctx context.Context, block model.Block, durability Durability) error
	// GetBlock returns the block with the given id, or ok=false if absent.
	GetBlock(ctx context.Context, id crypto.Hash) (block model.Block, ok bool, err error)
	// BlocksContainingTransaction returns every block whose transactions
	// include a transaction with the given id, using the transaction_id
	// secondary index.
	BlocksContainingTransaction(ctx context.Context, txid crypto.Hash) ([]model.Block, error)
	// BlocksByPayloadHash returns every block containing a transaction
	// whose payload hashes to payloadHash, using the payload_hash
	// secondary index.
	BlocksByPayloadHash(ctx context.Context, payloadHash crypto.Hash) ([]model.Block, error)
	// AppendVote atomically appends vote to the block's vote list, and —
	// if the block has no block_number yet — sets it to blockNumber. Both
	// operations are a no-op (idempotent) if the node has already voted;
	// callers are expected to have already checked via HasPreviousVote
	// (§4.4), but AppendVote itself still de-duplicates per §3 invariant 4
	// ("at most one vote per node_pubkey").
	AppendVote(ctx context.Context, id crypto.Hash, vote model.Vote, blockNumber uint64) error
	// AllBlocks returns every block in bigchain, in no particular order.
	AllBlocks(ctx context.Context) ([]model.Block, error)
	// BlocksOrderedByTimestamp returns every block ordered by
	// block.timestamp, ascending if asc is true.
	BlocksOrderedByTimestamp(ctx context.Context, asc bool) ([]model.Block, error)
	// Count returns the number of blocks in bigchain.
	Count(ctx context.Context) (int, error)
}

// Store bundles the backlog and bigchain collections, per §6.1: "Two
// collections backlog, bigchain."
type Store interface {
	Backlog() BacklogStore
	Bigchain() BigchainStore
}
