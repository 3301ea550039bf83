package store

import (
	"context"
	"sort"
	"sync"

	"github.com/chainledger/core/pkg/crypto"
	"github.com/chainledger/core/pkg/model"
)

// Memory is an in-memory Store, used in tests that exercise ledger logic
// without a live Postgres instance. It honors the same atomicity
// documented for the Postgres adapter: every mutation locks the whole
// store for its duration, which is stricter than required but preserves
// the "no torn writes" guarantee §5 assumes.
type Memory struct {
	mu       sync.Mutex
	backlog  map[crypto.Hash]model.Transaction
	bigchain map[crypto.Hash]model.Block
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		backlog:  make(map[crypto.Hash]model.Transaction),
		bigchain: make(map[crypto.Hash]model.Block),
	}
}

// Backlog returns the backlog view of this store.
func (m *Memory) Backlog() BacklogStore { return memoryBacklog{m} }

// Bigchain returns the bigchain view of this store.
func (m *Memory) Bigchain() BigchainStore { return memoryBigchain{m} }

type memoryBacklog struct{ m *Memory }

func (b memoryBacklog) InsertTransaction(_ context.Context, tx model.Transaction, _ Durability) error {
	b.m.mu.Lock()
	defer b.m.mu.Unlock()
	b.m.backlog[tx.ID] = tx
	return nil
}

func (b memoryBacklog) GetTransaction(_ context.Context, id crypto.Hash) (model.Transaction, bool, error) {
	b.m.mu.Lock()
	defer b.m.mu.Unlock()
	tx, ok := b.m.backlog[id]
	return tx, ok, nil
}

func (b memoryBacklog) TransactionsByAssignee(_ context.Context, assignee crypto.PublicKey) ([]model.Transaction, error) {
	b.m.mu.Lock()
	defer b.m.mu.Unlock()
	var out []model.Transaction
	for _, tx := range b.m.backlog {
		if tx.Assignee == assignee {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (b memoryBacklog) DeleteTransaction(_ context.Context, id crypto.Hash) error {
	b.m.mu.Lock()
	defer b.m.mu.Unlock()
	delete(b.m.backlog, id)
	return nil
}

func (b memoryBacklog) AllTransactions(_ context.Context) ([]model.Transaction, error) {
	b.m.mu.Lock()
	defer b.m.mu.Unlock()
	out := make([]model.Transaction, 0, len(b.m.backlog))
	for _, tx := range b.m.backlog {
		out = append(out, tx)
	}
	return out, nil
}

type memoryBigchain struct{ m *Memory }

func (g memoryBigchain) InsertBlock(_ context.Context, block model.Block, _ Durability) error {
	g.m.mu.Lock()
	defer g.m.mu.Unlock()
	g.m.bigchain[block.ID] = block
	return nil
}

func (g memoryBigchain) GetBlock(_ context.Context, id crypto.Hash) (model.Block, bool, error) {
	g.m.mu.Lock()
	defer g.m.mu.Unlock()
	block, ok := g.m.bigchain[id]
	return block, ok, nil
}

func (g memoryBigchain) BlocksContainingTransaction(_ context.Context, txid crypto.Hash) ([]model.Block, error) {
	g.m.mu.Lock()
	defer g.m.mu.Unlock()
	var out []model.Block
	for _, block := range g.m.bigchain {
		if block.ContainsTransactionID(txid) {
			out = append(out, block)
		}
	}
	return out, nil
}

func (g memoryBigchain) BlocksByPayloadHash(_ context.Context, payloadHash crypto.Hash) ([]model.Block, error) {
	g.m.mu.Lock()
	defer g.m.mu.Unlock()
	var out []model.Block
	for _, block := range g.m.bigchain {
		for _, tx := range block.Block.Transactions {
			h, err := crypto.HashOf(tx.Transaction.Data.Payload)
			if err == nil && h == payloadHash {
				out = append(out, block)
				break
			}
		}
	}
	return out, nil
}

func (g memoryBigchain) AppendVote(_ context.Context, id crypto.Hash, vote model.Vote, blockNumber uint64) error {
	g.m.mu.Lock()
	defer g.m.mu.Unlock()
	block, ok := g.m.bigchain[id]
	if !ok {
		return ErrBlockNotFound
	}
	for _, existing := range block.Votes {
		if existing.NodePubkey == vote.NodePubkey {
			return nil
		}
	}
	block.Votes = append(block.Votes, vote)
	if block.BlockNumber == nil {
		bn := blockNumber
		block.BlockNumber = &bn
	}
	g.m.bigchain[id] = block
	return nil
}

func (g memoryBigchain) AllBlocks(_ context.Context) ([]model.Block, error) {
	g.m.mu.Lock()
	defer g.m.mu.Unlock()
	out := make([]model.Block, 0, len(g.m.bigchain))
	for _, block := range g.m.bigchain {
		out = append(out, block)
	}
	return out, nil
}

func (g memoryBigchain) BlocksOrderedByTimestamp(ctx context.Context, asc bool) ([]model.Block, error) {
	blocks, err := g.AllBlocks(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(blocks, func(i, j int) bool {
		if asc {
			return blocks[i].Block.Timestamp < blocks[j].Block.Timestamp
		}
		return blocks[i].Block.Timestamp > blocks[j].Block.Timestamp
	})
	return blocks, nil
}

func (g memoryBigchain) Count(_ context.Context) (int, error) {
	g.m.mu.Lock()
	defer g.m.mu.Unlock()
	return len(g.m.bigchain), nil
}
