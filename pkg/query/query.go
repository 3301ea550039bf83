// Package query implements the read-side of the ledger (§4.5): resolving
// which block a transaction actually belongs to once elections are
// tallied, spent/unspent status, per-owner unspent outputs, and this
// node's voting progress.
package query

import (
	"context"
	"fmt"
	"sort"

	"github.com/chainledger/core/pkg/block"
	"github.com/chainledger/core/pkg/crypto"
	"github.com/chainledger/core/pkg/metrics"
	"github.com/chainledger/core/pkg/model"
	"github.com/chainledger/core/pkg/store"
)

// Query answers ledger queries against a Store. It implements
// consensus.Resolver so a Query can be wired directly into the
// transaction and block engines.
type Query struct {
	Store store.Store
	Self  crypto.PublicKey
}

// New constructs a Query for the node identified by self.
func New(st store.Store, self crypto.PublicKey) *Query {
	return &Query{Store: st, Self: self}
}

// BlocksContainingTx returns the election status of every bigchain block
// containing txid, keyed by block id, or nil if none contain it. More
// than one VALID block for the same txid is ledger corruption (§3
// invariant 3) and fails with ErrChainCorruption.
func (q *Query) BlocksContainingTx(ctx context.Context, txid crypto.Hash) (map[crypto.Hash]block.Status, error) {
	blocks, err := q.Store.Bigchain().BlocksContainingTransaction(ctx, txid)
	if err != nil {
		return nil, fmt.Errorf("query: blocks containing tx: %w", err)
	}
	if len(blocks) == 0 {
		return nil, nil
	}

	result := make(map[crypto.Hash]block.Status, len(blocks))
	validCount := 0
	for _, b := range blocks {
		st := block.ElectionStatus(b)
		result[b.ID] = st
		metrics.ElectionTransitions.WithLabelValues(string(st)).Inc()
		if st == block.StatusValid {
			validCount++
		}
	}
	if validCount > 1 {
		return nil, fmt.Errorf("%w: transaction %s accepted in %d valid blocks", ErrChainCorruption, txid, validCount)
	}
	return result, nil
}

// GetTransaction returns the accepted transaction for txid, or nil if it
// resolves to no VALID or UNDECIDED block (§4.5).
func (q *Query) GetTransaction(ctx context.Context, txid crypto.Hash) (*model.Transaction, error) {
	statuses, err := q.BlocksContainingTx(ctx, txid)
	if err != nil {
		return nil, err
	}
	blockID, ok := bestBlock(statuses)
	if !ok {
		return nil, nil
	}
	b, ok, err := q.Store.Bigchain().GetBlock(ctx, blockID)
	if err != nil {
		return nil, fmt.Errorf("query: get transaction's block: %w", err)
	}
	if !ok {
		return nil, nil
	}
	tx, ok := b.TransactionByID(txid)
	if !ok {
		return nil, nil
	}
	return &tx, nil
}

// bestBlock picks a VALID block id over an UNDECIDED one, per §4.5's
// "prefer a VALID block; else any UNDECIDED block."
func bestBlock(statuses map[crypto.Hash]block.Status) (crypto.Hash, bool) {
	var undecided crypto.Hash
	haveUndecided := false
	for id, st := range statuses {
		if st == block.StatusValid {
			return id, true
		}
		if st == block.StatusUndecided && !haveUndecided {
			undecided, haveUndecided = id, true
		}
	}
	return undecided, haveUndecided
}

// Spent returns the transaction that spends input, or nil if it is
// unspent. More than one VALID spending transaction is a double spend
// (§4.5, §7).
func (q *Query) Spent(ctx context.Context, input model.Input) (*model.Transaction, error) {
	blocks, err := q.Store.Bigchain().AllBlocks(ctx)
	if err != nil {
		return nil, fmt.Errorf("query: scan bigchain for spent input: %w", err)
	}

	candidates := map[crypto.Hash]model.Transaction{}
	for _, b := range blocks {
		for _, tx := range b.Block.Transactions {
			for _, f := range tx.Transaction.Fulfillments {
				if f.Input != nil && *f.Input == input {
					candidates[tx.ID] = tx
				}
			}
		}
	}

	var acceptedValid, acceptedUndecided *model.Transaction
	validCount := 0
	for txid, tx := range candidates {
		statuses, err := q.BlocksContainingTx(ctx, txid)
		if err != nil {
			return nil, err
		}
		blockID, ok := bestBlock(statuses)
		if !ok {
			continue
		}
		if statuses[blockID] == block.StatusValid {
			validCount++
			t := tx
			acceptedValid = &t
		} else if acceptedUndecided == nil {
			t := tx
			acceptedUndecided = &t
		}
	}
	if validCount > 1 {
		return nil, fmt.Errorf("%w: input {%s, %d} spent by %d valid transactions", ErrDoubleSpend, input.TxID, input.CID, validCount)
	}
	if acceptedValid != nil {
		return acceptedValid, nil
	}
	return acceptedUndecided, nil
}

// OwnedIDs returns every {txid, cid} currently unspent and owned by
// owner, in no particular order (§4.5).
func (q *Query) OwnedIDs(ctx context.Context, owner crypto.PublicKey) ([]model.Input, error) {
	blocks, err := q.Store.Bigchain().AllBlocks(ctx)
	if err != nil {
		return nil, fmt.Errorf("query: scan bigchain for owned ids: %w", err)
	}
	return q.ownedIDsFrom(ctx, blocks, owner)
}

// OwnedIDsOrdered is OwnedIDs ordered by block_transaction_timestamp
// ascending (block timestamp, then transaction timestamp within a block),
// per §4.5's time-ordered variant.
func (q *Query) OwnedIDsOrdered(ctx context.Context, owner crypto.PublicKey) ([]model.Input, error) {
	blocks, err := q.Store.Bigchain().BlocksOrderedByTimestamp(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("query: scan bigchain for ordered owned ids: %w", err)
	}
	for i := range blocks {
		txs := append([]model.Transaction(nil), blocks[i].Block.Transactions...)
		sort.SliceStable(txs, func(a, b int) bool { return txs[a].Transaction.Timestamp < txs[b].Transaction.Timestamp })
		blocks[i].Block.Transactions = txs
	}
	return q.ownedIDsFrom(ctx, blocks, owner)
}

func (q *Query) ownedIDsFrom(ctx context.Context, blocks []model.Block, owner crypto.PublicKey) ([]model.Input, error) {
	var out []model.Input
	for _, b := range blocks {
		st := block.ElectionStatus(b)
		if st != block.StatusValid && st != block.StatusUndecided {
			continue
		}
		for _, tx := range b.Block.Transactions {
			for _, cond := range tx.Transaction.Conditions {
				if !cond.OwnedBy(owner) {
					continue
				}
				input := model.Input{TxID: tx.ID, CID: cond.CID}
				spentBy, err := q.Spent(ctx, input)
				if err != nil {
					return nil, err
				}
				if spentBy != nil {
					continue
				}
				out = append(out, input)
			}
		}
	}
	return out, nil
}

// LastVotedBlock returns, among blocks where self is a voter and has
// voted, the one with the highest block_number; if self has not voted on
// anything, the genesis block (block_number 0), per §4.5.
func (q *Query) LastVotedBlock(ctx context.Context) (*model.Block, error) {
	blocks, err := q.Store.Bigchain().AllBlocks(ctx)
	if err != nil {
		return nil, fmt.Errorf("query: scan bigchain for last voted block: %w", err)
	}

	var best *model.Block
	var genesis *model.Block
	for i := range blocks {
		b := &blocks[i]
		if b.BlockNumber != nil && *b.BlockNumber == 0 {
			genesis = b
		}
		if !b.IsVoter(q.Self) {
			continue
		}
		if _, voted := b.VoteBy(q.Self); !voted {
			continue
		}
		if b.BlockNumber == nil {
			continue
		}
		if best == nil || *b.BlockNumber > *best.BlockNumber {
			best = b
		}
	}
	if best != nil {
		return best, nil
	}
	return genesis, nil
}

// UnvotedBlocks returns every block lacking a self-vote, ordered by
// block.timestamp ascending, excluding genesis if it appears at the head
// (§4.5).
func (q *Query) UnvotedBlocks(ctx context.Context) ([]model.Block, error) {
	blocks, err := q.Store.Bigchain().BlocksOrderedByTimestamp(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("query: scan bigchain for unvoted blocks: %w", err)
	}

	var out []model.Block
	for i, b := range blocks {
		if i == 0 && b.BlockNumber != nil && *b.BlockNumber == 0 {
			continue
		}
		if _, voted := b.VoteBy(q.Self); voted {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}
