package model

import (
	"fmt"

	"github.com/chainledger/core/pkg/crypto"
)

// BlockBody is the structural content of a block, per §3: "block:
// {timestamp, transactions, node_pubkey, voters}."
type BlockBody struct {
	Timestamp    string            `json:"timestamp"`
	Transactions []Transaction     `json:"transactions"`
	NodePubkey   crypto.PublicKey  `json:"node_pubkey"`
	Voters       []crypto.PublicKey `json:"voters"`
}

// Block is a cryptographically chained batch of transactions, per §3:
// "{id, block, signature, votes, block_number?}. id = hash(canonical(block))."
type Block struct {
	ID          crypto.Hash      `json:"id"`
	Block       BlockBody        `json:"block"`
	Signature   crypto.Signature `json:"signature"`
	Votes       []Vote           `json:"votes"`
	BlockNumber *uint64          `json:"block_number,omitempty"`
}

// ComputeID returns hash(canonical(block)).
func (b Block) ComputeID() (crypto.Hash, error) {
	h, err := crypto.HashOf(b.Block)
	if err != nil {
		return "", fmt.Errorf("model: compute block id: %w", err)
	}
	return h, nil
}

// IDMatchesContent reports whether b.ID equals hash(canonical(b.Block)).
func (b Block) IDMatchesContent() bool {
	want, err := b.ComputeID()
	if err != nil {
		return false
	}
	return want == b.ID
}

// VoteBy returns the vote cast by node, if any.
func (b Block) VoteBy(node crypto.PublicKey) (Vote, bool) {
	for _, v := range b.Votes {
		if v.NodePubkey == node {
			return v, true
		}
	}
	return Vote{}, false
}

// ContainsTransactionID reports whether b contains a transaction with the
// given id.
func (b Block) ContainsTransactionID(txid crypto.Hash) bool {
	for _, tx := range b.Block.Transactions {
		if tx.ID == txid {
			return true
		}
	}
	return false
}

// TransactionByID returns the transaction with the given id, if present.
func (b Block) TransactionByID(txid crypto.Hash) (Transaction, bool) {
	for _, tx := range b.Block.Transactions {
		if tx.ID == txid {
			return tx, true
		}
	}
	return Transaction{}, false
}

// IsVoter reports whether node is listed among the block's voters.
func (b Block) IsVoter(node crypto.PublicKey) bool {
	for _, v := range b.Block.Voters {
		if v == node {
			return true
		}
	}
	return false
}
