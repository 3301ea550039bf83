// Package block implements block creation, validation, voting, and
// election tallying on top of the bigchain collection (§4.4).
package block

import (
	"context"
	"fmt"
	"time"

	"github.com/chainledger/core/pkg/consensus"
	"github.com/chainledger/core/pkg/crypto"
	"github.com/chainledger/core/pkg/metrics"
	"github.com/chainledger/core/pkg/model"
	"github.com/chainledger/core/pkg/store"
)

// GenesisMessage is the fixed payload of the genesis transaction, per
// §4.4's testable scenario 1.
const GenesisMessage = "Hello World from the BigchainDB"

// Engine creates and validates blocks and manages this node's voting
// against bigchain, deferring transaction-level rules to a
// consensus.Plugin.
type Engine struct {
	Store      store.Store
	Plugin     consensus.Plugin
	Resolver   consensus.Resolver
	Self       crypto.PublicKey
	SelfPriv   crypto.PrivateKey
	Federation []crypto.PublicKey // federation members other than self

	// Now returns the current time; overridable in tests.
	Now func() time.Time
}

// NewEngine constructs a block Engine.
func NewEngine(st store.Store, plugin consensus.Plugin, resolver consensus.Resolver, self crypto.PublicKey, selfPriv crypto.PrivateKey, federation []crypto.PublicKey) *Engine {
	return &Engine{
		Store:      st,
		Plugin:     plugin,
		Resolver:   resolver,
		Self:       self,
		SelfPriv:   selfPriv,
		Federation: federation,
		Now:        time.Now,
	}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// voters is the full federation membership including self, per §3:
// "voters is the full federation membership including the creator."
func (e *Engine) voters() []crypto.PublicKey {
	return append(append([]crypto.PublicKey{}, e.Federation...), e.Self)
}

// CreateBlock builds, signs, and returns a block from txs. It does not
// write the block to the store; callers insert it via Store.Bigchain().
func (e *Engine) CreateBlock(txs []model.Transaction) (model.Block, error) {
	if len(txs) == 0 {
		return model.Block{}, ErrEmptyBlock
	}

	b := model.Block{
		Block: model.BlockBody{
			Timestamp:    fmt.Sprintf("%d", e.now().Unix()),
			Transactions: txs,
			NodePubkey:   e.Self,
			Voters:       e.voters(),
		},
	}
	id, err := b.ComputeID()
	if err != nil {
		return model.Block{}, fmt.Errorf("block: compute id: %w", err)
	}
	b.ID = id

	sig, err := crypto.Sign(e.SelfPriv, b.Block)
	if err != nil {
		return model.Block{}, fmt.Errorf("block: sign: %w", err)
	}
	b.Signature = sig
	metrics.BlocksCreated.Inc()
	return b, nil
}

// HasPreviousVote scans block.votes for one cast by self. If present but
// its signature fails verification, that is an ImproperVote the caller
// must not silently overwrite, per §4.4.
func (e *Engine) HasPreviousVote(b model.Block) (bool, error) {
	vote, ok := b.VoteBy(e.Self)
	if !ok {
		return false, nil
	}
	if !vote.VerifySignature() {
		return false, ErrImproperVote
	}
	return true, nil
}

// ValidateBlock is idempotent: if self has already voted on b, it returns
// nil without re-validating. Otherwise it delegates to the
// plugin's structural and per-transaction checks, per §4.4.
func (e *Engine) ValidateBlock(ctx context.Context, b model.Block) error {
	voted, err := e.HasPreviousVote(b)
	if err != nil {
		return err
	}
	if voted {
		return nil
	}
	return e.Plugin.ValidateBlock(ctx, e.Resolver, b)
}

// CastVote produces and signs a vote for b reflecting valid/invalidReason,
// per §4.4. It does not write the vote; call WriteVote to persist it.
func (e *Engine) CastVote(b model.Block, previousBlock crypto.Hash, valid bool, invalidReason *string) (model.Vote, error) {
	body := model.VoteBody{
		VotingForBlock: b.ID,
		PreviousBlock:  previousBlock,
		IsBlockValid:   valid,
		InvalidReason:  invalidReason,
		Timestamp:      fmt.Sprintf("%d", e.now().Unix()),
	}
	vote, err := model.SignVote(e.Self, e.SelfPriv, body)
	if err != nil {
		return model.Vote{}, err
	}
	metrics.VotesCast.WithLabelValues(fmt.Sprintf("%t", valid)).Inc()
	return vote, nil
}

// WriteVote appends vote to block.id's stored document unless self has
// already voted on it, in which case it is a no-op, per §4.4. blockNumber
// is the caller's proposed number; it is only applied if the stored
// document has none yet.
func (e *Engine) WriteVote(ctx context.Context, b model.Block, vote model.Vote, blockNumber uint64) error {
	voted, err := e.HasPreviousVote(b)
	if err != nil {
		return err
	}
	if voted {
		return nil
	}
	return e.Store.Bigchain().AppendVote(ctx, b.ID, vote, blockNumber)
}

// CreateGenesisBlock refuses if bigchain is non-empty, otherwise builds
// the single genesis CREATE transaction, wraps it in a block numbered 0,
// and writes it with durability hard, per §4.4.
func (e *Engine) CreateGenesisBlock(ctx context.Context) (model.Block, error) {
	count, err := e.Store.Bigchain().Count(ctx)
	if err != nil {
		return model.Block{}, fmt.Errorf("block: count bigchain: %w", err)
	}
	if count > 0 {
		return model.Block{}, ErrGenesisBlockAlreadyExists
	}

	tx, err := e.Plugin.CreateTransaction([]crypto.PublicKey{e.Self}, []crypto.PublicKey{e.Self}, nil, model.OperationGenesis, model.Payload{
		"message": GenesisMessage,
	})
	if err != nil {
		return model.Block{}, fmt.Errorf("block: create genesis transaction: %w", err)
	}
	tx, err = e.Plugin.SignTransaction(tx, e.SelfPriv)
	if err != nil {
		return model.Block{}, fmt.Errorf("block: sign genesis transaction: %w", err)
	}

	b, err := e.CreateBlock([]model.Transaction{tx})
	if err != nil {
		return model.Block{}, fmt.Errorf("block: create genesis block: %w", err)
	}
	zero := uint64(0)
	b.BlockNumber = &zero

	if err := e.Store.Bigchain().InsertBlock(ctx, b, store.DurabilityHard); err != nil {
		return model.Block{}, fmt.Errorf("block: insert genesis block: %w", err)
	}
	return b, nil
}
