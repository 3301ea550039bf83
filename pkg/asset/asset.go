// Package asset implements the asset domain operations of §4.7: assets
// identified by a content hash, with a linear ownership history recorded
// as a chain of ledger transactions naming that hash.
package asset

import (
	"context"
	"fmt"
	"sort"

	"github.com/chainledger/core/pkg/block"
	"github.com/chainledger/core/pkg/consensus"
	"github.com/chainledger/core/pkg/crypto"
	"github.com/chainledger/core/pkg/model"
	"github.com/chainledger/core/pkg/store"
	"github.com/chainledger/core/pkg/txn"
)

const (
	IssueCreate   = "create"
	IssueTransfer = "transfer"
	IssueDestroy  = "destroy"
)

// Engine implements asset operations on top of a transaction engine.
// create_asset issues from the node, matching currency's "from self to
// pub" pattern (§4.7).
type Engine struct {
	Store      store.Store
	Txn        *txn.Engine
	Resolver   consensus.Resolver
	Self       crypto.PublicKey
	SelfPriv   crypto.PrivateKey
	Federation []crypto.PublicKey // federation members other than self
}

// NewEngine constructs an asset Engine.
func NewEngine(st store.Store, txnEngine *txn.Engine, resolver consensus.Resolver, self crypto.PublicKey, selfPriv crypto.PrivateKey, federation []crypto.PublicKey) *Engine {
	return &Engine{Store: st, Txn: txnEngine, Resolver: resolver, Self: self, SelfPriv: selfPriv, Federation: federation}
}

func (e *Engine) isFederationMember(pub crypto.PublicKey) bool {
	if pub == e.Self {
		return true
	}
	for _, m := range e.Federation {
		if m == pub {
			return true
		}
	}
	return false
}

// CreateAsset issues a CREATE transaction from the node to pub naming
// payload.asset, failing InvalidAsset if that hash already has history
// (§4.7).
func (e *Engine) CreateAsset(ctx context.Context, pub crypto.PublicKey, payload model.Payload) (model.Transaction, error) {
	assetHash := payload.StringField("asset")
	if assetHash == "" {
		return model.Transaction{}, fmt.Errorf("asset: payload missing asset hash")
	}

	existing, err := e.txByAsset(ctx, assetHash)
	if err != nil {
		return model.Transaction{}, err
	}
	if existing != nil {
		return model.Transaction{}, fmt.Errorf("%w: asset %s already exists", ErrInvalidAsset, assetHash)
	}

	out := payload.Clone()
	out["category"] = model.CategoryAsset
	out["issue"] = IssueCreate

	tx, err := e.Txn.Create([]crypto.PublicKey{e.Self}, []crypto.PublicKey{pub}, nil, model.OperationCreate, out)
	if err != nil {
		return model.Transaction{}, err
	}
	tx, err = e.Txn.Sign(tx, e.SelfPriv)
	if err != nil {
		return model.Transaction{}, err
	}
	return e.Txn.Submit(ctx, tx)
}

// LastTxByAsset returns the most recent accepted transaction naming
// asset, or fails InvalidAsset if its current owner is a federation node
// (meaning the asset has been destroyed), per §4.7.
func (e *Engine) LastTxByAsset(ctx context.Context, asset string) (*model.Transaction, error) {
	tx, err := e.txByAsset(ctx, asset)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, nil
	}
	if cond, ok := tx.ConditionFor(0); ok {
		if owner, ok := cond.SingleOwner(); ok && e.isFederationMember(owner) {
			return nil, fmt.Errorf("%w: asset %s has been destroyed", ErrInvalidAsset, asset)
		}
	}
	return tx, nil
}

// txByAsset finds the most recent VALID/UNDECIDED transaction naming
// asset, without the destroyed-ownership check LastTxByAsset applies.
func (e *Engine) txByAsset(ctx context.Context, asset string) (*model.Transaction, error) {
	blocks, err := e.Store.Bigchain().AllBlocks(ctx)
	if err != nil {
		return nil, fmt.Errorf("asset: scan bigchain: %w", err)
	}

	type candidate struct {
		tx        model.Transaction
		blockTime string
		txTime    string
	}
	var candidates []candidate
	for _, b := range blocks {
		st := block.ElectionStatus(b)
		if st != block.StatusValid && st != block.StatusUndecided {
			continue
		}
		for _, tx := range b.Block.Transactions {
			if tx.Transaction.Data.Payload.Category() != model.CategoryAsset {
				continue
			}
			if tx.Transaction.Data.Payload.StringField("asset") != asset {
				continue
			}
			candidates = append(candidates, candidate{tx: tx, blockTime: b.Block.Timestamp, txTime: tx.Transaction.Timestamp})
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].blockTime != candidates[j].blockTime {
			return candidates[i].blockTime > candidates[j].blockTime
		}
		return candidates[i].txTime > candidates[j].txTime
	})
	head := candidates[0].tx
	return &head, nil
}

// Owner returns the new_owners of the condition in asset's last
// transaction (§4.7).
func (e *Engine) Owner(ctx context.Context, asset string) ([]crypto.PublicKey, error) {
	tx, err := e.LastTxByAsset(ctx, asset)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, fmt.Errorf("%w: asset %s has no history", ErrInvalidAsset, asset)
	}
	cond, ok := tx.ConditionFor(0)
	if !ok {
		return nil, fmt.Errorf("asset: transaction %s has no condition 0", tx.ID)
	}
	return cond.NewOwners, nil
}

// TransferAsset clones the prior payload referenced by input, marks it
// issue=transfer, and submits a TRANSFER from oldPub to newPub signed
// with oldPriv (§4.7).
func (e *Engine) TransferAsset(ctx context.Context, oldPub crypto.PublicKey, oldPriv crypto.PrivateKey, newPub crypto.PublicKey, input model.Input) (model.Transaction, error) {
	prior, err := e.Resolver.GetTransaction(ctx, input.TxID)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("asset: resolve prior transaction: %w", err)
	}
	if prior == nil {
		return model.Transaction{}, fmt.Errorf("%w: input transaction %s not found", ErrInvalidAsset, input.TxID)
	}

	payload := prior.Transaction.Data.Payload.Clone()
	payload["issue"] = IssueTransfer

	tx, err := e.Txn.Create([]crypto.PublicKey{oldPub}, []crypto.PublicKey{newPub}, &input, model.OperationTransfer, payload)
	if err != nil {
		return model.Transaction{}, err
	}
	tx, err = e.Txn.Sign(tx, oldPriv)
	if err != nil {
		return model.Transaction{}, err
	}
	return e.Txn.Submit(ctx, tx)
}

// DestroyAsset transfers asset's last output from pub to the node with
// issue=destroy; thereafter LastTxByAsset reports it as destroyed (§4.7).
func (e *Engine) DestroyAsset(ctx context.Context, pub crypto.PublicKey, priv crypto.PrivateKey, asset string) (model.Transaction, error) {
	last, err := e.LastTxByAsset(ctx, asset)
	if err != nil {
		return model.Transaction{}, err
	}
	if last == nil {
		return model.Transaction{}, fmt.Errorf("%w: asset %s has no history", ErrInvalidAsset, asset)
	}

	payload := last.Transaction.Data.Payload.Clone()
	payload["issue"] = IssueDestroy

	input := model.Input{TxID: last.ID, CID: 0}
	tx, err := e.Txn.Create([]crypto.PublicKey{pub}, []crypto.PublicKey{e.Self}, &input, model.OperationTransfer, payload)
	if err != nil {
		return model.Transaction{}, err
	}
	tx, err = e.Txn.Sign(tx, priv)
	if err != nil {
		return model.Transaction{}, err
	}
	return e.Txn.Submit(ctx, tx)
}
