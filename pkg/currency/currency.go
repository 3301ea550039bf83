// Package currency implements the currency domain operations of §4.6:
// per-owner balance chains built from CREATE transactions linked through
// a payload "previous" pointer.
package currency

import (
	"context"
	"fmt"

	"github.com/chainledger/core/pkg/crypto"
	"github.com/chainledger/core/pkg/model"
	"github.com/chainledger/core/pkg/store"
	"github.com/chainledger/core/pkg/txn"
)

const (
	sentinelGenesis = "genesis"

	// IssueCharge credits an owner directly (e.g. a deposit).
	IssueCharge = "charge"
	// IssueEarn credits an owner as the receiving leg of a transfer.
	IssueEarn = "earn"
	// IssueCost debits an owner as the sending leg of a transfer.
	IssueCost = "cost"
)

// Engine implements currency operations on top of a transaction engine.
// Every currency transaction is a CREATE issued by the node (§4.6: "from
// self to pub"); the node's own keypair is therefore the signer for both
// charge_currency and both legs of transfer_currency.
type Engine struct {
	Store    store.Store
	Txn      *txn.Engine
	Self     crypto.PublicKey
	SelfPriv crypto.PrivateKey
}

// NewEngine constructs a currency Engine.
func NewEngine(st store.Store, txnEngine *txn.Engine, self crypto.PublicKey, selfPriv crypto.PrivateKey) *Engine {
	return &Engine{Store: st, Txn: txnEngine, Self: self, SelfPriv: selfPriv}
}

// LastCurrency scans backlog and bigchain currency transactions addressed
// to owner, chains them through payload.previous, and returns the tail.
// Returns nil if owner has no currency history — the "init" sentinel of
// §4.6.
func (e *Engine) LastCurrency(ctx context.Context, owner crypto.PublicKey) (*model.Transaction, error) {
	txs, err := e.currencyTransactionsFor(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("currency: last currency: %w", err)
	}
	if len(txs) == 0 {
		return nil, nil
	}

	referenced := make(map[crypto.Hash]bool, len(txs))
	byID := make(map[crypto.Hash]model.Transaction, len(txs))
	for _, tx := range txs {
		byID[tx.ID] = tx
		if prev := tx.Transaction.Data.Payload.StringField("previous"); prev != "" && prev != sentinelGenesis {
			referenced[crypto.Hash(prev)] = true
		}
	}
	for id, tx := range byID {
		if !referenced[id] {
			t := tx
			return &t, nil
		}
	}
	// Every transaction is referenced by another: a cycle, which cannot
	// arise from normal chaining. Fall back to any one rather than fail.
	for _, tx := range byID {
		t := tx
		return &t, nil
	}
	return nil, nil
}

func (e *Engine) currencyTransactionsFor(ctx context.Context, owner crypto.PublicKey) ([]model.Transaction, error) {
	var out []model.Transaction

	backlog, err := e.Store.Backlog().AllTransactions(ctx)
	if err != nil {
		return nil, err
	}
	for _, tx := range backlog {
		if isCurrencyTxFor(tx, owner) {
			out = append(out, tx)
		}
	}

	blocks, err := e.Store.Bigchain().AllBlocks(ctx)
	if err != nil {
		return nil, err
	}
	for _, b := range blocks {
		for _, tx := range b.Block.Transactions {
			if isCurrencyTxFor(tx, owner) {
				out = append(out, tx)
			}
		}
	}
	return out, nil
}

func isCurrencyTxFor(tx model.Transaction, owner crypto.PublicKey) bool {
	if tx.Transaction.Data.Payload.Category() != model.CategoryCurrency {
		return false
	}
	for _, c := range tx.Transaction.Conditions {
		if c.OwnedBy(owner) {
			return true
		}
	}
	return false
}

// Balance returns last_currency(pub).payload.account, or 0 if pub has no
// currency history (§4.6).
func (e *Engine) Balance(ctx context.Context, pub crypto.PublicKey) (float64, error) {
	last, err := e.LastCurrency(ctx, pub)
	if err != nil {
		return 0, err
	}
	if last == nil {
		return 0, nil
	}
	account, _ := last.Transaction.Data.Payload.Float64Field("account")
	return account, nil
}

// ChargeCurrency credits pub with payload.amount, chaining through pub's
// last currency transaction, and submits a CREATE transaction from the
// node to pub (§4.6).
func (e *Engine) ChargeCurrency(ctx context.Context, pub crypto.PublicKey, payload model.Payload) (model.Transaction, error) {
	last, err := e.LastCurrency(ctx, pub)
	if err != nil {
		return model.Transaction{}, err
	}
	prevAccount, previousID := chainPoint(last)

	amount, _ := payload.Float64Field("amount")
	out := payload.Clone()
	out["category"] = model.CategoryCurrency
	out["account"] = prevAccount + amount
	out["previous"] = previousID
	out["trader"] = "node"

	return e.createSignSubmit(ctx, pub, out)
}

// TransferCurrency moves amount from sender to receiver as two
// node-signed CREATE legs, chained through each party's currency history.
// Both legs are built, signed, and validated before either is submitted;
// if either fails validation, the transfer aborts with ErrInvalidTransaction
// and neither leg is submitted, per §4.6's "submit both. If either fails
// validation, abort ... and do not submit either."
func (e *Engine) TransferCurrency(ctx context.Context, senderPub crypto.PublicKey, _ crypto.PrivateKey, receiverPub crypto.PublicKey, payload model.Payload) error {
	amount, ok := payload.Float64Field("amount")
	if !ok || amount <= 0 {
		return fmt.Errorf("currency: transfer amount must be positive")
	}

	senderLast, err := e.LastCurrency(ctx, senderPub)
	if err != nil {
		return err
	}
	senderBalance, senderPrevID := chainPoint(senderLast)
	if amount > senderBalance {
		return ErrBalanceNotEnough
	}

	receiverLast, err := e.LastCurrency(ctx, receiverPub)
	if err != nil {
		return err
	}
	receiverBalance, receiverPrevID := chainPoint(receiverLast)

	senderLeg := payload.Clone()
	senderLeg["category"] = model.CategoryCurrency
	senderLeg["issue"] = IssueCost
	senderLeg["account"] = senderBalance - amount
	senderLeg["previous"] = senderPrevID
	senderLeg["trader"] = string(receiverPub)

	receiverLeg := payload.Clone()
	receiverLeg["category"] = model.CategoryCurrency
	receiverLeg["issue"] = IssueEarn
	receiverLeg["account"] = receiverBalance + amount
	receiverLeg["previous"] = receiverPrevID
	receiverLeg["trader"] = string(senderPub)

	senderTx, err := e.createAndSign(senderPub, senderLeg)
	if err != nil {
		return fmt.Errorf("%w: sender leg: %v", txn.ErrInvalidTransaction, err)
	}
	if err := e.Txn.Validate(ctx, senderTx); err != nil {
		return fmt.Errorf("%w: sender leg: %v", txn.ErrInvalidTransaction, err)
	}

	receiverTx, err := e.createAndSign(receiverPub, receiverLeg)
	if err != nil {
		return fmt.Errorf("%w: receiver leg: %v", txn.ErrInvalidTransaction, err)
	}
	if err := e.Txn.Validate(ctx, receiverTx); err != nil {
		return fmt.Errorf("%w: receiver leg: %v", txn.ErrInvalidTransaction, err)
	}

	if _, err := e.Txn.Submit(ctx, senderTx); err != nil {
		return fmt.Errorf("currency: submit sender leg: %w", err)
	}
	if _, err := e.Txn.Submit(ctx, receiverTx); err != nil {
		return fmt.Errorf("currency: submit receiver leg: %w", err)
	}
	return nil
}

// chainPoint extracts the (balance, previous-id) pair to build on top of
// last, or the chain root if last is nil.
func chainPoint(last *model.Transaction) (float64, string) {
	if last == nil {
		return 0, sentinelGenesis
	}
	account, _ := last.Transaction.Data.Payload.Float64Field("account")
	return account, string(last.ID)
}

// createSignSubmit builds a CREATE transaction from the node to newOwner,
// signs it with the node's key, and submits it to the backlog.
func (e *Engine) createSignSubmit(ctx context.Context, newOwner crypto.PublicKey, payload model.Payload) (model.Transaction, error) {
	tx, err := e.createAndSign(newOwner, payload)
	if err != nil {
		return model.Transaction{}, err
	}
	return e.Txn.Submit(ctx, tx)
}

// createAndSign builds a CREATE transaction from the node to newOwner and
// signs it with the node's key, without submitting it. Used where a caller
// needs to validate a transaction before deciding whether to submit it.
func (e *Engine) createAndSign(newOwner crypto.PublicKey, payload model.Payload) (model.Transaction, error) {
	tx, err := e.Txn.Create([]crypto.PublicKey{e.Self}, []crypto.PublicKey{newOwner}, nil, model.OperationCreate, payload)
	if err != nil {
		return model.Transaction{}, err
	}
	return e.Txn.Sign(tx, e.SelfPriv)
}
