// Package txn implements the transaction engine (§4.3): creation,
// signing, validation, and submission into the backlog.
package txn

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/chainledger/core/pkg/consensus"
	"github.com/chainledger/core/pkg/crypto"
	"github.com/chainledger/core/pkg/metrics"
	"github.com/chainledger/core/pkg/model"
	"github.com/chainledger/core/pkg/store"
)

// Engine creates, signs, validates, and submits transactions, deferring
// the shape of conditions/fulfillments to a consensus.Plugin.
type Engine struct {
	Store      store.Store
	Plugin     consensus.Plugin
	Resolver   consensus.Resolver
	Self       crypto.PublicKey
	Federation []crypto.PublicKey // federation members other than self
}

// NewEngine constructs a transaction Engine.
func NewEngine(st store.Store, plugin consensus.Plugin, resolver consensus.Resolver, self crypto.PublicKey, federation []crypto.PublicKey) *Engine {
	return &Engine{Store: st, Plugin: plugin, Resolver: resolver, Self: self, Federation: federation}
}

// Create builds a transaction template via the plugin, per §4.3.
func (e *Engine) Create(currentOwners, newOwners []crypto.PublicKey, input *model.Input, operation model.Operation, payload model.Payload) (model.Transaction, error) {
	return e.Plugin.CreateTransaction(currentOwners, newOwners, input, operation, payload)
}

// Sign attaches fulfillment signatures via the plugin, per §4.3.
func (e *Engine) Sign(tx model.Transaction, priv crypto.PrivateKey) (model.Transaction, error) {
	return e.Plugin.SignTransaction(tx, priv)
}

// Validate is the strict validation entry point: it returns a specific
// wrapped error on failure, per §4.3 and §7.
func (e *Engine) Validate(ctx context.Context, tx model.Transaction) error {
	if err := e.Plugin.ValidateTransaction(ctx, e.Resolver, tx); err != nil {
		metrics.TransactionsValidated.WithLabelValues("invalid").Inc()
		return fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}
	metrics.TransactionsValidated.WithLabelValues("ok").Inc()
	return nil
}

// IsValid is the boolean validation entry point: it reports whether
// Validate succeeds. Every failure yields false, including
// ChainCorruption-class errors surfaced by the resolver; the boolean form
// does not distinguish them from ordinary validation failures.
func (e *Engine) IsValid(ctx context.Context, tx model.Transaction) bool {
	return e.Validate(ctx, tx) == nil
}

// Submit assigns tx to a random federation peer (or self if the
// federation is empty) and inserts it into the backlog with durability
// soft. Duplicate transactions are not rejected here; double-spend is
// caught at validation time (§4.3).
func (e *Engine) Submit(ctx context.Context, tx model.Transaction) (model.Transaction, error) {
	assignee, err := e.pickAssignee()
	if err != nil {
		return model.Transaction{}, fmt.Errorf("txn: pick assignee: %w", err)
	}
	tx.Assignee = assignee

	if err := e.Store.Backlog().InsertTransaction(ctx, tx, store.DurabilitySoft); err != nil {
		return model.Transaction{}, fmt.Errorf("txn: submit: %w", err)
	}
	return tx, nil
}

// pickAssignee chooses uniformly at random from Federation, or Self if
// the federation is empty, using a CSPRNG per §5: "Randomness for
// assignee selection requires a CSPRNG."
func (e *Engine) pickAssignee() (crypto.PublicKey, error) {
	if len(e.Federation) == 0 {
		return e.Self, nil
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(e.Federation))))
	if err != nil {
		return "", err
	}
	return e.Federation[n.Int64()], nil
}
