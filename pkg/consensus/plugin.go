// Package consensus defines the pluggable validation surface the
// transaction and block engines defer to (§6.5): transaction construction,
// signing, fulfillment/transaction/block validation, and vote signature
// verification.
package consensus

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chainledger/core/pkg/crypto"
	"github.com/chainledger/core/pkg/model"
)

// Resolver is the slice of the query layer a Plugin needs to validate
// transactions against ledger history, without pulling in the full query
// package (which itself depends on block election status). Concrete
// implementations live in pkg/query.
type Resolver interface {
	// GetTransaction returns the accepted transaction for txid, or nil if
	// none resolves per §4.5.
	GetTransaction(ctx context.Context, txid crypto.Hash) (*model.Transaction, error)
	// Spent returns the transaction that spends input, or nil if
	// unspent, per §4.5.
	Spent(ctx context.Context, input model.Input) (*model.Transaction, error)
}

// Plugin is the consensus plugin interface of §6.5.
type Plugin interface {
	CreateTransaction(currentOwners []crypto.PublicKey, newOwners []crypto.PublicKey, input *model.Input, operation model.Operation, payload model.Payload) (model.Transaction, error)
	SignTransaction(tx model.Transaction, priv crypto.PrivateKey) (model.Transaction, error)
	ValidateFulfillments(tx model.Transaction) error
	ValidateTransaction(ctx context.Context, resolver Resolver, tx model.Transaction) error
	ValidateBlock(ctx context.Context, resolver Resolver, block model.Block) error
	VerifyVoteSignature(vote model.Vote) bool
}

// DefaultPlugin is the reference Plugin implementation: single fulfillment
// per transaction, one condition per new-owner group, Ed25519 signatures
// via pkg/crypto, and symmetric single/multi-owner ownership checks
// (§9's open question resolved: the two cases are checked the same way,
// both against condition.Details).
type DefaultPlugin struct {
	// Now returns the current time; overridable in tests for determinism.
	Now func() time.Time
	// UUID returns a fresh random identifier for transaction data.
	UUID func() string
}

// NewDefaultPlugin constructs a DefaultPlugin with real time and randomness.
func NewDefaultPlugin() *DefaultPlugin {
	return &DefaultPlugin{
		Now:  time.Now,
		UUID: func() string { return uuid.New().String() },
	}
}

func (p *DefaultPlugin) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *DefaultPlugin) uuid() string {
	if p.UUID != nil {
		return p.UUID()
	}
	return uuid.New().String()
}

// CreateTransaction builds a transaction template per §4.3: one
// fulfillment (input nullable for CREATE/GENESIS) and one condition per
// new-owner group. Fulfillment signatures are left blank until Sign.
func (p *DefaultPlugin) CreateTransaction(currentOwners []crypto.PublicKey, newOwners []crypto.PublicKey, input *model.Input, operation model.Operation, payload model.Payload) (model.Transaction, error) {
	if !model.ValidOperation(operation) {
		return model.Transaction{}, fmt.Errorf("%w: %q", ErrOperationError, operation)
	}
	if operation == model.OperationTransfer && input == nil {
		return model.Transaction{}, fmt.Errorf("%w: transfer requires an input", ErrOperationError)
	}
	if operation != model.OperationTransfer && input != nil {
		return model.Transaction{}, fmt.Errorf("%w: %s must not carry an input", ErrOperationError, operation)
	}
	if len(newOwners) == 0 {
		return model.Transaction{}, fmt.Errorf("%w: transaction must have at least one new owner", ErrOperationError)
	}

	var condition model.Condition
	if len(newOwners) == 1 {
		condition = model.NewCondition(0, newOwners[0])
	} else {
		subs := make([]model.ConditionDetails, 0, len(newOwners))
		for _, o := range newOwners {
			subs = append(subs, model.ConditionDetails{Type: model.DetailsTypeEd25519, PublicKey: o})
		}
		condition = model.Condition{
			CID:       0,
			NewOwners: newOwners,
			Condition: model.ConditionBody{Details: model.ConditionDetails{
				Type:          model.DetailsTypeThreshold,
				Threshold:     len(subs),
				Subconditions: subs,
			}},
		}
	}

	tx := model.Transaction{
		Transaction: model.TxBody{
			Fulfillments: []model.Fulfillment{{
				FID:           0,
				CurrentOwners: currentOwners,
				Input:         input,
			}},
			Conditions: []model.Condition{condition},
			Operation:  operation,
			Timestamp:  fmt.Sprintf("%d", p.now().Unix()),
			Data: model.TxData{
				Payload: payload,
				UUID:    p.uuid(),
			},
		},
	}
	id, err := tx.ComputeID()
	if err != nil {
		return model.Transaction{}, fmt.Errorf("consensus: compute transaction id: %w", err)
	}
	tx.ID = id
	return tx, nil
}

// SignTransaction signs canonical(transaction without fulfillment
// signatures) with priv and attaches the signature to every fulfillment,
// per §4.3. The id is unaffected because it was computed over the same
// signature-stripped body.
func (p *DefaultPlugin) SignTransaction(tx model.Transaction, priv crypto.PrivateKey) (model.Transaction, error) {
	body := tx.SigningBody()
	sig, err := crypto.Sign(priv, body)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("consensus: sign transaction: %w", err)
	}
	for i := range tx.Transaction.Fulfillments {
		tx.Transaction.Fulfillments[i].FulfillmentSig = string(sig)
	}
	return tx, nil
}

// ValidateFulfillments checks every fulfillment signature verifies under
// its current_owners against canonical(transaction without signatures),
// per §4.3 rule 5.
func (p *DefaultPlugin) ValidateFulfillments(tx model.Transaction) error {
	body := tx.SigningBody()
	for _, f := range tx.Transaction.Fulfillments {
		if f.FulfillmentSig == "" {
			return fmt.Errorf("%w: fulfillment %d is unsigned", ErrInvalidSignature, f.FID)
		}
		ok := false
		for _, owner := range f.CurrentOwners {
			if crypto.Verify(owner, body, crypto.Signature(f.FulfillmentSig)) {
				ok = true
				break
			}
		}
		if !ok {
			return fmt.Errorf("%w: fulfillment %d signature invalid for its current_owners", ErrInvalidSignature, f.FID)
		}
	}
	return nil
}

// ValidateTransaction applies §4.3's full validation: structural schema,
// operation membership, input resolution and ownership for TRANSFER, no
// inputs for CREATE/GENESIS, fulfillment signatures, and id integrity.
func (p *DefaultPlugin) ValidateTransaction(ctx context.Context, resolver Resolver, tx model.Transaction) error {
	if !model.ValidOperation(tx.Transaction.Operation) {
		return fmt.Errorf("%w: unknown operation %q", ErrOperationError, tx.Transaction.Operation)
	}
	if len(tx.Transaction.Fulfillments) == 0 || len(tx.Transaction.Conditions) == 0 {
		return fmt.Errorf("%w: transaction must have fulfillments and conditions", ErrOperationError)
	}

	switch tx.Transaction.Operation {
	case model.OperationTransfer:
		for _, f := range tx.Transaction.Fulfillments {
			if f.Input == nil {
				return fmt.Errorf("%w: transfer fulfillment %d has no input", ErrOperationError, f.FID)
			}
			prior, err := resolver.GetTransaction(ctx, f.Input.TxID)
			if err != nil {
				return fmt.Errorf("consensus: resolve input: %w", err)
			}
			if prior == nil {
				return fmt.Errorf("%w: {%s, %d}", ErrTransactionDoesNotExist, f.Input.TxID, f.Input.CID)
			}
			cond, ok := prior.ConditionFor(f.Input.CID)
			if !ok {
				return fmt.Errorf("%w: condition %d not found on %s", ErrTransactionDoesNotExist, f.Input.CID, f.Input.TxID)
			}
			if !ownedByExactly(cond, f.CurrentOwners) {
				return fmt.Errorf("%w: declared current_owners do not match condition %d", ErrTransactionOwnerError, f.Input.CID)
			}
			spentBy, err := resolver.Spent(ctx, *f.Input)
			if err != nil {
				return fmt.Errorf("consensus: check spent: %w", err)
			}
			if spentBy != nil && spentBy.ID != tx.ID {
				return fmt.Errorf("%w: {%s, %d} already spent by %s", ErrTransactionDoesNotExist, f.Input.TxID, f.Input.CID, spentBy.ID)
			}
		}
	case model.OperationCreate, model.OperationGenesis:
		for _, f := range tx.Transaction.Fulfillments {
			if f.Input != nil {
				return fmt.Errorf("%w: %s fulfillment %d must not have an input", ErrOperationError, tx.Transaction.Operation, f.FID)
			}
		}
	}

	if err := p.ValidateFulfillments(tx); err != nil {
		return err
	}

	computed, err := tx.ComputeID()
	if err != nil {
		return fmt.Errorf("consensus: compute transaction id: %w", err)
	}
	if computed != tx.ID {
		return fmt.Errorf("%w: declared id %s does not match content", ErrInvalidHash, tx.ID)
	}
	return nil
}

// ValidateBlock applies structural block checks and then validates every
// contained transaction, surfacing the first failure (§4.4).
func (p *DefaultPlugin) ValidateBlock(ctx context.Context, resolver Resolver, block model.Block) error {
	if len(block.Block.Transactions) == 0 {
		return fmt.Errorf("%w", ErrEmptyBlock)
	}
	computed, err := block.ComputeID()
	if err != nil {
		return fmt.Errorf("consensus: compute block id: %w", err)
	}
	if computed != block.ID {
		return fmt.Errorf("%w: declared block id %s does not match content", ErrInvalidHash, block.ID)
	}
	for _, tx := range block.Block.Transactions {
		if err := p.ValidateTransaction(ctx, resolver, tx); err != nil {
			return fmt.Errorf("transaction %s: %w", tx.ID, err)
		}
	}
	return nil
}

// VerifyVoteSignature checks a vote's signature against its declared
// node_pubkey over canonical(vote.vote), per §6.4.
func (p *DefaultPlugin) VerifyVoteSignature(vote model.Vote) bool {
	return vote.VerifySignature()
}

// ownedByExactly reports whether claimed is exactly the set of owners the
// condition requires: every claimed owner is recognized by the condition,
// and every owner the condition recognizes is present in claimed. Checking
// only the first direction would let a strict subset of a multi-owner
// condition's recognized owners (e.g. one signer out of a 2-of-2 threshold)
// declare itself as current_owners and, having been "recognized", go on to
// authorize the transfer alone — defeating the joint-authorization the
// condition was built to require. Single- and multi-owner conditions are
// checked the same way, against condition.Details, per §9's symmetry fix.
func ownedByExactly(cond model.Condition, claimed []crypto.PublicKey) bool {
	if len(claimed) == 0 {
		return false
	}
	for _, owner := range claimed {
		if !cond.Condition.Details.Contains(owner) {
			return false
		}
	}

	claimedSet := make(map[crypto.PublicKey]bool, len(claimed))
	for _, owner := range claimed {
		claimedSet[owner] = true
	}
	for _, owner := range conditionOwners(cond.Condition.Details) {
		if !claimedSet[owner] {
			return false
		}
	}
	return true
}

// conditionOwners collects every leaf public key recognized by d, walking
// threshold subconditions recursively.
func conditionOwners(d model.ConditionDetails) []crypto.PublicKey {
	if d.Type == model.DetailsTypeEd25519 {
		if d.PublicKey == "" {
			return nil
		}
		return []crypto.PublicKey{d.PublicKey}
	}
	var out []crypto.PublicKey
	for _, sub := range d.Subconditions {
		out = append(out, conditionOwners(sub)...)
	}
	return out
}
