package model

import (
	"fmt"

	"github.com/chainledger/core/pkg/crypto"
)

// Operation names the three transaction kinds recognized by §3/§4.3.
type Operation string

const (
	OperationCreate   Operation = "CREATE"
	OperationTransfer Operation = "TRANSFER"
	OperationGenesis  Operation = "GENESIS"
)

// ValidOperation reports whether op is one of the three recognized kinds.
func ValidOperation(op Operation) bool {
	switch op {
	case OperationCreate, OperationTransfer, OperationGenesis:
		return true
	default:
		return false
	}
}

// TxData wraps the domain payload and a per-transaction random uuid, per
// §3: "data: {payload, uuid}".
type TxData struct {
	Payload Payload `json:"payload"`
	UUID    string  `json:"uuid"`
}

// TxBody is the structural content of a transaction, per §3: "transaction:
// {fulfillments, conditions, operation, timestamp, data}".
type TxBody struct {
	Fulfillments []Fulfillment `json:"fulfillments"`
	Conditions   []Condition   `json:"conditions"`
	Operation    Operation     `json:"operation"`
	Timestamp    string        `json:"timestamp"`
	Data         TxData        `json:"data"`
}

// signingBody returns a copy of b with every fulfillment's runtime
// signature blanked — the bytes that are hashed for the transaction id and
// signed by each owner. See Fulfillment.cleared.
func (b TxBody) signingBody() TxBody {
	cleared := b
	cleared.Fulfillments = make([]Fulfillment, len(b.Fulfillments))
	for i, f := range b.Fulfillments {
		cleared.Fulfillments[i] = f.cleared()
	}
	return cleared
}

// Transaction is a signed, content-addressed ledger entry, per §3: "A
// record {id, transaction}. id equals hash(canonical(transaction))."
type Transaction struct {
	ID          crypto.Hash      `json:"id"`
	Transaction TxBody           `json:"transaction"`
	Assignee    crypto.PublicKey `json:"assignee,omitempty"`
}

// ComputeID returns the content hash of t's structural body, per §3's
// invariant 1: "transaction.id is determined exclusively by
// canonical(transaction)."
func (t Transaction) ComputeID() (crypto.Hash, error) {
	h, err := crypto.HashOf(t.Transaction.signingBody())
	if err != nil {
		return "", fmt.Errorf("model: compute transaction id: %w", err)
	}
	return h, nil
}

// IDMatchesContent reports whether t.ID equals hash(canonical(t)), per §3
// invariant 1 and the §4.3 validation rule 6.
func (t Transaction) IDMatchesContent() bool {
	want, err := t.ComputeID()
	if err != nil {
		return false
	}
	return want == t.ID
}

// SigningBody returns the body whose canonical bytes each owner signs: the
// transaction body with every fulfillment signature blanked.
func (t Transaction) SigningBody() TxBody {
	return t.Transaction.signingBody()
}

// FulfillmentFor returns the fulfillment with the given fid, if present.
func (t Transaction) FulfillmentFor(fid uint) (Fulfillment, bool) {
	for _, f := range t.Transaction.Fulfillments {
		if f.FID == fid {
			return f, true
		}
	}
	return Fulfillment{}, false
}

// ConditionFor returns the condition with the given cid, if present.
func (t Transaction) ConditionFor(cid uint) (Condition, bool) {
	for _, c := range t.Transaction.Conditions {
		if c.CID == cid {
			return c, true
		}
	}
	return Condition{}, false
}

// Inputs returns every non-nil input referenced by t's fulfillments.
func (t Transaction) Inputs() []Input {
	var inputs []Input
	for _, f := range t.Transaction.Fulfillments {
		if f.Input != nil {
			inputs = append(inputs, *f.Input)
		}
	}
	return inputs
}
