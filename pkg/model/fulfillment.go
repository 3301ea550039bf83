package model

import "github.com/chainledger/core/pkg/crypto"

// Input references a prior condition by transaction id and position, per
// §3: "input: {txid, cid} | null".
type Input struct {
	TxID crypto.Hash `json:"txid"`
	CID  uint        `json:"cid"`
}

// Fulfillment is an input-side proof of ownership, per §3: "A record
// {fid, current_owners, input, fulfillment}. input = null only for
// CREATE/GENESIS transactions."
type Fulfillment struct {
	FID            uint               `json:"fid"`
	CurrentOwners  []crypto.PublicKey `json:"current_owners"`
	Input          *Input             `json:"input"`
	FulfillmentSig string             `json:"fulfillment"`
}

// cleared returns a copy of f with the runtime signature blanked, used to
// compute the transaction id and the bytes that get signed. §4.3: "the id
// is computed on the structural body excluding runtime signatures per the
// plugin's rule."
func (f Fulfillment) cleared() Fulfillment {
	f.FulfillmentSig = ""
	return f
}
