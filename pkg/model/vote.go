package model

import (
	"fmt"

	"github.com/chainledger/core/pkg/crypto"
)

// VoteBody is the structural content a node signs when voting on a block,
// per §3: "vote: {voting_for_block, previous_block, is_block_valid,
// invalid_reason, timestamp}."
type VoteBody struct {
	VotingForBlock crypto.Hash `json:"voting_for_block"`
	PreviousBlock  crypto.Hash `json:"previous_block"`
	IsBlockValid   bool        `json:"is_block_valid"`
	InvalidReason  *string     `json:"invalid_reason"`
	Timestamp      string      `json:"timestamp"`
}

// Vote is a signed election ballot, per §3: "{node_pubkey, signature, vote}."
type Vote struct {
	NodePubkey crypto.PublicKey `json:"node_pubkey"`
	Signature  crypto.Signature `json:"signature"`
	Vote       VoteBody         `json:"vote"`
}

// VerifySignature reports whether v.Signature is a valid signature over
// canonical(v.Vote) under v.NodePubkey, per §6.4.
func (v Vote) VerifySignature() bool {
	return crypto.Verify(v.NodePubkey, v.Vote, v.Signature)
}

// SignVote signs body under priv and wraps the result as a Vote from pub.
func SignVote(pub crypto.PublicKey, priv crypto.PrivateKey, body VoteBody) (Vote, error) {
	sig, err := crypto.Sign(priv, body)
	if err != nil {
		return Vote{}, fmt.Errorf("model: sign vote: %w", err)
	}
	return Vote{NodePubkey: pub, Signature: sig, Vote: body}, nil
}
