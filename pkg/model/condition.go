package model

import "github.com/chainledger/core/pkg/crypto"

// Condition-detail types recognized by the default consensus plugin's
// ownership predicate (§3: "the capability expressed by condition.details
// to recursively contain the owner").
const (
	DetailsTypeEd25519   = "ed25519-sha-256"
	DetailsTypeThreshold = "threshold-sha-256"
)

// ConditionDetails is the recursive ownership capability attached to a
// Condition. A leaf ("ed25519-sha-256") names a single public key; an
// internal node ("threshold-sha-256") names a threshold over
// subconditions. This mirrors the crypto-condition shape BigchainDB-style
// ledgers use without adopting the full crypto-conditions spec, which is
// out of scope here.
type ConditionDetails struct {
	Type          string             `json:"type"`
	PublicKey     crypto.PublicKey   `json:"public_key,omitempty"`
	Threshold     int                `json:"threshold,omitempty"`
	Subconditions []ConditionDetails `json:"subconditions,omitempty"`
}

// Contains reports whether owner is recursively present in the capability
// tree rooted at d: directly, as the leaf public key, or nested inside a
// threshold node's subconditions. Per §9's Open Question, this check is
// applied uniformly regardless of whether d happens to be a leaf or an
// internal node — there is no special-cased "single owner" branch that
// skips the recursive case, which is the bug the original source had.
func (d ConditionDetails) Contains(owner crypto.PublicKey) bool {
	if d.Type == DetailsTypeEd25519 {
		return d.PublicKey == owner
	}
	for _, sub := range d.Subconditions {
		if sub.Contains(owner) {
			return true
		}
	}
	return false
}

// ConditionBody wraps the capability details, matching the §3 shape
// `condition: {details: …}`.
type ConditionBody struct {
	Details ConditionDetails `json:"details"`
}

// Condition is an output-side ownership predicate, per §3: "A record
// {cid, new_owners, condition}. cid is a position index unique within the
// transaction."
type Condition struct {
	CID       uint              `json:"cid"`
	NewOwners []crypto.PublicKey `json:"new_owners"`
	Condition ConditionBody     `json:"condition"`
}

// OwnedBy reports whether owner satisfies this condition's ownership: the
// single-signature case (the sole new_owners entry matches) or the
// multi-signature case (the recursive capability in condition.details
// contains owner). §3: "Ownership of the output requires either the sole
// new_owners entry to match (single-signature case) or the capability
// expressed by condition.details to recursively contain the owner
// (multi-signature case)."
func (c Condition) OwnedBy(owner crypto.PublicKey) bool {
	if len(c.NewOwners) == 1 && c.NewOwners[0] == owner {
		return true
	}
	return c.Condition.Details.Contains(owner)
}

// SingleOwner reports whether c has exactly one new owner, and returns it.
func (c Condition) SingleOwner() (crypto.PublicKey, bool) {
	if len(c.NewOwners) == 1 {
		return c.NewOwners[0], true
	}
	return "", false
}

// NewCondition builds a single-owner condition with a matching ed25519 leaf
// capability, the shape produced by the default consensus plugin for
// single-recipient outputs.
func NewCondition(cid uint, owner crypto.PublicKey) Condition {
	return Condition{
		CID:       cid,
		NewOwners: []crypto.PublicKey{owner},
		Condition: ConditionBody{
			Details: ConditionDetails{
				Type:      DetailsTypeEd25519,
				PublicKey: owner,
			},
		},
	}
}
