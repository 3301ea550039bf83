package crypto

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// Hash is the content hash of a canonical JSON document: a lowercase hex
// encoding of SHA3-256(canonical(x)).
type Hash string

// HashOf computes hash(x) = sha3_256(canonical(x)) as specified in §4.1.
func HashOf(v interface{}) (Hash, error) {
	canonical, err := Canonical(v)
	if err != nil {
		return "", fmt.Errorf("hash: %w", err)
	}
	sum := sha3.Sum256(canonical)
	return Hash(hex.EncodeToString(sum[:])), nil
}

// MustHashOf is HashOf but panics on failure; useful for values whose
// canonicalization is known to succeed (no unsupported field types).
func MustHashOf(v interface{}) Hash {
	h, err := HashOf(v)
	if err != nil {
		panic(err)
	}
	return h
}

// String implements fmt.Stringer.
func (h Hash) String() string {
	return string(h)
}
