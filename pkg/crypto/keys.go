package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"

	"github.com/mr-tron/base58"
)

// PublicKey is an Ed25519 public key transported as base-58 text, per
// §6.4: "Keys are base-58 encoded."
type PublicKey string

// PrivateKey is an Ed25519 private key transported as base-58 text.
type PrivateKey string

// GenerateKeypair produces a new Ed25519 keypair encoded as base-58.
func GenerateKeypair() (PublicKey, PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("crypto: generate keypair: %w", err)
	}
	return PublicKey(base58.Encode(pub)), PrivateKey(base58.Encode(priv)), nil
}

// Bytes decodes the base-58 text into the raw Ed25519 public key bytes.
func (p PublicKey) Bytes() (ed25519.PublicKey, error) {
	raw, err := base58.Decode(string(p))
	if err != nil {
		return nil, fmt.Errorf("crypto: decode public key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("crypto: invalid public key size: got %d, want %d", len(raw), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(raw), nil
}

// Bytes decodes the base-58 text into the raw Ed25519 private key bytes.
func (p PrivateKey) Bytes() (ed25519.PrivateKey, error) {
	raw, err := base58.Decode(string(p))
	if err != nil {
		return nil, fmt.Errorf("crypto: decode private key: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("crypto: invalid private key size: got %d, want %d", len(raw), ed25519.PrivateKeySize)
	}
	return ed25519.PrivateKey(raw), nil
}

// Public derives the base-58 public key matching this private key.
func (p PrivateKey) Public() (PublicKey, error) {
	priv, err := p.Bytes()
	if err != nil {
		return "", err
	}
	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return "", fmt.Errorf("crypto: unexpected public key type")
	}
	return PublicKey(base58.Encode(pub)), nil
}

// Signature is an Ed25519 signature transported as base-58 text.
type Signature string

// Sign signs the canonical form of payload with priv and returns the
// base-58 encoded signature. §4.1: "Sign/verify operate on canonical
// bytes."
func Sign(priv PrivateKey, payload interface{}) (Signature, error) {
	key, err := priv.Bytes()
	if err != nil {
		return "", err
	}
	canonical, err := Canonical(payload)
	if err != nil {
		return "", fmt.Errorf("crypto: sign: %w", err)
	}
	sig := ed25519.Sign(key, canonical)
	return Signature(base58.Encode(sig)), nil
}

// Verify reports whether sig is a valid signature over the canonical form
// of payload under pub. A malformed key, a malformed signature, and a
// mismatch all report false; callers that need to distinguish "invalid
// signature" from "malformed input" should decode pub/sig themselves first.
func Verify(pub PublicKey, payload interface{}, sig Signature) bool {
	key, err := pub.Bytes()
	if err != nil {
		return false
	}
	rawSig, err := base58.Decode(string(sig))
	if err != nil {
		return false
	}
	canonical, err := Canonical(payload)
	if err != nil {
		return false
	}
	return ed25519.Verify(key, canonical, rawSig)
}

// MarshalJSON renders the public key as its base-58 string, matching the
// wire format documented in §6.2/§6.4.
func (p PublicKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(p))
}

// UnmarshalJSON reads the public key from its base-58 string form.
func (p *PublicKey) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*p = PublicKey(s)
	return nil
}
