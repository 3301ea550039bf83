// Package crypto implements the cryptographic primitives the ledger core is
// built on: deterministic canonical serialization, content hashing, and
// Ed25519 signing over base-58 encoded keys.
package crypto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Canonical returns the canonical byte encoding of v: object keys sorted
// lexicographically at every level, compact separators, UTF-8, no
// insignificant whitespace. Two values that are semantically equal encode
// to identical bytes regardless of map iteration order or struct field
// order in the source.
func Canonical(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical: marshal: %w", err)
	}

	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var generic interface{}
	if err := decoder.Decode(&generic); err != nil {
		return nil, fmt.Errorf("canonical: decode: %w", err)
	}

	var buf bytes.Buffer
	if err := writeCanonical(&buf, generic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeCanonical recursively emits v in canonical form. Only the shapes
// produced by encoding/json's UseNumber decoding are handled: nil, bool,
// json.Number, string, []interface{}, map[string]interface{}.
func writeCanonical(buf *bytes.Buffer, v interface{}) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		buf.WriteString(val.String())
	case string:
		encoded, err := json.Marshal(val)
		if err != nil {
			return fmt.Errorf("canonical: string: %w", err)
		}
		buf.Write(encoded)
	case []interface{}:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			keyEncoded, err := json.Marshal(k)
			if err != nil {
				return fmt.Errorf("canonical: key: %w", err)
			}
			buf.Write(keyEncoded)
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("canonical: unsupported type %T", v)
	}
	return nil
}

// Equal reports whether x and y have identical canonical forms.
func Equal(x, y interface{}) bool {
	cx, err := Canonical(x)
	if err != nil {
		return false
	}
	cy, err := Canonical(y)
	if err != nil {
		return false
	}
	return bytes.Equal(cx, cy)
}
