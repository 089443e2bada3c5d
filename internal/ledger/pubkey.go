package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/mr-tron/base58"
)

// PublicKeySize is the length of an address in bytes.
const PublicKeySize = 32

// PublicKey is a 32-byte ledger address.
type PublicKey [PublicKeySize]byte

// Well-known program addresses.
var (
	SystemProgramID     = MustPublicKey("11111111111111111111111111111111")
	UpgradeableLoaderID = MustPublicKey("BPFLoaderUpgradeab1e11111111111111111111111")
	ComputeBudgetID     = MustPublicKey("ComputeBudget111111111111111111111111111111")
)

// ParsePublicKey decodes a base58 address.
func ParsePublicKey(s string) (PublicKey, error) {
	var pk PublicKey
	raw, err := base58.Decode(s)
	if err != nil {
		return pk, fmt.Errorf("invalid address %q: %w", s, err)
	}
	if len(raw) != PublicKeySize {
		return pk, fmt.Errorf("invalid address %q: decoded to %d bytes", s, len(raw))
	}
	copy(pk[:], raw)
	return pk, nil
}

// MustPublicKey is ParsePublicKey for constants.
func MustPublicKey(s string) PublicKey {
	pk, err := ParsePublicKey(s)
	if err != nil {
		panic(err)
	}
	return pk
}

// PublicKeyFromBytes copies b into a PublicKey.
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	var pk PublicKey
	if len(b) != PublicKeySize {
		return pk, fmt.Errorf("address must be %d bytes, got %d", PublicKeySize, len(b))
	}
	copy(pk[:], b)
	return pk, nil
}

func (p PublicKey) String() string { return base58.Encode(p[:]) }

// Bytes returns a copy of the key bytes.
func (p PublicKey) Bytes() []byte { return bytes.Clone(p[:]) }

// IsZero reports whether every byte is zero.
func (p PublicKey) IsZero() bool { return p == PublicKey{} }

// MarshalText implements encoding.TextMarshaler.
func (p PublicKey) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *PublicKey) UnmarshalText(text []byte) error {
	pk, err := ParsePublicKey(string(text))
	if err != nil {
		return err
	}
	*p = pk
	return nil
}

// Hash is a 32-byte digest such as a blockhash.
type Hash [32]byte

// ParseHash decodes a base58 hash.
func ParseHash(s string) (Hash, error) {
	pk, err := ParsePublicKey(s)
	if err != nil {
		return Hash{}, fmt.Errorf("invalid hash: %w", err)
	}
	return Hash(pk), nil
}

func (h Hash) String() string { return base58.Encode(h[:]) }

// MarshalJSON encodes the hash as a base58 string.
func (h Hash) MarshalJSON() ([]byte, error) { return json.Marshal(h.String()) }

// Signature is an ed25519 signature.
type Signature [64]byte

func (s Signature) String() string { return base58.Encode(s[:]) }

// IsZero reports whether the signature is unset.
func (s Signature) IsZero() bool { return s == Signature{} }
