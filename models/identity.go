package models

import (
	"database/sql/driver"
	"encoding/hex"
	"fmt"
)

// IdentitySize is the byte length of a ledger address.
const IdentitySize = 32

// Identity is a 32-byte ledger address: a wallet, token mint, token account,
// or program. Encoded as lowercase hex in JSON and API paths.
type Identity [IdentitySize]byte

// ParseIdentity parses a 64-character hex string into an Identity.
func ParseIdentity(s string) (Identity, error) {
	var id Identity
	if len(s) != IdentitySize*2 {
		return id, fmt.Errorf("invalid identity length: got %d characters, want %d", len(s), IdentitySize*2)
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("invalid identity encoding: %w", err)
	}
	copy(id[:], raw)
	return id, nil
}

// String returns the hex encoding of the identity.
func (id Identity) String() string {
	return hex.EncodeToString(id[:])
}

// IsZero reports whether the identity is the all-zero address.
func (id Identity) IsZero() bool {
	return id == Identity{}
}

// MarshalText implements encoding.TextMarshaler (used by encoding/json).
func (id Identity) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *Identity) UnmarshalText(text []byte) error {
	parsed, err := ParseIdentity(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Value implements driver.Valuer so identities can be stored as BYTEA.
func (id Identity) Value() (driver.Value, error) {
	return id[:], nil
}

// Scan implements sql.Scanner.
func (id *Identity) Scan(src interface{}) error {
	raw, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into Identity", src)
	}
	if len(raw) != IdentitySize {
		return fmt.Errorf("invalid identity length: got %d bytes, want %d", len(raw), IdentitySize)
	}
	copy(id[:], raw)
	return nil
}
