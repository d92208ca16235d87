package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
)

// Domain prefixes for content hashes. The version suffix leaves room for a
// future encoding change without silently comparing incompatible digests.
const (
	DomainStore = "cnyre/store/v1"
	DomainRow   = "cnyre/row/v1"
)

// Hasher accumulates canonical rows into a single SHA-256 digest.
//
// Format: SHA256(domain || 0x00 || section || 0x00 || row || 0x0A ...)
// The null separators keep domain, section and row boundaries unambiguous.
type Hasher struct {
	h hash.Hash
}

// NewHasher starts a digest under the given domain.
func NewHasher(domain string) *Hasher {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	return &Hasher{h: h}
}

// Section marks the start of a named group of rows (one table).
func (x *Hasher) Section(name string) {
	x.h.Write([]byte(name))
	x.h.Write([]byte{0x00})
}

// Row adds one canonical row to the digest.
func (x *Hasher) Row(row map[string]any) error {
	data, err := Marshal(row)
	if err != nil {
		return fmt.Errorf("hash row: %w", err)
	}
	x.h.Write(data)
	x.h.Write([]byte{'\n'})
	return nil
}

// Sum returns the hex digest.
func (x *Hasher) Sum() string {
	return hex.EncodeToString(x.h.Sum(nil))
}

// RowHash hashes a single row on its own. Used to key rejected records that
// have no usable natural identity.
func RowHash(row map[string]any) (string, error) {
	x := NewHasher(DomainRow)
	if err := x.Row(row); err != nil {
		return "", err
	}
	return x.Sum(), nil
}
