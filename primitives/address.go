package primitives

import (
	"encoding/hex"
	"fmt"
)

// AddressSize is the width of an account address: the leading bytes of the
// Blake2b-256 hash of the owning Ed25519 public key (spec §3).
const AddressSize = 20

// Address identifies an account.
type Address [AddressSize]byte

// AddressFromPublicKey derives the address owned by a public key: the
// AddressSize-byte prefix of Blake2b-256(pubkey).
func AddressFromPublicKey(pub PublicKey) Address {
	digest := HashContent(pub[:])
	var a Address
	copy(a[:], digest[:AddressSize])
	return a
}

func (a Address) Bytes() []byte { return a[:] }

func (a Address) IsZero() bool { return a == Address{} }

func (a Address) String() string { return hex.EncodeToString(a[:]) }

func AddressFromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != AddressSize {
		return a, fmt.Errorf("primitives: invalid address length %d, want %d", len(b), AddressSize)
	}
	copy(a[:], b)
	return a, nil
}
