// Copyright 2018 The klaytn Authors
// This file is part of the klaytn library.
//
// The klaytn library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The klaytn library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the klaytn library. If not, see <http://www.gnu.org/licenses/>.

package primitives

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// HashSize is the digest size of this protocol's content hash, Blake2b-256.
const HashSize = 32

// Hash is a Blake2b-256 digest.
type Hash [HashSize]byte

// HashContent hashes an already-canonicalized byte slice.
func HashContent(b []byte) Hash {
	return Hash(blake2b.Sum256(b))
}

// NewHasher returns a running Blake2b-256 hash.Hash, for streaming content
// that is assembled incrementally (e.g. a block body's transaction list).
func NewHasher() interface {
	Write(p []byte) (int, error)
	Sum(b []byte) []byte
} {
	h, err := blake2b.New256(nil)
	if err != nil {
		// blake2b.New256 only fails for a bad key, and we never pass one.
		panic(err)
	}
	return h
}

func (h Hash) Bytes() []byte { return h[:] }

func (h Hash) IsZero() bool {
	return h == Hash{}
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashSize {
		return h, fmt.Errorf("primitives: invalid hash length %d, want %d", len(b), HashSize)
	}
	copy(h[:], b)
	return h, nil
}

func HashFromHex(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, err
	}
	return HashFromBytes(b)
}
