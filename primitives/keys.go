package primitives

import (
	"crypto/ed25519"
	"errors"
)

// PublicKeySize and SignatureSize follow Ed25519 (SHA-512 based, spec §4.A).
const (
	PublicKeySize  = ed25519.PublicKeySize
	PrivateKeySize = ed25519.PrivateKeySize
	SignatureSize  = ed25519.SignatureSize
)

// PublicKey is an Ed25519 verifying key.
type PublicKey [PublicKeySize]byte

// PrivateKey is an Ed25519 signing key (seed || public key, as the stdlib
// represents it).
type PrivateKey [PrivateKeySize]byte

// Signature is an Ed25519 signature over a transaction's canonical content.
type Signature [SignatureSize]byte

var ErrInvalidSignature = errors.New("primitives: invalid signature")

// GenerateKeyPair produces a fresh Ed25519 key pair.
func GenerateKeyPair() (PublicKey, PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return PublicKey{}, PrivateKey{}, err
	}
	var pk PublicKey
	var sk PrivateKey
	copy(pk[:], pub)
	copy(sk[:], priv)
	return pk, sk, nil
}

// Sign signs content (the canonical serialize_content of the object being
// authenticated) with the given private key.
func Sign(sk PrivateKey, content []byte) Signature {
	sig := ed25519.Sign(ed25519.PrivateKey(sk[:]), content)
	var out Signature
	copy(out[:], sig)
	return out
}

// Verify reports whether sig is a valid Ed25519 signature by pub over
// content.
func Verify(pub PublicKey, content []byte, sig Signature) bool {
	return ed25519.Verify(ed25519.PublicKey(pub[:]), content, sig[:])
}

func (k PublicKey) Bytes() []byte { return k[:] }
func (s Signature) Bytes() []byte { return s[:] }
