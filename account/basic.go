package account

import (
	"github.com/chaincore/core/chain"
	"github.com/chaincore/core/primitives"
	"github.com/chaincore/core/primitives/serial"
)

// Basic is the default account kind: a plain balance, spendable by a
// signature over the transaction's canonical content by a key hashing to
// the sender address (spec §4.B).
type Basic struct {
	balance primitives.Coin
}

func (b *Basic) Kind() chain.AccountType  { return chain.AccountTypeBasic }
func (b *Basic) Balance() primitives.Coin { return b.balance }

// Encode writes the canonical serialized form: discriminant byte + balance.
func (b *Basic) Encode() []byte {
	w := serial.NewWriter()
	w.WriteDiscriminant(tagBasic)
	w.WriteUint64(uint64(b.balance))
	return w.Bytes()
}

func decodeBasic(r *serial.Reader) (Account, error) {
	bal, err := r.ReadUint64()
	if err != nil {
		return nil, ErrInvalidSerialization
	}
	return &Basic{balance: primitives.Coin(bal)}, nil
}

// basicProof is the wire shape of a Basic account's spending proof: the
// signing public key, followed by the Ed25519 signature over the
// transaction's serialized content.
type basicProof struct {
	PublicKey primitives.PublicKey
	Signature primitives.Signature
}

func parseBasicProof(proof []byte) (*basicProof, error) {
	r := serial.NewReader(proof)
	pub, err := r.ReadFixed(primitives.PublicKeySize)
	if err != nil {
		return nil, ErrInvalidSignature
	}
	sig, err := r.ReadFixed(primitives.SignatureSize)
	if err != nil {
		return nil, ErrInvalidSignature
	}
	var p basicProof
	copy(p.PublicKey[:], pub)
	copy(p.Signature[:], sig)
	return &p, nil
}

func (b *Basic) verifyIncoming(tx *chain.Transaction) error { return nil }

func (b *Basic) verifyOutgoing(tx *chain.Transaction) error {
	proof, err := parseBasicProof(tx.Proof)
	if err != nil {
		return err
	}
	if primitives.AddressFromPublicKey(proof.PublicKey) != tx.Sender {
		return ErrInvalidForSender
	}
	if !primitives.Verify(proof.PublicKey, tx.SerializeContent(), proof.Signature) {
		return ErrInvalidSignature
	}
	return nil
}

func (b *Basic) withIncoming(tx *chain.Transaction, height uint64) (Account, error) {
	bal, err := b.balance.Add(tx.Value)
	if err != nil {
		return nil, ErrInsufficientFunds
	}
	return &Basic{balance: bal}, nil
}

func (b *Basic) withOutgoing(tx *chain.Transaction, height uint64) (Account, error) {
	if err := b.verifyOutgoing(tx); err != nil {
		return nil, err
	}
	total, err := tx.Value.Add(tx.Fee)
	if err != nil {
		return nil, ErrInsufficientFunds
	}
	bal, err := b.balance.Sub(total)
	if err != nil {
		return nil, ErrInsufficientFunds
	}
	return &Basic{balance: bal}, nil
}

func (b *Basic) withoutIncoming(tx *chain.Transaction, height uint64) (Account, error) {
	bal, err := b.balance.Sub(tx.Value)
	if err != nil {
		return nil, ErrInsufficientFunds
	}
	return &Basic{balance: bal}, nil
}

func (b *Basic) withoutOutgoing(tx *chain.Transaction, height uint64) (Account, error) {
	total, err := tx.Value.Add(tx.Fee)
	if err != nil {
		return nil, ErrInsufficientFunds
	}
	bal, err := b.balance.Add(total)
	if err != nil {
		return nil, ErrInsufficientFunds
	}
	return &Basic{balance: bal}, nil
}
