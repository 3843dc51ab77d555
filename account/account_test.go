package account

import (
	"testing"

	"github.com/chaincore/core/chain"
	"github.com/chaincore/core/primitives"
	"github.com/stretchr/testify/require"
)

func signedTx(t *testing.T, pub primitives.PublicKey, sk primitives.PrivateKey, recipient primitives.Address, value, fee primitives.Coin) *chain.Transaction {
	t.Helper()
	tx := &chain.Transaction{
		Sender:        primitives.AddressFromPublicKey(pub),
		SenderType:    chain.AccountTypeBasic,
		Recipient:     recipient,
		RecipientType: chain.AccountTypeBasic,
		Value:         value,
		Fee:           fee,
	}
	sig := primitives.Sign(sk, tx.SerializeContent())
	w := proofWriter(pub, sig)
	tx.Proof = w
	return tx
}

func proofWriter(pub primitives.PublicKey, sig primitives.Signature) []byte {
	out := make([]byte, 0, primitives.PublicKeySize+primitives.SignatureSize)
	out = append(out, pub[:]...)
	out = append(out, sig[:]...)
	return out
}

func TestBasicCreditDebit(t *testing.T) {
	pub, sk, err := primitives.GenerateKeyPair()
	require.NoError(t, err)

	acc := NewBasic(100)
	tx := signedTx(t, pub, sk, primitives.Address{1}, 40, 5)

	next, err := WithOutgoing(acc, tx, 1)
	require.NoError(t, err)
	require.EqualValues(t, 55, next.Balance())

	back, err := WithoutOutgoing(next, tx, 1)
	require.NoError(t, err)
	require.EqualValues(t, 100, back.Balance())
}

func TestBasicInsufficientFunds(t *testing.T) {
	pub, sk, err := primitives.GenerateKeyPair()
	require.NoError(t, err)

	acc := NewBasic(10)
	tx := signedTx(t, pub, sk, primitives.Address{1}, 40, 5)

	_, err = WithOutgoing(acc, tx, 1)
	require.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestVestingMinCap(t *testing.T) {
	v := &Vesting{
		balance:     1000,
		start:       0,
		stepBlocks:  10,
		stepAmount:  100,
		totalAmount: 1000,
	}
	require.EqualValues(t, 1000, v.MinCap(0))
	require.EqualValues(t, 900, v.MinCap(10))
	require.EqualValues(t, 500, v.MinCap(50))
	require.EqualValues(t, 0, v.MinCap(1000))
}

func TestHTLCRegularTransfer(t *testing.T) {
	pubRecipient, skRecipient, err := primitives.GenerateKeyPair()
	require.NoError(t, err)

	preimage := []byte("secret")
	hashCount := uint32(3)
	depth := hashCount // full depth unlocks the whole total amount
	root := HashAlgoBlake2b.hashTimes(preimage, hashCount-depth)

	h := &HTLC{
		balance:     100,
		sender:      primitives.Address{9},
		recipient:   primitives.AddressFromPublicKey(pubRecipient),
		hashAlgo:    HashAlgoBlake2b,
		hashRoot:    root,
		hashCount:   hashCount,
		totalAmount: 100,
	}

	tx := &chain.Transaction{
		Sender:        h.sender,
		SenderType:    chain.AccountTypeHTLC,
		Recipient:     h.recipient,
		RecipientType: chain.AccountTypeBasic,
		Value:         100,
		Fee:           0,
	}
	sig := primitives.Sign(skRecipient, tx.SerializeContent())

	w := proofWriter2(htlcProofRegularTransfer, preimage, depth, pubRecipient, sig)
	tx.Proof = w

	next, err := WithOutgoing(h, tx, 1)
	require.NoError(t, err)
	require.EqualValues(t, 0, next.Balance())
}

func proofWriter2(tag uint8, preimage []byte, depth uint32, pub primitives.PublicKey, sig primitives.Signature) []byte {
	out := []byte{tag}
	l := len(preimage)
	out = append(out, byte(l>>8), byte(l))
	out = append(out, preimage...)
	out = append(out, byte(depth>>24), byte(depth>>16), byte(depth>>8), byte(depth))
	out = append(out, pub[:]...)
	out = append(out, sig[:]...)
	return out
}
