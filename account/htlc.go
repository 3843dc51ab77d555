package account

import (
	"crypto/sha256"
	"crypto/sha512"

	"github.com/chaincore/core/chain"
	"github.com/chaincore/core/primitives"
	"github.com/chaincore/core/primitives/serial"
)

// HashAlgo selects the hash function used to compute an HTLC's hashlock
// chain. Stateless validity of the choice is part of verify_incoming /
// verify_outgoing (spec §4.B).
type HashAlgo uint8

const (
	HashAlgoBlake2b HashAlgo = iota
	HashAlgoSHA256
	HashAlgoSHA512
)

func (a HashAlgo) valid() bool {
	return a == HashAlgoBlake2b || a == HashAlgoSHA256 || a == HashAlgoSHA512
}

func (a HashAlgo) hashOnce(b []byte) []byte {
	switch a {
	case HashAlgoSHA256:
		sum := sha256.Sum256(b)
		return sum[:]
	case HashAlgoSHA512:
		sum := sha512.Sum512(b)
		return sum[:]
	default:
		h := primitives.HashContent(b)
		return h[:]
	}
}

func (a HashAlgo) hashTimes(b []byte, n uint32) []byte {
	out := b
	for i := uint32(0); i < n; i++ {
		out = a.hashOnce(out)
	}
	return out
}

// HTLC is a hashed-timelock contract account, spendable by preimage
// disclosure, mutual early resolution, or sender timeout (spec §3/§4.B).
type HTLC struct {
	balance     primitives.Coin
	sender      primitives.Address
	recipient   primitives.Address
	hashAlgo    HashAlgo
	hashRoot    []byte
	hashCount   uint32
	timeout     uint64
	totalAmount primitives.Coin
}

func (h *HTLC) Kind() chain.AccountType  { return chain.AccountTypeHTLC }
func (h *HTLC) Balance() primitives.Coin { return h.balance }

func (h *HTLC) Encode() []byte {
	w := serial.NewWriter()
	w.WriteDiscriminant(tagHTLC)
	w.WriteUint64(uint64(h.balance))
	w.WriteFixed(h.sender[:])
	w.WriteFixed(h.recipient[:])
	w.WriteUint8(uint8(h.hashAlgo))
	_ = w.WriteVarBytes(h.hashRoot)
	w.WriteUint32(h.hashCount)
	w.WriteUint64(h.timeout)
	w.WriteUint64(uint64(h.totalAmount))
	return w.Bytes()
}

func decodeHTLCFields(r *serial.Reader) (*HTLC, error) {
	bal, err := r.ReadUint64()
	if err != nil {
		return nil, ErrInvalidSerialization
	}
	senderBytes, err := r.ReadFixed(primitives.AddressSize)
	if err != nil {
		return nil, ErrInvalidSerialization
	}
	recipientBytes, err := r.ReadFixed(primitives.AddressSize)
	if err != nil {
		return nil, ErrInvalidSerialization
	}
	algo, err := r.ReadUint8()
	if err != nil {
		return nil, ErrInvalidSerialization
	}
	hashRoot, err := r.ReadVarBytes()
	if err != nil {
		return nil, ErrInvalidSerialization
	}
	hashCount, err := r.ReadUint32()
	if err != nil {
		return nil, ErrInvalidSerialization
	}
	timeout, err := r.ReadUint64()
	if err != nil {
		return nil, ErrInvalidSerialization
	}
	totalAmount, err := r.ReadUint64()
	if err != nil {
		return nil, ErrInvalidSerialization
	}
	if !HashAlgo(algo).valid() {
		return nil, ErrInvalidSerialization
	}
	var sender, recipient primitives.Address
	copy(sender[:], senderBytes)
	copy(recipient[:], recipientBytes)
	return &HTLC{
		balance:     primitives.Coin(bal),
		sender:      sender,
		recipient:   recipient,
		hashAlgo:    HashAlgo(algo),
		hashRoot:    hashRoot,
		hashCount:   hashCount,
		timeout:     timeout,
		totalAmount: primitives.Coin(totalAmount),
	}, nil
}

func decodeHTLC(r *serial.Reader) (Account, error) { return decodeHTLCFields(r) }

func newHTLCFromData(tx *chain.Transaction, height uint64) (Account, error) {
	r := serial.NewReader(tx.Data)
	senderBytes, err := r.ReadFixed(primitives.AddressSize)
	if err != nil {
		return nil, ErrInvalidTransaction
	}
	recipientBytes, err := r.ReadFixed(primitives.AddressSize)
	if err != nil {
		return nil, ErrInvalidTransaction
	}
	algo, err := r.ReadUint8()
	if err != nil || !HashAlgo(algo).valid() {
		return nil, ErrInvalidTransaction
	}
	hashRoot, err := r.ReadVarBytes()
	if err != nil {
		return nil, ErrInvalidTransaction
	}
	hashCount, err := r.ReadUint32()
	if err != nil || hashCount == 0 {
		return nil, ErrInvalidTransaction
	}
	timeout, err := r.ReadUint64()
	if err != nil {
		return nil, ErrInvalidTransaction
	}
	var sender, recipient primitives.Address
	copy(sender[:], senderBytes)
	copy(recipient[:], recipientBytes)
	return &HTLC{
		balance:     tx.Value,
		sender:      sender,
		recipient:   recipient,
		hashAlgo:    HashAlgo(algo),
		hashRoot:    hashRoot,
		hashCount:   hashCount,
		timeout:     timeout,
		totalAmount: tx.Value,
	}, nil
}

// HTLC proof variant discriminants.
const (
	htlcProofRegularTransfer uint8 = 0
	htlcProofEarlyResolve    uint8 = 1
	htlcProofTimeoutResolve  uint8 = 2
)

func (h *HTLC) verifyIncoming(tx *chain.Transaction) error { return nil }

func (h *HTLC) verifyOutgoing(tx *chain.Transaction) error {
	r := serial.NewReader(tx.Proof)
	tag, err := r.ReadDiscriminant()
	if err != nil {
		return ErrInvalidSignature
	}
	switch tag {
	case htlcProofRegularTransfer, htlcProofEarlyResolve, htlcProofTimeoutResolve:
		return nil
	default:
		return ErrInvalidSignature
	}
}

func readSig(r *serial.Reader) (primitives.PublicKey, primitives.Signature, error) {
	var pub primitives.PublicKey
	var sig primitives.Signature
	pubBytes, err := r.ReadFixed(primitives.PublicKeySize)
	if err != nil {
		return pub, sig, err
	}
	sigBytes, err := r.ReadFixed(primitives.SignatureSize)
	if err != nil {
		return pub, sig, err
	}
	copy(pub[:], pubBytes)
	copy(sig[:], sigBytes)
	return pub, sig, nil
}

// ceilMulDiv computes ceil(a*b/c) without overflowing for the coin ranges this
// protocol uses.
func ceilMulDiv(a, b uint64, c uint64) uint64 {
	if c == 0 {
		return 0
	}
	prod := a * b
	return (prod + c - 1) / c
}

func (h *HTLC) withIncoming(tx *chain.Transaction, height uint64) (Account, error) {
	bal, err := h.balance.Add(tx.Value)
	if err != nil {
		return nil, ErrInsufficientFunds
	}
	out := *h
	out.balance = bal
	return &out, nil
}

func (h *HTLC) withOutgoing(tx *chain.Transaction, height uint64) (Account, error) {
	content := tx.SerializeContent()
	r := serial.NewReader(tx.Proof)
	tag, err := r.ReadDiscriminant()
	if err != nil {
		return nil, ErrInvalidSignature
	}

	total, err := tx.Value.Add(tx.Fee)
	if err != nil {
		return nil, ErrInsufficientFunds
	}

	switch tag {
	case htlcProofRegularTransfer:
		preimage, err := r.ReadVarBytes()
		if err != nil {
			return nil, ErrInvalidSignature
		}
		depth, err := r.ReadUint32()
		if err != nil || depth > h.hashCount {
			return nil, ErrInvalidSignature
		}
		pub, sig, err := readSig(r)
		if err != nil {
			return nil, ErrInvalidSignature
		}
		if primitives.AddressFromPublicKey(pub) != h.recipient {
			return nil, ErrInvalidForRecipient
		}
		if !primitives.Verify(pub, content, sig) {
			return nil, ErrInvalidSignature
		}
		derived := h.hashAlgo.hashTimes(preimage, h.hashCount-depth)
		if !bytesEqual(derived, h.hashRoot) {
			return nil, ErrInvalidSignature
		}
		cap := ceilMulDiv(uint64(depth), uint64(h.totalAmount), uint64(h.hashCount))
		if uint64(total) > cap {
			return nil, ErrInvalidForRecipient
		}

	case htlcProofEarlyResolve:
		pubSender, sigSender, err := readSig(r)
		if err != nil {
			return nil, ErrInvalidSignature
		}
		pubRecipient, sigRecipient, err := readSig(r)
		if err != nil {
			return nil, ErrInvalidSignature
		}
		if primitives.AddressFromPublicKey(pubSender) != h.sender {
			return nil, ErrInvalidForSender
		}
		if primitives.AddressFromPublicKey(pubRecipient) != h.recipient {
			return nil, ErrInvalidForRecipient
		}
		if !primitives.Verify(pubSender, content, sigSender) || !primitives.Verify(pubRecipient, content, sigRecipient) {
			return nil, ErrInvalidSignature
		}

	case htlcProofTimeoutResolve:
		pubSender, sigSender, err := readSig(r)
		if err != nil {
			return nil, ErrInvalidSignature
		}
		if primitives.AddressFromPublicKey(pubSender) != h.sender {
			return nil, ErrInvalidForSender
		}
		if !primitives.Verify(pubSender, content, sigSender) {
			return nil, ErrInvalidSignature
		}
		if height < h.timeout {
			return nil, ErrInvalidForSender
		}

	default:
		return nil, ErrInvalidSignature
	}

	bal, err := h.balance.Sub(total)
	if err != nil {
		return nil, ErrInsufficientFunds
	}
	out := *h
	out.balance = bal
	return &out, nil
}

func (h *HTLC) withoutIncoming(tx *chain.Transaction, height uint64) (Account, error) {
	bal, err := h.balance.Sub(tx.Value)
	if err != nil {
		return nil, ErrInsufficientFunds
	}
	out := *h
	out.balance = bal
	return &out, nil
}

func (h *HTLC) withoutOutgoing(tx *chain.Transaction, height uint64) (Account, error) {
	total, err := tx.Value.Add(tx.Fee)
	if err != nil {
		return nil, ErrInsufficientFunds
	}
	bal, err := h.balance.Add(total)
	if err != nil {
		return nil, ErrInsufficientFunds
	}
	out := *h
	out.balance = bal
	return &out, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
