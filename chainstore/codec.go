package chainstore

import (
	"math"

	"github.com/chaincore/core/chain"
	"github.com/chaincore/core/primitives"
	"github.com/chaincore/core/primitives/serial"
)

// encodeHeader/decodeHeader store a header's full field set (not just its
// serializeContent form, which is only what gets hashed).
func encodeHeader(w *serial.Writer, h *chain.Header) {
	w.WriteUint16(h.Version)
	w.WriteFixed(h.PrevHash[:])
	w.WriteFixed(h.InterlinkHash[:])
	w.WriteFixed(h.BodyHash[:])
	w.WriteFixed(h.AccountsHash[:])
	w.WriteUint32(h.NBits)
	w.WriteUint64(h.Height)
	w.WriteUint64(h.Timestamp)
	w.WriteUint64(h.Nonce)
}

func decodeHeader(r *serial.Reader) (*chain.Header, error) {
	h := &chain.Header{}
	var err error
	if h.Version, err = r.ReadUint16(); err != nil {
		return nil, err
	}
	if h.PrevHash, err = readHash(r); err != nil {
		return nil, err
	}
	if h.InterlinkHash, err = readHash(r); err != nil {
		return nil, err
	}
	if h.BodyHash, err = readHash(r); err != nil {
		return nil, err
	}
	if h.AccountsHash, err = readHash(r); err != nil {
		return nil, err
	}
	if h.NBits, err = r.ReadUint32(); err != nil {
		return nil, err
	}
	if h.Height, err = r.ReadUint64(); err != nil {
		return nil, err
	}
	if h.Timestamp, err = r.ReadUint64(); err != nil {
		return nil, err
	}
	if h.Nonce, err = r.ReadUint64(); err != nil {
		return nil, err
	}
	return h, nil
}

func readHash(r *serial.Reader) (primitives.Hash, error) {
	b, err := r.ReadFixed(primitives.HashSize)
	if err != nil {
		return primitives.Hash{}, err
	}
	return primitives.HashFromBytes(b)
}

func readAddress(r *serial.Reader) (primitives.Address, error) {
	b, err := r.ReadFixed(primitives.AddressSize)
	if err != nil {
		return primitives.Address{}, err
	}
	return primitives.AddressFromBytes(b)
}

func encodeTransaction(w *serial.Writer, tx *chain.Transaction) error {
	w.WriteFixed(tx.Sender[:])
	w.WriteDiscriminant(uint8(tx.SenderType))
	w.WriteFixed(tx.Recipient[:])
	w.WriteDiscriminant(uint8(tx.RecipientType))
	w.WriteUint64(uint64(tx.Value))
	w.WriteUint64(uint64(tx.Fee))
	w.WriteUint32(tx.ValidityStartHeight)
	w.WriteUint8(tx.NetworkID)
	if err := w.WriteVarBytes(tx.Data); err != nil {
		return err
	}
	return w.WriteVarBytes(tx.Proof)
}

func decodeTransaction(r *serial.Reader) (*chain.Transaction, error) {
	tx := &chain.Transaction{}
	var err error
	if tx.Sender, err = readAddress(r); err != nil {
		return nil, err
	}
	senderType, err := r.ReadDiscriminant()
	if err != nil {
		return nil, err
	}
	tx.SenderType = chain.AccountType(senderType)
	if tx.Recipient, err = readAddress(r); err != nil {
		return nil, err
	}
	recipientType, err := r.ReadDiscriminant()
	if err != nil {
		return nil, err
	}
	tx.RecipientType = chain.AccountType(recipientType)
	value, err := r.ReadUint64()
	if err != nil {
		return nil, err
	}
	tx.Value = primitives.Coin(value)
	fee, err := r.ReadUint64()
	if err != nil {
		return nil, err
	}
	tx.Fee = primitives.Coin(fee)
	if tx.ValidityStartHeight, err = r.ReadUint32(); err != nil {
		return nil, err
	}
	if tx.NetworkID, err = r.ReadUint8(); err != nil {
		return nil, err
	}
	if tx.Data, err = r.ReadVarBytes(); err != nil {
		return nil, err
	}
	if tx.Proof, err = r.ReadVarBytes(); err != nil {
		return nil, err
	}
	return tx, nil
}

func encodeBody(b *chain.Body) ([]byte, error) {
	w := serial.NewWriter()
	w.WriteFixed(b.MinerAddress[:])
	if err := w.WriteVarBytes(b.ExtraData); err != nil {
		return nil, err
	}
	w.WriteUint32(uint32(len(b.Transactions)))
	for _, tx := range b.Transactions {
		if err := encodeTransaction(w, tx); err != nil {
			return nil, err
		}
	}
	w.WriteUint32(uint32(len(b.PrunedAccounts)))
	for _, pa := range b.PrunedAccounts {
		w.WriteFixed(pa.Address[:])
		if err := w.WriteVarBytes(pa.Encoded); err != nil {
			return nil, err
		}
	}
	return w.Bytes(), nil
}

func decodeBody(raw []byte) (*chain.Body, error) {
	r := serial.NewReader(raw)
	b := &chain.Body{}
	var err error
	if b.MinerAddress, err = readAddress(r); err != nil {
		return nil, err
	}
	if b.ExtraData, err = r.ReadVarBytes(); err != nil {
		return nil, err
	}
	txCount, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	b.Transactions = make([]*chain.Transaction, txCount)
	for i := range b.Transactions {
		if b.Transactions[i], err = decodeTransaction(r); err != nil {
			return nil, err
		}
	}
	paCount, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	b.PrunedAccounts = make([]chain.PrunedAccount, paCount)
	for i := range b.PrunedAccounts {
		addr, err := readAddress(r)
		if err != nil {
			return nil, err
		}
		encoded, err := r.ReadVarBytes()
		if err != nil {
			return nil, err
		}
		b.PrunedAccounts[i] = chain.PrunedAccount{Address: addr, Encoded: encoded}
	}
	return b, nil
}

// encodeChainInfo/decodeChainInfo store the header plus consensus metadata;
// the body is kept in a separate key (see bodyKey) so a caller that only
// needs chain metadata never pays to deserialize transactions.
func encodeChainInfo(ci *chain.ChainInfo) ([]byte, error) {
	w := serial.NewWriter()
	encodeHeader(w, ci.Head.Header)
	w.WriteUint64(math.Float64bits(ci.TotalDifficulty))
	w.WriteUint64(ci.TotalWork)
	onMain := uint8(0)
	if ci.OnMainChain {
		onMain = 1
	}
	w.WriteUint8(onMain)
	if ci.MainChainSuccessor != nil {
		w.WriteUint8(1)
		w.WriteFixed(ci.MainChainSuccessor[:])
	} else {
		w.WriteUint8(0)
	}
	return w.Bytes(), nil
}

func decodeChainInfo(raw []byte) (*chain.ChainInfo, error) {
	r := serial.NewReader(raw)
	header, err := decodeHeader(r)
	if err != nil {
		return nil, err
	}
	diffBits, err := r.ReadUint64()
	if err != nil {
		return nil, err
	}
	totalWork, err := r.ReadUint64()
	if err != nil {
		return nil, err
	}
	onMain, err := r.ReadUint8()
	if err != nil {
		return nil, err
	}
	hasSuccessor, err := r.ReadUint8()
	if err != nil {
		return nil, err
	}
	var successor *primitives.Hash
	if hasSuccessor == 1 {
		h, err := readHash(r)
		if err != nil {
			return nil, err
		}
		successor = &h
	}
	return &chain.ChainInfo{
		Head:               &chain.Block{Header: header},
		TotalDifficulty:    math.Float64frombits(diffBits),
		TotalWork:          totalWork,
		OnMainChain:        onMain == 1,
		MainChainSuccessor: successor,
	}, nil
}
