// Package chain holds the plain data types shared across the consensus
// core's layers (account, accountstree, txcache, chainstore, blockchain):
// transactions, block headers/bodies, and per-block chain metadata. Kept as
// a dependency-free leaf package (only primitives) so the account model and
// the blockchain engine can both depend on it without an import cycle.
package chain

import (
	"sort"

	"github.com/chaincore/core/primitives"
	"github.com/chaincore/core/primitives/serial"
)

// AccountType tags which of the three fixed account kinds a transaction's
// sender or recipient is (spec §3).
type AccountType uint8

const (
	AccountTypeBasic AccountType = iota
	AccountTypeVesting
	AccountTypeHTLC
)

func (t AccountType) String() string {
	switch t {
	case AccountTypeBasic:
		return "Basic"
	case AccountTypeVesting:
		return "Vesting"
	case AccountTypeHTLC:
		return "HTLC"
	default:
		return "Unknown"
	}
}

// Transaction is a value transfer between two accounts (spec §3).
type Transaction struct {
	Sender              primitives.Address
	SenderType          AccountType
	Recipient           primitives.Address
	RecipientType       AccountType
	Value               primitives.Coin
	Fee                 primitives.Coin
	ValidityStartHeight uint32
	NetworkID           uint8
	Data                []byte
	Proof               []byte
}

// serializeContent is the canonical encoding of every field except Proof;
// this is what transaction identity and signatures are computed over.
func (tx *Transaction) serializeContent(w *serial.Writer) error {
	w.WriteFixed(tx.Sender[:])
	w.WriteDiscriminant(uint8(tx.SenderType))
	w.WriteFixed(tx.Recipient[:])
	w.WriteDiscriminant(uint8(tx.RecipientType))
	w.WriteUint64(uint64(tx.Value))
	w.WriteUint64(uint64(tx.Fee))
	w.WriteUint32(tx.ValidityStartHeight)
	w.WriteUint8(tx.NetworkID)
	return w.WriteVarBytes(tx.Data)
}

// SerializeContent returns the canonical byte form used for hashing and
// signing (excludes Proof, per spec §3 "unique identity = hash of all
// fields except proof").
func (tx *Transaction) SerializeContent() []byte {
	w := serial.NewWriter()
	_ = tx.serializeContent(w)
	return w.Bytes()
}

// Hash is the transaction's identity.
func (tx *Transaction) Hash() primitives.Hash {
	return primitives.HashContent(tx.SerializeContent())
}

// ValidAt reports whether the transaction may be included in a block at the
// given height, per the validity window (spec §3).
func (tx *Transaction) ValidAt(height uint32, window uint32) bool {
	return height >= tx.ValidityStartHeight && height < tx.ValidityStartHeight+window
}

// Header is a block header (spec §3).
type Header struct {
	Version        uint16
	PrevHash       primitives.Hash
	InterlinkHash  primitives.Hash
	BodyHash       primitives.Hash
	AccountsHash   primitives.Hash
	NBits          uint32 // compact difficulty target
	Height         uint64
	Timestamp      uint64 // unix seconds
	Nonce          uint64
}

func (h *Header) serializeContent(w *serial.Writer) {
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

// SerializeContent is the canonical encoding hashed for PoW and for the
// header's own identity hash.
func (h *Header) SerializeContent() []byte {
	w := serial.NewWriter()
	h.serializeContent(w)
	return w.Bytes()
}

// Hash is this header's identity, used throughout as the block hash.
func (h *Header) Hash() primitives.Hash {
	return primitives.HashContent(h.SerializeContent())
}

// Body is a block body (spec §3).
type Body struct {
	MinerAddress    primitives.Address
	ExtraData       []byte
	Transactions    []*Transaction
	PrunedAccounts  []PrunedAccount
}

// PrunedAccount records an account removed from the tree while processing
// the block that drained it, so that revert_block can restore it exactly.
type PrunedAccount struct {
	Address primitives.Address
	// Encoded is the account's canonical serialized form immediately before
	// pruning, opaque to this package (the account package knows how to
	// decode it).
	Encoded []byte
}

// Hash is the body's content hash, matching Header.BodyHash.
func (b *Body) Hash() primitives.Hash {
	w := serial.NewWriter()
	w.WriteFixed(b.MinerAddress[:])
	_ = w.WriteVarBytes(b.ExtraData)
	w.WriteUint32(uint32(len(b.Transactions)))
	for _, tx := range b.Transactions {
		_ = tx.serializeContent(w)
		_ = w.WriteVarBytes(tx.Proof)
	}
	w.WriteUint32(uint32(len(b.PrunedAccounts)))
	for _, pa := range b.PrunedAccounts {
		w.WriteFixed(pa.Address[:])
		_ = w.WriteVarBytes(pa.Encoded)
	}
	return primitives.HashContent(w.Bytes())
}

// IsOrdered reports whether transactions are ordered by
// (validity_start_height, hash) and pruned accounts are ordered by address,
// both with no duplicates, as block verification requires (spec §4.F step 1).
func (b *Body) IsOrdered() bool {
	for i := 1; i < len(b.Transactions); i++ {
		a, c := b.Transactions[i-1], b.Transactions[i]
		if a.ValidityStartHeight > c.ValidityStartHeight {
			return false
		}
		if a.ValidityStartHeight == c.ValidityStartHeight {
			ah, ch := a.Hash(), c.Hash()
			if compareBytes(ah[:], ch[:]) >= 0 {
				return false
			}
		}
	}
	for i := 1; i < len(b.PrunedAccounts); i++ {
		if compareBytes(b.PrunedAccounts[i-1].Address[:], b.PrunedAccounts[i].Address[:]) >= 0 {
			return false
		}
	}
	return true
}

// SortPrunedAccounts orders pruned accounts by address, the canonical order
// commit_block must produce (spec §4.C step 3).
func SortPrunedAccounts(accs []PrunedAccount) {
	sort.Slice(accs, func(i, j int) bool {
		return compareBytes(accs[i].Address[:], accs[j].Address[:]) < 0
	})
}

func compareBytes(a, b []byte) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// Block is a header with an optional body.
type Block struct {
	Header *Header
	Body   *Body // nil when a body is not loaded/known
}

func (b *Block) Hash() primitives.Hash { return b.Header.Hash() }

// ChainInfo is the per-block metadata the chain store persists (spec §3).
type ChainInfo struct {
	Head               *Block
	TotalDifficulty    float64
	TotalWork          uint64
	OnMainChain        bool
	MainChainSuccessor *primitives.Hash
}

// Next builds the ChainInfo for a block extending this one, accumulating
// total difficulty by the inverse of the new block's target (spec §4.F
// step 6: total_difficulty = prev.total_difficulty + 1/target).
func (ci *ChainInfo) Next(b *Block, target float64) *ChainInfo {
	return &ChainInfo{
		Head:            b,
		TotalDifficulty: ci.TotalDifficulty + 1.0/target,
		TotalWork:       ci.TotalWork + 1,
		OnMainChain:     false,
	}
}
