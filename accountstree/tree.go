// Package accountstree implements the authenticated address -> account map
// (spec §4.C): get/commit_block/revert_block/hash/init, with the
// append/revert discipline the blockchain engine drives one block at a
// time.
//
// Grounded on blockchain/state/database.go's state-database shape (a
// KV-backed map of address -> account object, with a root hash recomputed
// on commit) and common/cache.go's LRU-cache wrapper, reused here to cache
// recently touched accounts between pushes.
package accountstree

import (
	lru "github.com/hashicorp/golang-lru"

	"github.com/chaincore/core/account"
	"github.com/chaincore/core/chain"
	"github.com/chaincore/core/log"
	"github.com/chaincore/core/primitives"
	"github.com/chaincore/core/storage"
)

var logger = log.NewModuleLogger(log.AccountsTree)

const keyPrefix = "acct:"
const recentCacheSize = 4096

func key(addr primitives.Address) []byte {
	out := make([]byte, 0, len(keyPrefix)+primitives.AddressSize)
	out = append(out, keyPrefix...)
	out = append(out, addr[:]...)
	return out
}

// Tree is the accounts authenticated map, backed by a shared KVStore (the
// same store instance the chain store writes block metadata into, so a
// single storage.Batch can cover both atomically).
type Tree struct {
	store storage.KVStore
	cache *lru.Cache // primitives.Address -> account.Account, recency hint only
}

func New(store storage.KVStore) *Tree {
	c, err := lru.New(recentCacheSize)
	if err != nil {
		panic(err) // only fails for a non-positive size, which recentCacheSize never is
	}
	return &Tree{store: store, cache: c}
}

// Init seeds the tree with a network's genesis accounts, within the
// caller's write batch (spec §4.F startup). Call InvalidateCache once the
// batch actually commits.
func (t *Tree) Init(batch storage.Batch, genesis map[primitives.Address]account.Account) error {
	for addr, acc := range genesis {
		if err := batch.Put(key(addr), acc.Encode()); err != nil {
			return err
		}
	}
	return nil
}

// InvalidateCache drops every cached account. The tree's LRU cache is only
// ever a Get(nil) acceleration hint; CommitBlock, RevertBlock and Init
// write their changes straight to the batch and never touch it, since the
// batch may still be discarded by the caller. Callers must call this once
// a batch carrying accounts mutations has actually committed, so the next
// Get(nil) falls through to the store instead of returning stale data.
func (t *Tree) InvalidateCache() {
	t.cache.Purge()
}

// getFrom reads an account from the given reader (KVStore or Snapshot),
// defaulting to a zero-balance Basic account ("initial"/absent, spec §3)
// when nothing is stored.
func getFrom(r interface {
	Get(key []byte) ([]byte, error)
}, addr primitives.Address) (account.Account, error) {
	b, err := r.Get(key(addr))
	if err == storage.ErrNotFound {
		return account.NewBasic(0), nil
	}
	if err != nil {
		return nil, err
	}
	return account.Decode(b)
}

// Get returns the account at addr as of the given snapshot, or the live
// store if snap is nil. Reads against the live store populate the recency
// cache; reads against a snapshot never do, since a snapshot can see
// a different value for addr than the live store currently holds.
func (t *Tree) Get(addr primitives.Address, snap storage.Snapshot) (account.Account, error) {
	if v, ok := t.cache.Get(addr); ok && snap == nil {
		return v.(account.Account), nil
	}
	if snap != nil {
		return getFrom(snap, addr)
	}
	acc, err := getFrom(t.store, addr)
	if err != nil {
		return nil, err
	}
	t.cache.Add(addr, acc)
	return acc, nil
}

// Hash returns the current Blake2b-256 commitment over every non-absent
// account, keyed and ordered by address. This is an authenticated map in
// the sense that the hash commits to exactly the (address, account) pairs
// present; it does not additionally expose per-address Merkle membership
// proofs, which nothing in this spec's operation set (§4.C) requires.
func (t *Tree) Hash(snap storage.Snapshot) (primitives.Hash, error) {
	it := t.iterator(snap)
	defer it.Release()
	hasher := primitives.NewHasher()
	for it.Next() {
		hasher.Write(it.Key()[len(keyPrefix):])
		v := it.Value()
		var lenBuf [4]byte
		lenBuf[0] = byte(len(v) >> 24)
		lenBuf[1] = byte(len(v) >> 16)
		lenBuf[2] = byte(len(v) >> 8)
		lenBuf[3] = byte(len(v))
		hasher.Write(lenBuf[:])
		hasher.Write(v)
	}
	var out primitives.Hash
	copy(out[:], hasher.Sum(nil))
	return out, nil
}

func (t *Tree) iterator(snap storage.Snapshot) storage.Iterator {
	if snap != nil {
		return snap.NewIterator([]byte(keyPrefix))
	}
	return t.store.NewIterator([]byte(keyPrefix))
}
