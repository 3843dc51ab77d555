// Package txcache implements the sliding-window replay-protection index
// (spec §3/§4.D): the set of transaction hashes introduced by the most
// recent TRANSACTION_VALIDITY_WINDOW blocks.
//
// Grounded on common/cache.go's cache-type abstraction from the teacher
// repo; the window itself is kept as an explicit ordered ring of per-block
// hash sets (container/list, stdlib) rather than an LRU, since the spec's
// eviction order is "oldest accepted block drops off", not "least recently
// used" - no pack library targets that exact contract, so the eviction
// structure is hand-rolled while the membership probe below it is an
// ordinary hash set.
package txcache

import (
	"container/list"

	"github.com/chaincore/core/chain"
	"github.com/chaincore/core/log"
	"github.com/chaincore/core/primitives"
)

var logger = log.NewModuleLogger(log.TxCache)

type blockEntry struct {
	hash   primitives.Hash
	hashes []primitives.Hash
}

// Cache is a sliding window of at most Window blocks' transaction hashes.
type Cache struct {
	window int
	blocks *list.List // of *blockEntry, front = oldest, back = newest
	seen   map[primitives.Hash]int
}

// New returns an empty cache with the given window size W.
func New(window int) *Cache {
	return &Cache{window: window, blocks: list.New(), seen: make(map[primitives.Hash]int)}
}

// IsEmpty reports whether the window currently holds no blocks.
func (c *Cache) IsEmpty() bool { return c.blocks.Len() == 0 }

// MissingBlocks is max(0, W - current_window_size): how many more blocks
// (fed backward from the current tail) the cache needs before it is full.
func (c *Cache) MissingBlocks() int {
	missing := c.window - c.blocks.Len()
	if missing < 0 {
		return 0
	}
	return missing
}

// HeadHash is the hash of the most recently pushed block, or the zero hash
// if empty.
func (c *Cache) HeadHash() primitives.Hash {
	if c.blocks.Len() == 0 {
		return primitives.Hash{}
	}
	return c.blocks.Back().Value.(*blockEntry).hash
}

// TailHash is the hash of the oldest block still in the window.
func (c *Cache) TailHash() primitives.Hash {
	if c.blocks.Len() == 0 {
		return primitives.Hash{}
	}
	return c.blocks.Front().Value.(*blockEntry).hash
}

func txHashes(b *chain.Block) []primitives.Hash {
	if b.Body == nil {
		return nil
	}
	out := make([]primitives.Hash, len(b.Body.Transactions))
	for i, tx := range b.Body.Transactions {
		out[i] = tx.Hash()
	}
	return out
}

// ContainsAny reports whether any transaction in b collides with a hash
// already present in the window (spec §4.D).
func (c *Cache) ContainsAny(b *chain.Block) bool {
	for _, h := range txHashes(b) {
		if _, ok := c.seen[h]; ok {
			return true
		}
	}
	return false
}

// PushBlock appends a new head block, evicting the oldest block once the
// window exceeds W.
func (c *Cache) PushBlock(b *chain.Block) {
	entry := &blockEntry{hash: b.Hash(), hashes: txHashes(b)}
	c.blocks.PushBack(entry)
	for _, h := range entry.hashes {
		c.seen[h]++
	}
	for c.blocks.Len() > c.window {
		c.evictFront()
	}
}

// PrependBlock adds a block at the tail (older end) of the window, used
// while backfilling the cache to W blocks after load or rebranch. It never
// evicts; callers are expected to stop once MissingBlocks() reaches zero.
func (c *Cache) PrependBlock(b *chain.Block) {
	entry := &blockEntry{hash: b.Hash(), hashes: txHashes(b)}
	c.blocks.PushFront(entry)
	for _, h := range entry.hashes {
		c.seen[h]++
	}
}

// RevertBlock removes the current head block from the window, the inverse
// of PushBlock.
func (c *Cache) RevertBlock(b *chain.Block) {
	if c.blocks.Len() == 0 {
		return
	}
	back := c.blocks.Back()
	entry := back.Value.(*blockEntry)
	if entry.hash != b.Hash() {
		logger.Warn("txcache: revert_block of non-head block", "got", b.Hash().String(), "head", entry.hash.String())
	}
	c.blocks.Remove(back)
	c.unmark(entry)
}

func (c *Cache) evictFront() {
	front := c.blocks.Front()
	entry := front.Value.(*blockEntry)
	c.blocks.Remove(front)
	c.unmark(entry)
}

func (c *Cache) unmark(entry *blockEntry) {
	for _, h := range entry.hashes {
		c.seen[h]--
		if c.seen[h] <= 0 {
			delete(c.seen, h)
		}
	}
}

// Clone returns an independent copy of the cache, used when the blockchain
// engine swaps in a rebranched chain's cache while keeping the old one
// available to in-flight readers.
func (c *Cache) Clone() *Cache {
	out := New(c.window)
	for e := c.blocks.Front(); e != nil; e = e.Next() {
		src := e.Value.(*blockEntry)
		cp := &blockEntry{hash: src.hash, hashes: append([]primitives.Hash(nil), src.hashes...)}
		out.blocks.PushBack(cp)
		for _, h := range cp.hashes {
			out.seen[h]++
		}
	}
	return out
}
