// Package chainstore implements the persistent map of block hash ->
// ChainInfo plus a height index over the main chain (spec §4.E). It shares
// the same underlying storage.KVStore as the accounts tree, key-prefixed
// per concern, so a single storage.Batch spans both and every block push
// commits as one atomic write.
//
// Grounded on storage/database's key-value abstraction together with
// blockchain/headerchain.go's hash/height indexing idiom from the teacher
// repo.
package chainstore

import (
	"encoding/binary"
	"errors"

	"github.com/chaincore/core/chain"
	"github.com/chaincore/core/log"
	"github.com/chaincore/core/primitives"
	"github.com/chaincore/core/storage"
)

var logger = log.NewModuleLogger(log.ChainStore)

// ErrNotFound is returned by the get_* operations when no entry exists for
// the requested hash or height.
var ErrNotFound = errors.New("chainstore: not found")

// Direction controls get_blocks' traversal order.
type Direction int

const (
	Forward Direction = iota
	Backward
)

const (
	prefixInfo   = "ci:" // chain info by block hash, header+metadata only
	prefixBody   = "bd:" // body, keyed by block hash, stored separately so include_body can be skipped cheaply
	prefixHeight = "ht:" // main-chain height -> block hash index
	keyHead      = "head"
)

func infoKey(h primitives.Hash) []byte   { return append([]byte(prefixInfo), h[:]...) }
func bodyKey(h primitives.Hash) []byte   { return append([]byte(prefixBody), h[:]...) }
func heightKey(height uint64) []byte {
	var buf [8 + len(prefixHeight)]byte
	copy(buf[:len(prefixHeight)], prefixHeight)
	binary.BigEndian.PutUint64(buf[len(prefixHeight):], height)
	return buf[:]
}

// Store is the persistent chain metadata map.
type Store struct {
	kv storage.KVStore
}

func New(kv storage.KVStore) *Store {
	return &Store{kv: kv}
}

// reader abstracts over the live store, a Snapshot, or a Batch-backed
// transaction view for the get_* operations' optional txn parameter.
type reader interface {
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
}

func (s *Store) reader(txn reader) reader {
	if txn != nil {
		return txn
	}
	return s.kv
}

// GetChainInfo returns the stored ChainInfo for hash, optionally including
// its body.
func (s *Store) GetChainInfo(hash primitives.Hash, includeBody bool, txn reader) (*chain.ChainInfo, error) {
	r := s.reader(txn)
	raw, err := r.Get(infoKey(hash))
	if err == storage.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	info, err := decodeChainInfo(raw)
	if err != nil {
		return nil, err
	}
	if includeBody {
		body, err := s.getBody(hash, r)
		if err != nil {
			return nil, err
		}
		info.Head.Body = body
	}
	return info, nil
}

// GetChainInfoAt resolves a main-chain height to its ChainInfo.
func (s *Store) GetChainInfoAt(height uint64, includeBody bool, txn reader) (*chain.ChainInfo, error) {
	r := s.reader(txn)
	hashBytes, err := r.Get(heightKey(height))
	if err == storage.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	hash, err := primitives.HashFromBytes(hashBytes)
	if err != nil {
		return nil, err
	}
	return s.GetChainInfo(hash, includeBody, r)
}

// GetBlock returns only the block (header+body) stored for hash.
func (s *Store) GetBlock(hash primitives.Hash, includeBody bool, txn reader) (*chain.Block, error) {
	info, err := s.GetChainInfo(hash, includeBody, txn)
	if err != nil {
		return nil, err
	}
	return info.Head, nil
}

// GetBlockAt resolves a main-chain height to its block.
func (s *Store) GetBlockAt(height uint64, txn reader) (*chain.Block, error) {
	info, err := s.GetChainInfoAt(height, true, txn)
	if err != nil {
		return nil, err
	}
	return info.Head, nil
}

// GetBlocks walks count main-chain blocks starting at height start, in the
// given direction.
func (s *Store) GetBlocks(start uint64, count int, includeBody bool, dir Direction, txn reader) ([]*chain.Block, error) {
	r := s.reader(txn)
	out := make([]*chain.Block, 0, count)
	h := start
	for i := 0; i < count; i++ {
		info, err := s.GetChainInfoAt(h, includeBody, r)
		if err == ErrNotFound {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, info.Head)
		if dir == Forward {
			h++
		} else {
			if h == 0 {
				break
			}
			h--
		}
	}
	return out, nil
}

// GetBlocksBackward is GetBlocks with Backward direction, used by the
// engine to backfill its transaction cache.
func (s *Store) GetBlocksBackward(start uint64, count int, includeBody bool, txn reader) ([]*chain.Block, error) {
	return s.GetBlocks(start, count, includeBody, Backward, txn)
}

// PutChainInfo stores info keyed by hash within txn, additionally indexing
// it by height when info.OnMainChain is set. The body is written
// separately from the header metadata so include_body=false reads never
// pay for it.
func (s *Store) PutChainInfo(txn storage.Batch, hash primitives.Hash, info *chain.ChainInfo, includeBody bool) error {
	raw, err := encodeChainInfo(info)
	if err != nil {
		return err
	}
	if err := txn.Put(infoKey(hash), raw); err != nil {
		return err
	}
	if includeBody && info.Head.Body != nil {
		bodyRaw, err := encodeBody(info.Head.Body)
		if err != nil {
			return err
		}
		if err := txn.Put(bodyKey(hash), bodyRaw); err != nil {
			return err
		}
	}
	if info.OnMainChain {
		if err := txn.Put(heightKey(info.Head.Header.Height), hash[:]); err != nil {
			return err
		}
	}
	return nil
}

// GetHead returns the current main chain's head block hash.
func (s *Store) GetHead(txn reader) (primitives.Hash, error) {
	r := s.reader(txn)
	raw, err := r.Get([]byte(keyHead))
	if err == storage.ErrNotFound {
		return primitives.Hash{}, ErrNotFound
	}
	if err != nil {
		return primitives.Hash{}, err
	}
	return primitives.HashFromBytes(raw)
}

// SetHead updates the main chain head pointer within txn.
func (s *Store) SetHead(txn storage.Batch, hash primitives.Hash) error {
	return txn.Put([]byte(keyHead), hash[:])
}

func (s *Store) getBody(hash primitives.Hash, r reader) (*chain.Body, error) {
	raw, err := r.Get(bodyKey(hash))
	if err == storage.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeBody(raw)
}
