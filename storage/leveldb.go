// Copyright 2015 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package storage

import (
	"github.com/pkg/errors"
	"github.com/rcrowley/go-metrics"
	"github.com/syndtr/goleveldb/leveldb"
	lderrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// levelDB is the default KVStore backing: a single LevelDB instance shared
// by every logical collection (chain info, block bodies, height index,
// accounts), which are told apart by key prefix.
type levelDB struct {
	fn string
	db *leveldb.DB

	diskReadMeter  metrics.Meter
	diskWriteMeter metrics.Meter
}

func getLDBOptions(cacheSizeMB, numHandles int) *opt.Options {
	if cacheSizeMB < 16 {
		cacheSizeMB = 16
	}
	if numHandles < 16 {
		numHandles = 16
	}
	return &opt.Options{
		OpenFilesCacheCapacity: numHandles,
		BlockCacheCapacity:     cacheSizeMB / 2 * opt.MiB,
		WriteBuffer:            cacheSizeMB / 4 * opt.MiB,
		Filter:                 filter.NewBloomFilter(10),
	}
}

// NewLevelDBStore opens (or recovers) a LevelDB-backed KVStore at the given
// path, matching the teacher's NewLDBDatabase behavior.
func NewLevelDBStore(path string, cacheSizeMB, numHandles int) (KVStore, error) {
	db, err := leveldb.OpenFile(path, getLDBOptions(cacheSizeMB, numHandles))
	if _, corrupted := err.(*lderrors.ErrCorrupted); corrupted {
		logger.Warn("recovering corrupted leveldb", "path", path)
		db, err = leveldb.RecoverFile(path, nil)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "storage: open leveldb at %s", path)
	}
	return &levelDB{
		fn:             path,
		db:             db,
		diskReadMeter:  metrics.NewMeter(),
		diskWriteMeter: metrics.NewMeter(),
	}, nil
}

func (d *levelDB) Get(key []byte) ([]byte, error) {
	v, err := d.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	d.diskReadMeter.Mark(int64(len(v)))
	return v, nil
}

func (d *levelDB) Has(key []byte) (bool, error) {
	return d.db.Has(key, nil)
}

func (d *levelDB) Put(key, value []byte) error {
	d.diskWriteMeter.Mark(int64(len(value)))
	return d.db.Put(key, value, nil)
}

func (d *levelDB) Delete(key []byte) error {
	return d.db.Delete(key, nil)
}

func (d *levelDB) NewBatch() Batch {
	return &levelBatch{db: d.db, batch: new(leveldb.Batch)}
}

func (d *levelDB) NewSnapshot() (Snapshot, error) {
	snap, err := d.db.GetSnapshot()
	if err != nil {
		return nil, err
	}
	return &levelSnapshot{snap: snap}, nil
}

func (d *levelDB) NewIterator(prefix []byte) Iterator {
	return &levelIterator{it: d.db.NewIterator(util.BytesPrefix(prefix), nil)}
}

func (d *levelDB) Close() error { return d.db.Close() }

type levelBatch struct {
	db    *leveldb.DB
	batch *leveldb.Batch
}

func (b *levelBatch) Put(key, value []byte) error {
	b.batch.Put(key, value)
	return nil
}

func (b *levelBatch) Delete(key []byte) error {
	b.batch.Delete(key)
	return nil
}

func (b *levelBatch) Commit() error {
	return b.db.Write(b.batch, nil)
}

func (b *levelBatch) Discard() {
	b.batch.Reset()
}

type levelSnapshot struct {
	snap *leveldb.Snapshot
}

func (s *levelSnapshot) Get(key []byte) ([]byte, error) {
	v, err := s.snap.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	}
	return v, err
}

func (s *levelSnapshot) Has(key []byte) (bool, error) {
	return s.snap.Has(key, nil)
}

func (s *levelSnapshot) NewIterator(prefix []byte) Iterator {
	return &levelIterator{it: s.snap.NewIterator(util.BytesPrefix(prefix), nil)}
}

func (s *levelSnapshot) Release() { s.snap.Release() }

type levelIterator struct {
	it iterator.Iterator
}

func (i *levelIterator) Next() bool      { return i.it.Next() }
func (i *levelIterator) Key() []byte     { return i.it.Key() }
func (i *levelIterator) Value() []byte   { return i.it.Value() }
func (i *levelIterator) Release()        { i.it.Release() }
