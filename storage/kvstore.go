// Package storage provides the transactional key/value primitive the
// accounts tree and chain store are built on. The on-disk engine itself is
// out of this spec's scope (spec §1: "the on-disk key/value store (treated
// as a transactional map with snapshot reads)"); this package supplies that
// contract concretely, backed by LevelDB, so the rest of the core has
// something real to commit to and snapshot from.
//
// Grounded on storage/database/leveldb_database.go (open/recover-on-corrupt,
// metrics meters) and storage/database/db_manager.go (keyed-collection
// wrapper) from the teacher repo.
package storage

import "github.com/chaincore/core/log"

var logger = log.NewModuleLogger(log.Storage)

// KVStore is a byte-keyed, byte-valued store supporting read snapshots and
// write batches (transactions). A Snapshot observes the state committed at
// the moment it was created regardless of concurrent writers (spec §5).
type KVStore interface {
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Put(key, value []byte) error
	Delete(key []byte) error

	NewBatch() Batch
	NewSnapshot() (Snapshot, error)
	NewIterator(prefix []byte) Iterator

	Close() error
}

// Batch is a write transaction: writes are invisible until Commit, and
// Commit is atomic (spec §6: "all writes within one push must land in a
// single atomic commit").
type Batch interface {
	Put(key, value []byte) error
	Delete(key []byte) error
	Commit() error
	Discard()
}

// Snapshot is a point-in-time read-only view.
type Snapshot interface {
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	NewIterator(prefix []byte) Iterator
	Release()
}

// Iterator walks keys sharing a prefix in ascending lexicographic order.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Release()
}

// ErrNotFound is returned by Get/Has-style lookups that find nothing; it is
// not itself a failure of the store.
var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "storage: key not found" }
