package storage

import (
	"bytes"
	"sort"
	"sync"
)

// memDB is an in-memory KVStore used by tests and by any caller that does
// not need durability. Snapshots copy the key set at creation time, which
// is wasteful for production sizes but gives the exact "observe committed
// state at the moment of creation" contract spec §5 requires without
// depending on LevelDB's on-disk snapshot machinery.
type memDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemStore returns a fresh in-memory KVStore.
func NewMemStore() KVStore {
	return &memDB{data: make(map[string][]byte)}
}

func (m *memDB) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *memDB) Has(key []byte) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[string(key)]
	return ok, nil
}

func (m *memDB) Put(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	m.data[string(key)] = v
	return nil
}

func (m *memDB) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, string(key))
	return nil
}

func (m *memDB) NewBatch() Batch {
	return &memBatch{db: m}
}

func (m *memDB) NewSnapshot() (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp := make(map[string][]byte, len(m.data))
	for k, v := range m.data {
		vv := make([]byte, len(v))
		copy(vv, v)
		cp[k] = vv
	}
	return &memSnapshot{data: cp}, nil
}

func (m *memDB) NewIterator(prefix []byte) Iterator {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return newMemIterator(m.data, prefix)
}

func (m *memDB) Close() error { return nil }

type memOp struct {
	del   bool
	key   []byte
	value []byte
}

type memBatch struct {
	db  *memDB
	ops []memOp
}

func (b *memBatch) Put(key, value []byte) error {
	b.ops = append(b.ops, memOp{key: append([]byte(nil), key...), value: append([]byte(nil), value...)})
	return nil
}

func (b *memBatch) Delete(key []byte) error {
	b.ops = append(b.ops, memOp{del: true, key: append([]byte(nil), key...)})
	return nil
}

func (b *memBatch) Commit() error {
	b.db.mu.Lock()
	defer b.db.mu.Unlock()
	for _, op := range b.ops {
		if op.del {
			delete(b.db.data, string(op.key))
		} else {
			b.db.data[string(op.key)] = op.value
		}
	}
	b.ops = nil
	return nil
}

func (b *memBatch) Discard() { b.ops = nil }

type memSnapshot struct {
	data map[string][]byte
}

func (s *memSnapshot) Get(key []byte) ([]byte, error) {
	v, ok := s.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func (s *memSnapshot) Has(key []byte) (bool, error) {
	_, ok := s.data[string(key)]
	return ok, nil
}

func (s *memSnapshot) NewIterator(prefix []byte) Iterator {
	return newMemIterator(s.data, prefix)
}

func (s *memSnapshot) Release() {}

type memIterator struct {
	keys []string
	vals [][]byte
	pos  int
}

func newMemIterator(data map[string][]byte, prefix []byte) *memIterator {
	it := &memIterator{pos: -1}
	for k, v := range data {
		if bytes.HasPrefix([]byte(k), prefix) {
			it.keys = append(it.keys, k)
			it.vals = append(it.vals, v)
		}
	}
	sort.Sort(it)
	return it
}

// Len/Less/Swap implement sort.Interface for keys+vals together, so
// iteration order is deterministic (ascending lexicographic, like
// LevelDB's).
func (it *memIterator) Len() int { return len(it.keys) }
func (it *memIterator) Less(i, j int) bool { return it.keys[i] < it.keys[j] }
func (it *memIterator) Swap(i, j int) {
	it.keys[i], it.keys[j] = it.keys[j], it.keys[i]
	it.vals[i], it.vals[j] = it.vals[j], it.vals[i]
}

func (it *memIterator) Next() bool {
	it.pos++
	return it.pos < len(it.keys)
}

func (it *memIterator) Key() []byte   { return []byte(it.keys[it.pos]) }
func (it *memIterator) Value() []byte { return it.vals[it.pos] }
func (it *memIterator) Release()      {}
