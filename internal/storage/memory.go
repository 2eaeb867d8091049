package storage

import (
	"bytes"
	"sync"

	"github.com/google/btree"

	"github.com/ansell/openrdf-sesame-sub028/pkg/errors"
	"github.com/ansell/openrdf-sesame-sub028/pkg/store"
)

type memItem struct {
	key   []byte
	value []byte
}

func memLess(a, b memItem) bool {
	return bytes.Compare(a.key, b.key) < 0
}

// MemoryStorage implements Storage over a copy-on-write btree. Each
// transaction works on a clone; committing a writable transaction
// publishes its clone. It keeps nothing on disk.
type MemoryStorage struct {
	mu     sync.Mutex
	tree   *btree.BTreeG[memItem]
	closed bool
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{tree: btree.NewG(32, memLess)}
}

func (s *MemoryStorage) Begin(writable bool) (store.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.New(errors.ErrClosed, "memory storage is closed")
	}
	return &MemoryTransaction{s: s, tree: s.tree.Clone(), writable: writable}, nil
}

func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *MemoryStorage) Sync() error {
	return nil
}

// MemoryTransaction implements Transaction over a private tree clone.
type MemoryTransaction struct {
	s        *MemoryStorage
	tree     *btree.BTreeG[memItem]
	writable bool
	done     bool
}

func (t *MemoryTransaction) Get(table store.Table, key []byte) ([]byte, error) {
	item, ok := t.tree.Get(memItem{key: store.PrefixKey(table, key)})
	if !ok {
		return nil, store.ErrNotFound
	}
	return append([]byte(nil), item.value...), nil
}

func (t *MemoryTransaction) Set(table store.Table, key, value []byte) error {
	if !t.writable {
		return store.ErrTransactionRO
	}
	t.tree.ReplaceOrInsert(memItem{
		key:   store.PrefixKey(table, key),
		value: append([]byte(nil), value...),
	})
	return nil
}

func (t *MemoryTransaction) Delete(table store.Table, key []byte) error {
	if !t.writable {
		return store.ErrTransactionRO
	}
	t.tree.Delete(memItem{key: store.PrefixKey(table, key)})
	return nil
}

// Scan snapshots the matching range so the transaction may keep writing
// while the iterator is open.
func (t *MemoryTransaction) Scan(table store.Table, prefix []byte) (store.Iterator, error) {
	full := store.PrefixKey(table, prefix)
	var items []memItem
	t.tree.AscendGreaterOrEqual(memItem{key: full}, func(item memItem) bool {
		if !bytes.HasPrefix(item.key, full) {
			return false
		}
		items = append(items, item)
		return true
	})
	return &MemoryIterator{items: items, pos: -1, strip: len(store.TablePrefix(table))}, nil
}

func (t *MemoryTransaction) Commit() error {
	if t.done {
		return errors.New(errors.ErrTransaction, "transaction already finished")
	}
	t.done = true
	if !t.writable {
		return nil
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.s.closed {
		return errors.New(errors.ErrClosed, "memory storage is closed")
	}
	t.s.tree = t.tree
	return nil
}

func (t *MemoryTransaction) Rollback() error {
	t.done = true
	return nil
}

// MemoryIterator iterates over a captured range.
type MemoryIterator struct {
	items []memItem
	pos   int
	strip int
}

func (i *MemoryIterator) Next() bool {
	if i.pos+1 >= len(i.items) {
		i.pos = len(i.items)
		return false
	}
	i.pos++
	return true
}

func (i *MemoryIterator) valid() bool {
	return i.pos >= 0 && i.pos < len(i.items)
}

func (i *MemoryIterator) Key() []byte {
	if !i.valid() {
		return nil
	}
	return append([]byte(nil), i.items[i.pos].key[i.strip:]...)
}

func (i *MemoryIterator) Value() ([]byte, error) {
	if !i.valid() {
		return nil, store.ErrNotFound
	}
	return append([]byte(nil), i.items[i.pos].value...), nil
}

func (i *MemoryIterator) Close() error {
	i.items = nil
	return nil
}
