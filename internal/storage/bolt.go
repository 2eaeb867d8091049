package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/ansell/openrdf-sesame-sub028/pkg/errors"
	"github.com/ansell/openrdf-sesame-sub028/pkg/store"
)

// BoltFile is the name of the database file inside the data directory.
const BoltFile = "sail.db"

// BoltStorage implements Storage using bbolt, one bucket per table.
type BoltStorage struct {
	db *bolt.DB
}

// NewBoltStorage opens (or creates) the bbolt file in dir.
func NewBoltStorage(dir string) (*BoltStorage, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, errors.WrapCode(err, errors.ErrStoreTransient, "creating data dir")
	}
	db, err := bolt.Open(filepath.Join(dir, BoltFile), 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.WrapCode(err, errors.ErrStoreTransient, "failed to open bolt db")
	}
	return &BoltStorage{db: db}, nil
}

func (s *BoltStorage) Begin(writable bool) (store.Transaction, error) {
	tx, err := s.db.Begin(writable)
	if err != nil {
		if err == bolt.ErrDatabaseNotOpen {
			return nil, errors.WrapCode(err, errors.ErrClosed, "bolt begin")
		}
		return nil, err
	}
	return &BoltTransaction{tx: tx}, nil
}

func (s *BoltStorage) Close() error {
	return s.db.Close()
}

func (s *BoltStorage) Sync() error {
	return s.db.Sync()
}

// BoltTransaction implements Transaction over a bolt.Tx.
type BoltTransaction struct {
	tx *bolt.Tx
}

func (t *BoltTransaction) bucket(table store.Table, create bool) (*bolt.Bucket, error) {
	name := []byte(table.String())
	if !create || !t.tx.Writable() {
		return t.tx.Bucket(name), nil
	}
	return t.tx.CreateBucketIfNotExists(name)
}

func (t *BoltTransaction) Get(table store.Table, key []byte) ([]byte, error) {
	b, err := t.bucket(table, false)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, store.ErrNotFound
	}
	v := b.Get(key)
	if v == nil {
		return nil, store.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (t *BoltTransaction) Set(table store.Table, key, value []byte) error {
	if !t.tx.Writable() {
		return store.ErrTransactionRO
	}
	b, err := t.bucket(table, true)
	if err != nil {
		return err
	}
	return b.Put(key, value)
}

func (t *BoltTransaction) Delete(table store.Table, key []byte) error {
	if !t.tx.Writable() {
		return store.ErrTransactionRO
	}
	b, err := t.bucket(table, false)
	if err != nil || b == nil {
		return err
	}
	return b.Delete(key)
}

func (t *BoltTransaction) Scan(table store.Table, prefix []byte) (store.Iterator, error) {
	b, err := t.bucket(table, false)
	if err != nil {
		return nil, err
	}
	it := &BoltIterator{prefix: prefix}
	if b != nil {
		it.cursor = b.Cursor()
	}
	return it, nil
}

func (t *BoltTransaction) Commit() error {
	if !t.tx.Writable() {
		return t.tx.Rollback()
	}
	return t.tx.Commit()
}

func (t *BoltTransaction) Rollback() error {
	err := t.tx.Rollback()
	if err == bolt.ErrTxClosed {
		return nil
	}
	return err
}

// BoltIterator walks a bucket cursor over a key prefix.
type BoltIterator struct {
	cursor  *bolt.Cursor
	prefix  []byte
	started bool
	key     []byte
	value   []byte
}

func (i *BoltIterator) Next() bool {
	if i.cursor == nil {
		return false
	}
	var k, v []byte
	if !i.started {
		k, v = i.cursor.Seek(i.prefix)
		i.started = true
	} else {
		k, v = i.cursor.Next()
	}
	if k == nil || !bytes.HasPrefix(k, i.prefix) {
		i.cursor, i.key, i.value = nil, nil, nil
		return false
	}
	i.key, i.value = k, v
	return true
}

func (i *BoltIterator) Key() []byte {
	if i.key == nil {
		return nil
	}
	return append([]byte(nil), i.key...)
}

func (i *BoltIterator) Value() ([]byte, error) {
	if i.key == nil {
		return nil, store.ErrNotFound
	}
	return append([]byte(nil), i.value...), nil
}

func (i *BoltIterator) Close() error {
	i.cursor = nil
	return nil
}
