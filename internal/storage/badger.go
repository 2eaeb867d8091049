package storage

import (
	stderrors "errors"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/ansell/openrdf-sesame-sub028/pkg/errors"
	"github.com/ansell/openrdf-sesame-sub028/pkg/logger"
	"github.com/ansell/openrdf-sesame-sub028/pkg/store"
)

// BadgerStorage implements Storage using BadgerDB
type BadgerStorage struct {
	db *badger.DB
}

// NewBadgerStorage creates a new BadgerDB-backed storage. Badger's own
// warnings and errors are routed to log; nil discards them.
func NewBadgerStorage(path string, log logger.Logger) (*BadgerStorage, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	if log != nil {
		opts.Logger = badgerLogger{log.WithPrefix("badger: ")}
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.WrapCode(err, errors.ErrStoreTransient, "failed to open badger db")
	}

	return &BadgerStorage{db: db}, nil
}

// Begin starts a new transaction
func (s *BadgerStorage) Begin(writable bool) (store.Transaction, error) {
	if s.db.IsClosed() {
		return nil, errors.New(errors.ErrClosed, "badger db is closed")
	}
	txn := s.db.NewTransaction(writable)
	return &BadgerTransaction{
		txn:      txn,
		writable: writable,
	}, nil
}

// Close closes the storage
func (s *BadgerStorage) Close() error {
	return s.db.Close()
}

// Sync flushes writes to disk
func (s *BadgerStorage) Sync() error {
	return s.db.Sync()
}

// BadgerTransaction implements Transaction using BadgerDB
type BadgerTransaction struct {
	txn      *badger.Txn
	writable bool
}

// Get retrieves a value by key
func (t *BadgerTransaction) Get(table store.Table, key []byte) ([]byte, error) {
	item, err := t.txn.Get(store.PrefixKey(table, key))
	if err != nil {
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return item.ValueCopy(nil)
}

// Set stores a key-value pair
func (t *BadgerTransaction) Set(table store.Table, key, value []byte) error {
	if !t.writable {
		return store.ErrTransactionRO
	}
	return txnErr(t.txn.Set(store.PrefixKey(table, key), value))
}

// Delete removes a key
func (t *BadgerTransaction) Delete(table store.Table, key []byte) error {
	if !t.writable {
		return store.ErrTransactionRO
	}
	return txnErr(t.txn.Delete(store.PrefixKey(table, key)))
}

// Scan iterates over the keys of table that start with prefix
func (t *BadgerTransaction) Scan(table store.Table, prefix []byte) (store.Iterator, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = store.PrefixKey(table, prefix)

	return &BadgerIterator{
		it:     t.txn.NewIterator(opts),
		prefix: store.TablePrefix(table),
		seek:   opts.Prefix,
	}, nil
}

// Commit commits the transaction
func (t *BadgerTransaction) Commit() error {
	return txnErr(t.txn.Commit())
}

// txnErr reports badger's batch limit as store.ErrTxnTooBig.
func txnErr(err error) error {
	if stderrors.Is(err, badger.ErrTxnTooBig) {
		return store.ErrTxnTooBig
	}
	return err
}

// Rollback rolls back the transaction
func (t *BadgerTransaction) Rollback() error {
	t.txn.Discard()
	return nil
}

// BadgerIterator implements Iterator using BadgerDB
type BadgerIterator struct {
	it       *badger.Iterator
	prefix   []byte // table prefix stripped from keys
	seek     []byte
	started  bool
	hasValue bool
}

// Next advances to the next item
func (i *BadgerIterator) Next() bool {
	if !i.started {
		i.it.Seek(i.seek)
		i.started = true
	} else {
		i.it.Next()
	}
	i.hasValue = i.it.Valid()
	return i.hasValue
}

// Key returns a copy of the current key without the table prefix
func (i *BadgerIterator) Key() []byte {
	if !i.hasValue {
		return nil
	}
	return i.it.Item().KeyCopy(nil)[len(i.prefix):]
}

// Value returns a copy of the current value
func (i *BadgerIterator) Value() ([]byte, error) {
	if !i.hasValue {
		return nil, store.ErrNotFound
	}
	return i.it.Item().ValueCopy(nil)
}

// Close closes the iterator
func (i *BadgerIterator) Close() error {
	i.it.Close()
	return nil
}

// badgerLogger adapts logger.Logger to badger.Logger. Badger's info and
// debug chatter is demoted to debug.
type badgerLogger struct {
	logger.Logger
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.Warnf(format, args...)
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.Debugf(format, args...)
}
