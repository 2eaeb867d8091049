package store

import (
	"github.com/ansell/openrdf-sesame-sub028/internal/encoding"
	"github.com/ansell/openrdf-sesame-sub028/pkg/errors"
)

// A commit that does not fit into one storage transaction is written in
// two phases. Its writes are staged in TableJournal under a commit id and
// the id is published under the meta journal key in the same storage
// transaction as the last staged write. Then the writes are applied, the
// key is deleted and the stage is cleared. load finishes a published
// journal and drops an unpublished one.

var metaJournal = []byte("journal")

// batchOp is one storage write of a change set.
type batchOp struct {
	table Table
	key   []byte
	value []byte
	del   bool
}

func (op batchOp) apply(txn Transaction) error {
	if op.del {
		return txn.Delete(op.table, op.key)
	}
	return txn.Set(op.table, op.key, op.value)
}

// spillWriter writes through a chain of storage transactions. When a write
// does not fit it commits the current transaction and retries the write in
// a new one, so only the writes of the last transaction are atomic.
type spillWriter struct {
	storage Storage
	txn     Transaction
	n       int
	commits int
}

func newSpillWriter(storage Storage) *spillWriter {
	return &spillWriter{storage: storage}
}

func (w *spillWriter) write(op batchOp) error {
	if w.txn == nil {
		txn, err := w.storage.Begin(true)
		if err != nil {
			return err
		}
		w.txn, w.n = txn, 0
	}
	err := op.apply(w.txn)
	if err == ErrTxnTooBig && w.n > 0 {
		if err := w.flush(); err != nil {
			return err
		}
		return w.write(op)
	}
	if err != nil {
		return err
	}
	w.n++
	return nil
}

// flush commits the current transaction, if any.
func (w *spillWriter) flush() error {
	if w.txn == nil {
		return nil
	}
	txn := w.txn
	w.txn = nil
	if err := txn.Commit(); err != nil {
		return err
	}
	w.commits++
	return nil
}

func (w *spillWriter) rollback() {
	if w.txn != nil {
		_ = w.txn.Rollback()
		w.txn = nil
	}
}

// writeAtomic writes ops in one storage transaction. It returns
// ErrTxnTooBig unwrapped when they do not fit.
func (s *TripleStore) writeAtomic(ops []batchOp) error {
	txn, err := s.storage.Begin(true)
	if err != nil {
		return storageErr(err, "begin commit")
	}
	for _, op := range ops {
		if err := op.apply(txn); err != nil {
			_ = txn.Rollback()
			if err == ErrTxnTooBig {
				return err
			}
			return storageErr(err, "writing transaction")
		}
	}
	if err := txn.Commit(); err != nil {
		if err == ErrTxnTooBig {
			return err
		}
		return storageErr(err, "commit")
	}
	return nil
}

// writeJournaled stages ops, publishes them and applies them. Once
// published is true the commit survives a restart even if err is set.
func (s *TripleStore) writeJournaled(ops []batchOp) (published bool, err error) {
	if err := s.clearJournal(); err != nil {
		return false, err
	}
	id := s.version.Load() + 1

	w := newSpillWriter(s.storage)
	for i, op := range ops {
		staged := batchOp{
			table: TableJournal,
			key:   encoding.EncodeJournalKey(id, uint64(i)),
			value: encoding.EncodeJournalRecord(byte(op.table), op.key, op.value, op.del),
		}
		if err := w.write(staged); err != nil {
			w.rollback()
			return false, storageErr(errTooBig(err), "staging commit")
		}
	}
	if err := w.write(batchOp{table: TableMeta, key: metaJournal, value: encoding.EncodeID(id)}); err != nil {
		w.rollback()
		return false, storageErr(errTooBig(err), "publishing commit")
	}
	if err := w.flush(); err != nil {
		return false, storageErr(err, "publishing commit")
	}
	s.log.Debugf("staged commit %d in %d storage transactions", id, w.commits)

	if err := s.applyJournal(ops); err != nil {
		s.journalPending = true
		return true, err
	}
	return true, nil
}

// applyJournal writes the ops of a published journal, unpublishes it and
// clears the stage.
func (s *TripleStore) applyJournal(ops []batchOp) error {
	w := newSpillWriter(s.storage)
	for _, op := range ops {
		if err := w.write(op); err != nil {
			w.rollback()
			return storageErr(errTooBig(err), "applying journal")
		}
	}
	if err := w.write(batchOp{table: TableMeta, key: metaJournal, del: true}); err != nil {
		w.rollback()
		return storageErr(errTooBig(err), "applying journal")
	}
	if err := w.flush(); err != nil {
		return storageErr(err, "applying journal")
	}
	s.journalPending = false
	return s.clearJournal()
}

// recoverJournal applies a published journal left by an interrupted commit
// and drops unpublished stages.
func (s *TripleStore) recoverJournal() error {
	txn, err := s.storage.Begin(false)
	if err != nil {
		return storageErr(err, "begin journal recovery")
	}
	var ops []batchOp
	raw, err := txn.Get(TableMeta, metaJournal)
	switch {
	case err == nil:
		id, err := encoding.DecodeID(raw)
		if err != nil {
			_ = txn.Rollback()
			return err
		}
		if ops, err = readJournal(txn, id); err != nil {
			_ = txn.Rollback()
			return err
		}
		s.log.Warnf("replaying %d journaled writes of interrupted commit %d", len(ops), id)
	case err != ErrNotFound:
		_ = txn.Rollback()
		return storageErr(err, "reading journal")
	}
	_ = txn.Rollback()

	if ops != nil {
		return s.applyJournal(ops)
	}
	return s.clearJournal()
}

func readJournal(txn Transaction, id uint64) ([]batchOp, error) {
	it, err := txn.Scan(TableJournal, encoding.EncodeID(id))
	if err != nil {
		return nil, storageErr(err, "scanning journal")
	}
	defer it.Close()
	ops := []batchOp{}
	for it.Next() {
		if _, seq, err := encoding.DecodeJournalKey(it.Key()); err != nil {
			return nil, err
		} else if seq != uint64(len(ops)) {
			return nil, errors.Newf(errors.ErrStoreCorruption, "journal of commit %d is missing write %d", id, len(ops))
		}
		rec, err := it.Value()
		if err != nil {
			return nil, storageErr(err, "reading journal")
		}
		table, key, value, del, err := encoding.DecodeJournalRecord(rec)
		if err != nil {
			return nil, err
		}
		ops = append(ops, batchOp{table: Table(table), key: key, value: value, del: del})
	}
	return ops, nil
}

// clearJournal deletes every staged write.
func (s *TripleStore) clearJournal() error {
	txn, err := s.storage.Begin(false)
	if err != nil {
		return storageErr(err, "begin journal cleanup")
	}
	it, err := txn.Scan(TableJournal, nil)
	if err != nil {
		_ = txn.Rollback()
		return storageErr(err, "scanning journal")
	}
	var keys [][]byte
	for it.Next() {
		keys = append(keys, it.Key())
	}
	_ = it.Close()
	_ = txn.Rollback()
	return s.deleteKeys(TableJournal, keys, "clearing journal")
}

// deleteKeys removes keys from table, spilling across storage
// transactions. Each delete is idempotent, so a partial run is safe.
func (s *TripleStore) deleteKeys(table Table, keys [][]byte, msg string) error {
	if len(keys) == 0 {
		return nil
	}
	w := newSpillWriter(s.storage)
	for _, k := range keys {
		if err := w.write(batchOp{table: table, key: k, del: true}); err != nil {
			w.rollback()
			return storageErr(errTooBig(err), msg)
		}
	}
	if err := w.flush(); err != nil {
		return storageErr(err, msg)
	}
	return nil
}

// errTooBig codes a single write that exceeds the storage batch limit on
// its own. Retrying cannot help.
func errTooBig(err error) error {
	if err == ErrTxnTooBig {
		return errors.WrapCode(err, errors.ErrMalformedInput, "write exceeds the storage transaction limit")
	}
	return err
}
