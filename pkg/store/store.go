package store

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ansell/openrdf-sesame-sub028/internal/encoding"
	"github.com/ansell/openrdf-sesame-sub028/pkg/errors"
	"github.com/ansell/openrdf-sesame-sub028/pkg/iteration"
	"github.com/ansell/openrdf-sesame-sub028/pkg/logger"
	"github.com/ansell/openrdf-sesame-sub028/pkg/query/evaluator"
	"github.com/ansell/openrdf-sesame-sub028/pkg/rdf"
)

// ConflictMode says what Begin does while another transaction holds the
// write lock.
type ConflictMode int

const (
	// ConflictBlock waits for the lock, at most Options.LockTimeout.
	ConflictBlock ConflictMode = iota
	// ConflictFailFast fails immediately.
	ConflictFailFast
)

const (
	DefaultLockTimeout      = 5 * time.Second
	DefaultCompactThreshold = 1024
)

var (
	metaIndexes = []byte("indexes")
	metaNextID  = []byte("next-id")
)

// Options configure a TripleStore.
type Options struct {
	// Storage persists committed statements. Nil keeps everything in
	// memory only.
	Storage Storage
	// Indexes is the index specification, e.g. "spoc,posc".
	Indexes string
	// CompactThreshold is the number of dead tuple versions that triggers
	// compaction on the next scan.
	CompactThreshold int
	ConflictMode     ConflictMode
	LockTimeout      time.Duration
	// SyncOnCommit flushes storage after every commit.
	SyncOnCommit bool
	Logger       logger.Logger
	Metrics      *Metrics
	// Functions resolves function calls in evaluated queries. Nil uses
	// the built-in functions.
	Functions *evaluator.FunctionRegistry
}

// TripleStore holds statements in a set of permutation indexes and
// versions them so readers see consistent snapshots while one writer
// modifies the store.
type TripleStore struct {
	opts    Options
	log     logger.Logger
	metrics *Metrics
	storage Storage
	dict    *Dictionary
	indexes []*index

	// version is the latest published store version.
	version atomic.Uint64

	// writePermit admits one write transaction at a time. The fields below
	// it belong to the permit holder.
	writePermit *semaphore.Weighted
	seq         uint64
	live        map[[4]uint64]*tuple
	touched     []*tuple
	touchedSet  map[*tuple]struct{}
	// journalPending is set while a published journal is not yet applied.
	journalPending bool

	// compactMu excludes physical removal from indexes while a scan picks
	// its version and snapshot.
	compactMu sync.RWMutex
	gcMu      sync.Mutex
	garbage   []*tuple

	openCursors atomic.Int64
	closed      atomic.Bool
}

// Open creates a store and loads any statements held by opts.Storage.
func Open(opts Options) (*TripleStore, error) {
	perms, err := ParseIndexSpec(opts.Indexes)
	if err != nil {
		return nil, err
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = DefaultLockTimeout
	}
	if opts.CompactThreshold <= 0 {
		opts.CompactThreshold = DefaultCompactThreshold
	}
	if opts.Logger == nil {
		opts.Logger = logger.NopLogger
	}
	if opts.Functions == nil {
		opts.Functions = evaluator.NewFunctionRegistry()
	}
	opts.Indexes = FormatIndexSpec(perms)

	s := &TripleStore{
		opts:        opts,
		log:         opts.Logger,
		metrics:     opts.Metrics,
		storage:     opts.Storage,
		dict:        NewDictionary(),
		writePermit: semaphore.NewWeighted(1),
		live:        make(map[[4]uint64]*tuple),
		touchedSet:  make(map[*tuple]struct{}),
	}
	for _, p := range perms {
		s.indexes = append(s.indexes, newIndex(p))
	}

	if s.storage != nil {
		if err := s.load(); err != nil {
			return nil, err
		}
	}
	s.metrics.setStatements(len(s.live))
	s.log.Infof("opened store with indexes %s, %d statements, %d values", opts.Indexes, len(s.live), s.dict.Len())
	return s, nil
}

// Indexes returns the active index specification.
func (s *TripleStore) Indexes() string {
	return s.opts.Indexes
}

// Dictionary returns the store's value dictionary.
func (s *TripleStore) Dictionary() *Dictionary {
	return s.dict
}

// Version returns the latest published version.
func (s *TripleStore) Version() uint64 {
	return s.version.Load()
}

// NewConnection opens a connection to the store.
func (s *TripleStore) NewConnection() (*Connection, error) {
	if s.closed.Load() {
		return nil, errors.New(errors.ErrClosed, "store is closed")
	}
	return newConnection(s), nil
}

// Close releases the storage. Transactions still running are abandoned.
func (s *TripleStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if !s.writePermit.TryAcquire(1) {
		s.log.Warnf("closing store while a transaction is active")
	}
	s.log.Infof("closing store")
	if s.storage != nil {
		return s.storage.Close()
	}
	return nil
}

// storageErr codes an error from the storage layer. Errors that already
// carry a code (decoding failures) keep it.
func storageErr(err error, msg string) error {
	if errors.CodeOf(err) != errors.ErrUncoded {
		return errors.Wrap(err, msg)
	}
	return errors.WrapCode(err, errors.ErrStoreTransient, msg)
}

// load reads the dictionary and statements from storage and brings the
// stored index tables in line with the configured specification.
func (s *TripleStore) load() error {
	if err := s.recoverJournal(); err != nil {
		return err
	}
	txn, err := s.storage.Begin(false)
	if err != nil {
		return storageErr(err, "begin load")
	}
	defer func() { _ = txn.Rollback() }()

	storedSpec := ""
	if v, err := txn.Get(TableMeta, metaIndexes); err == nil {
		storedSpec = string(v)
	} else if err != ErrNotFound {
		return storageErr(err, "reading index specification")
	}

	if err := s.loadValues(txn); err != nil {
		return err
	}

	var stored []Permutation
	if storedSpec != "" {
		if stored, err = ParseIndexSpec(storedSpec); err != nil {
			return errors.WrapCode(err, errors.ErrStoreCorruption, "stored index specification")
		}
		if err := s.loadStatements(txn, stored[0]); err != nil {
			return err
		}
	}
	_ = txn.Rollback()

	if storedSpec != s.opts.Indexes {
		return s.rebuildIndexes(stored)
	}
	return nil
}

func (s *TripleStore) loadValues(txn Transaction) error {
	dec := encoding.NewTermDecoder()
	it, err := txn.Scan(TableValues, nil)
	if err != nil {
		return storageErr(err, "scanning values")
	}
	defer it.Close()
	for it.Next() {
		id, err := encoding.DecodeID(it.Key())
		if err != nil {
			return err
		}
		rec, err := it.Value()
		if err != nil {
			return storageErr(err, "reading value")
		}
		v, err := dec.DecodeTerm(rec)
		if err != nil {
			return errors.Wrapf(err, "value %d", id)
		}
		if err := s.dict.load(id, v); err != nil {
			return err
		}
	}

	if raw, err := txn.Get(TableMeta, metaNextID); err == nil {
		next, err := encoding.DecodeID(raw)
		if err != nil {
			return err
		}
		s.dict.mu.Lock()
		if next > s.dict.nextID {
			s.dict.nextID = next
		}
		s.dict.mu.Unlock()
	} else if err != ErrNotFound {
		return storageErr(err, "reading next id")
	}
	return nil
}

func (s *TripleStore) loadStatements(txn Transaction, perm Permutation) error {
	table, _ := IndexTable(perm.code)
	it, err := txn.Scan(table, nil)
	if err != nil {
		return storageErr(err, "scanning statements")
	}
	defer it.Close()
	for it.Next() {
		ids, err := encoding.DecodeIndexKey(perm.order, it.Key())
		if err != nil {
			return err
		}
		raw, err := it.Value()
		if err != nil {
			return storageErr(err, "reading statement")
		}
		explicit, err := encoding.DecodeIndexValue(raw)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if _, ok := s.dict.Value(id); !ok {
				return errors.Newf(errors.ErrStoreCorruption, "stored statement references unknown value id %d", id)
			}
		}
		s.seq++
		t := newTuple(ids, explicit, s.seq)
		t.status = Neutral
		t.since.Store(0)
		s.live[ids] = t
		for _, ix := range s.indexes {
			ix.insert(t)
		}
	}
	return nil
}

// rebuildIndexes writes the tables of newly configured permutations and
// clears the tables of dropped ones. The stored specification changes only
// after every new table is complete, and dropped tables are cleared after
// that, so an interrupted rebuild reruns on the next load.
func (s *TripleStore) rebuildIndexes(stored []Permutation) error {
	storedSet := make(map[string]bool)
	for _, p := range stored {
		storedSet[p.code] = true
	}
	configured := make(map[string]bool)

	w := newSpillWriter(s.storage)
	for _, ix := range s.indexes {
		configured[ix.perm.code] = true
		if storedSet[ix.perm.code] {
			continue
		}
		s.log.Infof("building index %s", ix.perm.code)
		if err := s.clearTable(ix.perm.code); err != nil {
			return err
		}
		table, _ := IndexTable(ix.perm.code)
		for _, t := range s.live {
			op := batchOp{table: table, key: encoding.EncodeIndexKey(ix.perm.order, t.ids), value: encoding.EncodeIndexValue(t.explicit)}
			if err := w.write(op); err != nil {
				w.rollback()
				return storageErr(errTooBig(err), "building index")
			}
		}
	}
	if err := w.write(batchOp{table: TableMeta, key: metaIndexes, value: []byte(s.opts.Indexes)}); err != nil {
		w.rollback()
		return storageErr(errTooBig(err), "writing index specification")
	}
	if err := w.flush(); err != nil {
		return storageErr(err, "commit index rebuild")
	}

	for _, p := range stored {
		if configured[p.code] {
			continue
		}
		s.log.Infof("dropping index %s", p.code)
		if err := s.clearTable(p.code); err != nil {
			return err
		}
	}
	return nil
}

func (s *TripleStore) clearTable(code string) error {
	table, _ := IndexTable(code)
	txn, err := s.storage.Begin(false)
	if err != nil {
		return storageErr(err, "begin index cleanup")
	}
	it, err := txn.Scan(table, nil)
	if err != nil {
		_ = txn.Rollback()
		return storageErr(err, "scanning index")
	}
	var keys [][]byte
	for it.Next() {
		keys = append(keys, it.Key())
	}
	_ = it.Close()
	_ = txn.Rollback()
	return s.deleteKeys(table, keys, "clearing index")
}

// acquire takes the write permit according to the conflict mode.
func (s *TripleStore) acquire(ctx context.Context) error {
	if s.closed.Load() {
		return errors.New(errors.ErrClosed, "store is closed")
	}
	start := time.Now()
	if s.opts.ConflictMode == ConflictFailFast {
		if !s.writePermit.TryAcquire(1) {
			return errors.New(errors.ErrConcurrentModification, "another transaction is active")
		}
	} else {
		ctx, cancel := context.WithTimeout(ctx, s.opts.LockTimeout)
		defer cancel()
		if err := s.writePermit.Acquire(ctx, 1); err != nil {
			return errors.WrapCode(err, errors.ErrConcurrentModification, "waiting for the write lock")
		}
	}
	s.metrics.observeLockWait(time.Since(start))
	return nil
}

func (s *TripleStore) release() {
	s.writePermit.Release(1)
}

func (s *TripleStore) touch(t *tuple) {
	if _, ok := s.touchedSet[t]; ok {
		return
	}
	s.touchedSet[t] = struct{}{}
	s.touched = append(s.touched, t)
}

// addStatement adds one statement in the running transaction and reports
// whether the store changed.
func (s *TripleStore) addStatement(ids [4]uint64, explicit bool) bool {
	op := opAddInferred
	if explicit {
		op = opAddExplicit
	}
	if t, ok := s.live[ids]; ok {
		return s.apply(t, op)
	}
	s.seq++
	t := newTuple(ids, explicit, s.seq)
	s.live[ids] = t
	for _, ix := range s.indexes {
		ix.insert(t)
	}
	s.touch(t)
	return true
}

func (s *TripleStore) apply(t *tuple, op txnOp) bool {
	tr, ok := nextStatus(t.status, t.explicit, op)
	if !ok {
		return false
	}
	t.status = tr.to
	switch tr.flag {
	case setExplicit:
		t.explicit = true
	case setInferred:
		t.explicit = false
	}
	s.touch(t)
	return true
}

// removeStatements applies a removal to every statement the transaction
// owner sees matching p. It reports whether anything changed.
func (s *TripleStore) removeStatements(p *Pattern, explicit bool) (bool, error) {
	op := opRemoveInferred
	if explicit {
		op = opRemoveExplicit
	}
	matches, err := iteration.Collect(s.scanTuples(p, view{txn: true}))
	if err != nil {
		return false, err
	}
	changed := false
	for _, t := range matches {
		if s.apply(t, op) {
			changed = true
		}
	}
	return changed, nil
}

// commit persists the transaction and publishes it as a new version. On a
// storage failure nothing in memory changes and the transaction stays
// open. A failed sync after the writes reached storage still publishes
// the version and is reported as ErrDurability.
func (s *TripleStore) commit() error {
	if !s.hasChanges() {
		return nil
	}
	start := time.Now()
	var syncErr error
	if s.storage != nil {
		durable, err := s.persist()
		if !durable {
			s.metrics.commitFailed()
			s.log.Errorf("commit failed: %v", err)
			return err
		}
		if err != nil {
			s.log.Errorf("commit stored but not synced: %v", err)
			syncErr = err
		}
	}

	newV := s.version.Load() + 1
	var dead []*tuple
	added, removed := 0, 0
	for _, t := range s.touched {
		switch t.status {
		case New:
			t.since.Store(newV)
			t.status = Neutral
			added++
		case Deprecated:
			t.till.Store(newV)
			delete(s.live, t.ids)
			dead = append(dead, t)
			removed++
		case Zombie:
			if s.live[t.ids] == t {
				delete(s.live, t.ids)
			}
			dead = append(dead, t)
		case Explicit, Inferred:
			want := explicitInTxn(t.status, t.explicit)
			t.status = Neutral
			if want == t.explicit {
				continue
			}
			s.seq++
			nt := newTuple(t.ids, want, s.seq)
			nt.status = Neutral
			nt.since.Store(newV)
			for _, ix := range s.indexes {
				ix.insert(nt)
			}
			s.live[t.ids] = nt
			t.till.Store(newV)
			dead = append(dead, t)
		}
	}
	s.version.Store(newV)
	s.resetTxn()

	if len(dead) > 0 {
		s.gcMu.Lock()
		s.garbage = append(s.garbage, dead...)
		s.gcMu.Unlock()
	}
	s.metrics.committed(time.Since(start))
	s.metrics.setStatements(len(s.live))
	s.log.Debugf("committed version %d: +%d -%d statements", newV, added, removed)
	return syncErr
}

// persist writes the transaction to storage. Once durable is true the
// commit has reached storage; err then reports a failed sync.
func (s *TripleStore) persist() (durable bool, err error) {
	if s.journalPending {
		if err := s.recoverJournal(); err != nil {
			return false, err
		}
	}
	values, nextID, err := s.dict.pendingValues()
	if err != nil {
		return false, errors.WrapCode(err, errors.ErrMalformedInput, "encoding values")
	}
	ops := s.changeSet(values, nextID)

	switch err := s.writeAtomic(ops); {
	case err == ErrTxnTooBig:
		s.log.Infof("commit of %d writes exceeds one storage transaction, journaling it", len(ops))
		published, err := s.writeJournaled(ops)
		if !published {
			return false, err
		}
		if err != nil {
			s.log.Errorf("commit is published but not applied, it is replayed later: %v", err)
		}
	case err != nil:
		return false, err
	}
	s.dict.persisted(values)

	if s.opts.SyncOnCommit {
		if err := s.storage.Sync(); err != nil {
			return true, errors.WrapCode(err, errors.ErrDurability, "sync")
		}
	}
	return true, nil
}

// changeSet lists the storage writes of the running transaction.
func (s *TripleStore) changeSet(values map[uint64][]byte, nextID uint64) []batchOp {
	ops := make([]batchOp, 0, len(values)+1+len(s.touched)*len(s.indexes))
	for id, rec := range values {
		ops = append(ops, batchOp{table: TableValues, key: encoding.EncodeID(id), value: rec})
	}
	ops = append(ops, batchOp{table: TableMeta, key: metaNextID, value: encoding.EncodeID(nextID)})
	for _, t := range s.touched {
		switch t.status {
		case New:
			ops = s.appendTuple(ops, t.ids, t.explicit)
		case Deprecated:
			for _, ix := range s.indexes {
				table, _ := IndexTable(ix.perm.code)
				ops = append(ops, batchOp{table: table, key: encoding.EncodeIndexKey(ix.perm.order, t.ids), del: true})
			}
		case Explicit, Inferred:
			if want := explicitInTxn(t.status, t.explicit); want != t.explicit {
				ops = s.appendTuple(ops, t.ids, want)
			}
		}
	}
	return ops
}

func (s *TripleStore) appendTuple(ops []batchOp, ids [4]uint64, explicit bool) []batchOp {
	val := encoding.EncodeIndexValue(explicit)
	for _, ix := range s.indexes {
		table, _ := IndexTable(ix.perm.code)
		ops = append(ops, batchOp{table: table, key: encoding.EncodeIndexKey(ix.perm.order, ids), value: val})
	}
	return ops
}

// rollback discards the transaction's changes.
func (s *TripleStore) rollback() {
	for _, t := range s.touched {
		switch t.status {
		case New, Zombie:
			if s.live[t.ids] == t {
				delete(s.live, t.ids)
			}
			for _, ix := range s.indexes {
				ix.remove(t)
			}
		default:
			t.status = Neutral
		}
	}
	n := len(s.touched)
	s.resetTxn()
	s.metrics.rolledBack()
	s.log.Debugf("rolled back %d changed statements", n)
}

func (s *TripleStore) resetTxn() {
	s.touched = nil
	s.touchedSet = make(map[*tuple]struct{})
}

// hasChanges reports whether the running transaction touched anything.
func (s *TripleStore) hasChanges() bool {
	return len(s.touched) > 0
}

// resolveForWrite assigns ids to the four values of a statement.
func (s *TripleStore) resolveForWrite(subj, pred, obj, ctx rdf.Term) ([4]uint64, error) {
	var ids [4]uint64
	if err := rdf.ValidateQuad(subj, pred, obj, ctx); err != nil {
		return ids, err
	}
	for i, v := range []rdf.Term{subj, pred, obj, ctx} {
		id, err := s.dict.GetOrAdd(v)
		if err != nil {
			return ids, err
		}
		ids[i] = id
	}
	return ids, nil
}

// scanTuples returns the tuples matching p in the given view.
func (s *TripleStore) scanTuples(p *Pattern, v view) iteration.Iteration[*tuple] {
	c, release := s.newCursor(p, v, true)
	if c == nil {
		return iteration.Empty[*tuple]()
	}
	return iteration.NewLookAhead(func() (*tuple, bool, error) {
		for c.current < len(c.scanners) {
			sc := c.scanners[c.current]
			for t := sc.next(); t != nil; t = sc.next() {
				if _, ok := c.accept(t, sc.prefix); ok {
					return t, true, nil
				}
			}
			c.current++
		}
		return nil, false, nil
	}, func() error {
		release()
		return nil
	})
}

// getStatements returns the statements matching p in the given view. A
// snapshot view reads the latest committed version.
func (s *TripleStore) getStatements(p *Pattern, includeInferred bool, v view) StatementIterator {
	c, release := s.newCursor(p, v, includeInferred)
	if c == nil {
		return iteration.Empty[*Statement]()
	}
	return iteration.NewLookAhead(c.fetch, func() error {
		release()
		return nil
	})
}

// newCursor resolves p, picks an index and takes the snapshot. It returns
// nil when nothing can match.
func (s *TripleStore) newCursor(p *Pattern, v view, includeInferred bool) (*statementCursor, func()) {
	rp := p.resolve(s.dict)
	if !rp.ok {
		return nil, nil
	}
	s.maybeCompact()

	bound := rp.bound
	bound[posContext] = !rp.anyCtx
	ix := selectIndex(s.indexes, bound)

	s.openCursors.Add(1)
	s.metrics.cursorOpened()
	s.compactMu.RLock()
	if !v.txn {
		v.version = s.version.Load()
	}
	tree := ix.snapshot()
	s.compactMu.RUnlock()

	c := &statementCursor{s: s, view: v, includeInferred: includeInferred, pattern: rp, ix: ix}
	if rp.anyCtx {
		c.scanners = []*rangeScanner{newRangeScanner(ix, tree, rp.ids, bound)}
	} else {
		for _, ctx := range rp.contexts {
			ids := rp.ids
			ids[posContext] = ctx
			c.scanners = append(c.scanners, newRangeScanner(ix, tree, ids, bound))
		}
	}
	var once sync.Once
	return c, func() {
		once.Do(func() {
			s.openCursors.Add(-1)
			s.metrics.cursorClosed()
		})
	}
}

// Count returns the number of committed statements, explicit and
// inferred.
func (s *TripleStore) Count() (int, error) {
	return iteration.Count(s.getStatements(NewPattern(nil, nil, nil), true, view{}))
}

func (s *TripleStore) maybeCompact() {
	s.gcMu.Lock()
	n := len(s.garbage)
	s.gcMu.Unlock()
	if n >= s.opts.CompactThreshold {
		s.compactTuples()
	}
}

// compactTuples removes dead tuple versions from the indexes. Scans that
// already took a snapshot keep seeing them.
func (s *TripleStore) compactTuples() int {
	s.gcMu.Lock()
	garbage := s.garbage
	s.garbage = nil
	s.gcMu.Unlock()
	if len(garbage) == 0 {
		return 0
	}

	current := s.version.Load()
	var keep []*tuple
	removed := 0
	s.compactMu.Lock()
	for _, t := range garbage {
		if t.since.Load() != notYet && t.till.Load() > current {
			keep = append(keep, t)
			continue
		}
		for _, ix := range s.indexes {
			ix.remove(t)
		}
		removed++
	}
	s.compactMu.Unlock()

	if len(keep) > 0 {
		s.gcMu.Lock()
		s.garbage = append(s.garbage, keep...)
		s.gcMu.Unlock()
	}
	s.metrics.compacted(removed)
	s.log.Debugf("compacted %d dead statement versions", removed)
	return removed
}

// Compact removes dead statement versions and, when no cursor is open,
// drops dictionary values that no statement references. It waits for the
// write lock like Begin does.
func (s *TripleStore) Compact(ctx context.Context) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	s.compactTuples()
	if n := s.openCursors.Load(); n > 0 {
		s.log.Debugf("skipping value compaction: %d cursors open", n)
		return nil
	}

	referenced := make(map[uint64]struct{})
	for ids := range s.live {
		for _, id := range ids {
			referenced[id] = struct{}{}
		}
	}
	dropped := s.dict.retain(func(id uint64) bool {
		_, ok := referenced[id]
		return ok
	})
	if len(dropped) == 0 {
		return nil
	}
	s.log.Infof("dropped %d unused values, dictionary revision %d", len(dropped), s.dict.Revision())

	if s.storage == nil {
		return nil
	}
	keys := make([][]byte, len(dropped))
	for i, id := range dropped {
		keys[i] = encoding.EncodeID(id)
	}
	return s.deleteKeys(TableValues, keys, "deleting values")
}
