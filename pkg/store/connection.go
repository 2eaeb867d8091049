package store

import (
	"context"

	"github.com/ansell/openrdf-sesame-sub028/pkg/errors"
	"github.com/ansell/openrdf-sesame-sub028/pkg/iteration"
	"github.com/ansell/openrdf-sesame-sub028/pkg/query"
	"github.com/ansell/openrdf-sesame-sub028/pkg/query/algebra"
	"github.com/ansell/openrdf-sesame-sub028/pkg/query/evaluator"
	"github.com/ansell/openrdf-sesame-sub028/pkg/query/executor"
	"github.com/ansell/openrdf-sesame-sub028/pkg/rdf"
)

// SailConnection is the contract shared by store connections and the
// decorators that wrap them.
type SailConnection interface {
	// Begin starts a write transaction. Writes start one implicitly.
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error
	IsActive() bool
	// Close rolls back an active transaction and closes every cursor
	// obtained through the connection.
	Close() error

	// AddStatement asserts a statement in each context, or in the
	// default graph when no context is given.
	AddStatement(subj, pred, obj rdf.Term, contexts ...rdf.Term) error
	// RemoveStatements retracts the explicit statements matching the
	// pattern. Nil components are wildcards; no contexts means all
	// contexts.
	RemoveStatements(subj, pred, obj rdf.Term, contexts ...rdf.Term) (bool, error)
	// Clear removes every explicit statement in the given contexts, or
	// in the whole store.
	Clear(contexts ...rdf.Term) error
	AddAll(quads iteration.Iteration[*rdf.Quad]) error

	GetStatements(subj, pred, obj rdf.Term, includeInferred bool, contexts ...rdf.Term) (StatementIterator, error)
	// Size counts explicit statements.
	Size(contexts ...rdf.Term) (int, error)
	// ContextIDs returns the distinct named contexts holding explicit
	// statements.
	ContextIDs() (iteration.Iteration[rdf.Term], error)
	Evaluate(expr algebra.TupleExpr, dataset *query.Dataset, bindings *query.BindingSet, includeInferred bool) (iteration.Iteration[*query.BindingSet], error)
}

// InferencerConnection adds the operations an inferencer uses to
// maintain inferred statements.
type InferencerConnection interface {
	SailConnection
	AddInferredStatement(subj, pred, obj rdf.Term, contexts ...rdf.Term) (bool, error)
	RemoveInferredStatements(subj, pred, obj rdf.Term, contexts ...rdf.Term) (bool, error)
	ClearInferred(contexts ...rdf.Term) error
}

var _ InferencerConnection = (*Connection)(nil)

// Connection is a view over a TripleStore. Inside a transaction it sees
// its own changes; outside one it reads the latest committed snapshot.
// A Connection must not be used from more than one goroutine at a time.
type Connection struct {
	store  *TripleStore
	active bool
	closed bool

	// cursors holds every cursor handed out; txnCursors those reading
	// the transaction view, which end with the transaction.
	cursors    *iteration.Tracker
	txnCursors *iteration.Tracker
}

func newConnection(s *TripleStore) *Connection {
	return &Connection{
		store:      s,
		cursors:    iteration.NewTracker(),
		txnCursors: iteration.NewTracker(),
	}
}

func (c *Connection) checkOpen() error {
	if c.closed {
		return errors.New(errors.ErrClosed, "connection is closed")
	}
	if c.store.closed.Load() {
		return errors.New(errors.ErrClosed, "store is closed")
	}
	return nil
}

func (c *Connection) Begin(ctx context.Context) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if c.active {
		return errors.New(errors.ErrTransaction, "transaction already active")
	}
	if err := c.store.acquire(ctx); err != nil {
		return err
	}
	c.active = true
	return nil
}

// ensureActive starts a transaction for a write if none is running.
func (c *Connection) ensureActive() error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if c.active {
		return nil
	}
	return c.Begin(context.Background())
}

func (c *Connection) IsActive() bool {
	return c.active
}

// Commit publishes the transaction. When persisting fails the store is
// unchanged and the transaction stays active, so the caller can retry or
// roll back. An ErrDurability error ends the transaction: its writes are
// stored and published, only the sync failed.
func (c *Connection) Commit() error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if !c.active {
		return nil
	}
	if err := c.txnCursors.CloseAll(); err != nil {
		return err
	}
	err := c.store.commit()
	if err != nil && !errors.Is(err, errors.ErrDurability) {
		return err
	}
	c.active = false
	c.store.release()
	return err
}

func (c *Connection) Rollback() error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	c.rollback()
	return nil
}

func (c *Connection) rollback() {
	if !c.active {
		return
	}
	_ = c.txnCursors.CloseAll()
	c.store.rollback()
	c.active = false
	c.store.release()
}

func (c *Connection) Close() error {
	if c.closed {
		return nil
	}
	if c.active {
		c.store.log.Warnf("closing connection with an active transaction, rolling back")
		c.rollback()
	}
	c.closed = true
	return c.cursors.CloseAll()
}

func (c *Connection) AddStatement(subj, pred, obj rdf.Term, contexts ...rdf.Term) error {
	_, err := c.add(true, subj, pred, obj, contexts)
	return err
}

func (c *Connection) AddInferredStatement(subj, pred, obj rdf.Term, contexts ...rdf.Term) (bool, error) {
	return c.add(false, subj, pred, obj, contexts)
}

func (c *Connection) add(explicit bool, subj, pred, obj rdf.Term, contexts []rdf.Term) (bool, error) {
	if err := c.ensureActive(); err != nil {
		return false, err
	}
	if len(contexts) == 0 {
		contexts = []rdf.Term{rdf.NewDefaultGraph()}
	}
	changed := false
	for _, ctx := range contexts {
		if ctx == nil {
			ctx = rdf.NewDefaultGraph()
		}
		ids, err := c.store.resolveForWrite(subj, pred, obj, ctx)
		if err != nil {
			return changed, err
		}
		if c.store.addStatement(ids, explicit) {
			changed = true
		}
	}
	return changed, nil
}

func (c *Connection) RemoveStatements(subj, pred, obj rdf.Term, contexts ...rdf.Term) (bool, error) {
	return c.remove(true, subj, pred, obj, contexts)
}

func (c *Connection) RemoveInferredStatements(subj, pred, obj rdf.Term, contexts ...rdf.Term) (bool, error) {
	return c.remove(false, subj, pred, obj, contexts)
}

func (c *Connection) remove(explicit bool, subj, pred, obj rdf.Term, contexts []rdf.Term) (bool, error) {
	if err := c.ensureActive(); err != nil {
		return false, err
	}
	return c.store.removeStatements(NewPattern(subj, pred, obj, contexts...), explicit)
}

func (c *Connection) Clear(contexts ...rdf.Term) error {
	_, err := c.RemoveStatements(nil, nil, nil, contexts...)
	return err
}

func (c *Connection) ClearInferred(contexts ...rdf.Term) error {
	_, err := c.RemoveInferredStatements(nil, nil, nil, contexts...)
	return err
}

// AddAll asserts every quad of quads and closes it.
func (c *Connection) AddAll(quads iteration.Iteration[*rdf.Quad]) error {
	if err := c.ensureActive(); err != nil {
		_ = quads.Close()
		return err
	}
	return iteration.ForEach(quads, func(q *rdf.Quad) error {
		return c.AddStatement(q.Subject, q.Predicate, q.Object, q.Graph)
	})
}

func (c *Connection) GetStatements(subj, pred, obj rdf.Term, includeInferred bool, contexts ...rdf.Term) (StatementIterator, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	it := c.store.getStatements(NewPattern(subj, pred, obj, contexts...), includeInferred, view{txn: c.active})
	it = iteration.Track(c.cursors, it)
	if c.active {
		it = iteration.Track(c.txnCursors, it)
	}
	return it, nil
}

func (c *Connection) Size(contexts ...rdf.Term) (int, error) {
	it, err := c.GetStatements(nil, nil, nil, false, contexts...)
	if err != nil {
		return 0, err
	}
	return iteration.Count(it)
}

func (c *Connection) ContextIDs() (iteration.Iteration[rdf.Term], error) {
	it, err := c.GetStatements(nil, nil, nil, false)
	if err != nil {
		return nil, err
	}
	named := iteration.Filter(it, func(st *Statement) (bool, error) {
		return !rdf.IsDefaultGraph(st.Context), nil
	})
	contexts := iteration.Convert(named, func(st *Statement) (rdf.Term, error) {
		return st.Context, nil
	})
	return iteration.Distinct(contexts, rdf.Term.String), nil
}

// Evaluate runs a query over the statements this connection sees.
func (c *Connection) Evaluate(expr algebra.TupleExpr, dataset *query.Dataset, bindings *query.BindingSet, includeInferred bool) (iteration.Iteration[*query.BindingSet], error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	it, err := evaluateOn(c, expr, dataset, bindings, includeInferred, c.store.opts.Functions)
	if err != nil {
		return nil, err
	}
	return iteration.Track(c.cursors, it), nil
}

// evaluateOn evaluates expr with the statements of conn as its source.
func evaluateOn(conn SailConnection, expr algebra.TupleExpr, dataset *query.Dataset, bindings *query.BindingSet, includeInferred bool, functions *evaluator.FunctionRegistry) (iteration.Iteration[*query.BindingSet], error) {
	src := &connectionSource{conn: conn, includeInferred: includeInferred}
	return executor.NewStrategy(src, dataset, functions).Evaluate(expr, bindings)
}

// connectionSource adapts a connection to the executor's TripleSource.
type connectionSource struct {
	conn            SailConnection
	includeInferred bool
}

func (s *connectionSource) Statements(subj, pred, obj rdf.Term, contexts ...rdf.Term) (iteration.Iteration[*rdf.Quad], error) {
	it, err := s.conn.GetStatements(subj, pred, obj, s.includeInferred, contexts...)
	if err != nil {
		return nil, err
	}
	return iteration.Convert(it, func(st *Statement) (*rdf.Quad, error) {
		return st.Quad(), nil
	}), nil
}
