package store

import (
	"context"

	"github.com/ansell/openrdf-sesame-sub028/pkg/errors"
	"github.com/ansell/openrdf-sesame-sub028/pkg/iteration"
	"github.com/ansell/openrdf-sesame-sub028/pkg/query"
	"github.com/ansell/openrdf-sesame-sub028/pkg/query/algebra"
	"github.com/ansell/openrdf-sesame-sub028/pkg/rdf"
)

// Change describes a write passing through a Forwarding connection. For
// removals nil components are wildcards.
type Change struct {
	Subject   rdf.Term
	Predicate rdf.Term
	Object    rdf.Term
	Contexts  []rdf.Term
	Inferred  bool
}

// Hooks are the functions a Forwarding connection runs around the calls
// it forwards. Every field is optional. A Before hook that returns an
// error stops the call before it reaches the delegate.
type Hooks struct {
	BeforeAdd    func(ch Change) error
	AfterAdd     func(ch Change)
	BeforeRemove func(ch Change) error
	AfterRemove  func(ch Change, removed bool)
	BeforeRead   func() error
	// BeforeCommit runs with the delegate so it can make final changes
	// inside the transaction.
	BeforeCommit  func(delegate InferencerConnection) error
	AfterCommit   func()
	AfterRollback func()
}

// Forwarding passes every call to a delegate connection and runs its
// hooks around them. Decorators are Forwarding values with different
// hooks, so they stack in any order.
type Forwarding struct {
	delegate InferencerConnection
	hooks    Hooks
}

var _ InferencerConnection = (*Forwarding)(nil)

func NewForwarding(delegate InferencerConnection, hooks Hooks) *Forwarding {
	return &Forwarding{delegate: delegate, hooks: hooks}
}

// Delegate returns the wrapped connection.
func (f *Forwarding) Delegate() InferencerConnection {
	return f.delegate
}

func (f *Forwarding) Begin(ctx context.Context) error {
	return f.delegate.Begin(ctx)
}

func (f *Forwarding) IsActive() bool {
	return f.delegate.IsActive()
}

func (f *Forwarding) Commit() error {
	if f.hooks.BeforeCommit != nil && f.delegate.IsActive() {
		if err := f.hooks.BeforeCommit(f.delegate); err != nil {
			return err
		}
	}
	err := f.delegate.Commit()
	if err != nil && !errors.Is(err, errors.ErrDurability) {
		return err
	}
	if f.hooks.AfterCommit != nil {
		f.hooks.AfterCommit()
	}
	return err
}

func (f *Forwarding) Rollback() error {
	if err := f.delegate.Rollback(); err != nil {
		return err
	}
	if f.hooks.AfterRollback != nil {
		f.hooks.AfterRollback()
	}
	return nil
}

func (f *Forwarding) Close() error {
	wasActive := f.delegate.IsActive()
	err := f.delegate.Close()
	if wasActive && f.hooks.AfterRollback != nil {
		f.hooks.AfterRollback()
	}
	return err
}

func (f *Forwarding) beforeAdd(ch Change) error {
	if f.hooks.BeforeAdd != nil {
		return f.hooks.BeforeAdd(ch)
	}
	return nil
}

func (f *Forwarding) afterAdd(ch Change) {
	if f.hooks.AfterAdd != nil {
		f.hooks.AfterAdd(ch)
	}
}

func (f *Forwarding) beforeRemove(ch Change) error {
	if f.hooks.BeforeRemove != nil {
		return f.hooks.BeforeRemove(ch)
	}
	return nil
}

func (f *Forwarding) afterRemove(ch Change, removed bool) {
	if f.hooks.AfterRemove != nil {
		f.hooks.AfterRemove(ch, removed)
	}
}

func (f *Forwarding) beforeRead() error {
	if f.hooks.BeforeRead != nil {
		return f.hooks.BeforeRead()
	}
	return nil
}

func (f *Forwarding) AddStatement(subj, pred, obj rdf.Term, contexts ...rdf.Term) error {
	ch := Change{Subject: subj, Predicate: pred, Object: obj, Contexts: contexts}
	if err := f.beforeAdd(ch); err != nil {
		return err
	}
	if err := f.delegate.AddStatement(subj, pred, obj, contexts...); err != nil {
		return err
	}
	f.afterAdd(ch)
	return nil
}

func (f *Forwarding) AddInferredStatement(subj, pred, obj rdf.Term, contexts ...rdf.Term) (bool, error) {
	ch := Change{Subject: subj, Predicate: pred, Object: obj, Contexts: contexts, Inferred: true}
	if err := f.beforeAdd(ch); err != nil {
		return false, err
	}
	added, err := f.delegate.AddInferredStatement(subj, pred, obj, contexts...)
	if err != nil {
		return added, err
	}
	if added {
		f.afterAdd(ch)
	}
	return added, nil
}

func (f *Forwarding) RemoveStatements(subj, pred, obj rdf.Term, contexts ...rdf.Term) (bool, error) {
	ch := Change{Subject: subj, Predicate: pred, Object: obj, Contexts: contexts}
	if err := f.beforeRemove(ch); err != nil {
		return false, err
	}
	removed, err := f.delegate.RemoveStatements(subj, pred, obj, contexts...)
	if err != nil {
		return removed, err
	}
	f.afterRemove(ch, removed)
	return removed, nil
}

func (f *Forwarding) RemoveInferredStatements(subj, pred, obj rdf.Term, contexts ...rdf.Term) (bool, error) {
	ch := Change{Subject: subj, Predicate: pred, Object: obj, Contexts: contexts, Inferred: true}
	if err := f.beforeRemove(ch); err != nil {
		return false, err
	}
	removed, err := f.delegate.RemoveInferredStatements(subj, pred, obj, contexts...)
	if err != nil {
		return removed, err
	}
	f.afterRemove(ch, removed)
	return removed, nil
}

func (f *Forwarding) Clear(contexts ...rdf.Term) error {
	_, err := f.RemoveStatements(nil, nil, nil, contexts...)
	return err
}

func (f *Forwarding) ClearInferred(contexts ...rdf.Term) error {
	_, err := f.RemoveInferredStatements(nil, nil, nil, contexts...)
	return err
}

// AddAll routes every quad through AddStatement so the hooks see each
// one.
func (f *Forwarding) AddAll(quads iteration.Iteration[*rdf.Quad]) error {
	return iteration.ForEach(quads, func(q *rdf.Quad) error {
		return f.AddStatement(q.Subject, q.Predicate, q.Object, q.Graph)
	})
}

func (f *Forwarding) GetStatements(subj, pred, obj rdf.Term, includeInferred bool, contexts ...rdf.Term) (StatementIterator, error) {
	if err := f.beforeRead(); err != nil {
		return nil, err
	}
	return f.delegate.GetStatements(subj, pred, obj, includeInferred, contexts...)
}

func (f *Forwarding) Size(contexts ...rdf.Term) (int, error) {
	if err := f.beforeRead(); err != nil {
		return 0, err
	}
	return f.delegate.Size(contexts...)
}

func (f *Forwarding) ContextIDs() (iteration.Iteration[rdf.Term], error) {
	if err := f.beforeRead(); err != nil {
		return nil, err
	}
	return f.delegate.ContextIDs()
}

func (f *Forwarding) Evaluate(expr algebra.TupleExpr, dataset *query.Dataset, bindings *query.BindingSet, includeInferred bool) (iteration.Iteration[*query.BindingSet], error) {
	if err := f.beforeRead(); err != nil {
		return nil, err
	}
	return f.delegate.Evaluate(expr, dataset, bindings, includeInferred)
}

// Policy decides what an access controlled connection may do.
type Policy interface {
	CanRead() bool
	CanWrite(ch Change) bool
}

// NewAccessControl wraps delegate so that reads and writes the policy
// rejects fail with a PermissionDenied error.
func NewAccessControl(delegate InferencerConnection, policy Policy) *Forwarding {
	check := func(ch Change) error {
		if !policy.CanWrite(ch) {
			return errors.Newf(errors.ErrPermissionDenied, "write denied: %s %s %s", termString(ch.Subject), termString(ch.Predicate), termString(ch.Object))
		}
		return nil
	}
	return NewForwarding(delegate, Hooks{
		BeforeAdd:    check,
		BeforeRemove: check,
		BeforeRead: func() error {
			if !policy.CanRead() {
				return errors.New(errors.ErrPermissionDenied, "read denied")
			}
			return nil
		},
	})
}

func termString(t rdf.Term) string {
	if t == nil {
		return "*"
	}
	return t.String()
}

// ReadOnly is a Policy that allows reads only.
type ReadOnly struct{}

func (ReadOnly) CanRead() bool           { return true }
func (ReadOnly) CanWrite(ch Change) bool { return false }

// Listener is told about statements added to or removed from a
// connection. Removals report the statements that were visible, with
// wildcards resolved.
type Listener interface {
	StatementAdded(st *Statement)
	StatementRemoved(st *Statement)
}

// NewNotifying wraps delegate so that listeners hear about every change
// made through it. Adds that change nothing, such as a duplicate
// statement, are not reported.
func NewNotifying(delegate InferencerConnection, listeners ...Listener) *Forwarding {
	var (
		added   []rdf.Term
		pending []*Statement
	)
	begin := func() error {
		if delegate.IsActive() {
			return nil
		}
		return delegate.Begin(context.Background())
	}
	return NewForwarding(delegate, Hooks{
		BeforeAdd: func(ch Change) error {
			added = nil
			if err := begin(); err != nil {
				return err
			}
			contexts := ch.Contexts
			if len(contexts) == 0 {
				contexts = []rdf.Term{nil}
			}
		next:
			for _, ctx := range contexts {
				if ctx == nil {
					ctx = rdf.NewDefaultGraph()
				}
				for _, seen := range added {
					if seen.Equals(ctx) {
						continue next
					}
				}
				// an explicit add changes an inferred statement, an
				// inferred add changes nothing that exists
				it, err := delegate.GetStatements(ch.Subject, ch.Predicate, ch.Object, ch.Inferred, ctx)
				if err != nil {
					return err
				}
				n, err := iteration.Count(it)
				if err != nil {
					return err
				}
				if n == 0 {
					added = append(added, ctx)
				}
			}
			return nil
		},
		AfterAdd: func(ch Change) {
			contexts := added
			added = nil
			for _, ctx := range contexts {
				st := &Statement{Subject: ch.Subject, Predicate: ch.Predicate, Object: ch.Object, Context: ctx, Explicit: !ch.Inferred}
				for _, l := range listeners {
					l.StatementAdded(st)
				}
			}
		},
		BeforeRemove: func(ch Change) error {
			if err := begin(); err != nil {
				return err
			}
			it, err := delegate.GetStatements(ch.Subject, ch.Predicate, ch.Object, ch.Inferred, ch.Contexts...)
			if err != nil {
				return err
			}
			matched, err := iteration.Collect(iteration.Filter(it, func(st *Statement) (bool, error) {
				return st.Explicit != ch.Inferred, nil
			}))
			if err != nil {
				return err
			}
			pending = matched
			return nil
		},
		AfterRemove: func(ch Change, removed bool) {
			matched := pending
			pending = nil
			if !removed {
				return
			}
			for _, st := range matched {
				for _, l := range listeners {
					l.StatementRemoved(st)
				}
			}
		},
	})
}
