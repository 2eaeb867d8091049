package store_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ansell/openrdf-sesame-sub028/pkg/errors"
	"github.com/ansell/openrdf-sesame-sub028/pkg/iteration"
	"github.com/ansell/openrdf-sesame-sub028/pkg/query/algebra"
	"github.com/ansell/openrdf-sesame-sub028/pkg/rdf"
	"github.com/ansell/openrdf-sesame-sub028/pkg/store"
)

func newConnection(t *testing.T) *store.Connection {
	t.Helper()
	s, err := store.Open(store.Options{})
	require.NoError(t, err)
	c, err := s.NewConnection()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = c.Close()
		_ = s.Close()
	})
	return c
}

// predicatePolicy allows writes with one predicate only.
type predicatePolicy struct {
	read      bool
	predicate rdf.Term
}

func (p predicatePolicy) CanRead() bool { return p.read }
func (p predicatePolicy) CanWrite(ch store.Change) bool {
	return ch.Predicate != nil && ch.Predicate.Equals(p.predicate)
}

func TestAccessControl(t *testing.T) {
	conn := store.NewAccessControl(newConnection(t), predicatePolicy{read: true, predicate: iri("ok")})

	require.NoError(t, conn.AddStatement(iri("a"), iri("ok"), iri("b")))
	err := conn.AddStatement(iri("a"), iri("secret"), iri("b"))
	assert.True(t, errors.Is(err, errors.ErrPermissionDenied), "got %v", err)
	_, err = conn.RemoveStatements(nil, nil, nil)
	assert.True(t, errors.Is(err, errors.ErrPermissionDenied), "wildcard removal is denied: %v", err)
	require.NoError(t, conn.Commit())

	n, err := conn.Size()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	readOnly := store.NewAccessControl(conn.Delegate(), store.ReadOnly{})
	assert.True(t, errors.Is(readOnly.AddStatement(iri("a"), iri("ok"), iri("c")), errors.ErrPermissionDenied))
	_, err = readOnly.GetStatements(nil, nil, nil, true)
	assert.NoError(t, err)

	blind := store.NewAccessControl(conn.Delegate(), predicatePolicy{read: false})
	_, err = blind.GetStatements(nil, nil, nil, true)
	assert.True(t, errors.Is(err, errors.ErrPermissionDenied))
	pattern := algebra.NewStatementPattern(algebra.NewVar("s"), algebra.NewVar("p"), algebra.NewVar("o"))
	_, err = blind.Evaluate(pattern, nil, nil, true)
	assert.True(t, errors.Is(err, errors.ErrPermissionDenied))
}

type recorder struct {
	added   []*store.Statement
	removed []*store.Statement
}

func (r *recorder) StatementAdded(st *store.Statement)   { r.added = append(r.added, st) }
func (r *recorder) StatementRemoved(st *store.Statement) { r.removed = append(r.removed, st) }

func TestNotifying(t *testing.T) {
	rec := &recorder{}
	conn := store.NewNotifying(newConnection(t), rec)

	require.NoError(t, conn.AddStatement(iri("a"), iri("p"), iri("b"), iri("g1"), iri("g2")))
	require.NoError(t, conn.AddStatement(iri("a"), iri("q"), iri("c")))
	require.Len(t, rec.added, 3)
	assert.True(t, rec.added[0].Context.Equals(iri("g1")))
	assert.True(t, rdf.IsDefaultGraph(rec.added[2].Context))

	// duplicates change nothing and are not reported
	require.NoError(t, conn.AddStatement(iri("a"), iri("q"), iri("c")))
	added, err := conn.AddInferredStatement(iri("a"), iri("q"), iri("c"))
	require.NoError(t, err)
	assert.False(t, added)
	require.NoError(t, conn.AddStatement(iri("a"), iri("q"), iri("c"), nil, iri("g4")))
	require.Len(t, rec.added, 4)
	assert.True(t, rec.added[3].Context.Equals(iri("g4")))

	removed, err := conn.RemoveStatements(iri("a"), iri("p"), nil)
	require.NoError(t, err)
	assert.True(t, removed)
	require.Len(t, rec.removed, 2, "wildcards resolve to the matching statements")

	removed, err = conn.RemoveStatements(iri("nobody"), nil, nil)
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Len(t, rec.removed, 2)
	require.NoError(t, conn.Commit())
}

func TestForwarding_HookOrder(t *testing.T) {
	var calls []string
	hooks := func(name string) store.Hooks {
		return store.Hooks{
			BeforeAdd: func(store.Change) error {
				calls = append(calls, name+".beforeAdd")
				return nil
			},
			AfterAdd: func(store.Change) { calls = append(calls, name+".afterAdd") },
			BeforeCommit: func(store.InferencerConnection) error {
				calls = append(calls, name+".beforeCommit")
				return nil
			},
			AfterCommit:   func() { calls = append(calls, name+".afterCommit") },
			AfterRollback: func() { calls = append(calls, name+".afterRollback") },
		}
	}
	inner := store.NewForwarding(newConnection(t), hooks("inner"))
	outer := store.NewForwarding(inner, hooks("outer"))

	require.NoError(t, outer.AddStatement(iri("a"), iri("p"), iri("b")))
	require.NoError(t, outer.Commit())
	assert.Equal(t, []string{
		"outer.beforeAdd", "inner.beforeAdd", "inner.afterAdd", "outer.afterAdd",
		"outer.beforeCommit", "inner.beforeCommit", "inner.afterCommit", "outer.afterCommit",
	}, calls)

	calls = nil
	require.NoError(t, outer.Commit())
	assert.Equal(t, []string{"inner.afterCommit", "outer.afterCommit"}, calls, "before-commit hooks run only inside a transaction")

	calls = nil
	require.NoError(t, outer.AddStatement(iri("a"), iri("p"), iri("c")))
	require.NoError(t, outer.Close())
	assert.Equal(t, []string{
		"outer.beforeAdd", "inner.beforeAdd", "inner.afterAdd", "outer.afterAdd",
		"inner.afterRollback", "outer.afterRollback",
	}, calls)
}

func TestForwarding_BeforeCommitFailureKeepsTransaction(t *testing.T) {
	base := newConnection(t)
	failing := store.NewForwarding(base, store.Hooks{
		BeforeCommit: func(store.InferencerConnection) error {
			return errors.New(errors.ErrTransaction, "veto")
		},
	})
	require.NoError(t, failing.AddStatement(iri("a"), iri("p"), iri("b")))
	err := failing.Commit()
	assert.True(t, errors.Is(err, errors.ErrTransaction))
	assert.True(t, base.IsActive())
	require.NoError(t, failing.Rollback())

	it, err := base.GetStatements(nil, nil, nil, true)
	require.NoError(t, err)
	n, err := iteration.Count(it)
	require.NoError(t, err)
	assert.Zero(t, n)
}
