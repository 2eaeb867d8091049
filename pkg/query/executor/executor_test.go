package executor

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ansell/openrdf-sesame-sub028/pkg/errors"
	"github.com/ansell/openrdf-sesame-sub028/pkg/iteration"
	"github.com/ansell/openrdf-sesame-sub028/pkg/query"
	"github.com/ansell/openrdf-sesame-sub028/pkg/query/algebra"
	"github.com/ansell/openrdf-sesame-sub028/pkg/query/evaluator"
	"github.com/ansell/openrdf-sesame-sub028/pkg/rdf"
)

const ex = "http://example.org/"

var (
	exA     = rdf.NewNamedNode(ex + "a")
	exB     = rdf.NewNamedNode(ex + "b")
	exC     = rdf.NewNamedNode(ex + "c")
	exKnows = rdf.NewNamedNode(ex + "knows")
	exName  = rdf.NewNamedNode(ex + "name")
	exG     = rdf.NewNamedNode(ex + "g")
)

// trackingSource serves quads from a slice and counts open scans.
type trackingSource struct {
	quads  []*rdf.Quad
	open   int
	opened int
	fail   error
}

func (s *trackingSource) Statements(subj, pred, obj rdf.Term, contexts ...rdf.Term) (iteration.Iteration[*rdf.Quad], error) {
	if s.fail != nil {
		return nil, s.fail
	}
	match := func(want, got rdf.Term) bool { return want == nil || want.Equals(got) }
	var out []*rdf.Quad
	for _, q := range s.quads {
		if !match(subj, q.Subject) || !match(pred, q.Predicate) || !match(obj, q.Object) {
			continue
		}
		if len(contexts) > 0 {
			found := false
			for _, c := range contexts {
				if c.Equals(q.Graph) {
					found = true
				}
			}
			if !found {
				continue
			}
		}
		out = append(out, q)
	}
	s.open++
	s.opened++
	return iteration.OnClose(iteration.FromSlice(out), func() { s.open-- }), nil
}

func knowsSource() *trackingSource {
	return &trackingSource{quads: []*rdf.Quad{
		rdf.NewQuad(exA, exKnows, exB, nil),
		rdf.NewQuad(exB, exKnows, exC, nil),
	}}
}

func knowsPattern() *algebra.StatementPattern {
	return algebra.NewStatementPattern(algebra.NewVar("x"), algebra.NewConstVar(exKnows), algebra.NewVar("y"))
}

// rows renders binding sets as name=value strings for comparison.
func rows(t *testing.T, it BindingSetIteration) []string {
	t.Helper()
	all, err := iteration.Collect(it)
	require.NoError(t, err)
	out := make([]string, len(all))
	for i, b := range all {
		out[i] = b.String()
	}
	return out
}

func evaluate(t *testing.T, src TripleSource, expr algebra.TupleExpr) []string {
	t.Helper()
	it, err := NewStrategy(src, nil, nil).Evaluate(expr, nil)
	require.NoError(t, err)
	return rows(t, it)
}

func TestStrategy_KnowsProjection(t *testing.T) {
	src := knowsSource()
	expr := &algebra.Projection{Arg: knowsPattern(), Elems: algebra.Elems("x", "y")}

	got := evaluate(t, src, expr)
	want := []string{
		"[x=<http://example.org/a>;y=<http://example.org/b>]",
		"[x=<http://example.org/b>;y=<http://example.org/c>]",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 0, src.open)
}

func TestStrategy_KnowsFilter(t *testing.T) {
	expr := &algebra.Projection{
		Arg: &algebra.Filter{
			Arg:       knowsPattern(),
			Condition: &algebra.Compare{Left: algebra.NewVar("y"), Right: algebra.Const(exC), Op: algebra.EQ},
		},
		Elems: algebra.Elems("x", "y"),
	}
	got := evaluate(t, knowsSource(), expr)
	assert.Equal(t, []string{"[x=<http://example.org/b>;y=<http://example.org/c>]"}, got)
}

func TestStrategy_FilterErrorsDropRow(t *testing.T) {
	expr := &algebra.Filter{
		Arg:       knowsPattern(),
		Condition: &algebra.Compare{Left: algebra.NewVar("y"), Right: algebra.Const(exC), Op: algebra.LT},
	}
	assert.Empty(t, evaluate(t, knowsSource(), expr))
}

func TestStrategy_FilterScope(t *testing.T) {
	// ?x is bound by the join's left side but is not in the filter's scope.
	left := algebra.NewStatementPattern(algebra.NewVar("x"), algebra.NewConstVar(exKnows), algebra.NewConstVar(exB))
	right := &algebra.Filter{
		Arg:       algebra.NewStatementPattern(algebra.NewVar("z"), algebra.NewConstVar(exKnows), algebra.NewVar("y")),
		Condition: &algebra.Bound{Arg: algebra.NewVar("x")},
	}
	assert.Empty(t, evaluate(t, knowsSource(), &algebra.Join{Left: left, Right: right}))
}

func TestStrategy_Join(t *testing.T) {
	src := knowsSource()
	expr := &algebra.Join{
		Left:  knowsPattern(),
		Right: algebra.NewStatementPattern(algebra.NewVar("y"), algebra.NewConstVar(exKnows), algebra.NewVar("z")),
	}
	got := evaluate(t, src, expr)
	assert.Equal(t, []string{"[x=<http://example.org/a>;y=<http://example.org/b>;z=<http://example.org/c>]"}, got)
	assert.Equal(t, 0, src.open)
	// one left scan plus one right scan per left row
	assert.Equal(t, 3, src.opened)
}

func TestStrategy_LeftJoinPreservesRows(t *testing.T) {
	src := knowsSource()
	expr := &algebra.LeftJoin{
		Left:  knowsPattern(),
		Right: algebra.NewStatementPattern(algebra.NewVar("x"), algebra.NewConstVar(exName), algebra.NewVar("name")),
	}
	got := evaluate(t, src, expr)
	assert.Equal(t, []string{
		"[x=<http://example.org/a>;y=<http://example.org/b>]",
		"[x=<http://example.org/b>;y=<http://example.org/c>]",
	}, got)
	assert.Equal(t, 0, src.open)
}

func TestStrategy_LeftJoinCondition(t *testing.T) {
	src := knowsSource()
	src.quads = append(src.quads,
		rdf.NewQuad(exA, exName, rdf.NewLiteral("Alice"), nil),
		rdf.NewQuad(exB, exName, rdf.NewLiteral("Bob"), nil),
	)
	expr := &algebra.LeftJoin{
		Left:  knowsPattern(),
		Right: algebra.NewStatementPattern(algebra.NewVar("x"), algebra.NewConstVar(exName), algebra.NewVar("name")),
		Condition: &algebra.Or{
			// errors on IRIs, which must count as "not satisfied"
			Left:  &algebra.Compare{Left: algebra.NewVar("x"), Right: algebra.Const(rdf.NewLiteral("z")), Op: algebra.LT},
			Right: &algebra.Compare{Left: algebra.NewVar("name"), Right: algebra.Const(rdf.NewLiteral("Bob")), Op: algebra.EQ},
		},
	}
	got := evaluate(t, src, expr)
	assert.Equal(t, []string{
		"[x=<http://example.org/a>;y=<http://example.org/b>]",
		`[x=<http://example.org/b>;y=<http://example.org/c>;name="Bob"]`,
	}, got)
}

func TestStrategy_UnionAndDistinct(t *testing.T) {
	union := &algebra.Union{Left: knowsPattern(), Right: knowsPattern()}
	assert.Len(t, evaluate(t, knowsSource(), union), 4)
	assert.Len(t, evaluate(t, knowsSource(), &algebra.Distinct{Arg: union}), 2)
}

func TestStrategy_UnionClosesLeftWhenRightFails(t *testing.T) {
	src := knowsSource()
	_, err := NewStrategy(src, nil, nil).Evaluate(&algebra.Union{Left: knowsPattern(), Right: nil}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrMalformedInput))
	assert.Equal(t, 1, src.opened)
	assert.Equal(t, 0, src.open)
}

func TestStrategy_Difference(t *testing.T) {
	expr := &algebra.Difference{
		Left:  knowsPattern(),
		Right: algebra.NewStatementPattern(algebra.NewVar("y"), algebra.NewConstVar(exKnows), algebra.NewVar("z")),
	}
	// only ?y = ex:b knows somebody
	got := evaluate(t, knowsSource(), expr)
	assert.Equal(t, []string{"[x=<http://example.org/b>;y=<http://example.org/c>]"}, got)
}

func TestStrategy_SliceAndOrder(t *testing.T) {
	expr := &algebra.Slice{
		Arg: &algebra.Order{
			Arg:   knowsPattern(),
			Elems: []algebra.OrderElem{{Expr: algebra.NewVar("x"), Ascending: false}},
		},
		Offset: 0,
		Limit:  1,
	}
	got := evaluate(t, knowsSource(), expr)
	assert.Equal(t, []string{"[x=<http://example.org/b>;y=<http://example.org/c>]"}, got)
}

func TestStrategy_ExtensionModes(t *testing.T) {
	start := query.Bindings("x", exA)
	tests := []struct {
		name string
		mode algebra.ExtendMode
		expr algebra.ValueExpr
		want string
	}{
		{"overwrite", algebra.ExtendOverwrite, algebra.Const(exB), "[x=<http://example.org/b>]"},
		{"add if absent", algebra.ExtendAddIfAbsent, algebra.Const(exB), "[x=<http://example.org/a>]"},
		{"undefined leaves binding", algebra.ExtendOverwrite, algebra.NewVar("missing"), "[x=<http://example.org/a>]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr := &algebra.Extension{
				Arg:   algebra.SingletonSet{},
				Elems: []algebra.ExtensionElem{{Name: "x", Expr: tt.expr}},
				Mode:  tt.mode,
			}
			it, err := NewStrategy(knowsSource(), nil, nil).Evaluate(expr, start)
			require.NoError(t, err)
			assert.Equal(t, []string{tt.want}, rows(t, it))
		})
	}
}

func TestStrategy_ExtensionTypeErrorLeavesUnbound(t *testing.T) {
	// "a" + 1
	sum := &algebra.MathExpr{Left: algebra.Const(rdf.NewLiteral("a")), Right: algebra.Const(rdf.NewIntegerLiteral(1)), Op: algebra.Plus}
	expr := &algebra.Extension{
		Arg: knowsPattern(),
		Elems: []algebra.ExtensionElem{
			{Name: "v", Expr: sum},
			{Name: "w", Expr: algebra.Const(exC)},
		},
		Mode: algebra.ExtendOverwrite,
	}
	got := evaluate(t, knowsSource(), expr)
	require.Len(t, got, 2, "a type error keeps the row")
	for _, row := range got {
		assert.NotContains(t, row, "v=")
		assert.Contains(t, row, "w=<http://example.org/c>")
	}
}

func TestStrategy_ExtensionPropagatesErrors(t *testing.T) {
	expr := &algebra.Extension{
		Arg:   knowsPattern(),
		Elems: []algebra.ExtensionElem{{Name: "v", Expr: algebra.Call("NO-SUCH-FUNCTION")}},
	}
	src := knowsSource()
	it, err := NewStrategy(src, nil, nil).Evaluate(expr, nil)
	require.NoError(t, err)

	_, err = iteration.Collect(it)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrEvaluation))
	assert.Equal(t, 0, src.open, "a failed iteration closes its scan")
}

func TestStrategy_SourceErrors(t *testing.T) {
	src := &trackingSource{fail: errors.New(errors.ErrStoreTransient, "disk on fire")}
	_, err := NewStrategy(src, nil, nil).Evaluate(knowsPattern(), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrEvaluation))
	assert.True(t, errors.Is(err, errors.ErrStoreTransient))
}

func TestStrategy_BindingSetAssignment(t *testing.T) {
	expr := &algebra.Join{
		Left: &algebra.BindingSetAssignment{Bindings: []*query.BindingSet{
			query.Bindings("x", exB),
			query.Bindings("x", exC),
		}},
		Right: knowsPattern(),
	}
	got := evaluate(t, knowsSource(), expr)
	assert.Equal(t, []string{"[x=<http://example.org/b>;y=<http://example.org/c>]"}, got)
}

func TestStrategy_RepeatedVariable(t *testing.T) {
	src := knowsSource()
	src.quads = append(src.quads, rdf.NewQuad(exC, exKnows, exC, nil))
	expr := algebra.NewStatementPattern(algebra.NewVar("x"), algebra.NewConstVar(exKnows), algebra.NewVar("x"))
	assert.Equal(t, []string{"[x=<http://example.org/c>]"}, evaluate(t, src, expr))
}

func TestStrategy_Dataset(t *testing.T) {
	src := &trackingSource{quads: []*rdf.Quad{
		rdf.NewQuad(exA, exKnows, exB, nil),
		rdf.NewQuad(exB, exKnows, exC, exG),
	}}

	named := algebra.NewNamedStatementPattern(algebra.NewVar("x"), algebra.NewConstVar(exKnows), algebra.NewVar("y"), algebra.NewVar("g"))
	assert.Equal(t, []string{
		"[x=<http://example.org/b>;y=<http://example.org/c>;g=<http://example.org/g>]",
	}, evaluate(t, src, named))

	dataset := query.NewDataset(rdf.NewDefaultGraph())
	it, err := NewStrategy(src, dataset, nil).Evaluate(knowsPattern(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"[x=<http://example.org/a>;y=<http://example.org/b>]"}, rows(t, it))

	dataset = query.NewDataset().AddNamedGraph(exB)
	it, err = NewStrategy(src, dataset, nil).Evaluate(named, query.Bindings("g", exG))
	require.NoError(t, err)
	assert.Empty(t, rows(t, it))

	// named graphs only: the default graph is empty
	dataset = query.NewDataset().AddNamedGraph(exG)
	it, err = NewStrategy(src, dataset, nil).Evaluate(knowsPattern(), nil)
	require.NoError(t, err)
	assert.Empty(t, rows(t, it))
	it, err = NewStrategy(src, dataset, nil).Evaluate(named, nil)
	require.NoError(t, err)
	assert.Len(t, rows(t, it), 1)

	// default graphs only: no named graphs
	dataset = query.NewDataset(rdf.NewDefaultGraph())
	it, err = NewStrategy(src, dataset, nil).Evaluate(named, nil)
	require.NoError(t, err)
	assert.Empty(t, rows(t, it))
}

func TestStrategy_CloseUnreadCursorReleasesScan(t *testing.T) {
	src := knowsSource()
	expr := &algebra.Projection{
		Arg:   &algebra.Join{Left: knowsPattern(), Right: knowsPattern()},
		Elems: algebra.Elems("x"),
	}
	it, err := NewStrategy(src, nil, nil).Evaluate(expr, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, src.open)

	require.NoError(t, it.Close())
	require.NoError(t, it.Close())
	assert.Equal(t, 0, src.open)

	ok, err := it.HasNext()
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, src.opened, "closed cursor must not reopen scans")
}

func TestStrategy_CloseMidJoinReleasesBothScans(t *testing.T) {
	src := knowsSource()
	expr := &algebra.Join{
		Left:  knowsPattern(),
		Right: algebra.NewStatementPattern(algebra.NewVar("y"), algebra.NewConstVar(exKnows), algebra.NewVar("z")),
	}
	it, err := NewStrategy(src, nil, nil).Evaluate(expr, nil)
	require.NoError(t, err)

	ok, err := it.HasNext()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, src.open)

	require.NoError(t, it.Close())
	assert.Equal(t, 0, src.open)
}

func TestOrder_ConsumesInputFirst(t *testing.T) {
	pulled := 0
	input := iteration.Convert(iteration.FromSlice([]int64{3, 1, 2}), func(v int64) (*query.BindingSet, error) {
		pulled++
		return query.Bindings("x", rdf.NewIntegerLiteral(v)), nil
	})
	cmpX := evaluator.NewOrderComparator(evaluator.NewEvaluator(nil), []algebra.OrderElem{{Expr: algebra.NewVar("x"), Ascending: true}})
	it := NewOrder(input, cmpX.Compare)

	first, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, 3, pulled)
	assert.True(t, first.Value("x").Equals(rdf.NewIntegerLiteral(1)))

	rest, err := iteration.Collect(it)
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.True(t, rest[0].Value("x").Equals(rdf.NewIntegerLiteral(2)))
	assert.True(t, rest[1].Value("x").Equals(rdf.NewIntegerLiteral(3)))
}

func TestMultiProjection_Order(t *testing.T) {
	input := iteration.FromSlice([]*query.BindingSet{
		query.Bindings("s", exA, "o", exB),
		query.Bindings("s", exB, "o", exC),
	})
	it := NewMultiProjection(input, [][]algebra.ProjectionElem{
		{{Source: "s", Target: "v"}},
		{{Source: "o", Target: "v"}},
	})
	assert.Equal(t, []string{
		"[v=<http://example.org/a>]",
		"[v=<http://example.org/b>]",
		"[v=<http://example.org/b>]",
		"[v=<http://example.org/c>]",
	}, rows(t, it))
}

func TestOptionalJoin_ZeroMatchesKeepsCount(t *testing.T) {
	input := []*query.BindingSet{
		query.Bindings("x", exA),
		query.Bindings("x", exB),
		query.Bindings("x", exC),
	}
	it := NewLeftJoin(iteration.FromSlice(input), func(*query.BindingSet) (BindingSetIteration, error) {
		return iteration.Empty[*query.BindingSet](), nil
	}, nil)
	got, err := iteration.Collect(it)
	require.NoError(t, err)
	require.Len(t, got, len(input))
	for i := range input {
		assert.True(t, input[i].Equals(got[i]))
	}
}
