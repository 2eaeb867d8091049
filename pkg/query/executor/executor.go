// Package executor evaluates query algebra over a TripleSource using lazy,
// closeable binding set iterations.
package executor

import (
	"github.com/ansell/openrdf-sesame-sub028/pkg/errors"
	"github.com/ansell/openrdf-sesame-sub028/pkg/iteration"
	"github.com/ansell/openrdf-sesame-sub028/pkg/query"
	"github.com/ansell/openrdf-sesame-sub028/pkg/query/algebra"
	"github.com/ansell/openrdf-sesame-sub028/pkg/query/evaluator"
	"github.com/ansell/openrdf-sesame-sub028/pkg/rdf"
)

// TripleSource supplies the statements a query reads. Nil subject,
// predicate or object match anything. An empty contexts list matches
// every context; the default graph sentinel matches statements without
// one.
type TripleSource interface {
	Statements(subj, pred, obj rdf.Term, contexts ...rdf.Term) (iteration.Iteration[*rdf.Quad], error)
}

// Strategy evaluates algebra trees against one TripleSource and dataset.
type Strategy struct {
	source    TripleSource
	dataset   *query.Dataset
	evaluator *evaluator.Evaluator
}

// NewStrategy creates a strategy. dataset may be nil to read every graph;
// functions may be nil for the built-in functions.
func NewStrategy(source TripleSource, dataset *query.Dataset, functions *evaluator.FunctionRegistry) *Strategy {
	return &Strategy{
		source:    source,
		dataset:   dataset,
		evaluator: evaluator.NewEvaluator(functions),
	}
}

// Evaluator returns the strategy's value expression evaluator.
func (s *Strategy) Evaluator() *evaluator.Evaluator {
	return s.evaluator
}

// Evaluate returns the binding sets expr produces when evaluated with
// bindings in scope. The caller must close the result.
func (s *Strategy) Evaluate(expr algebra.TupleExpr, bindings *query.BindingSet) (BindingSetIteration, error) {
	if bindings == nil {
		bindings = query.NewBindingSet()
	}
	switch e := expr.(type) {
	case *algebra.StatementPattern:
		return s.evaluateStatementPattern(e, bindings)
	case *algebra.Join:
		left, err := s.Evaluate(e.Left, bindings)
		if err != nil {
			return nil, err
		}
		return NewJoin(left, func(l *query.BindingSet) (BindingSetIteration, error) {
			return s.Evaluate(e.Right, l)
		}), nil
	case *algebra.LeftJoin:
		left, err := s.Evaluate(e.Left, bindings)
		if err != nil {
			return nil, err
		}
		var cond Condition
		if e.Condition != nil {
			cond = s.condition(e.Condition)
		}
		return NewLeftJoin(left, func(l *query.BindingSet) (BindingSetIteration, error) {
			return s.Evaluate(e.Right, l)
		}, cond), nil
	case *algebra.Filter:
		arg, err := s.Evaluate(e.Arg, bindings)
		if err != nil {
			return nil, err
		}
		return NewFilter(arg, s.condition(e.Condition), scopeOf(e.Arg)), nil
	case *algebra.Union:
		left, err := s.Evaluate(e.Left, bindings)
		if err != nil {
			return nil, err
		}
		right, err := s.Evaluate(e.Right, bindings)
		if err != nil {
			_ = left.Close()
			return nil, err
		}
		return NewUnion(left, right), nil
	case *algebra.Difference:
		left, err := s.Evaluate(e.Left, bindings)
		if err != nil {
			return nil, err
		}
		return NewDifference(left, func() (BindingSetIteration, error) {
			return s.Evaluate(e.Right, bindings)
		}), nil
	case *algebra.Projection:
		arg, err := s.Evaluate(e.Arg, bindings)
		if err != nil {
			return nil, err
		}
		return NewProjection(arg, e.Elems), nil
	case *algebra.MultiProjection:
		arg, err := s.Evaluate(e.Arg, bindings)
		if err != nil {
			return nil, err
		}
		return NewMultiProjection(arg, e.Projections), nil
	case *algebra.Extension:
		arg, err := s.Evaluate(e.Arg, bindings)
		if err != nil {
			return nil, err
		}
		return NewExtension(arg, e.Elems, e.Mode, s.evaluator), nil
	case *algebra.Order:
		arg, err := s.Evaluate(e.Arg, bindings)
		if err != nil {
			return nil, err
		}
		return NewOrder(arg, evaluator.NewOrderComparator(s.evaluator, e.Elems).Compare), nil
	case *algebra.Distinct:
		arg, err := s.Evaluate(e.Arg, bindings)
		if err != nil {
			return nil, err
		}
		return NewDistinct(arg), nil
	case *algebra.Slice:
		arg, err := s.Evaluate(e.Arg, bindings)
		if err != nil {
			return nil, err
		}
		return NewSlice(arg, e.Offset, e.Limit), nil
	case algebra.SingletonSet, *algebra.SingletonSet:
		return iteration.Single(bindings), nil
	case algebra.EmptySet, *algebra.EmptySet:
		return iteration.Empty[*query.BindingSet](), nil
	case *algebra.BindingSetAssignment:
		var out []*query.BindingSet
		for _, b := range e.Bindings {
			if merged, ok := bindings.Merge(b); ok {
				out = append(out, merged)
			}
		}
		return iteration.FromSlice(out), nil
	case nil:
		return nil, errors.New(errors.ErrMalformedInput, "cannot evaluate nil tuple expression")
	default:
		return nil, errors.Newf(errors.ErrMalformedInput, "unsupported tuple expression: %T", expr)
	}
}

// condition turns a value expression into a Condition on its effective
// boolean value.
func (s *Strategy) condition(expr algebra.ValueExpr) Condition {
	return func(b *query.BindingSet) (bool, error) {
		return s.evaluator.IsTrue(expr, b)
	}
}

// scopeOf is the set of names a filter condition may see: the names its
// argument binds. Names bound by an enclosing join are not in scope.
func scopeOf(arg algebra.TupleExpr) []string {
	scope := arg.BindingNames()
	if scope == nil {
		scope = []string{}
	}
	return scope
}

// contextsFor returns the contexts a pattern reads, and false when the
// dataset excludes every graph the pattern could match.
func (s *Strategy) contextsFor(sp *algebra.StatementPattern, ctxValue rdf.Term) ([]rdf.Term, bool) {
	var graphs, other []rdf.Term
	if s.dataset != nil {
		if sp.Scope == algebra.NamedContexts {
			graphs, other = s.dataset.NamedGraphs, s.dataset.DefaultGraphs
		} else {
			graphs, other = s.dataset.DefaultGraphs, s.dataset.NamedGraphs
		}
	}
	// a dataset that names graphs for one scope only leaves the other empty
	if len(graphs) == 0 && len(other) > 0 {
		return nil, false
	}
	if ctxValue == nil {
		return graphs, true
	}
	if len(graphs) == 0 {
		return []rdf.Term{ctxValue}, true
	}
	for _, g := range graphs {
		if g.Equals(ctxValue) {
			return []rdf.Term{ctxValue}, true
		}
	}
	return nil, false
}

func (s *Strategy) evaluateStatementPattern(sp *algebra.StatementPattern, bindings *query.BindingSet) (BindingSetIteration, error) {
	value := func(v *algebra.Var) rdf.Term {
		switch {
		case v == nil:
			return nil
		case v.IsConstant():
			return v.Value
		}
		return bindings.Value(v.Name)
	}
	subj, pred, obj, ctx := value(sp.Subject), value(sp.Predicate), value(sp.Object), value(sp.Context)

	contexts, ok := s.contextsFor(sp, ctx)
	if !ok {
		return iteration.Empty[*query.BindingSet](), nil
	}
	quads, err := s.source.Statements(subj, pred, obj, contexts...)
	if err != nil {
		return nil, errors.WrapCode(err, errors.ErrEvaluation, "reading statements")
	}

	named := sp.Scope == algebra.NamedContexts
	vars := sp.Vars()
	matches := iteration.Filter(quads, func(q *rdf.Quad) (bool, error) {
		return !(named && rdf.IsDefaultGraph(q.Graph)), nil
	})
	return iteration.NewLookAhead(func() (*query.BindingSet, bool, error) {
		for {
			q, ok, err := iteration.Pull(matches)
			if err != nil {
				return nil, false, errors.WrapCode(err, errors.ErrEvaluation, "reading statements")
			}
			if !ok {
				return nil, false, nil
			}
			if b, ok := bindQuad(bindings, vars, q); ok {
				return b, true, nil
			}
		}
	}, matches.Close), nil
}

// bindQuad extends bindings with the pattern variables bound to the quad
// values. It fails when a repeated variable would get two values.
func bindQuad(bindings *query.BindingSet, vars []*algebra.Var, q *rdf.Quad) (*query.BindingSet, bool) {
	values := []rdf.Term{q.Subject, q.Predicate, q.Object, q.Graph}
	out := bindings
	for i, v := range vars {
		if v == nil || v.IsConstant() {
			continue
		}
		if i == 3 && rdf.IsDefaultGraph(values[i]) {
			continue
		}
		if existing, ok := out.Get(v.Name); ok {
			if !existing.Equals(values[i]) {
				return nil, false
			}
			continue
		}
		out = out.With(v.Name, values[i])
	}
	return out, true
}
