package executor

import (
	"sort"

	"github.com/ansell/openrdf-sesame-sub028/pkg/errors"
	"github.com/ansell/openrdf-sesame-sub028/pkg/iteration"
	"github.com/ansell/openrdf-sesame-sub028/pkg/query"
	"github.com/ansell/openrdf-sesame-sub028/pkg/query/algebra"
	"github.com/ansell/openrdf-sesame-sub028/pkg/query/evaluator"
)

// BindingSetIteration is the cursor every operator consumes and produces.
type BindingSetIteration = iteration.Iteration[*query.BindingSet]

// RightFunc evaluates the right operand of a join for one left binding
// set.
type RightFunc func(left *query.BindingSet) (BindingSetIteration, error)

// Condition decides whether a binding set passes. Errors are treated as
// "does not pass" by the operators that take one.
type Condition func(bindings *query.BindingSet) (bool, error)

// NewJoin is a nested loop join: the right operand is evaluated once per
// left binding set, with the left bindings in scope.
func NewJoin(left BindingSetIteration, right RightFunc) BindingSetIteration {
	var (
		currentLeft  *query.BindingSet
		currentRight BindingSetIteration
	)
	return iteration.NewLookAhead(func() (*query.BindingSet, bool, error) {
		for {
			if currentRight != nil {
				r, ok, err := iteration.Pull(currentRight)
				if err != nil {
					return nil, false, err
				}
				if ok {
					if merged, ok := currentLeft.Merge(r); ok {
						return merged, true, nil
					}
					continue
				}
				if err := currentRight.Close(); err != nil {
					return nil, false, err
				}
				currentRight = nil
			}

			l, ok, err := iteration.Pull(left)
			if err != nil || !ok {
				return nil, false, err
			}
			currentLeft = l
			if currentRight, err = right(l); err != nil {
				return nil, false, err
			}
		}
	}, func() error {
		return closeBoth(currentRight, left)
	})
}

// NewLeftJoin is the optional join. A left binding set for which no right
// result satisfies cond is emitted unchanged. cond may be nil; errors
// from cond count as "not satisfied".
func NewLeftJoin(left BindingSetIteration, right RightFunc, cond Condition) BindingSetIteration {
	var (
		currentLeft  *query.BindingSet
		currentRight BindingSetIteration
		matched      bool
	)
	return iteration.NewLookAhead(func() (*query.BindingSet, bool, error) {
		for {
			if currentRight != nil {
				r, ok, err := iteration.Pull(currentRight)
				if err != nil {
					return nil, false, err
				}
				if ok {
					merged, ok := currentLeft.Merge(r)
					if !ok {
						continue
					}
					if cond != nil {
						if pass, err := cond(merged); err != nil || !pass {
							continue
						}
					}
					matched = true
					return merged, true, nil
				}
				if err := currentRight.Close(); err != nil {
					return nil, false, err
				}
				currentRight = nil
				if !matched {
					return currentLeft, true, nil
				}
			}

			l, ok, err := iteration.Pull(left)
			if err != nil || !ok {
				return nil, false, err
			}
			currentLeft, matched = l, false
			if currentRight, err = right(l); err != nil {
				return nil, false, err
			}
		}
	}, func() error {
		return closeBoth(currentRight, left)
	})
}

// NewFilter passes the binding sets for which cond is true. cond sees the
// binding set restricted to scope; a nil scope passes it whole.
func NewFilter(src BindingSetIteration, cond Condition, scope []string) BindingSetIteration {
	return iteration.Filter(src, func(b *query.BindingSet) (bool, error) {
		if scope != nil {
			b = b.Project(scope...)
		}
		pass, err := cond(b)
		if err != nil {
			return false, nil
		}
		return pass, nil
	})
}

// project applies one projection list.
func project(b *query.BindingSet, elems []algebra.ProjectionElem) *query.BindingSet {
	out := query.NewBindingSet()
	for _, el := range elems {
		if v, ok := b.Get(el.Source); ok {
			out = out.With(el.Target, v)
		}
	}
	return out
}

// NewProjection selects and renames the bindings of every binding set.
func NewProjection(src BindingSetIteration, elems []algebra.ProjectionElem) BindingSetIteration {
	return iteration.Convert(src, func(b *query.BindingSet) (*query.BindingSet, error) {
		return project(b, elems), nil
	})
}

// NewMultiProjection emits, for each input binding set, one binding set
// per projection list in declaration order before pulling the next input.
func NewMultiProjection(src BindingSetIteration, projections [][]algebra.ProjectionElem) BindingSetIteration {
	var (
		current *query.BindingSet
		next    = len(projections)
	)
	return iteration.NewLookAhead(func() (*query.BindingSet, bool, error) {
		if len(projections) == 0 {
			return nil, false, nil
		}
		if next == len(projections) {
			b, ok, err := iteration.Pull(src)
			if err != nil || !ok {
				return nil, false, err
			}
			current, next = b, 0
		}
		out := project(current, projections[next])
		next++
		return out, true, nil
	}, src.Close)
}

// NewExtension adds the value of each element's expression to every
// binding set. An expression without a value, including one that fails
// with a type error, leaves the name unbound as SPARQL BIND does; other
// evaluation failures propagate.
func NewExtension(src BindingSetIteration, elems []algebra.ExtensionElem, mode algebra.ExtendMode, e *evaluator.Evaluator) BindingSetIteration {
	return iteration.Convert(src, func(b *query.BindingSet) (*query.BindingSet, error) {
		out := b
		for _, el := range elems {
			if mode == algebra.ExtendAddIfAbsent && out.Has(el.Name) {
				continue
			}
			v, err := e.Evaluate(el.Expr, out)
			if err != nil {
				if errors.Is(err, errors.ErrValueExprEvaluation) {
					continue
				}
				return nil, errors.WrapCode(err, errors.ErrEvaluation, "extension "+el.Name)
			}
			out = out.With(el.Name, v)
		}
		return out, nil
	})
}

// NewOrder sorts its input with compare. The whole input is read into
// memory before the first result is returned, so memory use grows with
// the size of the input.
func NewOrder(src BindingSetIteration, compare func(a, b *query.BindingSet) int) BindingSetIteration {
	var (
		sorted []*query.BindingSet
		pos    int
		loaded bool
	)
	return iteration.NewLookAhead(func() (*query.BindingSet, bool, error) {
		if !loaded {
			all, err := iteration.Collect(src)
			if err != nil {
				return nil, false, err
			}
			sort.SliceStable(all, func(i, j int) bool { return compare(all[i], all[j]) < 0 })
			sorted, loaded = all, true
		}
		if pos >= len(sorted) {
			return nil, false, nil
		}
		b := sorted[pos]
		sorted[pos] = nil
		pos++
		return b, true, nil
	}, src.Close)
}

// NewUnion returns the results of every input in turn.
func NewUnion(inputs ...BindingSetIteration) BindingSetIteration {
	return iteration.Concat(inputs...)
}

// NewDistinct drops binding sets equal to an earlier one.
func NewDistinct(src BindingSetIteration) BindingSetIteration {
	return iteration.Distinct(src, (*query.BindingSet).Key)
}

// NewSlice skips offset results and returns at most limit; a negative
// limit means no limit.
func NewSlice(src BindingSetIteration, offset, limit int64) BindingSetIteration {
	return iteration.Slice(src, offset, limit)
}

// NewDifference drops left binding sets that are compatible with, and
// share a name with, some binding set of right. right is read completely
// on first use.
func NewDifference(left BindingSetIteration, right func() (BindingSetIteration, error)) BindingSetIteration {
	var excluded []*query.BindingSet
	loaded := false
	filtered := iteration.Filter(left, func(b *query.BindingSet) (bool, error) {
		if !loaded {
			r, err := right()
			if err != nil {
				return false, err
			}
			if excluded, err = iteration.Collect(r); err != nil {
				return false, err
			}
			loaded = true
		}
		for _, ex := range excluded {
			if sharesName(b, ex) && b.Compatible(ex) {
				return false, nil
			}
		}
		return true, nil
	})
	return filtered
}

func sharesName(a, b *query.BindingSet) bool {
	for _, n := range a.Names() {
		if b.Has(n) {
			return true
		}
	}
	return false
}

// closeBoth closes inner (if any) and outer and returns the first error.
func closeBoth(inner, outer BindingSetIteration) error {
	var first error
	if inner != nil {
		first = inner.Close()
	}
	if err := outer.Close(); err != nil && first == nil {
		first = err
	}
	return first
}
