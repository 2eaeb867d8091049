package evaluator

import (
	"github.com/ansell/openrdf-sesame-sub028/pkg/errors"
	"github.com/ansell/openrdf-sesame-sub028/pkg/query"
	"github.com/ansell/openrdf-sesame-sub028/pkg/query/algebra"
	"github.com/ansell/openrdf-sesame-sub028/pkg/rdf"
)

// Evaluator evaluates value expressions against binding sets
type Evaluator struct {
	functions *FunctionRegistry
}

// NewEvaluator creates an evaluator that resolves function calls in
// functions. A nil registry gets the built-in functions.
func NewEvaluator(functions *FunctionRegistry) *Evaluator {
	if functions == nil {
		functions = NewFunctionRegistry()
	}
	return &Evaluator{functions: functions}
}

// Functions returns the evaluator's function registry.
func (e *Evaluator) Functions() *FunctionRegistry {
	return e.functions
}

// typeError reports that an expression has no value for a binding set.
func typeError(format string, args ...interface{}) error {
	return errors.Newf(errors.ErrValueExprEvaluation, format, args...)
}

// Evaluate evaluates an expression against a binding set and returns the
// result term. Expressions without a value (unbound variable, type error)
// return a ValueExprEvaluation error.
func (e *Evaluator) Evaluate(expr algebra.ValueExpr, bindings *query.BindingSet) (rdf.Term, error) {
	if expr == nil {
		return nil, errors.New(errors.ErrMalformedInput, "cannot evaluate nil expression")
	}

	switch ex := expr.(type) {
	case *algebra.Var:
		return e.evaluateVar(ex, bindings)
	case *algebra.ValueConstant:
		if ex.Value == nil {
			return nil, errors.New(errors.ErrMalformedInput, "constant without a value")
		}
		return ex.Value, nil
	case *algebra.Compare:
		return e.evaluateCompare(ex, bindings)
	case *algebra.MathExpr:
		return e.evaluateMath(ex, bindings)
	case *algebra.And:
		return e.evaluateAnd(ex, bindings)
	case *algebra.Or:
		return e.evaluateOr(ex, bindings)
	case *algebra.Not:
		ebv, err := e.IsTrue(ex.Arg, bindings)
		if err != nil {
			return nil, err
		}
		return rdf.NewBooleanLiteral(!ebv), nil
	case *algebra.Bound:
		// BOUND does not evaluate its argument.
		return rdf.NewBooleanLiteral(ex.Arg.IsConstant() || bindings.Has(ex.Arg.Name)), nil
	case *algebra.SameTerm:
		return e.evaluateSameTerm(ex, bindings)
	case *algebra.In:
		return e.evaluateIn(ex, bindings)
	case *algebra.If:
		cond, err := e.IsTrue(ex.Condition, bindings)
		if err != nil {
			return nil, err
		}
		if cond {
			return e.Evaluate(ex.Then, bindings)
		}
		return e.Evaluate(ex.Else, bindings)
	case *algebra.Coalesce:
		for _, arg := range ex.Args {
			if v, err := e.Evaluate(arg, bindings); err == nil {
				return v, nil
			}
		}
		return nil, typeError("COALESCE: no argument has a value")
	case *algebra.FunctionCall:
		return e.evaluateFunctionCall(ex, bindings)
	default:
		return nil, errors.Newf(errors.ErrMalformedInput, "unsupported expression type: %T", expr)
	}
}

// IsTrue evaluates expr and returns its effective boolean value.
func (e *Evaluator) IsTrue(expr algebra.ValueExpr, bindings *query.BindingSet) (bool, error) {
	v, err := e.Evaluate(expr, bindings)
	if err != nil {
		return false, err
	}
	return EffectiveBooleanValue(v)
}

// evaluateVar evaluates a variable reference
func (e *Evaluator) evaluateVar(v *algebra.Var, bindings *query.BindingSet) (rdf.Term, error) {
	if v.IsConstant() {
		return v.Value, nil
	}
	value, exists := bindings.Get(v.Name)
	if !exists {
		return nil, typeError("unbound variable: ?%s", v.Name)
	}
	return value, nil
}

// evaluateIn evaluates IN or NOT IN
// x IN (e1, e2, ...) is equivalent to (x = e1) || (x = e2) || ...
func (e *Evaluator) evaluateIn(expr *algebra.In, bindings *query.BindingSet) (rdf.Term, error) {
	leftValue, err := e.Evaluate(expr.Arg, bindings)
	if err != nil {
		return nil, err
	}

	found := false
	for _, valueExpr := range expr.List {
		rightValue, err := e.Evaluate(valueExpr, bindings)
		if err != nil {
			continue
		}
		if eq, err := valuesEqual(leftValue, rightValue); err == nil && eq {
			found = true
			break
		}
	}

	if expr.Not {
		return rdf.NewBooleanLiteral(!found), nil
	}
	return rdf.NewBooleanLiteral(found), nil
}

func (e *Evaluator) evaluateSameTerm(expr *algebra.SameTerm, bindings *query.BindingSet) (rdf.Term, error) {
	left, err := e.Evaluate(expr.Left, bindings)
	if err != nil {
		return nil, err
	}
	right, err := e.Evaluate(expr.Right, bindings)
	if err != nil {
		return nil, err
	}
	return rdf.NewBooleanLiteral(left.Equals(right)), nil
}
