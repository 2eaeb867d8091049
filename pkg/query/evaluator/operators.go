package evaluator

import (
	"math"
	"strconv"
	"time"

	"github.com/ansell/openrdf-sesame-sub028/pkg/query"
	"github.com/ansell/openrdf-sesame-sub028/pkg/query/algebra"
	"github.com/ansell/openrdf-sesame-sub028/pkg/rdf"
)

// Logical operators. An error on one side is hidden when the other side
// decides the result.

func (e *Evaluator) evaluateAnd(expr *algebra.And, bindings *query.BindingSet) (rdf.Term, error) {
	left, leftErr := e.IsTrue(expr.Left, bindings)
	if leftErr == nil && !left {
		return rdf.NewBooleanLiteral(false), nil
	}
	right, rightErr := e.IsTrue(expr.Right, bindings)
	if rightErr == nil && !right {
		return rdf.NewBooleanLiteral(false), nil
	}
	if leftErr != nil {
		return nil, leftErr
	}
	if rightErr != nil {
		return nil, rightErr
	}
	return rdf.NewBooleanLiteral(true), nil
}

func (e *Evaluator) evaluateOr(expr *algebra.Or, bindings *query.BindingSet) (rdf.Term, error) {
	left, leftErr := e.IsTrue(expr.Left, bindings)
	if leftErr == nil && left {
		return rdf.NewBooleanLiteral(true), nil
	}
	right, rightErr := e.IsTrue(expr.Right, bindings)
	if rightErr == nil && right {
		return rdf.NewBooleanLiteral(true), nil
	}
	if leftErr != nil {
		return nil, leftErr
	}
	if rightErr != nil {
		return nil, rightErr
	}
	return rdf.NewBooleanLiteral(false), nil
}

// EffectiveBooleanValue computes the effective boolean value of a term.
func EffectiveBooleanValue(term rdf.Term) (bool, error) {
	lit, ok := term.(*rdf.Literal)
	if !ok {
		return false, typeError("no effective boolean value for %v", term)
	}

	switch lit.DatatypeIRI() {
	case rdf.XSDBoolean.IRI:
		return lit.Value == "true" || lit.Value == "1", nil
	case "", rdf.XSDString.IRI:
		return lit.Value != "", nil
	}
	if val, ok := extractNumeric(lit); ok {
		return val != 0 && !math.IsNaN(val), nil
	}
	if isNumericType(lit.DatatypeIRI()) {
		// ill-formed numeric literal
		return false, nil
	}
	return false, typeError("no effective boolean value for literal with datatype %s", lit.DatatypeIRI())
}

// Comparison operators

func (e *Evaluator) evaluateCompare(expr *algebra.Compare, bindings *query.BindingSet) (rdf.Term, error) {
	left, err := e.Evaluate(expr.Left, bindings)
	if err != nil {
		return nil, err
	}
	right, err := e.Evaluate(expr.Right, bindings)
	if err != nil {
		return nil, err
	}

	switch expr.Op {
	case algebra.EQ, algebra.NE:
		eq, err := valuesEqual(left, right)
		if err != nil {
			return nil, err
		}
		return rdf.NewBooleanLiteral(eq == (expr.Op == algebra.EQ)), nil
	}

	cmp, err := compareValues(left, right)
	if err != nil {
		return nil, err
	}
	var result bool
	switch expr.Op {
	case algebra.LT:
		result = cmp < 0
	case algebra.LE:
		result = cmp <= 0
	case algebra.GT:
		result = cmp > 0
	case algebra.GE:
		result = cmp >= 0
	default:
		return nil, typeError("unsupported comparison operator: %v", expr.Op)
	}
	return rdf.NewBooleanLiteral(result), nil
}

// valuesEqual is RDF term equality, with numeric literals compared by
// value.
func valuesEqual(left, right rdf.Term) (bool, error) {
	leftNum, leftIsNum := extractNumeric(left)
	rightNum, rightIsNum := extractNumeric(right)
	if leftIsNum && rightIsNum {
		return leftNum == rightNum, nil
	}
	if left.Equals(right) {
		return true, nil
	}
	ll, lok := left.(*rdf.Literal)
	rl, rok := right.(*rdf.Literal)
	if lok && rok && ll.DatatypeIRI() != rl.DatatypeIRI() && isKnownType(ll.DatatypeIRI()) != isKnownType(rl.DatatypeIRI()) {
		return false, typeError("cannot compare %v and %v", left, right)
	}
	return false, nil
}

// compareValues orders two literals of comparable types.
// Returns: -1 if left < right, 0 if equal, 1 if left > right
func compareValues(left, right rdf.Term) (int, error) {
	leftNum, leftIsNum := extractNumeric(left)
	rightNum, rightIsNum := extractNumeric(right)
	if leftIsNum && rightIsNum {
		return compareFloats(leftNum, rightNum), nil
	}

	ll, lok := left.(*rdf.Literal)
	rl, rok := right.(*rdf.Literal)
	if !lok || !rok {
		return 0, typeError("cannot order %v and %v", left, right)
	}

	switch {
	case isStringType(ll) && isStringType(rl):
		return compareStrings(ll.Value, rl.Value), nil
	case ll.DatatypeIRI() == rdf.XSDBoolean.IRI && rl.DatatypeIRI() == rdf.XSDBoolean.IRI:
		lb, _ := strconv.ParseBool(ll.Value)
		rb, _ := strconv.ParseBool(rl.Value)
		switch {
		case lb == rb:
			return 0, nil
		case !lb:
			return -1, nil
		}
		return 1, nil
	case ll.DatatypeIRI() == rdf.XSDDateTime.IRI && rl.DatatypeIRI() == rdf.XSDDateTime.IRI:
		lt, lerr := time.Parse(time.RFC3339, ll.Value)
		rt, rerr := time.Parse(time.RFC3339, rl.Value)
		if lerr != nil || rerr != nil {
			return 0, typeError("invalid dateTime comparison %v and %v", left, right)
		}
		return lt.Compare(rt), nil
	}
	return 0, typeError("cannot order %v and %v", left, right)
}

func compareFloats(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Arithmetic operators

func (e *Evaluator) evaluateMath(expr *algebra.MathExpr, bindings *query.BindingSet) (rdf.Term, error) {
	left, err := e.Evaluate(expr.Left, bindings)
	if err != nil {
		return nil, err
	}
	right, err := e.Evaluate(expr.Right, bindings)
	if err != nil {
		return nil, err
	}

	leftVal, leftOk := extractNumeric(left)
	rightVal, rightOk := extractNumeric(right)
	if !leftOk || !rightOk {
		return nil, typeError("cannot apply %v to non-numeric terms", expr.Op)
	}

	var result float64
	switch expr.Op {
	case algebra.Plus:
		result = leftVal + rightVal
	case algebra.Minus:
		result = leftVal - rightVal
	case algebra.Multiply:
		result = leftVal * rightVal
	case algebra.Divide:
		if rightVal == 0 {
			return nil, typeError("division by zero")
		}
		result = leftVal / rightVal
		if isIntegerType(left) && isIntegerType(right) {
			return rdf.NewDecimalLiteral(result), nil
		}
	default:
		return nil, typeError("unsupported math operator: %v", expr.Op)
	}
	return createNumericLiteral(result, left, right), nil
}

// Helper functions

func isIntegerType(term rdf.Term) bool {
	lit, ok := term.(*rdf.Literal)
	if !ok {
		return false
	}
	switch lit.DatatypeIRI() {
	case rdf.XSDInteger.IRI, rdf.XSDInt.IRI, rdf.XSDLong.IRI:
		return true
	}
	return false
}

func isNumericType(datatype string) bool {
	switch datatype {
	case rdf.XSDInteger.IRI, rdf.XSDInt.IRI, rdf.XSDLong.IRI,
		rdf.XSDDouble.IRI, rdf.XSDFloat.IRI, rdf.XSDDecimal.IRI:
		return true
	}
	return false
}

// isKnownType reports datatypes whose value space the evaluator
// understands.
func isKnownType(datatype string) bool {
	switch datatype {
	case "", rdf.XSDString.IRI, rdf.XSDBoolean.IRI, rdf.XSDDateTime.IRI:
		return true
	}
	return isNumericType(datatype)
}

func isStringType(lit *rdf.Literal) bool {
	dt := lit.DatatypeIRI()
	return dt == "" || dt == rdf.XSDString.IRI
}

// extractNumeric extracts a numeric value from a literal
func extractNumeric(term rdf.Term) (float64, bool) {
	lit, ok := term.(*rdf.Literal)
	if !ok {
		return 0, false
	}

	switch lit.DatatypeIRI() {
	case rdf.XSDInteger.IRI, rdf.XSDInt.IRI, rdf.XSDLong.IRI:
		intVal, err := strconv.ParseInt(lit.Value, 10, 64)
		if err != nil {
			return 0, false
		}
		return float64(intVal), true

	case rdf.XSDDouble.IRI, rdf.XSDFloat.IRI, rdf.XSDDecimal.IRI:
		val, err := strconv.ParseFloat(lit.Value, 64)
		if err != nil {
			return 0, false
		}
		return val, true
	}
	return 0, false
}

// createNumericLiteral keeps integer results integer when both inputs are
// integers; everything else becomes a double.
func createNumericLiteral(value float64, left, right rdf.Term) rdf.Term {
	if value == math.Floor(value) && !math.IsInf(value, 0) && isIntegerType(left) && isIntegerType(right) {
		return rdf.NewIntegerLiteral(int64(value))
	}
	return rdf.NewDoubleLiteral(value)
}
