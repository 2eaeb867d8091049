package algebra

import (
	"github.com/ansell/openrdf-sesame-sub028/pkg/rdf"
)

// ValueConstant is a fixed value.
type ValueConstant struct {
	Value rdf.Term
}

func Const(v rdf.Term) *ValueConstant { return &ValueConstant{Value: v} }

// CompareOp is a comparison operator.
type CompareOp int

const (
	EQ CompareOp = iota
	NE
	LT
	LE
	GT
	GE
)

func (op CompareOp) String() string {
	return [...]string{"=", "!=", "<", "<=", ">", ">="}[op]
}

// Compare compares two values.
type Compare struct {
	Left, Right ValueExpr
	Op          CompareOp
}

// MathOp is an arithmetic operator.
type MathOp int

const (
	Plus MathOp = iota
	Minus
	Multiply
	Divide
)

func (op MathOp) String() string {
	return [...]string{"+", "-", "*", "/"}[op]
}

// MathExpr is binary arithmetic on numeric literals.
type MathExpr struct {
	Left, Right ValueExpr
	Op          MathOp
}

type And struct {
	Left, Right ValueExpr
}

type Or struct {
	Left, Right ValueExpr
}

type Not struct {
	Arg ValueExpr
}

// Bound tests whether a variable has a value.
type Bound struct {
	Arg *Var
}

// SameTerm tests strict term equality.
type SameTerm struct {
	Left, Right ValueExpr
}

// In tests membership of Arg in List.
type In struct {
	Arg  ValueExpr
	List []ValueExpr
	Not  bool
}

// If evaluates to Then when Condition is true and Else otherwise.
type If struct {
	Condition, Then, Else ValueExpr
}

// Coalesce evaluates to the first argument that has a value.
type Coalesce struct {
	Args []ValueExpr
}

// FunctionCall calls a function from the evaluator's registry, by name
// (e.g. "STR", "REGEX") or IRI.
type FunctionCall struct {
	Name string
	Args []ValueExpr
}

// Call builds a FunctionCall.
func Call(name string, args ...ValueExpr) *FunctionCall {
	return &FunctionCall{Name: name, Args: args}
}

func (*ValueConstant) valueExpr() {}
func (*Compare) valueExpr()       {}
func (*MathExpr) valueExpr()      {}
func (*And) valueExpr()           {}
func (*Or) valueExpr()            {}
func (*Not) valueExpr()           {}
func (*Bound) valueExpr()         {}
func (*SameTerm) valueExpr()      {}
func (*In) valueExpr()            {}
func (*If) valueExpr()            {}
func (*Coalesce) valueExpr()      {}
func (*FunctionCall) valueExpr()  {}
