// Package algebra defines the query algebra tree the executor evaluates.
// Trees are built by a parser or by hand; this package does not parse
// query text.
package algebra

import (
	"github.com/ansell/openrdf-sesame-sub028/pkg/query"
	"github.com/ansell/openrdf-sesame-sub028/pkg/rdf"
)

// TupleExpr is an algebra node that produces binding sets.
type TupleExpr interface {
	// BindingNames returns the names the node may bind, in order of first
	// appearance.
	BindingNames() []string
	tupleExpr()
}

// ValueExpr is an algebra node that computes one value from a binding set.
type ValueExpr interface {
	valueExpr()
}

// Var is a variable, or a constant when Value is set.
type Var struct {
	Name  string
	Value rdf.Term
}

func NewVar(name string) *Var { return &Var{Name: name} }

// NewConstVar returns an anonymous variable fixed to v.
func NewConstVar(v rdf.Term) *Var { return &Var{Name: "_const_" + v.String(), Value: v} }

// IsConstant reports whether v has a fixed value.
func (v *Var) IsConstant() bool { return v != nil && v.Value != nil }

func (v *Var) String() string {
	if v.IsConstant() {
		return v.Value.String()
	}
	return "?" + v.Name
}

func (*Var) valueExpr() {}

// ContextScope says which graphs a statement pattern reads.
type ContextScope int

const (
	// DefaultContexts reads the dataset's default graphs.
	DefaultContexts ContextScope = iota
	// NamedContexts reads the dataset's named graphs.
	NamedContexts
)

// StatementPattern matches statements. Context is nil for patterns
// outside a GRAPH clause.
type StatementPattern struct {
	Subject   *Var
	Predicate *Var
	Object    *Var
	Context   *Var
	Scope     ContextScope
}

// NewStatementPattern returns a pattern in the default scope.
func NewStatementPattern(s, p, o *Var) *StatementPattern {
	return &StatementPattern{Subject: s, Predicate: p, Object: o}
}

// NewNamedStatementPattern returns a pattern in the named graph scope.
func NewNamedStatementPattern(s, p, o, c *Var) *StatementPattern {
	return &StatementPattern{Subject: s, Predicate: p, Object: o, Context: c, Scope: NamedContexts}
}

// Vars returns the subject, predicate, object and context variables.
func (sp *StatementPattern) Vars() []*Var {
	return []*Var{sp.Subject, sp.Predicate, sp.Object, sp.Context}
}

func (sp *StatementPattern) BindingNames() []string {
	var names nameSet
	for _, v := range sp.Vars() {
		if v != nil && !v.IsConstant() {
			names.add(v.Name)
		}
	}
	return names.list
}

// Join is the natural join of its operands.
type Join struct {
	Left, Right TupleExpr
}

func (j *Join) BindingNames() []string { return union(j.Left, j.Right) }

// LeftJoin is the optional join. Condition may be nil.
type LeftJoin struct {
	Left, Right TupleExpr
	Condition   ValueExpr
}

func (j *LeftJoin) BindingNames() []string { return union(j.Left, j.Right) }

// Filter passes the binding sets of Arg for which Condition is true.
type Filter struct {
	Arg       TupleExpr
	Condition ValueExpr
}

func (f *Filter) BindingNames() []string { return f.Arg.BindingNames() }

// Union concatenates the results of its operands.
type Union struct {
	Left, Right TupleExpr
}

func (u *Union) BindingNames() []string { return union(u.Left, u.Right) }

// Difference removes from Left the binding sets compatible with some
// binding set of Right that shares at least one name.
type Difference struct {
	Left, Right TupleExpr
}

func (d *Difference) BindingNames() []string { return d.Left.BindingNames() }

// ProjectionElem copies Source to Target.
type ProjectionElem struct {
	Source, Target string
}

// Elem projects name onto itself.
func Elem(name string) ProjectionElem { return ProjectionElem{Source: name, Target: name} }

// Elems projects each name onto itself.
func Elems(names ...string) []ProjectionElem {
	out := make([]ProjectionElem, len(names))
	for i, n := range names {
		out[i] = Elem(n)
	}
	return out
}

// Projection selects and renames bindings.
type Projection struct {
	Arg   TupleExpr
	Elems []ProjectionElem
}

func (p *Projection) BindingNames() []string { return targets(p.Elems) }

// MultiProjection emits one projected binding set per projection list
// for every input binding set.
type MultiProjection struct {
	Arg         TupleExpr
	Projections [][]ProjectionElem
}

func (p *MultiProjection) BindingNames() []string {
	var names nameSet
	for _, elems := range p.Projections {
		names.add(targets(elems)...)
	}
	return names.list
}

// ExtendMode says what an extension does with a name that is already
// bound.
type ExtendMode int

const (
	// ExtendOverwrite replaces the existing value (BIND).
	ExtendOverwrite ExtendMode = iota
	// ExtendAddIfAbsent keeps the existing value.
	ExtendAddIfAbsent
)

// ExtensionElem binds Name to the value of Expr.
type ExtensionElem struct {
	Name string
	Expr ValueExpr
}

// Extension adds computed bindings to every binding set of Arg.
type Extension struct {
	Arg   TupleExpr
	Elems []ExtensionElem
	Mode  ExtendMode
}

func (e *Extension) BindingNames() []string {
	names := nameSet{}
	names.add(e.Arg.BindingNames()...)
	for _, el := range e.Elems {
		names.add(el.Name)
	}
	return names.list
}

// OrderElem is one sort key.
type OrderElem struct {
	Expr      ValueExpr
	Ascending bool
}

// Order sorts the results of Arg.
type Order struct {
	Arg   TupleExpr
	Elems []OrderElem
}

func (o *Order) BindingNames() []string { return o.Arg.BindingNames() }

// Distinct removes duplicate binding sets.
type Distinct struct {
	Arg TupleExpr
}

func (d *Distinct) BindingNames() []string { return d.Arg.BindingNames() }

// Slice skips Offset results and returns at most Limit. A negative Limit
// means no limit.
type Slice struct {
	Arg    TupleExpr
	Offset int64
	Limit  int64
}

func (s *Slice) BindingNames() []string { return s.Arg.BindingNames() }

// SingletonSet yields the input binding set once.
type SingletonSet struct{}

func (SingletonSet) BindingNames() []string { return nil }

// EmptySet yields nothing.
type EmptySet struct{}

func (EmptySet) BindingNames() []string { return nil }

// BindingSetAssignment yields fixed binding sets (VALUES).
type BindingSetAssignment struct {
	Bindings []*query.BindingSet
}

func (a *BindingSetAssignment) BindingNames() []string {
	var names nameSet
	for _, b := range a.Bindings {
		names.add(b.Names()...)
	}
	return names.list
}

func (*StatementPattern) tupleExpr()     {}
func (*Join) tupleExpr()                 {}
func (*LeftJoin) tupleExpr()             {}
func (*Filter) tupleExpr()               {}
func (*Union) tupleExpr()                {}
func (*Difference) tupleExpr()           {}
func (*Projection) tupleExpr()           {}
func (*MultiProjection) tupleExpr()      {}
func (*Extension) tupleExpr()            {}
func (*Order) tupleExpr()                {}
func (*Distinct) tupleExpr()             {}
func (*Slice) tupleExpr()                {}
func (SingletonSet) tupleExpr()          {}
func (EmptySet) tupleExpr()              {}
func (*BindingSetAssignment) tupleExpr() {}

type nameSet struct {
	list []string
	seen map[string]bool
}

func (s *nameSet) add(names ...string) {
	if s.seen == nil {
		s.seen = make(map[string]bool)
	}
	for _, n := range names {
		if !s.seen[n] {
			s.seen[n] = true
			s.list = append(s.list, n)
		}
	}
}

func union(exprs ...TupleExpr) []string {
	var names nameSet
	for _, e := range exprs {
		names.add(e.BindingNames()...)
	}
	return names.list
}

func targets(elems []ProjectionElem) []string {
	var names nameSet
	for _, e := range elems {
		names.add(e.Target)
	}
	return names.list
}
