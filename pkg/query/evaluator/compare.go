package evaluator

import (
	"github.com/ansell/openrdf-sesame-sub028/pkg/query"
	"github.com/ansell/openrdf-sesame-sub028/pkg/query/algebra"
	"github.com/ansell/openrdf-sesame-sub028/pkg/rdf"
)

// CompareTerms gives a total order over terms for sorting: unbound,
// blank nodes, IRIs, then literals. Literals of comparable types are
// ordered by value, the rest by their lexical form.
func CompareTerms(a, b rdf.Term) int {
	ra, rb := termRank(a), termRank(b)
	if ra != rb {
		return compareFloats(float64(ra), float64(rb))
	}
	switch ta := a.(type) {
	case nil:
		return 0
	case *rdf.BlankNode:
		return compareStrings(ta.ID, b.(*rdf.BlankNode).ID)
	case *rdf.NamedNode:
		return compareStrings(ta.IRI, b.(*rdf.NamedNode).IRI)
	case *rdf.Literal:
		if c, err := compareValues(a, b); err == nil {
			return c
		}
		lb := b.(*rdf.Literal)
		if c := compareStrings(ta.Value, lb.Value); c != 0 {
			return c
		}
		if c := compareStrings(ta.DatatypeIRI(), lb.DatatypeIRI()); c != 0 {
			return c
		}
		return compareStrings(ta.Language, lb.Language)
	}
	return compareStrings(a.String(), b.String())
}

func termRank(t rdf.Term) int {
	switch t.(type) {
	case nil:
		return 0
	case *rdf.BlankNode:
		return 1
	case *rdf.NamedNode:
		return 2
	case *rdf.Literal:
		return 3
	}
	return 4
}

// OrderComparator compares binding sets on a list of sort keys. A key
// that fails to evaluate sorts as unbound.
type OrderComparator struct {
	evaluator *Evaluator
	elems     []algebra.OrderElem
}

func NewOrderComparator(e *Evaluator, elems []algebra.OrderElem) *OrderComparator {
	return &OrderComparator{evaluator: e, elems: elems}
}

// Compare returns a negative number when a sorts before b.
func (c *OrderComparator) Compare(a, b *query.BindingSet) int {
	for _, el := range c.elems {
		va, err := c.evaluator.Evaluate(el.Expr, a)
		if err != nil {
			va = nil
		}
		vb, err := c.evaluator.Evaluate(el.Expr, b)
		if err != nil {
			vb = nil
		}
		cmp := CompareTerms(va, vb)
		if cmp == 0 {
			continue
		}
		if !el.Ascending {
			cmp = -cmp
		}
		return cmp
	}
	return 0
}
