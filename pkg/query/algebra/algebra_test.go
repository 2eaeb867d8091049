package algebra

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ansell/openrdf-sesame-sub028/pkg/query"
	"github.com/ansell/openrdf-sesame-sub028/pkg/rdf"
)

func TestBindingNames(t *testing.T) {
	knows := NewConstVar(rdf.NewNamedNode("http://example.org/knows"))
	left := NewStatementPattern(NewVar("x"), knows, NewVar("y"))
	right := NewNamedStatementPattern(NewVar("y"), knows, NewVar("z"), NewVar("g"))

	tests := []struct {
		name string
		expr TupleExpr
		want []string
	}{
		{"pattern skips constants", left, []string{"x", "y"}},
		{"named pattern binds context", right, []string{"y", "z", "g"}},
		{"join", &Join{Left: left, Right: right}, []string{"x", "y", "z", "g"}},
		{"filter keeps arg", &Filter{Arg: left, Condition: Const(rdf.NewBooleanLiteral(true))}, []string{"x", "y"}},
		{"projection renames", &Projection{Arg: left, Elems: []ProjectionElem{{Source: "x", Target: "person"}}}, []string{"person"}},
		{"multi projection", &MultiProjection{Arg: left, Projections: [][]ProjectionElem{Elems("x"), Elems("y", "x")}}, []string{"x", "y"}},
		{"extension", &Extension{Arg: left, Elems: []ExtensionElem{{Name: "n", Expr: NewVar("x")}}}, []string{"x", "y", "n"}},
		{"difference keeps left", &Difference{Left: left, Right: right}, []string{"x", "y"}},
		{"singleton", SingletonSet{}, nil},
		{"values", &BindingSetAssignment{Bindings: []*query.BindingSet{
			query.Bindings("a", rdf.NewLiteral("1")),
			query.Bindings("b", rdf.NewLiteral("2"), "a", rdf.NewLiteral("3")),
		}}, []string{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, tt.expr.BindingNames()); diff != "" {
				t.Errorf("BindingNames mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestVar_String(t *testing.T) {
	if got := NewVar("x").String(); got != "?x" {
		t.Errorf("got %q", got)
	}
	c := NewConstVar(rdf.NewNamedNode("http://example.org/a"))
	if !c.IsConstant() || c.String() != "<http://example.org/a>" {
		t.Errorf("unexpected constant %q", c.String())
	}
}
