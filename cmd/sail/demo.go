package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ansell/openrdf-sesame-sub028/pkg/inferencer"
	"github.com/ansell/openrdf-sesame-sub028/pkg/iteration"
	"github.com/ansell/openrdf-sesame-sub028/pkg/query"
	"github.com/ansell/openrdf-sesame-sub028/pkg/query/algebra"
	"github.com/ansell/openrdf-sesame-sub028/pkg/rdf"
	"github.com/ansell/openrdf-sesame-sub028/pkg/store"
)

const (
	exNS   = "http://example.org/"
	foafNS = "http://xmlns.com/foaf/0.1/"
)

func newDemoCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Store sample data and run a query over it.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(e)
		},
	}
}

func runDemo(e *env) error {
	out := e.stdout
	fmt.Fprintln(out, "=== Sail RDF Store Demo ===")
	fmt.Fprintln(out)

	s, err := e.open()
	if err != nil {
		return err
	}
	defer s.Close()
	fmt.Fprintf(out, "Opened %s store with indexes %s\n\n", e.cfg.Backend, s.Indexes())

	c, err := s.NewConnection()
	if err != nil {
		return err
	}
	conn := inferencer.NewRDFS(c, e.log)
	defer conn.Close()

	alice := rdf.NewNamedNode(exNS + "alice")
	bob := rdf.NewNamedNode(exNS + "bob")
	carol := rdf.NewNamedNode(exNS + "carol")

	person := rdf.NewNamedNode(foafNS + "Person")
	agent := rdf.NewNamedNode(foafNS + "Agent")
	knows := rdf.NewNamedNode(foafNS + "knows")
	name := rdf.NewNamedNode(foafNS + "name")
	age := rdf.NewNamedNode(foafNS + "age")

	fmt.Fprintln(out, "Inserting sample data...")
	quads := []*rdf.Quad{
		rdf.NewQuad(person, rdf.RDFSSubClassOf, agent, nil),
		rdf.NewQuad(knows, rdf.RDFSDomain, person, nil),

		rdf.NewQuad(alice, name, rdf.NewLiteral("Alice"), nil),
		rdf.NewQuad(alice, age, rdf.NewIntegerLiteral(30), nil),
		rdf.NewQuad(alice, knows, bob, nil),

		rdf.NewQuad(bob, name, rdf.NewLiteral("Bob"), nil),
		rdf.NewQuad(bob, age, rdf.NewIntegerLiteral(25), nil),
		rdf.NewQuad(bob, knows, carol, nil),

		rdf.NewQuad(carol, name, rdf.NewLiteral("Carol"), nil),
		rdf.NewQuad(carol, age, rdf.NewIntegerLiteral(28), nil),

		rdf.NewQuad(alice, name, rdf.NewLiteral("Alice in Graph1"), rdf.NewNamedNode(exNS+"graph1")),
		rdf.NewQuad(carol, name, rdf.NewLiteral("Carol in Graph2"), rdf.NewNamedNode(exNS+"graph2")),
	}
	for _, q := range quads {
		fmt.Fprintf(out, "  + %s\n", q)
	}
	if err := conn.AddAll(iteration.FromSlice(quads)); err != nil {
		return err
	}
	if err := conn.Commit(); err != nil {
		return err
	}

	total, err := s.Count()
	if err != nil {
		return err
	}
	explicit, err := conn.Size()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nStatements stored: %d explicit, %d inferred\n\n", explicit, total-explicit)

	// SELECT ?person ?name ?age WHERE { ?person foaf:name ?name ; foaf:age ?age
	//   FILTER(?age > 26) } ORDER BY DESC(?age)
	fmt.Fprintln(out, "=== People older than 26 ===")
	q := &algebra.Projection{
		Arg: &algebra.Order{
			Arg: &algebra.Filter{
				Arg: &algebra.Join{
					Left:  algebra.NewStatementPattern(algebra.NewVar("person"), algebra.NewConstVar(name), algebra.NewVar("name")),
					Right: algebra.NewStatementPattern(algebra.NewVar("person"), algebra.NewConstVar(age), algebra.NewVar("age")),
				},
				Condition: &algebra.Compare{Left: algebra.NewVar("age"), Right: algebra.Const(rdf.NewIntegerLiteral(26)), Op: algebra.GT},
			},
			Elems: []algebra.OrderElem{{Expr: algebra.NewVar("age"), Ascending: false}},
		},
		Elems: algebra.Elems("person", "name", "age"),
	}
	if err := printQuery(out, conn, q); err != nil {
		return err
	}

	fmt.Fprintln(out, "=== Agents (inferred through rdfs:domain and rdfs:subClassOf) ===")
	agents := &algebra.Projection{
		Arg:   algebra.NewStatementPattern(algebra.NewVar("agent"), algebra.NewConstVar(rdf.RDFType), algebra.NewConstVar(agent)),
		Elems: algebra.Elems("agent"),
	}
	if err := printQuery(out, conn, agents); err != nil {
		return err
	}

	fmt.Fprintln(out, "=== Metrics ===")
	return printMetrics(out, e)
}

func printQuery(out io.Writer, conn store.SailConnection, expr algebra.TupleExpr) error {
	it, err := conn.Evaluate(expr, nil, nil, true)
	if err != nil {
		return err
	}
	names := expr.BindingNames()
	fmt.Fprint(out, "| ")
	for _, n := range names {
		fmt.Fprintf(out, "%-32s | ", "?"+n)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "|"+strings.Repeat(strings.Repeat("-", 34)+"|", len(names)))

	rows := 0
	err = iteration.ForEach(it, func(bs *query.BindingSet) error {
		fmt.Fprint(out, "| ")
		for _, n := range names {
			v := ""
			if t := bs.Value(n); t != nil {
				v = t.String()
			}
			fmt.Fprintf(out, "%-32s | ", v)
		}
		fmt.Fprintln(out)
		rows++
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%d rows\n\n", rows)
	return nil
}

func printMetrics(out io.Writer, e *env) error {
	families, err := e.metrics.Gather()
	if err != nil {
		return err
	}
	sort.Slice(families, func(i, j int) bool { return families[i].GetName() < families[j].GetName() })
	for _, f := range families {
		for _, m := range f.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				fmt.Fprintf(out, "%-40s %g\n", f.GetName(), m.GetCounter().GetValue())
			case m.GetGauge() != nil:
				fmt.Fprintf(out, "%-40s %g\n", f.GetName(), m.GetGauge().GetValue())
			case m.GetHistogram() != nil:
				fmt.Fprintf(out, "%-40s count=%d sum=%g\n", f.GetName(), m.GetHistogram().GetSampleCount(), m.GetHistogram().GetSampleSum())
			}
		}
	}
	return nil
}
