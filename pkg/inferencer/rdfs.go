// Package inferencer provides forward-chaining inference as a connection
// decorator.
package inferencer

import (
	"github.com/ansell/openrdf-sesame-sub028/pkg/iteration"
	"github.com/ansell/openrdf-sesame-sub028/pkg/logger"
	"github.com/ansell/openrdf-sesame-sub028/pkg/rdf"
	"github.com/ansell/openrdf-sesame-sub028/pkg/store"
)

// RDFS maintains the RDFS closure of the explicit statements of a
// connection. Inferred statements are recomputed at commit whenever the
// transaction changed an explicit statement, and are stored in the
// default graph.
//
// Supported rules: rdfs2 (domain), rdfs3 (range), rdfs5 (subPropertyOf
// transitivity), rdfs7 (property inheritance), rdfs9 (type inheritance)
// and rdfs11 (subClassOf transitivity).
type RDFS struct {
	*store.Forwarding
	log   logger.Logger
	dirty bool
}

// NewRDFS wraps delegate. log may be nil.
func NewRDFS(delegate store.InferencerConnection, log logger.Logger) *RDFS {
	if log == nil {
		log = logger.NopLogger
	}
	r := &RDFS{log: log.WithPrefix("rdfs: ")}
	r.Forwarding = store.NewForwarding(delegate, store.Hooks{
		AfterAdd: func(ch store.Change) {
			if !ch.Inferred {
				r.dirty = true
			}
		},
		AfterRemove: func(ch store.Change, removed bool) {
			if removed && !ch.Inferred {
				r.dirty = true
			}
		},
		BeforeCommit: func(conn store.InferencerConnection) error {
			if !r.dirty {
				return nil
			}
			return r.recompute(conn)
		},
		AfterCommit:   r.reset,
		AfterRollback: r.reset,
	})
	return r
}

func (r *RDFS) reset() {
	r.dirty = false
}

// Dirty reports whether the running transaction changed explicit
// statements since the closure was last computed.
func (r *RDFS) Dirty() bool {
	return r.dirty
}

// Recompute brings the inferred statements in line with the explicit
// ones inside the running transaction. Commit calls it when needed.
func (r *RDFS) Recompute() error {
	if err := r.recompute(r.Delegate()); err != nil {
		return err
	}
	r.dirty = false
	return nil
}

func (r *RDFS) recompute(conn store.InferencerConnection) error {
	if err := conn.ClearInferred(); err != nil {
		return err
	}
	it, err := conn.GetStatements(nil, nil, nil, false)
	if err != nil {
		return err
	}
	g := newGraph()
	if err := iteration.ForEach(it, func(st *store.Statement) error {
		g.add(triple{st.Subject, st.Predicate, st.Object})
		return nil
	}); err != nil {
		return err
	}

	derived, rounds := closure(g)
	added := 0
	for _, t := range derived {
		ok, err := conn.AddInferredStatement(t.s, t.p, t.o)
		if err != nil {
			return err
		}
		if ok {
			added++
		}
	}
	r.log.Debugf("%d explicit statements, %d inferred in %d rounds", g.len()-len(derived), added, rounds)
	return nil
}

type triple struct {
	s, p, o rdf.Term
}

func (t triple) key() string {
	return t.s.String() + " " + t.p.String() + " " + t.o.String()
}

// graph is a set of triples with lookups by predicate and by subject and
// predicate.
type graph struct {
	seen   map[string]struct{}
	all    []triple
	byPred map[string][]triple
	bySP   map[string][]rdf.Term
}

func newGraph() *graph {
	return &graph{
		seen:   make(map[string]struct{}),
		byPred: make(map[string][]triple),
		bySP:   make(map[string][]rdf.Term),
	}
}

func (g *graph) add(t triple) bool {
	k := t.key()
	if _, ok := g.seen[k]; ok {
		return false
	}
	g.seen[k] = struct{}{}
	g.all = append(g.all, t)
	p := t.p.String()
	g.byPred[p] = append(g.byPred[p], t)
	sp := t.s.String() + " " + p
	g.bySP[sp] = append(g.bySP[sp], t.o)
	return true
}

func (g *graph) len() int {
	return len(g.all)
}

// objects returns the o of every (s p o).
func (g *graph) objects(s, p rdf.Term) []rdf.Term {
	return g.bySP[s.String()+" "+p.String()]
}

// closure adds the consequences of the rules to g until nothing new is
// derived. It returns the derived triples and the number of rounds.
func closure(g *graph) ([]triple, int) {
	var derived []triple
	rounds := 0
	for {
		rounds++
		var next []triple
		emit := func(s, p, o rdf.Term) {
			if _, ok := s.(*rdf.Literal); ok {
				return
			}
			if _, ok := p.(*rdf.NamedNode); !ok {
				return
			}
			next = append(next, triple{s, p, o})
		}
		for _, t := range g.all {
			// rdfs2, rdfs3
			for _, c := range g.objects(t.p, rdf.RDFSDomain) {
				emit(t.s, rdf.RDFType, c)
			}
			for _, c := range g.objects(t.p, rdf.RDFSRange) {
				emit(t.o, rdf.RDFType, c)
			}
			// rdfs7
			for _, q := range g.objects(t.p, rdf.RDFSSubPropertyOf) {
				emit(t.s, q, t.o)
			}
		}
		// rdfs5
		for _, t := range g.byPred[rdf.RDFSSubPropertyOf.String()] {
			for _, r := range g.objects(t.o, rdf.RDFSSubPropertyOf) {
				emit(t.s, rdf.RDFSSubPropertyOf, r)
			}
		}
		// rdfs9
		for _, t := range g.byPred[rdf.RDFType.String()] {
			for _, d := range g.objects(t.o, rdf.RDFSSubClassOf) {
				emit(t.s, rdf.RDFType, d)
			}
		}
		// rdfs11
		for _, t := range g.byPred[rdf.RDFSSubClassOf.String()] {
			for _, e := range g.objects(t.o, rdf.RDFSSubClassOf) {
				emit(t.s, rdf.RDFSSubClassOf, e)
			}
		}

		n := 0
		for _, t := range next {
			if g.add(t) {
				derived = append(derived, t)
				n++
			}
		}
		if n == 0 {
			return derived, rounds
		}
	}
}
