package store

import (
	"fmt"

	"github.com/ansell/openrdf-sesame-sub028/pkg/errors"
	"github.com/ansell/openrdf-sesame-sub028/pkg/iteration"
	"github.com/ansell/openrdf-sesame-sub028/pkg/rdf"
)

// Statement is a quad as returned by the store, with its provenance.
type Statement struct {
	Subject   rdf.Term
	Predicate rdf.Term
	Object    rdf.Term
	Context   rdf.Term
	Explicit  bool
}

// Quad returns the statement as a quad.
func (s *Statement) Quad() *rdf.Quad {
	return rdf.NewQuad(s.Subject, s.Predicate, s.Object, s.Context)
}

func (s *Statement) String() string {
	prov := "explicit"
	if !s.Explicit {
		prov = "inferred"
	}
	return fmt.Sprintf("%s [%s]", s.Quad(), prov)
}

// StatementIterator is the cursor type returned by statement queries.
type StatementIterator = iteration.Iteration[*Statement]

// Pattern is a statement pattern. Nil Subject, Predicate or Object match
// anything. Contexts lists the contexts to search; an empty list searches
// all contexts and the default graph sentinel selects the null context.
type Pattern struct {
	Subject   *ValueRef
	Predicate *ValueRef
	Object    *ValueRef
	Contexts  []*ValueRef
}

// NewPattern builds a pattern from plain values.
func NewPattern(subj, pred, obj rdf.Term, contexts ...rdf.Term) *Pattern {
	p := &Pattern{}
	if subj != nil {
		p.Subject = NewValueRef(subj)
	}
	if pred != nil {
		p.Predicate = NewValueRef(pred)
	}
	if obj != nil {
		p.Object = NewValueRef(obj)
	}
	for _, c := range contexts {
		if c == nil {
			c = rdf.NewDefaultGraph()
		}
		p.Contexts = append(p.Contexts, NewValueRef(c))
	}
	return p
}

// resolvedPattern is a pattern translated to ids. ok is false when a bound
// value is unknown to the dictionary, in which case nothing can match.
type resolvedPattern struct {
	ids      [4]uint64
	bound    [4]bool
	contexts []uint64
	anyCtx   bool
	ok       bool
}

func (p *Pattern) resolve(d *Dictionary) resolvedPattern {
	r := resolvedPattern{ok: true, anyCtx: len(p.Contexts) == 0}
	for i, ref := range []*ValueRef{p.Subject, p.Predicate, p.Object} {
		if ref == nil {
			continue
		}
		id, ok := ref.ID(d)
		if !ok {
			r.ok = false
			return r
		}
		r.ids[i], r.bound[i] = id, true
	}
	seen := make(map[uint64]bool)
	for _, ref := range p.Contexts {
		if id, ok := ref.ID(d); ok && !seen[id] {
			seen[id] = true
			r.contexts = append(r.contexts, id)
		}
	}
	if !r.anyCtx && len(r.contexts) == 0 {
		r.ok = false
	}
	return r
}

// view says which tuples a scan observes: the transaction owner's view
// or the committed state at a store version.
type view struct {
	txn     bool
	version uint64
}

// statementCursor walks one index snapshot for one or more context values.
type statementCursor struct {
	s               *TripleStore
	view            view
	includeInferred bool
	pattern         resolvedPattern
	ix              *index
	scanners        []*rangeScanner
	current         int
}

func (c *statementCursor) fetch() (*Statement, bool, error) {
	for c.current < len(c.scanners) {
		sc := c.scanners[c.current]
		for t := sc.next(); t != nil; t = sc.next() {
			explicit, ok := c.accept(t, sc.prefix)
			if !ok {
				continue
			}
			st, err := c.s.statementFor(t, explicit)
			if err != nil {
				return nil, false, err
			}
			return st, true, nil
		}
		c.current++
	}
	return nil, false, nil
}

// accept applies the bound components the index prefix did not cover and
// the view's visibility rules.
func (c *statementCursor) accept(t *tuple, want [4]uint64) (bool, bool) {
	for f := 0; f < 4; f++ {
		if c.boundAt(f) && t.ids[f] != want[f] {
			return false, false
		}
	}
	var explicit bool
	if c.view.txn {
		if c.s.live[t.ids] != t || !t.status.visibleInTxn() {
			return false, false
		}
		explicit = explicitInTxn(t.status, t.explicit)
	} else {
		if !t.visibleAt(c.view.version) {
			return false, false
		}
		explicit = t.explicit
	}
	if !explicit && !c.includeInferred {
		return false, false
	}
	return explicit, true
}

func (c *statementCursor) boundAt(f int) bool {
	if f == posContext {
		return !c.pattern.anyCtx
	}
	return c.pattern.bound[f]
}

func (s *TripleStore) statementFor(t *tuple, explicit bool) (*Statement, error) {
	var terms [4]rdf.Term
	for i, id := range t.ids {
		v, ok := s.dict.Value(id)
		if !ok {
			return nil, errors.Newf(errors.ErrStoreCorruption, "statement references unknown value id %d", id)
		}
		terms[i] = v
	}
	return &Statement{
		Subject:   terms[posSubject],
		Predicate: terms[posPredicate],
		Object:    terms[posObject],
		Context:   terms[posContext],
		Explicit:  explicit,
	}, nil
}
