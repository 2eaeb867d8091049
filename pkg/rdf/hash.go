package rdf

import (
	"github.com/zeebo/xxh3"
)

// Hash returns a 64-bit hash of t that is consistent with Equals.
func Hash(t Term) uint64 {
	if t == nil {
		return 0
	}
	h := xxh3.New()
	writeTerm(h, t)
	return h.Sum64()
}

// HashQuad hashes the four positions of q.
func HashQuad(q *Quad) uint64 {
	h := xxh3.New()
	writeTerm(h, q.Subject)
	writeTerm(h, q.Predicate)
	writeTerm(h, q.Object)
	writeTerm(h, q.Graph)
	return h.Sum64()
}

func writeTerm(h *xxh3.Hasher, t Term) {
	if IsDefaultGraph(t) {
		_, _ = h.Write([]byte{byte(TermTypeDefaultGraph), 0})
		return
	}
	_, _ = h.Write([]byte{byte(t.Type())})
	switch v := t.(type) {
	case *NamedNode:
		_, _ = h.WriteString(v.IRI)
	case *BlankNode:
		_, _ = h.WriteString(v.ID)
	case *Literal:
		_, _ = h.WriteString(v.Value)
		_, _ = h.Write([]byte{0})
		_, _ = h.WriteString(v.Language)
		_, _ = h.Write([]byte{0})
		_, _ = h.WriteString(v.DatatypeIRI())
	}
	_, _ = h.Write([]byte{0})
}
