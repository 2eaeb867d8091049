package encoding

import (
	"encoding/binary"
	"fmt"

	"github.com/ansell/openrdf-sesame-sub028/pkg/rdf"
	"github.com/zeebo/xxh3"
)

// Term records are laid out as a kind byte followed by uvarint length
// prefixed fields:
//
//	uri:     kind | iri
//	bnode:   kind | id
//	literal: kind | label | language | datatype
//	default: kind
//
// Literals are stored exactly as given; no lexical normalisation happens
// here, so a decoded term always Equals the encoded one.
const recordVersion byte = 1

// TermEncoder handles encoding of RDF terms into dictionary records
type TermEncoder struct{}

func NewTermEncoder() *TermEncoder {
	return &TermEncoder{}
}

// Hash128 computes a 128-bit xxhash3 hash of the term's record. Equal
// terms have equal hashes.
func (e *TermEncoder) Hash128(term rdf.Term) ([16]byte, error) {
	var result [16]byte
	rec, err := e.EncodeTerm(term)
	if err != nil {
		return result, err
	}
	hash := xxh3.Hash128(rec)
	binary.BigEndian.PutUint64(result[0:8], hash.Hi)
	binary.BigEndian.PutUint64(result[8:16], hash.Lo)
	return result, nil
}

// EncodeTerm encodes an RDF term into a self-describing record.
func (e *TermEncoder) EncodeTerm(term rdf.Term) ([]byte, error) {
	switch t := term.(type) {
	case *rdf.NamedNode:
		return appendFields([]byte{recordVersion, byte(rdf.TermTypeNamedNode)}, t.IRI), nil
	case *rdf.BlankNode:
		return appendFields([]byte{recordVersion, byte(rdf.TermTypeBlankNode)}, t.ID), nil
	case *rdf.Literal:
		return appendFields([]byte{recordVersion, byte(rdf.TermTypeLiteral)}, t.Value, t.Language, t.DatatypeIRI()), nil
	case *rdf.DefaultGraph:
		return []byte{recordVersion, byte(rdf.TermTypeDefaultGraph)}, nil
	default:
		return nil, fmt.Errorf("unknown term type: %T", term)
	}
}

func appendFields(buf []byte, fields ...string) []byte {
	for _, f := range fields {
		buf = binary.AppendUvarint(buf, uint64(len(f)))
		buf = append(buf, f...)
	}
	return buf
}
