package rdf

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ansell/openrdf-sesame-sub028/pkg/errors"
)

// TermType represents the kind of an RDF term
type TermType byte

const (
	TermTypeNamedNode TermType = iota + 1
	TermTypeBlankNode
	TermTypeLiteral
	TermTypeDefaultGraph
)

func (t TermType) String() string {
	switch t {
	case TermTypeNamedNode:
		return "uri"
	case TermTypeBlankNode:
		return "bnode"
	case TermTypeLiteral:
		return "literal"
	case TermTypeDefaultGraph:
		return "default-graph"
	}
	return fmt.Sprintf("TermType(%d)", byte(t))
}

// Term represents an RDF value (IRI, blank node, literal) or the default
// graph sentinel used in the context position.
type Term interface {
	Type() TermType
	String() string
	Equals(other Term) bool
}

// NamedNode represents an IRI
type NamedNode struct {
	IRI string
}

func NewNamedNode(iri string) *NamedNode {
	return &NamedNode{IRI: iri}
}

func (n *NamedNode) Type() TermType {
	return TermTypeNamedNode
}

func (n *NamedNode) String() string {
	return "<" + n.IRI + ">"
}

func (n *NamedNode) Equals(other Term) bool {
	if on, ok := other.(*NamedNode); ok {
		return n.IRI == on.IRI
	}
	return false
}

// Namespace returns the IRI up to and including the local name separator.
func (n *NamedNode) Namespace() string {
	return n.IRI[:localNameIndex(n.IRI)]
}

// LocalName returns the part of the IRI after the local name separator.
func (n *NamedNode) LocalName() string {
	return n.IRI[localNameIndex(n.IRI):]
}

// localNameIndex finds the split point: after the last '#', else the last
// '/', else the last ':'. An IRI with none of them is all local name.
func localNameIndex(iri string) int {
	for _, sep := range []byte{'#', '/', ':'} {
		if i := strings.LastIndexByte(iri, sep); i >= 0 {
			return i + 1
		}
	}
	return 0
}

// BlankNode represents a blank node
type BlankNode struct {
	ID string
}

func NewBlankNode(id string) *BlankNode {
	return &BlankNode{ID: id}
}

func (b *BlankNode) Type() TermType {
	return TermTypeBlankNode
}

func (b *BlankNode) String() string {
	return "_:" + b.ID
}

func (b *BlankNode) Equals(other Term) bool {
	if ob, ok := other.(*BlankNode); ok {
		return b.ID == ob.ID
	}
	return false
}

// Literal represents an RDF literal. At most one of Language and Datatype
// is set.
type Literal struct {
	Value    string
	Language string
	Datatype *NamedNode
}

func NewLiteral(value string) *Literal {
	return &Literal{Value: value}
}

func NewLiteralWithLanguage(value, language string) *Literal {
	return &Literal{Value: value, Language: strings.ToLower(language)}
}

func NewLiteralWithDatatype(value string, datatype *NamedNode) *Literal {
	return &Literal{Value: value, Datatype: datatype}
}

func (l *Literal) Type() TermType {
	return TermTypeLiteral
}

func (l *Literal) String() string {
	result := strconv.Quote(l.Value)
	if l.Language != "" {
		result += "@" + l.Language
	} else if l.Datatype != nil {
		result += "^^" + l.Datatype.String()
	}
	return result
}

func (l *Literal) Equals(other Term) bool {
	ol, ok := other.(*Literal)
	if !ok {
		return false
	}
	if l.Value != ol.Value || l.Language != ol.Language {
		return false
	}
	if l.Datatype == nil || ol.Datatype == nil {
		return l.Datatype == nil && ol.Datatype == nil
	}
	return l.Datatype.Equals(ol.Datatype)
}

// DatatypeIRI returns the datatype IRI, or "" for plain and language
// tagged literals.
func (l *Literal) DatatypeIRI() string {
	if l.Datatype == nil {
		return ""
	}
	return l.Datatype.IRI
}

// DefaultGraph is the context of statements that belong to no named graph.
type DefaultGraph struct{}

var defaultGraph = &DefaultGraph{}

// NewDefaultGraph returns the shared default graph sentinel.
func NewDefaultGraph() *DefaultGraph {
	return defaultGraph
}

func (d *DefaultGraph) Type() TermType {
	return TermTypeDefaultGraph
}

func (d *DefaultGraph) String() string {
	return "DEFAULT"
}

func (d *DefaultGraph) Equals(other Term) bool {
	_, ok := other.(*DefaultGraph)
	return ok
}

// Quad represents an RDF quad (subject, predicate, object, graph). A nil
// Graph is treated as the default graph.
type Quad struct {
	Subject   Term
	Predicate Term
	Object    Term
	Graph     Term
}

func NewQuad(subject, predicate, object, graph Term) *Quad {
	if graph == nil {
		graph = defaultGraph
	}
	return &Quad{
		Subject:   subject,
		Predicate: predicate,
		Object:    object,
		Graph:     graph,
	}
}

func (q *Quad) String() string {
	if q.Graph == nil || q.Graph.Type() == TermTypeDefaultGraph {
		return fmt.Sprintf("%s %s %s .", q.Subject, q.Predicate, q.Object)
	}
	return fmt.Sprintf("%s %s %s %s .", q.Subject, q.Predicate, q.Object, q.Graph)
}

func (q *Quad) Equals(other *Quad) bool {
	if other == nil {
		return false
	}
	return q.Subject.Equals(other.Subject) &&
		q.Predicate.Equals(other.Predicate) &&
		q.Object.Equals(other.Object) &&
		IsDefaultGraph(q.Graph) == IsDefaultGraph(other.Graph) &&
		(IsDefaultGraph(q.Graph) || q.Graph.Equals(other.Graph))
}

// IsDefaultGraph reports whether t denotes the null context.
func IsDefaultGraph(t Term) bool {
	return t == nil || t.Type() == TermTypeDefaultGraph
}

// Validate checks that t is a well-formed value.
func Validate(t Term) error {
	switch v := t.(type) {
	case nil:
		return errors.New(errors.ErrMalformedInput, "nil term")
	case *NamedNode:
		if v.IRI == "" {
			return errors.New(errors.ErrMalformedInput, "empty IRI")
		}
	case *BlankNode:
		if v.ID == "" {
			return errors.New(errors.ErrMalformedInput, "empty blank node id")
		}
	case *Literal:
		if v.Language != "" && v.Datatype != nil && v.Datatype.IRI != RDFLangString.IRI {
			return errors.Newf(errors.ErrMalformedInput, "literal %s has both language and datatype", v)
		}
		if v.Datatype != nil && v.Datatype.IRI == "" {
			return errors.New(errors.ErrMalformedInput, "literal datatype has empty IRI")
		}
	case *DefaultGraph:
	default:
		return errors.Newf(errors.ErrMalformedInput, "unsupported term type %T", t)
	}
	return nil
}

// ValidateQuad checks the positional constraints of a quad: subjects are
// resources, predicates are IRIs, contexts are IRIs, blank nodes or the
// default graph.
func ValidateQuad(s, p, o, c Term) error {
	for _, t := range []Term{s, p, o} {
		if err := Validate(t); err != nil {
			return err
		}
	}
	if s.Type() != TermTypeNamedNode && s.Type() != TermTypeBlankNode {
		return errors.Newf(errors.ErrMalformedInput, "subject %s is not a resource", s)
	}
	if p.Type() != TermTypeNamedNode {
		return errors.Newf(errors.ErrMalformedInput, "predicate %s is not an IRI", p)
	}
	if o.Type() == TermTypeDefaultGraph {
		return errors.New(errors.ErrMalformedInput, "object cannot be the default graph")
	}
	if c != nil {
		if err := Validate(c); err != nil {
			return err
		}
		if c.Type() == TermTypeLiteral {
			return errors.Newf(errors.ErrMalformedInput, "context %s is a literal", c)
		}
	}
	return nil
}

// Common vocabularies
var (
	XSDString   = NewNamedNode("http://www.w3.org/2001/XMLSchema#string")
	XSDInteger  = NewNamedNode("http://www.w3.org/2001/XMLSchema#integer")
	XSDDecimal  = NewNamedNode("http://www.w3.org/2001/XMLSchema#decimal")
	XSDDouble   = NewNamedNode("http://www.w3.org/2001/XMLSchema#double")
	XSDFloat    = NewNamedNode("http://www.w3.org/2001/XMLSchema#float")
	XSDInt      = NewNamedNode("http://www.w3.org/2001/XMLSchema#int")
	XSDLong     = NewNamedNode("http://www.w3.org/2001/XMLSchema#long")
	XSDBoolean  = NewNamedNode("http://www.w3.org/2001/XMLSchema#boolean")
	XSDDateTime = NewNamedNode("http://www.w3.org/2001/XMLSchema#dateTime")
	XSDDate     = NewNamedNode("http://www.w3.org/2001/XMLSchema#date")

	RDFType       = NewNamedNode("http://www.w3.org/1999/02/22-rdf-syntax-ns#type")
	RDFProperty   = NewNamedNode("http://www.w3.org/1999/02/22-rdf-syntax-ns#Property")
	RDFLangString = NewNamedNode("http://www.w3.org/1999/02/22-rdf-syntax-ns#langString")

	RDFSSubClassOf    = NewNamedNode("http://www.w3.org/2000/01/rdf-schema#subClassOf")
	RDFSSubPropertyOf = NewNamedNode("http://www.w3.org/2000/01/rdf-schema#subPropertyOf")
	RDFSDomain        = NewNamedNode("http://www.w3.org/2000/01/rdf-schema#domain")
	RDFSRange         = NewNamedNode("http://www.w3.org/2000/01/rdf-schema#range")
	RDFSResource      = NewNamedNode("http://www.w3.org/2000/01/rdf-schema#Resource")
	RDFSClass         = NewNamedNode("http://www.w3.org/2000/01/rdf-schema#Class")
)

func NewIntegerLiteral(value int64) *Literal {
	return NewLiteralWithDatatype(strconv.FormatInt(value, 10), XSDInteger)
}

func NewDecimalLiteral(value float64) *Literal {
	return NewLiteralWithDatatype(strconv.FormatFloat(value, 'f', -1, 64), XSDDecimal)
}

func NewDoubleLiteral(value float64) *Literal {
	return NewLiteralWithDatatype(strconv.FormatFloat(value, 'E', -1, 64), XSDDouble)
}

func NewBooleanLiteral(value bool) *Literal {
	return NewLiteralWithDatatype(strconv.FormatBool(value), XSDBoolean)
}

func NewDateTimeLiteral(value time.Time) *Literal {
	return NewLiteralWithDatatype(value.Format(time.RFC3339), XSDDateTime)
}
