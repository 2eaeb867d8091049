// Package nquads reads and writes the line-based N-Quads format. Lines
// without a fourth term belong to the default graph.
package nquads

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/ansell/openrdf-sesame-sub028/pkg/errors"
	"github.com/ansell/openrdf-sesame-sub028/pkg/iteration"
	"github.com/ansell/openrdf-sesame-sub028/pkg/rdf"
)

// maxLine bounds a single N-Quads line.
const maxLine = 4 << 20

// NewReader returns an iteration over the quads in r. Blank lines and
// comments are skipped; a malformed line fails the iteration with a
// MalformedInput error naming the line. Closing the iteration does not
// close r.
func NewReader(r io.Reader) iteration.Iteration[*rdf.Quad] {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLine)
	line := 0
	return iteration.NewLookAhead(func() (*rdf.Quad, bool, error) {
		for sc.Scan() {
			line++
			p := lineParser{input: sc.Text()}
			q, err := p.parse()
			if err != nil {
				return nil, false, errors.WrapCode(err, errors.ErrMalformedInput, "line "+strconv.Itoa(line))
			}
			if q != nil {
				return q, true, nil
			}
		}
		if err := sc.Err(); err != nil {
			return nil, false, errors.WrapCode(err, errors.ErrMalformedInput, "reading n-quads")
		}
		return nil, false, nil
	}, nil)
}

// Parse reads every quad of a document held in memory.
func Parse(input string) ([]*rdf.Quad, error) {
	return iteration.Collect(NewReader(strings.NewReader(input)))
}

// lineParser parses one line: subject predicate object [graph] .
type lineParser struct {
	input string
	pos   int
}

func (p *lineParser) parse() (*rdf.Quad, error) {
	p.skipSpace()
	if p.eof() {
		return nil, nil
	}

	var terms []rdf.Term
	for len(terms) < 4 {
		p.skipSpace()
		if p.eof() {
			return nil, errors.Errorf("expected '.' at end of statement")
		}
		if p.input[p.pos] == '.' {
			break
		}
		t, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		terms = append(terms, t)
	}
	p.skipSpace()
	if p.eof() || p.input[p.pos] != '.' {
		return nil, errors.Errorf("expected '.' at end of statement")
	}
	p.pos++
	p.skipSpace()
	if !p.eof() {
		return nil, errors.Errorf("unexpected content after '.' at column %d", p.pos+1)
	}
	if len(terms) < 3 {
		return nil, errors.Errorf("expected 3 or 4 terms, got %d", len(terms))
	}

	var graph rdf.Term
	if len(terms) == 4 {
		graph = terms[3]
		if graph.Type() == rdf.TermTypeLiteral {
			return nil, errors.Errorf("graph must be an IRI or blank node")
		}
	}
	q := rdf.NewQuad(terms[0], terms[1], terms[2], graph)
	if err := rdf.ValidateQuad(q.Subject, q.Predicate, q.Object, q.Graph); err != nil {
		return nil, err
	}
	return q, nil
}

func (p *lineParser) eof() bool {
	return p.pos >= len(p.input)
}

// skipSpace skips whitespace and a trailing comment.
func (p *lineParser) skipSpace() {
	for !p.eof() {
		switch p.input[p.pos] {
		case ' ', '\t', '\r':
			p.pos++
		case '#':
			p.pos = len(p.input)
		default:
			return
		}
	}
}

func (p *lineParser) parseTerm() (rdf.Term, error) {
	switch p.input[p.pos] {
	case '<':
		iri, err := p.parseIRI()
		if err != nil {
			return nil, err
		}
		return rdf.NewNamedNode(iri), nil
	case '_':
		return p.parseBlankNode()
	case '"':
		return p.parseLiteral()
	}
	return nil, errors.Errorf("unexpected character %q at column %d", p.input[p.pos], p.pos+1)
}

func (p *lineParser) parseIRI() (string, error) {
	p.pos++ // '<'
	end := strings.IndexByte(p.input[p.pos:], '>')
	if end < 0 {
		return "", errors.Errorf("unclosed IRI")
	}
	iri := p.input[p.pos : p.pos+end]
	p.pos += end + 1
	if strings.ContainsAny(iri, " \t") {
		return "", errors.Errorf("IRI %q contains whitespace", iri)
	}
	if strings.Contains(iri, `\u`) || strings.Contains(iri, `\U`) {
		return unescape(iri)
	}
	return iri, nil
}

func (p *lineParser) parseBlankNode() (rdf.Term, error) {
	if !strings.HasPrefix(p.input[p.pos:], "_:") {
		return nil, errors.Errorf("expected '_:' at column %d", p.pos+1)
	}
	p.pos += 2
	start := p.pos
	for !p.eof() {
		ch := p.input[p.pos]
		if ch == ' ' || ch == '\t' || ch == '<' || ch == '"' {
			break
		}
		// a '.' ends the label unless more label characters follow
		if ch == '.' && (p.pos+1 >= len(p.input) || p.input[p.pos+1] == ' ' || p.input[p.pos+1] == '\t') {
			break
		}
		p.pos++
	}
	if p.pos == start {
		return nil, errors.Errorf("empty blank node label")
	}
	return rdf.NewBlankNode(p.input[start:p.pos]), nil
}

func (p *lineParser) parseLiteral() (rdf.Term, error) {
	p.pos++ // opening '"'
	start := p.pos
	escaped := false
	for ; !p.eof(); p.pos++ {
		ch := p.input[p.pos]
		if ch == '\\' {
			escaped = true
			p.pos++
			continue
		}
		if ch == '"' {
			break
		}
	}
	if p.eof() {
		return nil, errors.Errorf("unclosed string literal")
	}
	value := p.input[start:p.pos]
	p.pos++ // closing '"'
	if escaped {
		var err error
		if value, err = unescape(value); err != nil {
			return nil, err
		}
	}

	if p.eof() {
		return rdf.NewLiteral(value), nil
	}
	switch {
	case p.input[p.pos] == '@':
		p.pos++
		start := p.pos
		for !p.eof() && (isAlnum(p.input[p.pos]) || p.input[p.pos] == '-') {
			p.pos++
		}
		if p.pos == start {
			return nil, errors.Errorf("empty language tag")
		}
		return rdf.NewLiteralWithLanguage(value, p.input[start:p.pos]), nil
	case strings.HasPrefix(p.input[p.pos:], "^^<"):
		p.pos += 2
		dt, err := p.parseIRI()
		if err != nil {
			return nil, errors.Wrap(err, "datatype")
		}
		return rdf.NewLiteralWithDatatype(value, rdf.NewNamedNode(dt)), nil
	}
	return rdf.NewLiteral(value), nil
}

func isAlnum(ch byte) bool {
	return ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' || ch >= '0' && ch <= '9'
}

