package nquads

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ansell/openrdf-sesame-sub028/pkg/errors"
	"github.com/ansell/openrdf-sesame-sub028/pkg/rdf"
)

// Writer writes quads as N-Quads lines. Call Flush when done.
type Writer struct {
	w *bufio.Writer
	n int
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Write writes one quad. Default graph quads are written without a graph
// term.
func (w *Writer) Write(s, p, o, g rdf.Term) error {
	for i, t := range []rdf.Term{s, p, o} {
		if i > 0 {
			w.w.WriteByte(' ')
		}
		w.writeTerm(t)
	}
	if !rdf.IsDefaultGraph(g) {
		w.w.WriteByte(' ')
		w.writeTerm(g)
	}
	if _, err := w.w.WriteString(" .\n"); err != nil {
		return errors.Wrap(err, "writing n-quads")
	}
	w.n++
	return nil
}

// Count returns the number of quads written.
func (w *Writer) Count() int {
	return w.n
}

func (w *Writer) Flush() error {
	return errors.Wrap(w.w.Flush(), "flushing n-quads")
}

func (w *Writer) writeTerm(t rdf.Term) {
	switch v := t.(type) {
	case *rdf.NamedNode:
		w.w.WriteByte('<')
		w.w.WriteString(escapeIRI(v.IRI))
		w.w.WriteByte('>')
	case *rdf.Literal:
		w.w.WriteByte('"')
		w.w.WriteString(escapeString(v.Value))
		w.w.WriteByte('"')
		if v.Language != "" {
			w.w.WriteByte('@')
			w.w.WriteString(v.Language)
		} else if v.Datatype != nil {
			w.w.WriteString("^^<")
			w.w.WriteString(escapeIRI(v.Datatype.IRI))
			w.w.WriteByte('>')
		}
	default:
		w.w.WriteString(t.String())
	}
}

func escapeString(s string) string {
	if !strings.ContainsAny(s, "\\\"\n\r\t") {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func escapeIRI(iri string) string {
	if !strings.ContainsAny(iri, "<>\"{}|^`\\ ") {
		return iri
	}
	var b strings.Builder
	for _, r := range iri {
		if strings.ContainsRune("<>\"{}|^`\\ ", r) {
			b.WriteString(`\u`)
			b.WriteString(strings.ToUpper(strconv.FormatInt(int64(r)|0x10000, 16)[1:]))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// unescape resolves ECHAR and UCHAR escapes.
func unescape(s string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		i++
		if i >= len(s) {
			return "", errors.Errorf("dangling escape")
		}
		switch s[i] {
		case 't':
			b.WriteByte('\t')
		case 'b':
			b.WriteByte('\b')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 'f':
			b.WriteByte('\f')
		case '"', '\'', '\\':
			b.WriteByte(s[i])
		case 'u', 'U':
			width := 4
			if s[i] == 'U' {
				width = 8
			}
			if i+width >= len(s) {
				return "", errors.Errorf("truncated \\%c escape", s[i])
			}
			code, err := strconv.ParseUint(s[i+1:i+1+width], 16, 32)
			if err != nil || !utf8.ValidRune(rune(code)) {
				return "", errors.Errorf("invalid \\%c escape %q", s[i], s[i+1:i+1+width])
			}
			b.WriteRune(rune(code))
			i += width
		default:
			return "", errors.Errorf("unknown escape \\%c", s[i])
		}
	}
	return b.String(), nil
}
