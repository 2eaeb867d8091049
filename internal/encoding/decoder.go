package encoding

import (
	"encoding/binary"

	"github.com/ansell/openrdf-sesame-sub028/pkg/errors"
	"github.com/ansell/openrdf-sesame-sub028/pkg/rdf"
)

// TermDecoder handles decoding of dictionary records
type TermDecoder struct{}

// NewTermDecoder creates a new term decoder
func NewTermDecoder() *TermDecoder {
	return &TermDecoder{}
}

// DecodeTerm decodes a record produced by TermEncoder. Malformed records
// are reported as store corruption.
func (d *TermDecoder) DecodeTerm(rec []byte) (rdf.Term, error) {
	if len(rec) < 2 {
		return nil, errors.Newf(errors.ErrStoreCorruption, "term record too short: %d bytes", len(rec))
	}
	if rec[0] != recordVersion {
		return nil, errors.Newf(errors.ErrStoreCorruption, "unknown term record version %d", rec[0])
	}
	kind := rdf.TermType(rec[1])
	body := rec[2:]

	switch kind {
	case rdf.TermTypeNamedNode:
		f, err := readFields(body, 1)
		if err != nil {
			return nil, err
		}
		return rdf.NewNamedNode(f[0]), nil

	case rdf.TermTypeBlankNode:
		f, err := readFields(body, 1)
		if err != nil {
			return nil, err
		}
		return rdf.NewBlankNode(f[0]), nil

	case rdf.TermTypeLiteral:
		f, err := readFields(body, 3)
		if err != nil {
			return nil, err
		}
		lit := &rdf.Literal{Value: f[0], Language: f[1]}
		if f[2] != "" {
			lit.Datatype = rdf.NewNamedNode(f[2])
		}
		return lit, nil

	case rdf.TermTypeDefaultGraph:
		return rdf.NewDefaultGraph(), nil

	default:
		return nil, errors.Newf(errors.ErrStoreCorruption, "unknown term type: %d", kind)
	}
}

func readFields(buf []byte, n int) ([]string, error) {
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		size, read := binary.Uvarint(buf)
		if read <= 0 || uint64(len(buf)-read) < size {
			return nil, errors.New(errors.ErrStoreCorruption, "truncated term record")
		}
		buf = buf[read:]
		out = append(out, string(buf[:size]))
		buf = buf[size:]
	}
	if len(buf) != 0 {
		return nil, errors.Newf(errors.ErrStoreCorruption, "%d trailing bytes in term record", len(buf))
	}
	return out, nil
}
