package store

import (
	"math"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/btree"

	"github.com/ansell/openrdf-sesame-sub028/pkg/errors"
)

// Positions of the tuple components.
const (
	posSubject = iota
	posPredicate
	posObject
	posContext
)

const (
	// DefaultIndexes is used when no index specification is given.
	DefaultIndexes = "spoc,posc"

	// notYet marks a bound of a visibility interval that has not been set.
	notYet = math.MaxUint64

	scanBatchSize = 256
)

// tuple is one version of a statement. since/till delimit the store
// versions in which the version is committed and visible. status and the
// explicit bit of an uncommitted tuple are owned by the write transaction.
type tuple struct {
	ids      [4]uint64
	explicit bool
	status   TxnStatus
	since    atomic.Uint64
	till     atomic.Uint64
	seq      uint64
}

func newTuple(ids [4]uint64, explicit bool, seq uint64) *tuple {
	t := &tuple{ids: ids, explicit: explicit, status: New, seq: seq}
	t.since.Store(notYet)
	t.till.Store(notYet)
	return t
}

// visibleAt reports whether the tuple is committed and live at version v.
func (t *tuple) visibleAt(v uint64) bool {
	return t.since.Load() <= v && v < t.till.Load()
}

// Permutation is an index ordering over the tuple positions.
type Permutation struct {
	code  string
	order [4]int
}

func (p Permutation) String() string { return p.code }

// Order returns the tuple positions in index order.
func (p Permutation) Order() [4]int { return p.order }

// ParsePermutation parses a code such as "spoc" or "posc".
func ParsePermutation(code string) (Permutation, error) {
	if len(code) != 4 {
		return Permutation{}, errors.Newf(errors.ErrMalformedInput, "index %q must name 4 fields", code)
	}
	var p Permutation
	p.code = code
	seen := [4]bool{}
	for i, c := range code {
		var field int
		switch c {
		case 's':
			field = posSubject
		case 'p':
			field = posPredicate
		case 'o':
			field = posObject
		case 'c':
			field = posContext
		default:
			return Permutation{}, errors.Newf(errors.ErrMalformedInput, "index %q has unknown field %q", code, c)
		}
		if seen[field] {
			return Permutation{}, errors.Newf(errors.ErrMalformedInput, "index %q repeats field %q", code, c)
		}
		seen[field] = true
		p.order[i] = field
	}
	return p, nil
}

// ParseIndexSpec parses a comma separated list of permutations.
func ParseIndexSpec(spec string) ([]Permutation, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		spec = DefaultIndexes
	}
	var out []Permutation
	seen := make(map[string]bool)
	for _, part := range strings.Split(spec, ",") {
		code := strings.ToLower(strings.TrimSpace(part))
		p, err := ParsePermutation(code)
		if err != nil {
			return nil, err
		}
		if seen[code] {
			return nil, errors.Newf(errors.ErrMalformedInput, "index %q listed twice", code)
		}
		seen[code] = true
		out = append(out, p)
	}
	return out, nil
}

// FormatIndexSpec is the inverse of ParseIndexSpec.
func FormatIndexSpec(perms []Permutation) string {
	codes := make([]string, len(perms))
	for i, p := range perms {
		codes[i] = p.code
	}
	return strings.Join(codes, ",")
}

// index is an ordered set of tuples under one permutation. Scans work on
// a clone so they never block writers.
type index struct {
	perm Permutation
	mu   sync.Mutex
	tree *btree.BTreeG[*tuple]
}

func newIndex(perm Permutation) *index {
	order := perm.order
	less := func(a, b *tuple) bool {
		for _, f := range order {
			if a.ids[f] != b.ids[f] {
				return a.ids[f] < b.ids[f]
			}
		}
		return a.seq < b.seq
	}
	return &index{perm: perm, tree: btree.NewG(32, less)}
}

func (ix *index) insert(t *tuple) {
	ix.mu.Lock()
	ix.tree.ReplaceOrInsert(t)
	ix.mu.Unlock()
}

func (ix *index) remove(t *tuple) {
	ix.mu.Lock()
	ix.tree.Delete(t)
	ix.mu.Unlock()
}

func (ix *index) snapshot() *btree.BTreeG[*tuple] {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.tree.Clone()
}

func (ix *index) len() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.tree.Len()
}

// prefixLen counts how many leading components of the permutation are
// bound in the pattern.
func (ix *index) prefixLen(bound [4]bool) int {
	n := 0
	for _, f := range ix.perm.order {
		if !bound[f] {
			break
		}
		n++
	}
	return n
}

// selectIndex picks the index with the longest bound prefix. Ties go to
// the index declared first.
func selectIndex(indexes []*index, bound [4]bool) *index {
	best, bestLen := indexes[0], -1
	for _, ix := range indexes {
		if n := ix.prefixLen(bound); n > bestLen {
			best, bestLen = ix, n
		}
	}
	return best
}

// rangeScanner pulls tuples from a tree snapshot in batches, restricted
// to the bound prefix of the permutation.
type rangeScanner struct {
	tree      *btree.BTreeG[*tuple]
	order     [4]int
	prefixLen int
	prefix    [4]uint64
	resume    *tuple
	batch     []*tuple
	pos       int
	done      bool
}

func newRangeScanner(ix *index, tree *btree.BTreeG[*tuple], ids [4]uint64, bound [4]bool) *rangeScanner {
	return &rangeScanner{
		tree:      tree,
		order:     ix.perm.order,
		prefixLen: ix.prefixLen(bound),
		prefix:    ids,
	}
}

func (r *rangeScanner) inPrefix(t *tuple) bool {
	for _, f := range r.order[:r.prefixLen] {
		if t.ids[f] != r.prefix[f] {
			return false
		}
	}
	return true
}

// next returns the next tuple in range, or nil at the end.
func (r *rangeScanner) next() *tuple {
	if r.pos >= len(r.batch) {
		if r.done {
			return nil
		}
		r.fill()
		if len(r.batch) == 0 {
			return nil
		}
	}
	t := r.batch[r.pos]
	r.pos++
	return t
}

func (r *rangeScanner) fill() {
	r.batch, r.pos = r.batch[:0], 0

	start := r.resume
	if start == nil {
		start = &tuple{}
		for _, f := range r.order[:r.prefixLen] {
			start.ids[f] = r.prefix[f]
		}
	}
	r.tree.AscendGreaterOrEqual(start, func(t *tuple) bool {
		if t == r.resume {
			return true
		}
		if !r.inPrefix(t) {
			r.done = true
			return false
		}
		r.batch = append(r.batch, t)
		return len(r.batch) < scanBatchSize
	})
	if len(r.batch) < scanBatchSize {
		r.done = true
	}
	if n := len(r.batch); n > 0 {
		r.resume = r.batch[n-1]
	}
}
