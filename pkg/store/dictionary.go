package store

import (
	"sync"
	"sync/atomic"

	"github.com/ansell/openrdf-sesame-sub028/internal/encoding"
	"github.com/ansell/openrdf-sesame-sub028/pkg/errors"
	"github.com/ansell/openrdf-sesame-sub028/pkg/rdf"
)

// DefaultGraphID is the id of the null context. It is never stored.
const DefaultGraphID uint64 = 0

// Dictionary maps values to store-local ids. The revision advances every
// time ids are dropped, which tells ValueRef holders to re-resolve.
type Dictionary struct {
	mu       sync.RWMutex
	byID     map[uint64]rdf.Term
	byHash   map[[16]byte][]uint64
	nextID   uint64
	revision atomic.Uint64

	// ids assigned since the last successful persist
	pending map[uint64]struct{}

	enc *encoding.TermEncoder
}

func NewDictionary() *Dictionary {
	return &Dictionary{
		byID:    make(map[uint64]rdf.Term),
		byHash:  make(map[[16]byte][]uint64),
		nextID:  DefaultGraphID + 1,
		pending: make(map[uint64]struct{}),
		enc:     encoding.NewTermEncoder(),
	}
}

// Revision returns the current revision.
func (d *Dictionary) Revision() uint64 {
	return d.revision.Load()
}

// Len returns the number of stored values.
func (d *Dictionary) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byID)
}

// Lookup returns the id of v, if v is known.
func (d *Dictionary) Lookup(v rdf.Term) (uint64, bool) {
	if rdf.IsDefaultGraph(v) {
		return DefaultGraphID, true
	}
	h, err := d.enc.Hash128(v)
	if err != nil {
		return 0, false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lookupLocked(h, v)
}

func (d *Dictionary) lookupLocked(h [16]byte, v rdf.Term) (uint64, bool) {
	for _, id := range d.byHash[h] {
		if d.byID[id].Equals(v) {
			return id, true
		}
	}
	return 0, false
}

// GetOrAdd returns the id of v, assigning a new one if needed.
func (d *Dictionary) GetOrAdd(v rdf.Term) (uint64, error) {
	if rdf.IsDefaultGraph(v) {
		return DefaultGraphID, nil
	}
	if err := rdf.Validate(v); err != nil {
		return 0, err
	}
	h, err := d.enc.Hash128(v)
	if err != nil {
		return 0, errors.WrapCode(err, errors.ErrMalformedInput, "encoding value")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if id, ok := d.lookupLocked(h, v); ok {
		return id, nil
	}
	id := d.nextID
	d.nextID++
	d.byID[id] = v
	d.byHash[h] = append(d.byHash[h], id)
	d.pending[id] = struct{}{}
	return id, nil
}

// Value returns the value stored under id.
func (d *Dictionary) Value(id uint64) (rdf.Term, bool) {
	if id == DefaultGraphID {
		return rdf.NewDefaultGraph(), true
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.byID[id]
	return v, ok
}

// load inserts a persisted value under its id.
func (d *Dictionary) load(id uint64, v rdf.Term) error {
	h, err := d.enc.Hash128(v)
	if err != nil {
		return errors.WrapCode(err, errors.ErrStoreCorruption, "stored value")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, dup := d.byID[id]; dup {
		return errors.Newf(errors.ErrStoreCorruption, "duplicate value id %d", id)
	}
	d.byID[id] = v
	d.byHash[h] = append(d.byHash[h], id)
	if id >= d.nextID {
		d.nextID = id + 1
	}
	return nil
}

// pendingValues returns the ids not yet persisted, with their records.
func (d *Dictionary) pendingValues() (map[uint64][]byte, uint64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[uint64][]byte, len(d.pending))
	for id := range d.pending {
		rec, err := d.enc.EncodeTerm(d.byID[id])
		if err != nil {
			return nil, 0, err
		}
		out[id] = rec
	}
	return out, d.nextID, nil
}

// persisted marks ids as written.
func (d *Dictionary) persisted(ids map[uint64][]byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id := range ids {
		delete(d.pending, id)
	}
}

// retain drops every id for which keep returns false and advances the
// revision if anything was dropped. It returns the dropped ids.
func (d *Dictionary) retain(keep func(uint64) bool) []uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	var dropped []uint64
	for id, v := range d.byID {
		if keep(id) {
			continue
		}
		dropped = append(dropped, id)
		delete(d.byID, id)
		delete(d.pending, id)
		h, err := d.enc.Hash128(v)
		if err != nil {
			continue
		}
		ids := d.byHash[h]
		for i, other := range ids {
			if other == id {
				ids = append(ids[:i], ids[i+1:]...)
				break
			}
		}
		if len(ids) == 0 {
			delete(d.byHash, h)
		} else {
			d.byHash[h] = ids
		}
	}
	if len(dropped) > 0 {
		d.revision.Add(1)
	}
	return dropped
}

// ValueRef is a value together with its id as of some dictionary
// revision. ID re-resolves the value when the revision has moved on.
type ValueRef struct {
	Value rdf.Term

	id       uint64
	known    bool
	revision uint64
	resolved bool
}

func NewValueRef(v rdf.Term) *ValueRef {
	return &ValueRef{Value: v}
}

// ID returns the id of the value in d, or false if d does not hold it.
// A ValueRef is not safe for concurrent use.
func (r *ValueRef) ID(d *Dictionary) (uint64, bool) {
	rev := d.Revision()
	if r.resolved && r.revision == rev && r.known {
		return r.id, true
	}
	// Unknown values are looked up again every time; they may have been
	// added since.
	r.id, r.known = d.Lookup(r.Value)
	r.revision, r.resolved = rev, true
	return r.id, r.known
}

// Revision returns the dictionary revision the cached id belongs to.
func (r *ValueRef) Revision() uint64 {
	return r.revision
}
