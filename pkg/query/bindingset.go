// Package query holds the values that flow through query evaluation:
// binding sets and datasets.
package query

import (
	"sort"
	"strings"

	"github.com/benbjohnson/immutable"
	"github.com/zeebo/xxh3"

	"github.com/ansell/openrdf-sesame-sub028/pkg/rdf"
)

// BindingSet is an immutable, ordered mapping from variable names to
// values. With returns a new set that shares structure with its parent.
type BindingSet struct {
	names  *immutable.List[string]
	values *immutable.Map[string, rdf.Term]
}

type nameHasher struct{}

func (nameHasher) Hash(key string) uint32 {
	return uint32(xxh3.HashString(key))
}

func (nameHasher) Equal(a, b string) bool {
	return a == b
}

var emptyBindings = &BindingSet{
	names:  immutable.NewList[string](),
	values: immutable.NewMap[string, rdf.Term](nameHasher{}),
}

// NewBindingSet returns the empty binding set.
func NewBindingSet() *BindingSet {
	return emptyBindings
}

// Bindings builds a binding set from name/value pairs. Nil values are
// skipped.
func Bindings(pairs ...interface{}) *BindingSet {
	b := NewBindingSet()
	for i := 0; i+1 < len(pairs); i += 2 {
		name, _ := pairs[i].(string)
		value, _ := pairs[i+1].(rdf.Term)
		if name == "" || value == nil {
			continue
		}
		b = b.With(name, value)
	}
	return b
}

// Get returns the value bound to name.
func (b *BindingSet) Get(name string) (rdf.Term, bool) {
	if b == nil {
		return nil, false
	}
	return b.values.Get(name)
}

// Value returns the value bound to name, or nil.
func (b *BindingSet) Value(name string) rdf.Term {
	v, _ := b.Get(name)
	return v
}

func (b *BindingSet) Has(name string) bool {
	_, ok := b.Get(name)
	return ok
}

func (b *BindingSet) Len() int {
	if b == nil {
		return 0
	}
	return b.values.Len()
}

// Names returns the bound names in binding order.
func (b *BindingSet) Names() []string {
	if b == nil {
		return nil
	}
	out := make([]string, 0, b.names.Len())
	itr := b.names.Iterator()
	for !itr.Done() {
		_, name := itr.Next()
		out = append(out, name)
	}
	return out
}

// Each calls fn for every binding in order.
func (b *BindingSet) Each(fn func(name string, value rdf.Term)) {
	for _, name := range b.Names() {
		v, _ := b.values.Get(name)
		fn(name, v)
	}
}

// With returns a copy of b with name bound to value. An existing binding
// keeps its position and gets the new value. A nil value returns b.
func (b *BindingSet) With(name string, value rdf.Term) *BindingSet {
	if value == nil {
		return b
	}
	if b == nil {
		b = emptyBindings
	}
	names := b.names
	if _, ok := b.values.Get(name); !ok {
		names = names.Append(name)
	}
	return &BindingSet{names: names, values: b.values.Set(name, value)}
}

// Without returns a copy of b without name.
func (b *BindingSet) Without(name string) *BindingSet {
	if !b.Has(name) {
		return b
	}
	out := NewBindingSet()
	b.Each(func(n string, v rdf.Term) {
		if n != name {
			out = out.With(n, v)
		}
	})
	return out
}

// Project keeps only the given names, in the given order.
func (b *BindingSet) Project(names ...string) *BindingSet {
	out := NewBindingSet()
	for _, n := range names {
		if v, ok := b.Get(n); ok {
			out = out.With(n, v)
		}
	}
	return out
}

// Compatible reports whether every name bound in both sets has the same
// value.
func (b *BindingSet) Compatible(other *BindingSet) bool {
	if b.Len() > other.Len() {
		b, other = other, b
	}
	for _, n := range b.Names() {
		v, _ := b.Get(n)
		if ov, ok := other.Get(n); ok && !ov.Equals(v) {
			return false
		}
	}
	return true
}

// Merge returns the union of b and other, or false if they disagree on a
// shared name. Bindings of b come first.
func (b *BindingSet) Merge(other *BindingSet) (*BindingSet, bool) {
	if !b.Compatible(other) {
		return nil, false
	}
	out := b
	if out == nil {
		out = emptyBindings
	}
	for _, n := range other.Names() {
		if !out.Has(n) {
			out = out.With(n, other.Value(n))
		}
	}
	return out, true
}

// Equals compares name/value pairs regardless of order.
func (b *BindingSet) Equals(other *BindingSet) bool {
	if b.Len() != other.Len() {
		return false
	}
	for _, n := range b.Names() {
		ov, ok := other.Get(n)
		if !ok || !ov.Equals(b.Value(n)) {
			return false
		}
	}
	return true
}

// Key returns a string that is equal for equal binding sets.
func (b *BindingSet) Key() string {
	names := b.Names()
	sort.Strings(names)
	var sb strings.Builder
	for _, n := range names {
		sb.WriteString(n)
		sb.WriteByte('=')
		sb.WriteString(b.Value(n).String())
		sb.WriteByte(0)
	}
	return sb.String()
}

func (b *BindingSet) String() string {
	var parts []string
	b.Each(func(n string, v rdf.Term) {
		parts = append(parts, n+"="+v.String())
	})
	return "[" + strings.Join(parts, ";") + "]"
}
