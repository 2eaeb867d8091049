package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ansell/openrdf-sesame-sub028/pkg/rdf"
)

var (
	exA = rdf.NewNamedNode("http://example.org/a")
	exB = rdf.NewNamedNode("http://example.org/b")
)

func TestBindingSet_WithSharesParent(t *testing.T) {
	base := Bindings("x", exA)
	ext := base.With("y", exB)

	assert.Equal(t, 1, base.Len())
	assert.Equal(t, []string{"x", "y"}, ext.Names())
	assert.False(t, base.Has("y"))

	over := ext.With("x", exB)
	assert.Equal(t, []string{"x", "y"}, over.Names())
	assert.True(t, over.Value("x").Equals(exB))
	assert.True(t, ext.Value("x").Equals(exA))
}

func TestBindingSet_NilValueIgnored(t *testing.T) {
	b := Bindings("x", exA)
	assert.Same(t, b, b.With("y", nil))
	assert.Equal(t, 0, Bindings("x", nil).Len())
}

func TestBindingSet_Merge(t *testing.T) {
	left := Bindings("x", exA, "y", exB)

	merged, ok := left.Merge(Bindings("y", exB, "z", exA))
	require.True(t, ok)
	assert.Equal(t, []string{"x", "y", "z"}, merged.Names())

	_, ok = left.Merge(Bindings("y", exA))
	assert.False(t, ok)
}

func TestBindingSet_EqualsAndKey(t *testing.T) {
	a := Bindings("x", exA, "y", exB)
	b := Bindings("y", exB, "x", exA)

	assert.True(t, a.Equals(b))
	assert.Equal(t, a.Key(), b.Key())
	assert.False(t, a.Equals(Bindings("x", exA)))
	assert.NotEqual(t, a.Key(), Bindings("x", exB, "y", exA).Key())
}

func TestBindingSet_ProjectAndWithout(t *testing.T) {
	b := Bindings("x", exA, "y", exB, "z", exA)

	assert.Equal(t, []string{"z", "x"}, b.Project("z", "x", "missing").Names())
	assert.Equal(t, []string{"x", "z"}, b.Without("y").Names())
	assert.Same(t, b, b.Without("missing"))
}

func TestDataset_HasNamedGraph(t *testing.T) {
	d := NewDataset(rdf.NewDefaultGraph()).AddNamedGraph(exA)
	assert.True(t, d.HasNamedGraph(exA))
	assert.False(t, d.HasNamedGraph(exB))
}
