package store_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ansell/openrdf-sesame-sub028/internal/storage"
	"github.com/ansell/openrdf-sesame-sub028/pkg/iteration"
	"github.com/ansell/openrdf-sesame-sub028/pkg/rdf"
	"github.com/ansell/openrdf-sesame-sub028/pkg/store"
)

func iri(local string) *rdf.NamedNode {
	return rdf.NewNamedNode("http://example.org/" + local)
}

func reopen(t *testing.T, registry *storage.Registry, backend, dir, indexes string) *store.TripleStore {
	t.Helper()
	st, err := registry.Open(backend, dir, nil)
	require.NoError(t, err)
	s, err := store.Open(store.Options{Storage: st, Indexes: indexes})
	require.NoError(t, err)
	return s
}

func TestPersistence(t *testing.T) {
	registry := storage.NewRegistry()
	for _, backend := range []string{storage.BackendBadger, storage.BackendBolt} {
		t.Run(backend, func(t *testing.T) {
			dir := t.TempDir()

			s := reopen(t, registry, backend, dir, "spoc,posc")
			c, err := s.NewConnection()
			require.NoError(t, err)
			require.NoError(t, c.AddStatement(iri("a"), iri("name"), rdf.NewLiteralWithLanguage("Ann", "en")))
			require.NoError(t, c.AddStatement(iri("a"), iri("knows"), rdf.NewBlankNode("b1"), iri("g")))
			_, err = c.AddInferredStatement(iri("a"), rdf.RDFType, iri("Person"))
			require.NoError(t, err)
			require.NoError(t, c.AddStatement(iri("gone"), iri("p"), iri("o")))
			require.NoError(t, c.Commit())
			_, err = c.RemoveStatements(iri("gone"), nil, nil)
			require.NoError(t, err)
			require.NoError(t, c.Commit())
			require.NoError(t, c.Close())
			require.NoError(t, s.Close())

			// reopen with a different index specification
			s = reopen(t, registry, backend, dir, "ospc,cspo")
			defer s.Close()
			assert.Equal(t, "ospc,cspo", s.Indexes())
			c, err = s.NewConnection()
			require.NoError(t, err)
			defer c.Close()

			n, err := s.Count()
			require.NoError(t, err)
			assert.Equal(t, 3, n)
			n, err = c.Size()
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			it, err := c.GetStatements(nil, nil, rdf.NewBlankNode("b1"), true, iri("g"))
			require.NoError(t, err)
			sts, err := iteration.Collect(it)
			require.NoError(t, err)
			require.Len(t, sts, 1)
			assert.True(t, sts[0].Explicit)
			assert.True(t, sts[0].Context.Equals(iri("g")))

			it, err = c.GetStatements(nil, rdf.RDFType, nil, true)
			require.NoError(t, err)
			sts, err = iteration.Collect(it)
			require.NoError(t, err)
			require.Len(t, sts, 1)
			assert.False(t, sts[0].Explicit)

			// new ids continue after the persisted ones
			require.NoError(t, c.AddStatement(iri("new"), iri("name"), rdf.NewLiteral("Nu")))
			require.NoError(t, c.Commit())
			it, err = c.GetStatements(nil, iri("name"), nil, false)
			require.NoError(t, err)
			sts, err = iteration.Collect(it)
			require.NoError(t, err)
			assert.Len(t, sts, 2)
		})
	}
}

func TestRegistry(t *testing.T) {
	registry := storage.NewRegistry()
	assert.Equal(t, []string{"badger", "bolt", "memory"}, registry.Names())

	st, err := registry.Open(storage.BackendMemory, "", nil)
	require.NoError(t, err)
	s, err := store.Open(store.Options{Storage: st})
	require.NoError(t, err)
	defer s.Close()
	c, err := s.NewConnection()
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.AddStatement(iri("a"), iri("p"), iri("b")))
	require.NoError(t, c.Commit())

	_, err = registry.Open("nope", "", nil)
	assert.Error(t, err)
}
