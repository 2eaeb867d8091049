package storage

import (
	"bytes"
	"testing"

	"github.com/ansell/openrdf-sesame-sub028/pkg/errors"
	"github.com/ansell/openrdf-sesame-sub028/pkg/logger"
	"github.com/ansell/openrdf-sesame-sub028/pkg/store"
)

// openBackends opens every registered backend in its own temp dir.
func openBackends(t *testing.T) map[string]store.Storage {
	t.Helper()
	reg := NewRegistry()
	out := make(map[string]store.Storage)
	for _, name := range reg.Names() {
		s, err := reg.Open(name, t.TempDir(), nil)
		if err != nil {
			t.Fatalf("failed to open %s: %v", name, err)
		}
		t.Cleanup(func() { _ = s.Close() })
		out[name] = s
	}
	return out
}

func put(t *testing.T, s store.Storage, table store.Table, kv ...string) {
	t.Helper()
	txn, err := s.Begin(true)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	for i := 0; i < len(kv); i += 2 {
		if err := txn.Set(table, []byte(kv[i]), []byte(kv[i+1])); err != nil {
			t.Fatalf("set: %v", err)
		}
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func scanKeys(t *testing.T, txn store.Transaction, table store.Table, prefix string) []string {
	t.Helper()
	var p []byte
	if prefix != "" {
		p = []byte(prefix)
	}
	it, err := txn.Scan(table, p)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	defer it.Close()
	var keys []string
	for it.Next() {
		keys = append(keys, string(it.Key()))
	}
	return keys
}

func TestBackends_GetSetDelete(t *testing.T) {
	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			put(t, s, store.TableValues, "a", "1", "b", "2")

			txn, err := s.Begin(false)
			if err != nil {
				t.Fatal(err)
			}
			v, err := txn.Get(store.TableValues, []byte("a"))
			if err != nil || string(v) != "1" {
				t.Errorf("get a = %q, %v", v, err)
			}
			if _, err := txn.Get(store.TableValues, []byte("zz")); err != store.ErrNotFound {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
			if _, err := txn.Get(store.TableMeta, []byte("a")); err != store.ErrNotFound {
				t.Errorf("tables must not share keys, got %v", err)
			}
			if err := txn.Set(store.TableValues, []byte("c"), nil); err != store.ErrTransactionRO {
				t.Errorf("expected read-only error, got %v", err)
			}
			_ = txn.Rollback()

			wtx, err := s.Begin(true)
			if err != nil {
				t.Fatal(err)
			}
			if err := wtx.Delete(store.TableValues, []byte("a")); err != nil {
				t.Fatal(err)
			}
			if err := wtx.Commit(); err != nil {
				t.Fatal(err)
			}

			rtx, _ := s.Begin(false)
			defer rtx.Rollback()
			if _, err := rtx.Get(store.TableValues, []byte("a")); err != store.ErrNotFound {
				t.Errorf("deleted key still present: %v", err)
			}
		})
	}
}

func TestBackends_ScanPrefix(t *testing.T) {
	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			spoc, _ := store.IndexTable("spoc")
			posc, _ := store.IndexTable("posc")
			put(t, s, spoc, "ab", "", "aa", "", "b", "", "ac", "")
			put(t, s, posc, "aa", "")

			txn, _ := s.Begin(false)
			defer txn.Rollback()

			got := scanKeys(t, txn, spoc, "a")
			want := []string{"aa", "ab", "ac"}
			if len(got) != len(want) {
				t.Fatalf("got %v, want %v", got, want)
			}
			for i := range want {
				if got[i] != want[i] {
					t.Errorf("key %d = %q, want %q", i, got[i], want[i])
				}
			}
			if all := scanKeys(t, txn, spoc, ""); len(all) != 4 {
				t.Errorf("full scan returned %v", all)
			}
			if none := scanKeys(t, txn, store.TableMeta, ""); len(none) != 0 {
				t.Errorf("empty table returned %v", none)
			}
		})
	}
}

func TestBackends_RollbackDiscards(t *testing.T) {
	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			txn, _ := s.Begin(true)
			if err := txn.Set(store.TableMeta, []byte("k"), []byte("v")); err != nil {
				t.Fatal(err)
			}
			if err := txn.Rollback(); err != nil {
				t.Fatal(err)
			}
			rtx, _ := s.Begin(false)
			defer rtx.Rollback()
			if _, err := rtx.Get(store.TableMeta, []byte("k")); err != store.ErrNotFound {
				t.Errorf("rolled back write is visible: %v", err)
			}
		})
	}
}

func TestBackends_ValueCopies(t *testing.T) {
	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			put(t, s, store.TableValues, "k1", "v1", "k2", "v2")
			txn, _ := s.Begin(false)
			defer txn.Rollback()
			it, _ := txn.Scan(store.TableValues, nil)
			defer it.Close()

			var vals [][]byte
			for it.Next() {
				v, err := it.Value()
				if err != nil {
					t.Fatal(err)
				}
				vals = append(vals, v)
			}
			if len(vals) != 2 || !bytes.Equal(vals[0], []byte("v1")) || !bytes.Equal(vals[1], []byte("v2")) {
				t.Errorf("values not stable after Next: %q", vals)
			}
		})
	}
}

func TestMemoryStorage_SnapshotIsolation(t *testing.T) {
	s := NewMemoryStorage()
	put(t, s, store.TableValues, "a", "1")

	reader, _ := s.Begin(false)
	put(t, s, store.TableValues, "a", "2")

	v, err := reader.Get(store.TableValues, []byte("a"))
	if err != nil || string(v) != "1" {
		t.Errorf("reader saw %q, %v; want the value at begin", v, err)
	}
	_ = reader.Rollback()

	_ = s.Close()
	if _, err := s.Begin(false); !errors.Is(err, errors.ErrClosed) {
		t.Errorf("expected closed error, got %v", err)
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	if _, err := reg.Open("tape", t.TempDir(), nil); !errors.Is(err, errors.ErrMalformedInput) {
		t.Errorf("expected unknown backend error, got %v", err)
	}
	if err := reg.Register(BackendMemory, nil); !errors.Is(err, errors.ErrMalformedInput) {
		t.Errorf("expected duplicate registration error, got %v", err)
	}
	opened := false
	err := reg.Register("custom", func(dir string, log logger.Logger) (store.Storage, error) {
		opened = true
		return NewMemoryStorage(), nil
	})
	if err != nil {
		t.Fatal(err)
	}
	s, err := reg.Open("custom", "", nil)
	if err != nil || !opened {
		t.Fatalf("custom backend not used: %v", err)
	}
	_ = s.Close()

	names := reg.Names()
	if len(names) != 4 || names[0] != BackendBadger || names[1] != BackendBolt {
		t.Errorf("unexpected names %v", names)
	}
}
