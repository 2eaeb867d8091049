package store

import (
	"errors"
	"strings"
)

var (
	ErrNotFound      = errors.New("key not found")
	ErrTransactionRO = errors.New("transaction is read-only")
	// ErrTxnTooBig is returned by Set and Delete when the write does not
	// fit into the transaction. The transaction stays usable.
	ErrTxnTooBig = errors.New("transaction too big")
)

// Storage is the interface for the underlying key-value store
type Storage interface {
	// Begin starts a new transaction
	Begin(writable bool) (Transaction, error)

	// Close closes the storage
	Close() error

	// Sync flushes writes to disk
	Sync() error
}

// Transaction represents a storage transaction with snapshot isolation
type Transaction interface {
	// Get retrieves a value by key
	Get(table Table, key []byte) ([]byte, error)

	// Set stores a key-value pair
	Set(table Table, key, value []byte) error

	// Delete removes a key
	Delete(table Table, key []byte) error

	// Scan iterates in key order over the keys of table starting with
	// prefix. A nil prefix scans the whole table.
	Scan(table Table, prefix []byte) (Iterator, error)

	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error
}

// Iterator iterates over key-value pairs. Key and Value return copies that
// stay valid after Next.
type Iterator interface {
	// Next advances to the next item
	Next() bool

	// Key returns the current key
	Key() []byte

	// Value returns the current value
	Value() ([]byte, error)

	// Close closes the iterator
	Close() error
}

// Table represents a logical table/column family in the storage
type Table byte

const (
	// Dictionary: id -> term record
	TableValues Table = iota

	// Store metadata: next id, index specification, published journal
	TableMeta

	// Staged writes of commits too big for one storage transaction
	TableJournal

	// First statement index table; one table per permutation follows.
	tableIndexBase Table = 16
)

// permutationCodes lists every ordering of "spoc" in lexicographic order.
// A permutation's table is tableIndexBase plus its position here, so
// table numbers are stable across index specifications.
var permutationCodes = func() []string {
	var out []string
	var walk func(prefix, rest string)
	walk = func(prefix, rest string) {
		if rest == "" {
			out = append(out, prefix)
			return
		}
		for i := 0; i < len(rest); i++ {
			walk(prefix+rest[i:i+1], rest[:i]+rest[i+1:])
		}
	}
	walk("", "cops")
	return out
}()

// IndexTable returns the table that holds the statement index ordered by
// the permutation code (e.g. "spoc").
func IndexTable(code string) (Table, bool) {
	for i, c := range permutationCodes {
		if c == code {
			return tableIndexBase + Table(i), true
		}
	}
	return 0, false
}

// IndexTables returns the tables of every possible permutation.
func IndexTables() []Table {
	out := make([]Table, len(permutationCodes))
	for i := range permutationCodes {
		out[i] = tableIndexBase + Table(i)
	}
	return out
}

func (t Table) String() string {
	switch t {
	case TableValues:
		return "values"
	case TableMeta:
		return "meta"
	case TableJournal:
		return "journal"
	}
	if t >= tableIndexBase && int(t-tableIndexBase) < len(permutationCodes) {
		return "index_" + permutationCodes[t-tableIndexBase]
	}
	return "unknown"
}

// ParseTable is the inverse of Table.String.
func ParseTable(name string) (Table, bool) {
	switch name {
	case "values":
		return TableValues, true
	case "meta":
		return TableMeta, true
	case "journal":
		return TableJournal, true
	}
	if code, ok := strings.CutPrefix(name, "index_"); ok {
		return IndexTable(code)
	}
	return 0, false
}

// TablePrefix returns a byte prefix for a table to namespace keys
func TablePrefix(table Table) []byte {
	return []byte{byte(table)}
}

// PrefixKey adds a table prefix to a key
func PrefixKey(table Table, key []byte) []byte {
	prefix := TablePrefix(table)
	result := make([]byte, len(prefix)+len(key))
	copy(result, prefix)
	copy(result[len(prefix):], key)
	return result
}
