package encoding

import (
	"encoding/binary"

	"github.com/ansell/openrdf-sesame-sub028/pkg/errors"
)

// IndexKeySize is the size of a permuted (s,p,o,c) id key.
const IndexKeySize = 32

// EncodeIndexKey writes ids (in s,p,o,c order) big-endian in the order
// given by perm, so byte order equals the permutation's sort order.
func EncodeIndexKey(perm [4]int, ids [4]uint64) []byte {
	key := make([]byte, IndexKeySize)
	for i, field := range perm {
		binary.BigEndian.PutUint64(key[i*8:], ids[field])
	}
	return key
}

// DecodeIndexKey is the inverse of EncodeIndexKey.
func DecodeIndexKey(perm [4]int, key []byte) ([4]uint64, error) {
	var ids [4]uint64
	if len(key) != IndexKeySize {
		return ids, errors.Newf(errors.ErrStoreCorruption, "index key has %d bytes, want %d", len(key), IndexKeySize)
	}
	for i, field := range perm {
		ids[field] = binary.BigEndian.Uint64(key[i*8:])
	}
	return ids, nil
}

const (
	flagInferred byte = 0
	flagExplicit byte = 1
)

// EncodeIndexValue encodes a statement's provenance.
func EncodeIndexValue(explicit bool) []byte {
	if explicit {
		return []byte{flagExplicit}
	}
	return []byte{flagInferred}
}

func DecodeIndexValue(v []byte) (bool, error) {
	if len(v) != 1 || v[0] > flagExplicit {
		return false, errors.Newf(errors.ErrStoreCorruption, "bad index value %x", v)
	}
	return v[0] == flagExplicit, nil
}

// EncodeID encodes a dictionary id as a sortable key.
func EncodeID(id uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, id)
}

func DecodeID(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, errors.Newf(errors.ErrStoreCorruption, "id has %d bytes, want 8", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}

// JournalKeySize is the size of a staged write's key: the commit id, then
// the write's position in the commit.
const JournalKeySize = 16

func EncodeJournalKey(commit, seq uint64) []byte {
	key := binary.BigEndian.AppendUint64(make([]byte, 0, JournalKeySize), commit)
	return binary.BigEndian.AppendUint64(key, seq)
}

func DecodeJournalKey(key []byte) (commit, seq uint64, err error) {
	if len(key) != JournalKeySize {
		return 0, 0, errors.Newf(errors.ErrStoreCorruption, "journal key has %d bytes, want %d", len(key), JournalKeySize)
	}
	return binary.BigEndian.Uint64(key), binary.BigEndian.Uint64(key[8:]), nil
}

const (
	journalSet    byte = 0
	journalDelete byte = 1
)

// EncodeJournalRecord encodes a staged write of key in table. A delete
// carries no value.
func EncodeJournalRecord(table byte, key, value []byte, del bool) []byte {
	op := journalSet
	if del {
		op = journalDelete
		value = nil
	}
	rec := make([]byte, 0, 2+binary.MaxVarintLen64+len(key)+len(value))
	rec = append(rec, table, op)
	rec = binary.AppendUvarint(rec, uint64(len(key)))
	rec = append(rec, key...)
	return append(rec, value...)
}

// DecodeJournalRecord is the inverse of EncodeJournalRecord.
func DecodeJournalRecord(rec []byte) (table byte, key, value []byte, del bool, err error) {
	if len(rec) < 3 || rec[1] > journalDelete {
		return 0, nil, nil, false, errors.Newf(errors.ErrStoreCorruption, "bad journal record %x", rec)
	}
	table, del = rec[0], rec[1] == journalDelete
	size, read := binary.Uvarint(rec[2:])
	body := rec[2:]
	if read <= 0 || uint64(len(body)-read) < size {
		return 0, nil, nil, false, errors.New(errors.ErrStoreCorruption, "truncated journal record")
	}
	key = body[read : read+int(size)]
	value = body[read+int(size):]
	if del && len(value) != 0 {
		return 0, nil, nil, false, errors.New(errors.ErrStoreCorruption, "journal delete carries a value")
	}
	return table, key, value, del, nil
}
