// Package memtable implements the engine's in-memory write buffer: an
// ordered key-to-value mapping with byte-accurate size accounting, the
// structure an SSTable flush iterates over to produce a sorted run.
package memtable

import (
	"bytes"
	"sort"
)

// Entry is one (key, value) pair as returned by Entries, in ascending
// key order.
type Entry struct {
	Key   []byte
	Value []byte
}

// MemTable is an ordered, in-memory key-value buffer. Duplicate Put
// overwrites; byte size is Σ(len(k)+len(v)) over current entries,
// updated incrementally on every insert/overwrite/delete.
type MemTable struct {
	entries map[string][]byte
	size    int
}

// New returns an empty MemTable.
func New() *MemTable {
	return &MemTable{entries: make(map[string][]byte)}
}

// Put inserts or overwrites key with value. On overwrite, the old
// entry's contribution to size is subtracted before the new one is
// added.
func (m *MemTable) Put(key, value []byte) {
	k := string(key)
	if old, ok := m.entries[k]; ok {
		m.size -= len(k) + len(old)
	}
	v := cloneBytes(value)
	m.entries[k] = v
	m.size += len(k) + len(v)
}

// Delete removes key if present, adjusting size accordingly. It reports
// whether the key was present.
func (m *MemTable) Delete(key []byte) bool {
	k := string(key)
	old, ok := m.entries[k]
	if !ok {
		return false
	}
	m.size -= len(k) + len(old)
	delete(m.entries, k)
	return true
}

// Get returns a copy of the value stored for key, if present.
func (m *MemTable) Get(key []byte) ([]byte, bool) {
	v, ok := m.entries[string(key)]
	if !ok {
		return nil, false
	}
	return cloneBytes(v), true
}

// Len reports the number of entries currently held.
func (m *MemTable) Len() int {
	return len(m.entries)
}

// Size reports the tracked byte size: Σ(len(k)+len(v)) over current
// entries.
func (m *MemTable) Size() int {
	return m.size
}

// Entries returns every (key, value) pair in ascending byte-lexicographic
// key order, the order an SSTable flush must emit records in.
func (m *MemTable) Entries() []Entry {
	out := make([]Entry, 0, len(m.entries))
	for k, v := range m.entries {
		out = append(out, Entry{Key: []byte(k), Value: v})
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Key, out[j].Key) < 0
	})
	return out
}

// Reset clears all entries and resets size to zero, as done after a
// successful flush.
func (m *MemTable) Reset() {
	m.entries = make(map[string][]byte)
	m.size = 0
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
