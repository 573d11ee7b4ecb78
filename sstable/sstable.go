// Package sstable implements the on-disk Sorted String Table: an
// immutable file holding one MemTable flush's entries in ascending key
// order, with no header, trailer, or block index. Point lookup is a
// linear scan, and enumeration yields records in file order.
package sstable

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/kvlsm/lsmgo/memtable"
)

// ErrCorrupt marks a record that cannot be read in full, such as one
// whose declared length runs past the end of the file. Get and Enumerate
// treat it as the end of the table and do not return it.
var ErrCorrupt = errors.New("sstable: corrupt record")

// FileName returns the on-disk name for SSTable id, sstable_<N>.db.
func FileName(id uint64) string {
	return fmt.Sprintf("sstable_%d.db", id)
}

// BloomFileName returns the companion Bloom filter file name for SSTable
// id, sstable_<N>.bloom.
func BloomFileName(id uint64) string {
	return fmt.Sprintf("sstable_%d.bloom", id)
}

// Builder writes one SSTable one record at a time, the "one pass, two
// sinks" shape the engine uses at flush: the same loop that appends to
// the Builder also populates the run's Bloom filter.
type Builder struct {
	f *os.File
	w *bufio.Writer
}

// Create opens path for writing, truncating any existing content.
func Create(path string) (*Builder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	return &Builder{f: f, w: bufio.NewWriter(f)}, nil
}

// Append writes one record. Callers must supply keys in ascending
// order; the Builder does not itself enforce this.
func (b *Builder) Append(key, value []byte) error {
	return writeRecord(b.w, key, value)
}

// Finish flushes buffered writes, forces the file to disk, and closes
// it.
func (b *Builder) Finish() error {
	if err := b.w.Flush(); err != nil {
		b.f.Close()
		return err
	}
	if err := b.f.Sync(); err != nil {
		b.f.Close()
		return err
	}
	return b.f.Close()
}

// Write creates a new SSTable at path from entries, which must already
// be sorted ascending by key (memtable.Entries guarantees this). It is
// a convenience wrapper around Builder for callers (such as compaction)
// that already hold the full sorted entry set in memory.
func Write(path string, entries []memtable.Entry) error {
	b, err := Create(path)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := b.Append(e.Key, e.Value); err != nil {
			b.f.Close()
			return err
		}
	}
	return b.Finish()
}

func writeRecord(w *bufio.Writer, key, value []byte) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(key)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := w.Write(key); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(value)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := w.Write(value); err != nil {
		return err
	}
	return nil
}

// Get performs a linear-scan point lookup for key in the SSTable at
// path, opening a fresh file handle. A premature EOF partway through a
// record stops the scan and is treated as "not found", matching the
// engine's policy that read errors degrade rather than propagate.
func Get(path string, key []byte) ([]byte, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		k, v, ok, err := readRecord(r)
		if err != nil {
			return nil, false, nil
		}
		if !ok {
			return nil, false, nil
		}
		if bytes.Equal(k, key) {
			return v, true, nil
		}
	}
}

// Entry is one on-disk record as returned by Enumerate.
type Entry struct {
	Key   []byte
	Value []byte
}

// Enumerate yields every record in the SSTable at path, in file order.
// A premature EOF mid-record stops reading and returns what has been
// read so far without error, per the normal-termination rule for
// sequential reads.
func Enumerate(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var out []Entry
	for {
		k, v, ok, err := readRecord(r)
		if err != nil {
			return out, nil
		}
		if !ok {
			return out, nil
		}
		out = append(out, Entry{Key: k, Value: v})
	}
}

// readRecord reads one [key_len][key][val_len][val] record. ok=false,
// err=nil means a clean EOF at a record boundary (normal termination).
// Any other read failure, including a premature EOF mid-record, is
// reported as ErrCorrupt.
func readRecord(r *bufio.Reader) (key, value []byte, ok bool, err error) {
	keyLen, err := readUint32(r)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, false, nil
		}
		return nil, nil, false, ErrCorrupt
	}
	key = make([]byte, keyLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, nil, false, ErrCorrupt
	}
	valLen, err := readUint32(r)
	if err != nil {
		return nil, nil, false, ErrCorrupt
	}
	value = make([]byte, valLen)
	if _, err := io.ReadFull(r, value); err != nil {
		return nil, nil, false, ErrCorrupt
	}
	return key, value, true, nil
}

func readUint32(r *bufio.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}
