package sstable

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/kvlsm/lsmgo/memtable"
)

func TestWriteAndEnumerateRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName(0))

	entries := []memtable.Entry{
		{Key: []byte("a"), Value: []byte("1")},
		{Key: []byte("b"), Value: []byte("2")},
		{Key: []byte("c"), Value: []byte("3")},
	}
	if err := Write(path, entries); err != nil {
		t.Fatal(err)
	}

	got, err := Enumerate(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(entries) {
		t.Fatalf("got %d entries, want %d", len(got), len(entries))
	}
	for i, e := range entries {
		if !bytes.Equal(got[i].Key, e.Key) || !bytes.Equal(got[i].Value, e.Value) {
			t.Fatalf("entry %d = %+v, want %+v", i, got[i], e)
		}
	}
}

func TestGetPointLookup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName(0))

	entries := []memtable.Entry{
		{Key: []byte("alpha"), Value: []byte("1")},
		{Key: []byte("beta"), Value: []byte("2")},
		{Key: []byte("gamma"), Value: []byte("3")},
	}
	if err := Write(path, entries); err != nil {
		t.Fatal(err)
	}

	v, ok, err := Get(path, []byte("beta"))
	if err != nil || !ok || string(v) != "2" {
		t.Fatalf("Get(beta) = %q,%v,%v want 2,true,nil", v, ok, err)
	}

	_, ok, err = Get(path, []byte("missing"))
	if err != nil || ok {
		t.Fatalf("Get(missing) = ok=%v err=%v, want false,nil", ok, err)
	}
}

func TestEmptyValuesRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName(0))

	entries := []memtable.Entry{{Key: []byte("k"), Value: []byte{}}}
	if err := Write(path, entries); err != nil {
		t.Fatal(err)
	}
	v, ok, err := Get(path, []byte("k"))
	if err != nil || !ok || len(v) != 0 {
		t.Fatalf("Get(k) = %q,%v,%v want empty,true,nil", v, ok, err)
	}
}

func TestBuilderProducesSameFormatAsWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName(0))

	b, err := Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Append([]byte("x"), []byte("y")); err != nil {
		t.Fatal(err)
	}
	if err := b.Finish(); err != nil {
		t.Fatal(err)
	}

	v, ok, err := Get(path, []byte("x"))
	if err != nil || !ok || string(v) != "y" {
		t.Fatalf("Get(x) = %q,%v,%v want y,true,nil", v, ok, err)
	}
}

func TestPrematureEOFMidRecordStopsEnumeration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName(0))

	entries := []memtable.Entry{
		{Key: []byte("a"), Value: []byte("1")},
		{Key: []byte("b"), Value: []byte("2")},
	}
	if err := Write(path, entries); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data[:len(data)-2], 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := Enumerate(path)
	if err != nil {
		t.Fatalf("Enumerate returned error on truncated trailing record: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d entries, want 1 (truncated second record dropped)", len(got))
	}
}

func TestFileNaming(t *testing.T) {
	if FileName(7) != "sstable_7.db" {
		t.Fatalf("FileName(7) = %q", FileName(7))
	}
	if BloomFileName(7) != "sstable_7.bloom" {
		t.Fatalf("BloomFileName(7) = %q", BloomFileName(7))
	}
}
