package wal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppendAndRecover(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")

	w, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, w.Append(OpPut, []byte("k1"), []byte("v1")))
	require.NoError(t, w.Append(OpPut, []byte("k2"), []byte("v2")))
	require.NoError(t, w.Append(OpDelete, []byte("k1"), nil))
	require.NoError(t, w.Close())

	records, err := Recover(path)
	require.NoError(t, err)
	require.Len(t, records, 3)

	require.Equal(t, OpPut, records[0].Op)
	require.Equal(t, []byte("k1"), records[0].Key)
	require.Equal(t, []byte("v1"), records[0].Value)

	require.Equal(t, OpDelete, records[2].Op)
	require.Equal(t, []byte("k1"), records[2].Key)
	require.Empty(t, records[2].Value)
}

func TestRecoverEmptyFileYieldsNoRecords(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	records, err := Recover(path)
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestClearTruncatesAndRecoveryYieldsNothing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")

	w, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, w.Append(OpPut, []byte("k"), []byte("v")))
	require.NoError(t, w.Clear())
	require.NoError(t, w.Close())

	records, err := Recover(path)
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestOpenPreservesExistingContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")

	w1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, w1.Append(OpPut, []byte("a"), []byte("1")))
	require.NoError(t, w1.Close())

	w2, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, w2.Append(OpPut, []byte("b"), []byte("2")))
	require.NoError(t, w2.Close())

	records, err := Recover(path)
	require.NoError(t, err)
	require.Len(t, records, 2)
}

func TestRecoverCorruptOpByte(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")

	// op=99 is not PUT or DELETE.
	require.NoError(t, os.WriteFile(path, []byte{99, 0, 0, 0, 0}, 0o644))

	_, err := Recover(path)
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestRecoverPrematureEOFMidRecord(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")

	w, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, w.Append(OpPut, []byte("key"), []byte("value")))
	require.NoError(t, w.Close())

	// Truncate mid-record: drop the trailing bytes so the value is cut
	// short.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data[:len(data)-3], 0o644))

	_, err = Recover(path)
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestAppendAfterCloseFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")

	w, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	err = w.Append(OpPut, []byte("k"), []byte("v"))
	require.ErrorIs(t, err, ErrClosed)
}
