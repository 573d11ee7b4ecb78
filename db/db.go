// Package db implements the Engine: the orchestrator that ties the
// MemTable, WAL, SSTable codec, and Bloom Filter together into a
// durable, crash-recoverable key-value store.
package db

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/kvlsm/lsmgo/bloom"
	"github.com/kvlsm/lsmgo/compaction"
	"github.com/kvlsm/lsmgo/memtable"
	"github.com/kvlsm/lsmgo/sstable"
	"github.com/kvlsm/lsmgo/wal"
)

// ErrInvalidThreshold is returned by Open when ThresholdBytes <= 0.
var ErrInvalidThreshold = errors.New("db: threshold must be > 0")

// ErrClosed is returned by Put/Get/Flush after Close.
var ErrClosed = errors.New("db: engine is closed")

const sstPrefix = "sstable_"
const sstSuffix = ".db"
const bloomSuffix = ".bloom"

// run pairs one on-disk SSTable with its in-memory Bloom filter. The
// Engine's run slice is ordered newest-first; index i's filter always
// describes index i's SSTable.
type run struct {
	id        uint64
	path      string
	bloomPath string
	filter    *bloom.Filter
}

// Engine owns the MemTable, the WAL handle, and the aligned SSTable/Bloom
// run list for one data directory. All exported methods are safe to
// call from a single goroutine at a time; the engine assumes a single
// writer, per the spec's concurrency model.
type Engine struct {
	mu     sync.Mutex
	closed bool

	instanceID uuid.UUID

	dir         string
	threshold   int
	fpp         float64
	maxSSTables int
	verbose     bool

	mem     *memtable.MemTable
	w       *wal.WAL
	walPath string

	nextID uint64
	runs   []*run // newest-first

	positiveChecks uint64
	negativeChecks uint64
}

// Open creates data_dir if absent, replays its WAL into a fresh
// MemTable, enumerates existing SSTables newest-first, and loads or
// rebuilds each one's Bloom filter.
func Open(opts Options) (*Engine, error) {
	if opts.ThresholdBytes <= 0 {
		return nil, ErrInvalidThreshold
	}
	fpp := opts.BloomFPP
	if fpp == 0 {
		fpp = DefaultBloomFPP
	}
	dir := opts.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	walPath := filepath.Join(dir, "wal.log")
	w, err := wal.Open(walPath)
	if err != nil {
		return nil, err
	}

	mem := memtable.New()
	records, err := wal.Recover(walPath)
	if err != nil {
		w.Close()
		return nil, err
	}
	for _, rec := range records {
		switch rec.Op {
		case wal.OpPut:
			mem.Put(rec.Key, rec.Value)
		case wal.OpDelete:
			mem.Delete(rec.Key)
		}
	}

	ids, err := scanSSTableIDs(dir)
	if err != nil {
		w.Close()
		return nil, err
	}

	var nextID uint64
	if len(ids) > 0 {
		nextID = ids[0] + 1 // ids is sorted descending
	}

	runs := make([]*run, 0, len(ids))
	for _, id := range ids {
		r, err := loadRun(dir, id, fpp)
		if err != nil {
			w.Close()
			return nil, err
		}
		runs = append(runs, r)
	}

	return &Engine{
		instanceID:  uuid.New(),
		dir:         dir,
		threshold:   opts.ThresholdBytes,
		fpp:         fpp,
		maxSSTables: opts.MaxSSTables,
		verbose:     opts.Verbose,
		mem:         mem,
		w:           w,
		walPath:     walPath,
		nextID:      nextID,
		runs:        runs,
	}, nil
}

// loadRun loads SSTable id's companion Bloom filter if present and
// parseable; otherwise it rebuilds the filter by rescanning the
// SSTable's keys (sized by max(len(keys), 1) at fpp) and persists the
// rebuilt filter next to the SSTable. A missing or corrupt Bloom file
// is not fatal; a failure to read the SSTable itself is, since that run
// is then considered lost.
func loadRun(dir string, id uint64, fpp float64) (*run, error) {
	path := filepath.Join(dir, sstable.FileName(id))
	bloomPath := filepath.Join(dir, sstable.BloomFileName(id))

	if data, err := os.ReadFile(bloomPath); err == nil {
		if f, err := bloom.Decode(data); err == nil {
			return &run{id: id, path: path, bloomPath: bloomPath, filter: f}, nil
		}
	}

	entries, err := sstable.Enumerate(path)
	if err != nil {
		return nil, fmt.Errorf("db: rebuilding bloom filter for sstable %d: %w", id, err)
	}
	filter := bloom.New(max(len(entries), 1), fpp)
	for _, e := range entries {
		filter.Insert(e.Key)
	}
	_ = os.WriteFile(bloomPath, filter.Encode(), 0o644)

	return &run{id: id, path: path, bloomPath: bloomPath, filter: filter}, nil
}

// scanSSTableIDs returns the IDs of every sstable_<N>.db file in dir,
// sorted descending (newest first).
func scanSSTableIDs(dir string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var ids []uint64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, sstPrefix) || !strings.HasSuffix(name, sstSuffix) {
			continue
		}
		idStr := strings.TrimSuffix(strings.TrimPrefix(name, sstPrefix), sstSuffix)
		id, err := strconv.ParseUint(idStr, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
	return ids, nil
}

// Put appends the PUT record to the WAL (forced to disk), then applies
// it to the MemTable, flushing if the threshold is now met or exceeded.
// A WAL append failure aborts the call without mutating the MemTable.
func (e *Engine) Put(key, value []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if err := e.w.Append(wal.OpPut, key, value); err != nil {
		return err
	}
	e.mem.Put(key, value)
	if e.mem.Size() >= e.threshold {
		return e.flushLocked()
	}
	return nil
}

// Get returns the value for key, checking the MemTable first and then
// every SSTable newest-first, consulting each run's Bloom filter before
// scanning. Apart from ErrClosed after Close, it never fails to the
// caller: a read error against a given SSTable degrades to "not found in
// this run" and the search continues.
func (e *Engine) Get(key []byte) ([]byte, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, false, ErrClosed
	}
	if v, ok := e.mem.Get(key); ok {
		return v, true, nil
	}

	for _, r := range e.runs {
		if !r.filter.MightContain(key) {
			e.negativeChecks++
			if e.verbose {
				fmt.Fprintf(os.Stderr, "[bloom] sstable %d: skipped\n", r.id)
			}
			continue
		}
		e.positiveChecks++
		v, ok, err := sstable.Get(r.path, key)
		if err != nil || !ok {
			if e.verbose {
				fmt.Fprintf(os.Stderr, "[bloom] sstable %d: false positive or read error\n", r.id)
			}
			continue
		}
		return v, true, nil
	}
	return nil, false, nil
}

// Flush materializes the MemTable into a new SSTable and truncates the
// WAL. It is a no-op if the MemTable is empty.
func (e *Engine) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	return e.flushLocked()
}

func (e *Engine) flushLocked() error {
	if e.mem.Len() == 0 {
		return nil
	}

	entries := e.mem.Entries()
	id := e.nextID
	path := filepath.Join(e.dir, sstable.FileName(id))
	bloomPath := filepath.Join(e.dir, sstable.BloomFileName(id))

	builder, err := sstable.Create(path)
	if err != nil {
		return err
	}
	filter := bloom.New(len(entries), e.fpp)
	for _, en := range entries {
		filter.Insert(en.Key)
		if err := builder.Append(en.Key, en.Value); err != nil {
			return err
		}
	}
	if err := builder.Finish(); err != nil {
		return err
	}

	if err := os.WriteFile(bloomPath, filter.Encode(), 0o644); err != nil {
		// The SSTable itself is durable; proceed with the in-memory
		// filter and let the next startup rebuild it from disk.
		if e.verbose {
			fmt.Fprintf(os.Stderr, "[flush] bloom persist failed for sstable %d: %v\n", id, err)
		}
	}

	e.nextID++
	e.runs = append([]*run{{id: id, path: path, bloomPath: bloomPath, filter: filter}}, e.runs...)
	if e.verbose {
		fmt.Fprintf(os.Stderr, "[flush] sstable %d created (%d keys)\n", id, len(entries))
	}

	e.mem.Reset()

	if err := e.w.Clear(); err != nil {
		// Idempotent under replay: the next recovery will re-apply
		// records the SSTable already contains. Correctness holds;
		// efficiency doesn't.
		return err
	}

	if e.maxSSTables > 0 && len(e.runs) > e.maxSSTables {
		return e.compactLocked()
	}
	return nil
}

// compactLocked merges every current run into one, via the compaction
// package. It is auxiliary: disabled by default (Options.MaxSSTables ==
// 0) and never required for spec-mandated correctness.
func (e *Engine) compactLocked() error {
	if len(e.runs) <= 1 {
		return nil
	}
	inputs := make([]compaction.Input, len(e.runs))
	for i, r := range e.runs {
		inputs[i] = compaction.Input{Path: r.path, Rank: i}
	}

	outID := e.nextID
	outPath := filepath.Join(e.dir, sstable.FileName(outID))
	result, err := compaction.Merge(inputs, outPath, e.fpp)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	e.nextID = outID + 1

	bloomPath := filepath.Join(e.dir, sstable.BloomFileName(outID))
	if err := os.WriteFile(bloomPath, result.Filter.Encode(), 0o644); err != nil && e.verbose {
		fmt.Fprintf(os.Stderr, "[compact] bloom persist failed for sstable %d: %v\n", outID, err)
	}

	old := e.runs
	e.runs = []*run{{id: outID, path: outPath, bloomPath: bloomPath, filter: result.Filter}}
	if e.verbose {
		fmt.Fprintf(os.Stderr, "[compact] merged %d sstables into sstable %d\n", len(old), outID)
	}
	for _, r := range old {
		os.Remove(r.path)
		os.Remove(r.bloomPath)
	}
	return nil
}

// Close attempts a best-effort final flush so in-memory state becomes
// durable, then releases the WAL handle. Failure to flush at teardown
// does not surface as an error.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	_ = e.flushLocked()
	e.closed = true
	return e.w.Close()
}
