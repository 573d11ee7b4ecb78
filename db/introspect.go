package db

import (
	"fmt"

	"github.com/kvlsm/lsmgo/bloom"
	"github.com/kvlsm/lsmgo/memtable"
	"github.com/kvlsm/lsmgo/sstable"
)

// InstanceID returns an identifier generated afresh by each Open for
// this Engine, useful for correlating log lines across multiple engine
// instances.
func (e *Engine) InstanceID() string {
	return e.instanceID.String()
}

// MemTableLen reports the number of entries currently buffered in
// memory.
func (e *Engine) MemTableLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mem.Len()
}

// MemTableSize reports the MemTable's tracked byte size.
func (e *Engine) MemTableSize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mem.Size()
}

// Threshold reports the configured flush threshold in bytes.
func (e *Engine) Threshold() int {
	return e.threshold
}

// SSTableCount reports the number of on-disk runs, newest-first.
func (e *Engine) SSTableCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.runs)
}

// MemTableEntries returns every (key, value) pair currently buffered,
// in ascending key order.
func (e *Engine) MemTableEntries() []memtable.Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mem.Entries()
}

// ErrIndexOutOfRange is returned by SSTableEntries and BloomStats when
// index is outside [0, SSTableCount()).
var ErrIndexOutOfRange = fmt.Errorf("db: sstable index out of range")

// SSTableEntries enumerates the on-disk records of the SSTable at
// index, where 0 is the newest.
func (e *Engine) SSTableEntries(index int) ([]sstable.Entry, error) {
	e.mu.Lock()
	r, err := e.runAt(index)
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return sstable.Enumerate(r.path)
}

// BloomStats reports the Bloom filter summary for the SSTable at index,
// where 0 is the newest.
func (e *Engine) BloomStats(index int) (bloom.Stats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, err := e.runAt(index)
	if err != nil {
		return bloom.Stats{}, err
	}
	return r.filter.Stats(), nil
}

func (e *Engine) runAt(index int) (*run, error) {
	if index < 0 || index >= len(e.runs) {
		return nil, ErrIndexOutOfRange
	}
	return e.runs[index], nil
}

// FilterCounters reports the cumulative positive (filter admitted, scan
// performed) and negative (filter rejected, scan skipped) Bloom checks
// since the engine was opened or last reset.
func (e *Engine) FilterCounters() (positive, negative uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.positiveChecks, e.negativeChecks
}

// ResetFilterCounters zeroes the positive/negative Bloom check counters.
func (e *Engine) ResetFilterCounters() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.positiveChecks = 0
	e.negativeChecks = 0
}

// Stats is a point-in-time introspection snapshot of the Engine.
type Stats struct {
	InstanceID     string
	MemTableLen    int
	MemTableBytes  int
	Threshold      int
	SSTableCount   int
	PositiveChecks uint64
	NegativeChecks uint64
	Filters        []bloom.Stats // newest-first, aligned with SSTable index
}

// Stats returns a snapshot combining MemTable, threshold, SSTable count,
// filter counters, and per-SSTable Bloom statistics.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	filters := make([]bloom.Stats, len(e.runs))
	for i, r := range e.runs {
		filters[i] = r.filter.Stats()
	}

	return Stats{
		InstanceID:     e.instanceID.String(),
		MemTableLen:    e.mem.Len(),
		MemTableBytes:  e.mem.Size(),
		Threshold:      e.threshold,
		SSTableCount:   len(e.runs),
		PositiveChecks: e.positiveChecks,
		NegativeChecks: e.negativeChecks,
		Filters:        filters,
	}
}
