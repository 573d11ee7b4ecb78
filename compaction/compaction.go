// Package compaction provides an opt-in, synchronous merge of the
// engine's current SSTables into a single run. It is auxiliary tooling
// layered on top of the spec-mandated SSTable format: it never changes
// the on-disk record layout, and the CORE engine (put/get/flush/open)
// behaves identically whether or not compaction ever runs.
package compaction

import (
	"bytes"
	"container/heap"

	"github.com/kvlsm/lsmgo/bloom"
	"github.com/kvlsm/lsmgo/sstable"
)

// Input describes one SSTable to fold into a compaction, along with its
// rank in the engine's newest-first ordering (0 = newest). When two
// inputs carry the same key, the lower-rank (newer) value wins.
type Input struct {
	Path string
	Rank int
}

// Result is the SSTable produced by a compaction, along with the Bloom
// filter built for it.
type Result struct {
	Path   string
	Filter *bloom.Filter
}

// Merge reads every input SSTable in full, performs a key-wise merge
// keeping the newest value for each key, and writes the result to
// outPath with a freshly sized Bloom filter at fpp. Inputs are not
// removed; the caller owns lifecycle decisions (matching the Engine's
// policy of never deleting a run until its replacement is durable).
func Merge(inputs []Input, outPath string, fpp float64) (*Result, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	iters := make([]*runIter, 0, len(inputs))
	for _, in := range inputs {
		entries, err := sstable.Enumerate(in.Path)
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			continue
		}
		iters = append(iters, &runIter{entries: entries, rank: in.Rank})
	}

	h := &mergeHeap{}
	for _, it := range iters {
		heap.Push(h, it)
	}

	builder, err := sstable.Create(outPath)
	if err != nil {
		return nil, err
	}

	var merged []sstable.Entry
	for h.Len() > 0 {
		best := heap.Pop(h).(*runIter)
		key := best.entries[best.pos].Key
		value := best.entries[best.pos].Value

		// Drain and discard any other iterator currently positioned on
		// the same key; it carries an older value.
		for h.Len() > 0 && bytes.Equal((*h)[0].entries[(*h)[0].pos].Key, key) {
			other := heap.Pop(h).(*runIter)
			if other.advance() {
				heap.Push(h, other)
			}
		}

		merged = append(merged, sstable.Entry{Key: key, Value: value})
		if best.advance() {
			heap.Push(h, best)
		}
	}

	filter := bloom.New(max(len(merged), 1), fpp)
	for _, e := range merged {
		filter.Insert(e.Key)
		if err := builder.Append(e.Key, e.Value); err != nil {
			return nil, err
		}
	}
	if err := builder.Finish(); err != nil {
		return nil, err
	}

	return &Result{Path: outPath, Filter: filter}, nil
}

// runIter walks one input's already-loaded entries in order.
type runIter struct {
	entries []sstable.Entry
	pos     int
	rank    int
}

func (it *runIter) advance() bool {
	it.pos++
	return it.pos < len(it.entries)
}

// mergeHeap orders iterators by current key, breaking ties in favor of
// the lower rank (the newer run), so the first of several tied
// iterators popped carries the value that should win.
type mergeHeap []*runIter

func (h mergeHeap) Len() int { return len(h) }
func (h mergeHeap) Less(i, j int) bool {
	c := bytes.Compare(h[i].entries[h[i].pos].Key, h[j].entries[h[j].pos].Key)
	if c != 0 {
		return c < 0
	}
	return h[i].rank < h[j].rank
}
func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x any)   { *h = append(*h, x.(*runIter)) }
func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
