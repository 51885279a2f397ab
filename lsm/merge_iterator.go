package lsm

import "container/heap"

// SearchItem is one candidate record inside a HeapIterator. Idx breaks ties
// between records with equal keys: the smaller idx wins, so callers pushing
// L0 records negate the sst id to make newer files sort first.
type SearchItem struct {
	Key   string
	Value string
	Idx   int
	Level int
}

type searchItemHeap []SearchItem

func (h searchItemHeap) Len() int { return len(h) }

func (h searchItemHeap) Less(i, j int) bool {
	if h[i].Key != h[j].Key {
		return h[i].Key < h[j].Key
	}
	return h[i].Idx < h[j].Idx
}

func (h searchItemHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *searchItemHeap) Push(x interface{}) { *h = append(*h, x.(SearchItem)) }

func (h *searchItemHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// HeapIterator merges materialized records from many sources into a single
// ordered stream. Among records sharing a key only the first (smallest Idx)
// is surfaced; the rest are skipped, tombstones included.
type HeapIterator struct {
	items searchItemHeap
	cur   SearchItem
	done  bool
}

// NewHeapIterator builds a heap iterator over items; ordering of the input
// does not matter.
func NewHeapIterator(items []SearchItem) *HeapIterator {
	h := &HeapIterator{items: searchItemHeap(items)}
	heap.Init(&h.items)
	h.advance()
	return h
}

func (h *HeapIterator) advance() {
	if h.items.Len() == 0 {
		h.done = true
		return
	}
	h.cur = heap.Pop(&h.items).(SearchItem)
	// drop older records for the same key
	for h.items.Len() > 0 && h.items[0].Key == h.cur.Key {
		heap.Pop(&h.items)
	}
}

func (h *HeapIterator) Valid() bool   { return !h.done }
func (h *HeapIterator) Key() string   { return h.cur.Key }
func (h *HeapIterator) Value() string { return h.cur.Value }
func (h *HeapIterator) Next()         { h.advance() }

// TwoMergeIterator composes two ordered iterators; on equal keys the record
// from a wins and b's is skipped. Tombstones pass through untouched.
type TwoMergeIterator struct {
	a, b Iterator
}

// NewTwoMergeIterator builds a merge of a over b.
func NewTwoMergeIterator(a, b Iterator) *TwoMergeIterator {
	it := &TwoMergeIterator{a: a, b: b}
	it.skipB()
	return it
}

// skipB maintains the invariant that b never sits on a key equal to a's.
func (it *TwoMergeIterator) skipB() {
	for it.a.Valid() && it.b.Valid() && it.b.Key() == it.a.Key() {
		it.b.Next()
	}
}

func (it *TwoMergeIterator) useA() bool {
	if !it.a.Valid() {
		return false
	}
	return !it.b.Valid() || it.a.Key() < it.b.Key()
}

func (it *TwoMergeIterator) Valid() bool {
	return it.a.Valid() || it.b.Valid()
}

func (it *TwoMergeIterator) Key() string {
	if it.useA() {
		return it.a.Key()
	}
	return it.b.Key()
}

func (it *TwoMergeIterator) Value() string {
	if it.useA() {
		return it.a.Value()
	}
	return it.b.Value()
}

func (it *TwoMergeIterator) Next() {
	if it.useA() {
		it.a.Next()
	} else {
		it.b.Next()
	}
	it.skipB()
}

func (it *TwoMergeIterator) Err() error {
	if err := iterErr(it.a); err != nil {
		return err
	}
	return iterErr(it.b)
}

// ConcatIterator chains SSTs whose key ranges are disjoint and ascending,
// as holds for any level deeper than L0. Blocks load lazily as the scan
// crosses file boundaries.
type ConcatIterator struct {
	ssts []*SST
	cur  int
	it   *SSTIterator
	err  error
}

// NewConcatIterator chains ssts in the given order.
func NewConcatIterator(ssts []*SST) *ConcatIterator {
	c := &ConcatIterator{ssts: ssts, cur: -1}
	c.nextSST()
	return c
}

func (c *ConcatIterator) nextSST() {
	for {
		c.cur++
		if c.cur >= len(c.ssts) {
			c.it = nil
			return
		}
		c.it = c.ssts[c.cur].Iter()
		if c.it.Valid() {
			return
		}
		if err := c.it.Err(); err != nil {
			c.err = err
			c.it = nil
			return
		}
	}
}

func (c *ConcatIterator) Valid() bool {
	return c.err == nil && c.it != nil && c.it.Valid()
}

func (c *ConcatIterator) Key() string   { return c.it.Key() }
func (c *ConcatIterator) Value() string { return c.it.Value() }

func (c *ConcatIterator) Next() {
	c.it.Next()
	if c.it.Valid() {
		return
	}
	if err := c.it.Err(); err != nil {
		c.err = err
		c.it = nil
		return
	}
	c.nextSST()
}

func (c *ConcatIterator) Err() error { return c.err }

type errIterator interface {
	Err() error
}

// iterErr extracts a deferred I/O error from iterators that can carry one.
func iterErr(it Iterator) error {
	if e, ok := it.(errIterator); ok {
		return e.Err()
	}
	return nil
}
