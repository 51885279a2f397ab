package lsm

import (
	"fmt"
	"sync"
)

// MemTable buffers writes in a current skip list plus a queue of frozen
// ones awaiting flush. The queue is ordered newest first, so a flush drains
// from the tail.
//
// Once frozen a table is immutable. FlushLast unlinks a table from the queue
// before draining it; the engine calls FlushLast under its exclusive lock,
// so a reader that misses the table in memory waits on that lock and then
// finds the data in L0.
type MemTable struct {
	mu            sync.RWMutex
	perTableLimit int
	current       *SkipList
	frozen        []*SkipList
	frozenSize    int
}

// NewMemTable creates a memtable whose tables freeze at perTableLimit bytes.
func NewMemTable(perTableLimit int) *MemTable {
	return &MemTable{
		perTableLimit: perTableLimit,
		current:       NewSkipList(),
	}
}

// freezeCurrent moves the writable table onto the frozen queue. Callers
// hold the write lock.
func (m *MemTable) freezeCurrent() {
	m.frozenSize += m.current.Size()
	m.frozen = append([]*SkipList{m.current}, m.frozen...)
	m.current = NewSkipList()
}

// Put writes a key-value pair, freezing the current table when it fills up.
func (m *MemTable) Put(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.Put(key, value)
	if m.current.Size() >= m.perTableLimit {
		m.freezeCurrent()
	}
}

// PutBatch writes several pairs under one lock acquisition.
func (m *MemTable) PutBatch(entries []Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		m.current.Put(e.Key, e.Value)
	}
	if m.current.Size() >= m.perTableLimit {
		m.freezeCurrent()
	}
}

// Remove records a tombstone for key.
func (m *MemTable) Remove(key string) {
	m.Put(key, "")
}

// RemoveBatch records tombstones for several keys.
func (m *MemTable) RemoveBatch(keys []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		m.current.Put(k, "")
	}
	if m.current.Size() >= m.perTableLimit {
		m.freezeCurrent()
	}
}

// Get probes the current table first, then frozen tables newest to oldest.
// The first hit wins, tombstones included: a tombstone comes back as
// ("", true).
func (m *MemTable) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v, ok := m.current.Get(key); ok {
		return v, ok
	}
	for _, t := range m.frozen {
		if v, ok := t.Get(key); ok {
			return v, ok
		}
	}
	return "", false
}

// TotalSize is the aggregate byte size across all tables.
func (m *MemTable) TotalSize() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Size() + m.frozenSize
}

// Clear drops every table.
func (m *MemTable) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = NewSkipList()
	m.frozen = nil
	m.frozenSize = 0
}

// FlushLast drains the oldest frozen table (or the current table if nothing
// is frozen) through the builder into a new SST. The engine serializes
// flushes under its exclusive lock; concurrent readers may race with the
// unlink and simply find the data in L0 instead.
func (m *MemTable) FlushLast(b *SSTBuilder, fname string, id uint64, cache *BlockCache) (*SST, error) {
	m.mu.Lock()
	var table *SkipList
	if len(m.frozen) > 0 {
		table = m.frozen[len(m.frozen)-1]
		m.frozen = m.frozen[:len(m.frozen)-1]
		m.frozenSize -= table.Size()
	} else {
		table = m.current
		m.current = NewSkipList()
	}
	m.mu.Unlock()

	entries := table.All()
	if len(entries) == 0 {
		return nil, fmt.Errorf("flushing empty memtable as sst %d", id)
	}
	for _, e := range entries {
		if err := b.Add(e.Key, e.Value); err != nil {
			return nil, err
		}
	}
	return b.Build(id, fname, cache)
}

// Iter merges every table into one ordered stream; for duplicated keys the
// newest table wins.
func (m *MemTable) Iter() Iterator {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var items []SearchItem
	for _, e := range m.current.All() {
		items = append(items, SearchItem{Key: e.Key, Value: e.Value, Idx: 0})
	}
	for i, t := range m.frozen {
		for _, e := range t.All() {
			items = append(items, SearchItem{Key: e.Key, Value: e.Value, Idx: i + 1})
		}
	}
	return NewHeapIterator(items)
}

// RangeMonotone merges the predicate ranges of every table, newest table
// winning on duplicate keys. Reports false when no table matched.
func (m *MemTable) RangeMonotone(pred MonotonePredicate) (Iterator, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var items []SearchItem
	if entries, ok := m.current.RangeMonotone(pred); ok {
		for _, e := range entries {
			items = append(items, SearchItem{Key: e.Key, Value: e.Value, Idx: 0})
		}
	}
	for i, t := range m.frozen {
		if entries, ok := t.RangeMonotone(pred); ok {
			for _, e := range entries {
				items = append(items, SearchItem{Key: e.Key, Value: e.Value, Idx: i + 1})
			}
		}
	}
	if len(items) == 0 {
		return nil, false
	}
	return NewHeapIterator(items), true
}
