package lsm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidekv/tidekv/fs"
)

func TestHeapIteratorOrders(t *testing.T) {
	it := NewHeapIterator([]SearchItem{
		{Key: "c", Value: "3", Idx: 0},
		{Key: "a", Value: "1", Idx: 0},
		{Key: "b", Value: "2", Idx: 0},
	})
	entries := Drain(it)
	require.Len(t, entries, 3)
	assert.Equal(t, "a", entries[0].Key)
	assert.Equal(t, "b", entries[1].Key)
	assert.Equal(t, "c", entries[2].Key)
}

func TestHeapIteratorNewerWins(t *testing.T) {
	// smaller idx is newer; L0 callers push idx = -sstID so larger ids
	// sort first
	it := NewHeapIterator([]SearchItem{
		{Key: "k", Value: "old", Idx: -1},
		{Key: "k", Value: "new", Idx: -2},
		{Key: "other", Value: "x", Idx: -1},
	})
	entries := Drain(it)
	require.Len(t, entries, 2)
	assert.Equal(t, "new", entries[0].Value)
	assert.Equal(t, "other", entries[1].Key)
}

func TestHeapIteratorSurfacesTombstones(t *testing.T) {
	it := NewHeapIterator([]SearchItem{
		{Key: "k", Value: "", Idx: -5},
		{Key: "k", Value: "stale", Idx: -1},
	})
	entries := Drain(it)
	require.Len(t, entries, 1)
	assert.Equal(t, "", entries[0].Value, "newer tombstone masks the stale value")
}

func TestHeapIteratorEmpty(t *testing.T) {
	it := NewHeapIterator(nil)
	assert.False(t, it.Valid())
}

func TestTwoMergeIterator(t *testing.T) {
	a := newSliceIterator([]Entry{{Key: "a", Value: "A1"}, {Key: "c", Value: "C1"}})
	b := newSliceIterator([]Entry{{Key: "a", Value: "A2"}, {Key: "b", Value: "B2"}, {Key: "d", Value: "D2"}})
	it := NewTwoMergeIterator(a, b)

	entries := Drain(it)
	require.Len(t, entries, 4)
	assert.Equal(t, []Entry{
		{Key: "a", Value: "A1"},
		{Key: "b", Value: "B2"},
		{Key: "c", Value: "C1"},
		{Key: "d", Value: "D2"},
	}, entries)
}

func TestTwoMergeIteratorEmptySides(t *testing.T) {
	it := NewTwoMergeIterator(newSliceIterator(nil), newSliceIterator([]Entry{{Key: "x", Value: "1"}}))
	entries := Drain(it)
	require.Len(t, entries, 1)
	assert.Equal(t, "x", entries[0].Key)

	it = NewTwoMergeIterator(newSliceIterator(nil), newSliceIterator(nil))
	assert.False(t, it.Valid())
}

func TestConcatIterator(t *testing.T) {
	fsys := fs.MemFs()

	build := func(id uint64, keys ...string) *SST {
		b := NewSSTBuilder(fsys, 64)
		for _, k := range keys {
			require.NoError(t, b.Add(k, "v_"+k))
		}
		sst, err := b.Build(id, sstName(id, 1), nil)
		require.NoError(t, err)
		return sst
	}

	s1 := build(1, "a", "b")
	s2 := build(2, "c", "d")
	s3 := build(3, "e")
	defer s1.Close()
	defer s2.Close()
	defer s3.Close()

	it := NewConcatIterator([]*SST{s1, s2, s3})
	entries := Drain(it)
	require.NoError(t, it.Err())
	require.Len(t, entries, 5)
	assert.Equal(t, "a", entries[0].Key)
	assert.Equal(t, "e", entries[4].Key)
}

func TestConcatIteratorEmpty(t *testing.T) {
	it := NewConcatIterator(nil)
	assert.False(t, it.Valid())
}
