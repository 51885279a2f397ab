package lsm

// SST file format
//
// blocks:  entry* per block, each entry a length-prefixed key and value
// index:   per block: firstKey, lastKey, offset uint64, length uint32
// footer:  indexOffset uint64, indexLength uint32, magic uint32
//
// The index is small and kept in memory for every open SST; block reads go
// through the shared BlockCache.

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/tidekv/tidekv/bin"
	"github.com/tidekv/tidekv/fs"
)

const sstMagic = 0x54494445 // "TIDE"

const footerSize = 8 + 4 + 4

type blockMeta struct {
	first  string
	last   string
	offset uint64
	length uint32
}

// SSTBuilder accumulates entries in strictly ascending key order and writes
// them out as one SST file.
type SSTBuilder struct {
	fsys      fs.Filesys
	blockSize int

	data     bytes.Buffer
	blocks   []blockMeta
	blockBuf bytes.Buffer
	blockEnc *bin.Encoder

	curFirst string
	lastKey  string
	count    int
}

// NewSSTBuilder creates a builder targeting blocks of roughly blockSize
// bytes.
func NewSSTBuilder(fsys fs.Filesys, blockSize int) *SSTBuilder {
	b := &SSTBuilder{fsys: fsys, blockSize: blockSize}
	b.blockEnc = bin.NewEncoder(&b.blockBuf)
	return b
}

// Add appends an entry. Keys must arrive in strictly ascending order.
func (b *SSTBuilder) Add(key, value string) error {
	if b.count > 0 && key <= b.lastKey {
		return fmt.Errorf("%w: %q after %q", ErrOutOfOrder, key, b.lastKey)
	}
	if b.blockBuf.Len() == 0 {
		b.curFirst = key
	}
	b.blockEnc.String(key)
	b.blockEnc.String(value)
	b.lastKey = key
	b.count++
	if b.blockBuf.Len() >= b.blockSize {
		b.finishBlock()
	}
	return nil
}

func (b *SSTBuilder) finishBlock() {
	if b.blockBuf.Len() == 0 {
		return
	}
	b.blocks = append(b.blocks, blockMeta{
		first:  b.curFirst,
		last:   b.lastKey,
		offset: uint64(b.data.Len()),
		length: uint32(b.blockBuf.Len()),
	})
	b.data.Write(b.blockBuf.Bytes())
	b.blockBuf.Reset()
}

// EstimatedSize is the number of entry bytes buffered so far; callers use it
// to decide when to split compaction output into a new file.
func (b *SSTBuilder) EstimatedSize() int {
	return b.data.Len() + b.blockBuf.Len()
}

// Empty reports whether no entries were added.
func (b *SSTBuilder) Empty() bool {
	return b.count == 0
}

// Build writes the file and returns an open reader for it.
func (b *SSTBuilder) Build(id uint64, fname string, cache *BlockCache) (*SST, error) {
	b.finishBlock()
	if len(b.blocks) == 0 {
		return nil, fmt.Errorf("building SST %d with no entries", id)
	}

	indexOffset := uint64(b.data.Len())
	enc := bin.NewEncoder(&b.data)
	for _, m := range b.blocks {
		enc.String(m.first)
		enc.String(m.last)
		enc.Uint64(m.offset)
		enc.Uint32(m.length)
	}
	indexLength := uint64(b.data.Len()) - indexOffset
	enc.Uint64(indexOffset)
	enc.Uint32(uint32(indexLength))
	enc.Uint32(sstMagic)
	if err := enc.Err(); err != nil {
		return nil, fmt.Errorf("encoding SST %d: %w", id, err)
	}

	f, err := b.fsys.Create(fname)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", fname, err)
	}
	if _, err := f.Write(b.data.Bytes()); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing %s: %w", fname, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return nil, fmt.Errorf("syncing %s: %w", fname, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("closing %s: %w", fname, err)
	}

	rf, err := b.fsys.Open(fname)
	if err != nil {
		return nil, fmt.Errorf("reopening %s: %w", fname, err)
	}
	return &SST{
		id:    id,
		fname: fname,
		fsys:  b.fsys,
		f:     rf,
		cache: cache,
		index: b.blocks,
		first: b.blocks[0].first,
		last:  b.blocks[len(b.blocks)-1].last,
	}, nil
}

// SST is an open, immutable sorted-string table.
type SST struct {
	id    uint64
	fname string
	fsys  fs.Filesys
	f     fs.ReadFile
	cache *BlockCache
	index []blockMeta
	first string
	last  string
}

// OpenSST opens an existing SST file and parses its index.
func OpenSST(fsys fs.Filesys, fname string, id uint64, cache *BlockCache) (*SST, error) {
	f, err := fsys.Open(fname)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", fname, err)
	}
	size := f.Size()
	if size < footerSize {
		f.Close()
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrCorruptSST, fname, size)
	}
	footer, err := f.ReadAt(size-footerSize, footerSize)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("reading footer of %s: %w", fname, err)
	}
	fd := bin.NewDecoder(footer)
	indexOffset := fd.Uint64()
	indexLength := fd.Uint32()
	magic := fd.Uint32()
	if magic != sstMagic || int(indexOffset)+int(indexLength) > size-footerSize {
		f.Close()
		return nil, fmt.Errorf("%w: %s has bad footer", ErrCorruptSST, fname)
	}

	indexData, err := f.ReadAt(int(indexOffset), int(indexLength))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("reading index of %s: %w", fname, err)
	}
	d := bin.NewDecoder(indexData)
	var index []blockMeta
	for d.RemainingBytes() > 0 && d.Err() == nil {
		index = append(index, blockMeta{
			first:  d.String(),
			last:   d.String(),
			offset: d.Uint64(),
			length: d.Uint32(),
		})
	}
	if d.Err() != nil || len(index) == 0 {
		f.Close()
		return nil, fmt.Errorf("%w: %s has bad index", ErrCorruptSST, fname)
	}

	return &SST{
		id:    id,
		fname: fname,
		fsys:  fsys,
		f:     f,
		cache: cache,
		index: index,
		first: index[0].first,
		last:  index[len(index)-1].last,
	}, nil
}

// ID returns the sst id.
func (s *SST) ID() uint64 { return s.id }

// FirstKey returns the smallest key in the file.
func (s *SST) FirstKey() string { return s.first }

// LastKey returns the largest key in the file.
func (s *SST) LastKey() string { return s.last }

func (s *SST) readBlock(i int) ([]Entry, error) {
	key := blockKey{sstID: s.id, block: i}
	if s.cache != nil {
		if entries, ok := s.cache.get(key); ok {
			return entries, nil
		}
	}
	m := s.index[i]
	data, err := s.f.ReadAt(int(m.offset), int(m.length))
	if err != nil {
		return nil, fmt.Errorf("reading block %d of %s: %w", i, s.fname, err)
	}
	d := bin.NewDecoder(data)
	var entries []Entry
	for d.RemainingBytes() > 0 && d.Err() == nil {
		k := d.String()
		v := d.String()
		entries = append(entries, Entry{Key: k, Value: v})
	}
	if d.Err() != nil {
		return nil, fmt.Errorf("%w: block %d of %s", ErrCorruptSST, i, s.fname)
	}
	if s.cache != nil {
		s.cache.put(key, entries)
	}
	return entries, nil
}

// Seek returns an iterator positioned at the first entry with key >= target;
// the iterator is exhausted when no such entry exists.
func (s *SST) Seek(target string) (*SSTIterator, error) {
	blockIdx := sort.Search(len(s.index), func(i int) bool {
		return s.index[i].last >= target
	})
	if blockIdx == len(s.index) {
		return &SSTIterator{sst: s, blockIdx: blockIdx}, nil
	}
	entries, err := s.readBlock(blockIdx)
	if err != nil {
		return nil, err
	}
	pos := sort.Search(len(entries), func(i int) bool {
		return entries[i].Key >= target
	})
	return &SSTIterator{sst: s, blockIdx: blockIdx, entries: entries, pos: pos}, nil
}

// Get looks up a single key.
func (s *SST) Get(key string) (string, bool, error) {
	if key < s.first || key > s.last {
		return "", false, nil
	}
	it, err := s.Seek(key)
	if err != nil {
		return "", false, err
	}
	if it.Valid() && it.Key() == key {
		return it.Value(), true, nil
	}
	return "", false, nil
}

// Iter returns an iterator over the whole file.
func (s *SST) Iter() *SSTIterator {
	it := &SSTIterator{sst: s, blockIdx: -1}
	it.nextBlock()
	return it
}

// RangeMonotone collects the contiguous run of entries pred classifies as
// zero. Blocks entirely below the range are skipped via the index.
func (s *SST) RangeMonotone(pred MonotonePredicate) ([]Entry, error) {
	blockIdx := sort.Search(len(s.index), func(i int) bool {
		return pred(s.index[i].last) >= 0
	})
	var matches []Entry
	for ; blockIdx < len(s.index); blockIdx++ {
		if pred(s.index[blockIdx].first) > 0 {
			break
		}
		entries, err := s.readBlock(blockIdx)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			c := pred(e.Key)
			if c < 0 {
				continue
			}
			if c > 0 {
				return matches, nil
			}
			matches = append(matches, e)
		}
	}
	return matches, nil
}

// Remove closes the SST and deletes its file. Iterators over the SST read
// through the same handle, so they cannot load uncached blocks afterwards;
// the engine retires SSTs only under its exclusive lock, while no reader is
// iterating over them.
func (s *SST) Remove() error {
	if err := s.f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", s.fname, err)
	}
	if err := s.fsys.Delete(s.fname); err != nil {
		return fmt.Errorf("deleting %s: %w", s.fname, err)
	}
	return nil
}

// Close releases the file handle without deleting the file.
func (s *SST) Close() error {
	return s.f.Close()
}

// SSTIterator scans one SST in ascending key order, loading blocks through
// the cache as it goes. An I/O failure ends the iteration and is reported
// by Err.
type SSTIterator struct {
	sst      *SST
	blockIdx int
	entries  []Entry
	pos      int
	err      error
}

func (it *SSTIterator) nextBlock() {
	it.blockIdx++
	it.pos = 0
	if it.blockIdx >= len(it.sst.index) {
		it.entries = nil
		return
	}
	entries, err := it.sst.readBlock(it.blockIdx)
	if err != nil {
		it.err = err
		it.entries = nil
		return
	}
	it.entries = entries
}

func (it *SSTIterator) Valid() bool {
	return it.err == nil && it.pos < len(it.entries)
}

func (it *SSTIterator) Key() string   { return it.entries[it.pos].Key }
func (it *SSTIterator) Value() string { return it.entries[it.pos].Value }

func (it *SSTIterator) Next() {
	it.pos++
	if it.pos >= len(it.entries) {
		it.nextBlock()
	}
}

// Err reports an I/O error that ended the iteration early.
func (it *SSTIterator) Err() error { return it.err }
