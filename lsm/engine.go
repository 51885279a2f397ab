package lsm

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/tidekv/tidekv/fs"
)

// Options carries the engine's tuning constants.
type Options struct {
	// PerMemSizeLimit freezes the current skip list once it holds this many
	// bytes; it is also the target size of an L0 SST.
	PerMemSizeLimit int
	// TotalMemSizeLimit triggers a flush from the put path once the whole
	// memtable (current plus frozen) reaches it.
	TotalMemSizeLimit int
	// LevelRatio is both the L0 file-count compaction trigger and the
	// per-level size multiplier.
	LevelRatio int
	// BlockSize is the target SST block size in bytes.
	BlockSize int
	// BlockCacheCapacity is the number of decoded blocks kept in memory.
	BlockCacheCapacity int
	// BlockCacheK is the history depth of the LRU-K eviction policy.
	BlockCacheK int
	// Logger receives flush and compaction events; nil means no logging.
	Logger *zap.Logger
}

// DefaultOptions returns the stock configuration.
func DefaultOptions() Options {
	return Options{
		PerMemSizeLimit:    4 << 20,
		TotalMemSizeLimit:  16 << 20,
		LevelRatio:         4,
		BlockSize:          4 << 10,
		BlockCacheCapacity: 1024,
		BlockCacheK:        8,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.PerMemSizeLimit <= 0 {
		o.PerMemSizeLimit = def.PerMemSizeLimit
	}
	if o.TotalMemSizeLimit <= 0 {
		o.TotalMemSizeLimit = def.TotalMemSizeLimit
	}
	if o.LevelRatio <= 1 {
		o.LevelRatio = def.LevelRatio
	}
	if o.BlockSize <= 0 {
		o.BlockSize = def.BlockSize
	}
	if o.BlockCacheCapacity <= 0 {
		o.BlockCacheCapacity = def.BlockCacheCapacity
	}
	if o.BlockCacheK <= 0 {
		o.BlockCacheK = def.BlockCacheK
	}
	return o
}

// sstName formats the on-disk file name: sst_<id padded to 32 digits>.<level>.
// The padding makes lexical order match numeric order.
func sstName(id uint64, level int) string {
	return fmt.Sprintf("sst_%032d.%d", id, level)
}

// parseSSTName extracts the id and level from a file name, reporting false
// for files that do not follow the convention.
func parseSSTName(fname string) (id uint64, level int, ok bool) {
	if !strings.HasPrefix(fname, "sst_") {
		return 0, 0, false
	}
	rest := fname[len("sst_"):]
	dot := strings.IndexByte(rest, '.')
	if dot <= 0 || dot == len(rest)-1 {
		return 0, 0, false
	}
	id, err := strconv.ParseUint(rest[:dot], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	level, err = strconv.Atoi(rest[dot+1:])
	if err != nil || level < 0 {
		return 0, 0, false
	}
	return id, level, true
}

// Engine is the LSM storage engine: a memtable over leveled SST files.
//
// The internal lock guards the SST index and level map. The memtable and
// skip lists synchronize themselves, so reads probe the memtable without
// taking the engine lock, exactly mirroring the write path which only locks
// for flush and compaction.
type Engine struct {
	opts  Options
	fsys  fs.Filesys
	log   *zap.Logger
	mem   *MemTable
	cache *BlockCache

	mu        sync.RWMutex
	ssts      map[uint64]*SST
	levels    map[int][]uint64
	nextSSTID uint64
	maxLevel  int
	closed    bool
}

// Open creates an engine over fsys, cataloging any SST files left by an
// earlier run. Files that do not follow the naming convention are ignored;
// a matching file that fails to open is fatal.
func Open(fsys fs.Filesys, opts Options) (*Engine, error) {
	opts = opts.withDefaults()
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		opts:   opts,
		fsys:   fsys,
		log:    log,
		mem:    NewMemTable(opts.PerMemSizeLimit),
		cache:  NewBlockCache(opts.BlockCacheCapacity, opts.BlockCacheK),
		ssts:   make(map[uint64]*SST),
		levels: make(map[int][]uint64),
	}

	names, err := fsys.List()
	if err != nil {
		return nil, fmt.Errorf("scanning data dir: %w", err)
	}
	for _, name := range names {
		id, level, ok := parseSSTName(name)
		if !ok {
			continue
		}
		sst, err := OpenSST(fsys, name, id, e.cache)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", name, err)
		}
		e.ssts[id] = sst
		e.levels[level] = append(e.levels[level], id)
		if id >= e.nextSSTID {
			e.nextSSTID = id + 1
		}
		if level > e.maxLevel {
			e.maxLevel = level
		}
	}
	for level, ids := range e.levels {
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		if level == 0 {
			// L0 is consulted newest first; deeper levels stay in
			// ascending id order, which equals ascending first key.
			for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
				ids[i], ids[j] = ids[j], ids[i]
			}
		}
	}
	log.Info("engine opened",
		zap.Int("sst_files", len(e.ssts)),
		zap.Int("max_level", e.maxLevel))
	return e, nil
}

// Get returns the value for key, honoring tombstones at every layer.
func (e *Engine) Get(key string) (string, bool, error) {
	if v, ok := e.mem.Get(key); ok {
		if v == "" {
			return "", false, nil
		}
		return v, true, nil
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return "", false, ErrClosed
	}

	// L0 files overlap; newest first so recent writes mask older ones.
	for _, id := range e.levels[0] {
		sst := e.ssts[id]
		if key < sst.FirstKey() || key > sst.LastKey() {
			continue
		}
		v, ok, err := sst.Get(key)
		if err != nil {
			return "", false, err
		}
		if ok {
			if v == "" {
				return "", false, nil
			}
			return v, true, nil
		}
	}

	// Deeper levels hold disjoint ranges: binary search for the one
	// candidate file.
	for level := 1; level <= e.maxLevel; level++ {
		ids := e.levels[level]
		idx := sort.Search(len(ids), func(i int) bool {
			return e.ssts[ids[i]].LastKey() >= key
		})
		if idx == len(ids) {
			continue
		}
		sst := e.ssts[ids[idx]]
		if key < sst.FirstKey() {
			continue
		}
		v, ok, err := sst.Get(key)
		if err != nil {
			return "", false, err
		}
		if ok {
			if v == "" {
				return "", false, nil
			}
			return v, true, nil
		}
	}
	return "", false, nil
}

// Put writes a key-value pair, flushing when the memtable is over budget.
func (e *Engine) Put(key, value string) error {
	e.mem.Put(key, value)
	if e.mem.TotalSize() >= e.opts.TotalMemSizeLimit {
		return e.Flush()
	}
	return nil
}

// PutBatch writes several pairs, flushing at most once afterward.
func (e *Engine) PutBatch(entries []Entry) error {
	e.mem.PutBatch(entries)
	if e.mem.TotalSize() >= e.opts.TotalMemSizeLimit {
		return e.Flush()
	}
	return nil
}

// Remove deletes key by writing a tombstone.
func (e *Engine) Remove(key string) error {
	e.mem.Remove(key)
	return nil
}

// RemoveBatch deletes several keys.
func (e *Engine) RemoveBatch(keys []string) error {
	e.mem.RemoveBatch(keys)
	return nil
}

// Flush writes the oldest memtable out as a new L0 SST. A no-op when the
// memtable is empty; compacts L0 first when it is already at the ratio.
func (e *Engine) Flush() error {
	if e.mem.TotalSize() == 0 {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	return e.flushLocked()
}

func (e *Engine) flushLocked() error {
	// a concurrent flusher may have drained the memtable while this one
	// waited for the lock
	if e.mem.TotalSize() == 0 {
		return nil
	}
	if len(e.levels[0]) >= e.opts.LevelRatio {
		if err := e.fullCompact(0); err != nil {
			return err
		}
	}

	id := e.nextSSTID
	b := NewSSTBuilder(e.fsys, e.opts.BlockSize)
	sst, err := e.mem.FlushLast(b, sstName(id, 0), id, e.cache)
	if err != nil {
		return fmt.Errorf("flushing memtable: %w", err)
	}
	e.nextSSTID++
	e.ssts[id] = sst
	e.levels[0] = append([]uint64{id}, e.levels[0]...)
	e.log.Info("flushed memtable",
		zap.Uint64("sst_id", id),
		zap.Int("l0_files", len(e.levels[0])))
	return nil
}

// FlushAll loops Flush until the memtable is empty.
func (e *Engine) FlushAll() error {
	for e.mem.TotalSize() > 0 {
		if err := e.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// targetSSTSize is the split threshold for files produced at level:
// the per-memtable limit times ratio^level.
func (e *Engine) targetSSTSize(level int) int {
	size := e.opts.PerMemSizeLimit
	for i := 0; i < level; i++ {
		size *= e.opts.LevelRatio
	}
	return size
}

func (e *Engine) sstsFor(ids []uint64) []*SST {
	ssts := make([]*SST, 0, len(ids))
	for _, id := range ids {
		ssts = append(ssts, e.ssts[id])
	}
	return ssts
}

// fullCompact folds all of level src into src+1. Called with the exclusive
// lock held. If the destination is itself at the ratio it is compacted
// first, so room exists below before merging down.
func (e *Engine) fullCompact(src int) error {
	dst := src + 1
	if len(e.levels[dst]) >= e.opts.LevelRatio {
		if err := e.fullCompact(dst); err != nil {
			return err
		}
	}

	srcIDs := e.levels[src]
	dstIDs := e.levels[dst]

	var merged Iterator
	if src == 0 {
		// L0 files overlap: heap-merge them, newer ids winning ties,
		// then overlay the result on the disjoint L1 files.
		var items []SearchItem
		for _, id := range srcIDs {
			it := e.ssts[id].Iter()
			for ; it.Valid(); it.Next() {
				items = append(items, SearchItem{
					Key: it.Key(), Value: it.Value(), Idx: -int(id),
				})
			}
			if err := it.Err(); err != nil {
				return fmt.Errorf("compacting L0: %w", err)
			}
		}
		merged = NewTwoMergeIterator(
			NewHeapIterator(items),
			NewConcatIterator(e.sstsFor(dstIDs)))
	} else {
		merged = NewTwoMergeIterator(
			NewConcatIterator(e.sstsFor(srcIDs)),
			NewConcatIterator(e.sstsFor(dstIDs)))
	}

	newSSTs, err := e.buildSSTs(merged, e.targetSSTSize(dst), dst)
	if err != nil {
		// Leave the level map untouched; any files already produced
		// stay on disk until the next Clear.
		return fmt.Errorf("compacting level %d: %w", src, err)
	}

	for _, id := range srcIDs {
		e.retireSST(id)
	}
	for _, id := range dstIDs {
		e.retireSST(id)
	}
	e.levels[src] = nil

	ids := make([]uint64, 0, len(newSSTs))
	for _, sst := range newSSTs {
		e.ssts[sst.ID()] = sst
		ids = append(ids, sst.ID())
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	e.levels[dst] = ids
	if dst > e.maxLevel {
		e.maxLevel = dst
	}

	e.log.Info("compacted level",
		zap.Int("src", src),
		zap.Int("dst", dst),
		zap.Int("in_files", len(srcIDs)+len(dstIDs)),
		zap.Int("out_files", len(ids)))
	return nil
}

func (e *Engine) retireSST(id uint64) {
	sst := e.ssts[id]
	if sst == nil {
		return
	}
	if err := sst.Remove(); err != nil {
		e.log.Warn("removing retired sst", zap.Uint64("sst_id", id), zap.Error(err))
	}
	delete(e.ssts, id)
}

// buildSSTs streams the merged iterator into builders, starting a new file
// whenever the current one reaches targetSize.
func (e *Engine) buildSSTs(it Iterator, targetSize, level int) ([]*SST, error) {
	var out []*SST
	b := NewSSTBuilder(e.fsys, e.opts.BlockSize)
	for it.Valid() {
		if err := b.Add(it.Key(), it.Value()); err != nil {
			return nil, err
		}
		it.Next()
		if b.EstimatedSize() >= targetSize {
			id := e.nextSSTID
			e.nextSSTID++
			sst, err := b.Build(id, sstName(id, level), e.cache)
			if err != nil {
				return nil, err
			}
			out = append(out, sst)
			b = NewSSTBuilder(e.fsys, e.opts.BlockSize)
		}
	}
	if err := iterErr(it); err != nil {
		return nil, err
	}
	if !b.Empty() {
		id := e.nextSSTID
		e.nextSSTID++
		sst, err := b.Build(id, sstName(id, level), e.cache)
		if err != nil {
			return nil, err
		}
		out = append(out, sst)
	}
	return out, nil
}

// Scan returns an ordered iterator over the whole store: memtable over a
// heap-merge of every SST at every level, newer data masking older.
// Tombstones surface as empty values.
func (e *Engine) Scan() (Iterator, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, ErrClosed
	}
	var items []SearchItem
	for level, ids := range e.levels {
		for _, id := range ids {
			it := e.ssts[id].Iter()
			for ; it.Valid(); it.Next() {
				items = append(items, SearchItem{
					Key: it.Key(), Value: it.Value(), Idx: -int(id), Level: level,
				})
			}
			if err := it.Err(); err != nil {
				return nil, err
			}
		}
	}
	return NewTwoMergeIterator(e.mem.Iter(), NewHeapIterator(items)), nil
}

// ScanMonotone returns an ordered iterator over the contiguous key range
// that pred classifies as zero, or ok=false when nothing matches anywhere.
func (e *Engine) ScanMonotone(pred MonotonePredicate) (Iterator, bool, error) {
	memIt, memOK := e.mem.RangeMonotone(pred)

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, false, ErrClosed
	}
	var items []SearchItem
	for level, ids := range e.levels {
		for _, id := range ids {
			entries, err := e.ssts[id].RangeMonotone(pred)
			if err != nil {
				return nil, false, err
			}
			for _, en := range entries {
				items = append(items, SearchItem{
					Key: en.Key, Value: en.Value, Idx: -int(id), Level: level,
				})
			}
		}
	}
	if !memOK && len(items) == 0 {
		return nil, false, nil
	}
	if !memOK {
		memIt = NewHeapIterator(nil)
	}
	return NewTwoMergeIterator(memIt, NewHeapIterator(items)), true, nil
}

// Clear drops the memtable, the SST index and level map, and deletes every
// regular file in the data directory.
func (e *Engine) Clear() error {
	e.mem.Clear()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	for id := range e.ssts {
		e.retireSST(id)
	}
	e.levels = make(map[int][]uint64)
	e.maxLevel = 0
	return fs.DeleteAll(e.fsys)
}

// Close flushes any remaining memtable content and releases SST handles.
func (e *Engine) Close() error {
	if err := e.FlushAll(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	for _, sst := range e.ssts {
		if err := sst.Close(); err != nil {
			e.log.Warn("closing sst", zap.Uint64("sst_id", sst.ID()), zap.Error(err))
		}
	}
	return nil
}

// LevelStat describes one level of the store.
type LevelStat struct {
	Level int `json:"level"`
	Files int `json:"files"`
}

// Stats is a point-in-time snapshot of engine state.
type Stats struct {
	MemtableBytes int         `json:"memtable_bytes"`
	Levels        []LevelStat `json:"levels"`
	MaxLevel      int         `json:"max_level"`
	CachedBlocks  int         `json:"cached_blocks"`
}

// Stats snapshots the engine for monitoring.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	st := Stats{
		MemtableBytes: e.mem.TotalSize(),
		MaxLevel:      e.maxLevel,
		CachedBlocks:  e.cache.Len(),
	}
	for level := 0; level <= e.maxLevel; level++ {
		if n := len(e.levels[level]); n > 0 || level == 0 {
			st.Levels = append(st.Levels, LevelStat{Level: level, Files: n})
		}
	}
	return st
}
