package lsm

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/tidekv/tidekv/fs"
)

const missing = "<missing>"

func testOptions() Options {
	return Options{
		PerMemSizeLimit:    4096,
		TotalMemSizeLimit:  8192,
		LevelRatio:         4,
		BlockSize:          512,
		BlockCacheCapacity: 64,
		BlockCacheK:        2,
	}
}

type EngineSuite struct {
	suite.Suite
	fs fs.Filesys
	db *Engine
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.fs = fs.MemFs()
	s.db = s.open()
}

func (s *EngineSuite) open() *Engine {
	e, err := Open(s.fs, testOptions())
	s.Require().NoError(err)
	return e
}

// get folds "not found" into a marker string to keep assertions short.
func (s *EngineSuite) get(key string) string {
	v, ok, err := s.db.Get(key)
	s.Require().NoError(err)
	if !ok {
		return missing
	}
	return v
}

func (s *EngineSuite) put(key, value string) {
	s.Require().NoError(s.db.Put(key, value))
}

// scanLive collects the non-tombstone entries of a full scan.
func (s *EngineSuite) scanLive() []Entry {
	it, err := s.db.Scan()
	s.Require().NoError(err)
	var live []Entry
	for ; it.Valid(); it.Next() {
		if it.Value() == "" {
			continue
		}
		live = append(live, Entry{Key: it.Key(), Value: it.Value()})
	}
	return live
}

func (s *EngineSuite) TestPutGet() {
	s.put("k", "val")
	s.Equal("val", s.get("k"))
}

func (s *EngineSuite) TestGetMissing() {
	s.Equal(missing, s.get("k"))
}

func (s *EngineSuite) TestPutReplace() {
	s.put("k", "val")
	s.put("k", "new val")
	s.Equal("new val", s.get("k"))
}

func (s *EngineSuite) TestPutDelete() {
	s.put("k1", "val")
	s.put("k2", "val 2")
	s.Require().NoError(s.db.Remove("k1"))
	s.Equal(missing, s.get("k1"))
	s.Equal("val 2", s.get("k2"))
}

func (s *EngineSuite) TestPutBatch() {
	s.Require().NoError(s.db.PutBatch([]Entry{
		{Key: "a", Value: "1"},
		{Key: "b", Value: "2"},
	}))
	s.Equal("1", s.get("a"))
	s.Equal("2", s.get("b"))
	s.Require().NoError(s.db.RemoveBatch([]string{"a", "b"}))
	s.Equal(missing, s.get("a"))
	s.Equal(missing, s.get("b"))
}

func (s *EngineSuite) TestEmptyFlushIsNoop() {
	s.Require().NoError(s.db.Flush())
	names, err := s.fs.List()
	s.Require().NoError(err)
	s.Empty(names)
}

// Fill correctness: every key written survives a full flush, through both
// point gets and an ordered scan.
func (s *EngineSuite) TestFlushAllPersistsEverything() {
	const n = 10000
	for i := 0; i < n; i++ {
		s.put(fmt.Sprintf("key%04d", i), fmt.Sprintf("v%04d", i))
	}
	s.Require().NoError(s.db.FlushAll())

	for i := 0; i < n; i++ {
		s.Equal(fmt.Sprintf("v%04d", i), s.get(fmt.Sprintf("key%04d", i)))
	}

	live := s.scanLive()
	s.Require().Len(live, n)
	for i, e := range live {
		s.Require().Equal(fmt.Sprintf("key%04d", i), e.Key)
		s.Require().Equal(fmt.Sprintf("v%04d", i), e.Value)
	}
}

// L0 masking: newer SSTs shadow older ones, and a flushed tombstone
// shadows both.
func (s *EngineSuite) TestL0Masking() {
	s.put("k", "a")
	s.Require().NoError(s.db.Flush())
	s.Equal("a", s.get("k"))

	s.put("k", "b")
	s.Require().NoError(s.db.Flush())
	s.Equal("b", s.get("k"))

	s.Require().NoError(s.db.Remove("k"))
	s.Require().NoError(s.db.Flush())
	s.Equal(missing, s.get("k"))
}

// Compaction trigger: with ratio 4, the fifth flush folds L0 into L1.
func (s *EngineSuite) TestCompactionTriggered() {
	e, err := Open(fs.MemFs(), Options{
		PerMemSizeLimit:   1 << 20,
		TotalMemSizeLimit: 4 << 20,
		LevelRatio:        4,
		BlockSize:         512,
	})
	s.Require().NoError(err)
	s.db = e

	for round := 0; round < 5; round++ {
		for i := 0; i < 1000; i++ {
			s.put(fmt.Sprintf("key%04d", i), fmt.Sprintf("v%04d_r%d", i, round))
		}
		s.Require().NoError(s.db.Flush())
	}

	st := s.db.Stats()
	s.Require().NotEmpty(st.Levels)
	s.LessOrEqual(st.Levels[0].Files, 4, "L0 must stay under the ratio")
	s.GreaterOrEqual(st.MaxLevel, 1, "level 1 must be populated")
	l1 := 0
	for _, lvl := range st.Levels {
		if lvl.Level == 1 {
			l1 = lvl.Files
		}
	}
	s.Greater(l1, 0, "level 1 must hold files after compaction")

	for i := 0; i < 1000; i++ {
		s.Equal(fmt.Sprintf("v%04d_r4", i), s.get(fmt.Sprintf("key%04d", i)),
			"latest round must win through compaction")
	}
}

// Level invariant: files in L1 hold disjoint ascending key ranges, ordered
// by id.
func (s *EngineSuite) TestLevelRangesDisjoint() {
	for round := 0; round < 5; round++ {
		for i := 0; i < 2000; i++ {
			s.put(fmt.Sprintf("key%05d", i), fmt.Sprintf("v%d", round))
		}
		s.Require().NoError(s.db.FlushAll())
	}
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	for level := 1; level <= s.db.maxLevel; level++ {
		ids := s.db.levels[level]
		for i := 1; i < len(ids); i++ {
			s.Less(ids[i-1], ids[i], "ids ascend within level %d", level)
			prev, cur := s.db.ssts[ids[i-1]], s.db.ssts[ids[i]]
			s.Less(prev.LastKey(), cur.FirstKey(),
				"ranges must be disjoint in level %d", level)
		}
	}
}

func (s *EngineSuite) TestScanOrderedAndMasked() {
	s.put("b", "2")
	s.put("a", "1")
	s.Require().NoError(s.db.Flush())
	s.put("c", "3")
	s.put("a", "1new")
	s.Require().NoError(s.db.Remove("b"))

	live := s.scanLive()
	s.Equal([]Entry{{Key: "a", Value: "1new"}, {Key: "c", Value: "3"}}, live)
}

func (s *EngineSuite) TestScanStableAcrossFlush() {
	for i := 0; i < 500; i++ {
		s.put(fmt.Sprintf("key%03d", i), fmt.Sprintf("v%03d", i))
	}
	before := s.scanLive()
	s.Require().NoError(s.db.FlushAll())
	after := s.scanLive()
	s.Equal(before, after, "flush must not change the observable state")
}

func (s *EngineSuite) TestScanMonotonePrefix() {
	s.put("apple", "x")
	s.put("p_new", "mem")
	s.put("p_old", "v1")
	s.Require().NoError(s.db.FlushAll())
	s.put("p_old", "v2") // newer write in the memtable masks the SST
	s.put("zebra", "y")

	it, ok, err := s.db.ScanMonotone(PrefixPredicate("p_"))
	s.Require().NoError(err)
	s.Require().True(ok)
	entries := Drain(it)
	s.Equal([]Entry{{Key: "p_new", Value: "mem"}, {Key: "p_old", Value: "v2"}}, entries)

	_, ok, err = s.db.ScanMonotone(PrefixPredicate("nope_"))
	s.Require().NoError(err)
	s.False(ok)
}

func (s *EngineSuite) TestTombstoneThroughCompaction() {
	s.put("doomed", "v")
	s.Require().NoError(s.db.Flush())
	s.Require().NoError(s.db.Remove("doomed"))
	s.Require().NoError(s.db.Flush())

	// force enough flushes that the files holding "doomed" and its
	// tombstone are compacted into L1
	for round := 0; round < 6; round++ {
		s.put(fmt.Sprintf("filler%d", round), "x")
		s.Require().NoError(s.db.Flush())
	}
	s.Equal(missing, s.get("doomed"))
}

func (s *EngineSuite) TestRestart() {
	s.put("k1", "v1")
	s.Require().NoError(s.db.FlushAll())
	s.put("k2", "v2")
	s.Require().NoError(s.db.Close())

	s.db = s.open()
	s.Equal("v1", s.get("k1"))
	s.Equal("v2", s.get("k2"), "Close must flush buffered writes")

	// ids keep ascending after restart; new flushes must not collide
	s.put("k3", "v3")
	s.Require().NoError(s.db.Flush())
	s.Equal("v1", s.get("k1"))
	s.Equal("v3", s.get("k3"))
}

func (s *EngineSuite) TestRestartIgnoresUnrelatedFiles() {
	s.put("k", "v")
	s.Require().NoError(s.db.Close())

	f, err := s.fs.Create("README.txt")
	s.Require().NoError(err)
	_, err = f.Write([]byte("not an sst"))
	s.Require().NoError(err)
	s.Require().NoError(f.Close())

	s.db = s.open()
	s.Equal("v", s.get("k"))
}

func (s *EngineSuite) TestClear() {
	s.put("k", "v")
	s.Require().NoError(s.db.FlushAll())
	s.Require().NoError(s.db.Clear())

	s.Equal(missing, s.get("k"))
	names, err := s.fs.List()
	s.Require().NoError(err)
	s.Empty(names)
}

func (s *EngineSuite) TestStats() {
	s.put("k", "v")
	st := s.db.Stats()
	s.Greater(st.MemtableBytes, 0)
	s.Require().NoError(s.db.FlushAll())
	st = s.db.Stats()
	s.Equal(0, st.MemtableBytes)
	s.Equal(1, st.Levels[0].Files)
}

func TestSSTNameRoundtrip(t *testing.T) {
	name := sstName(42, 3)
	assert.Equal(t, "sst_00000000000000000000000000000042.3", name)
	id, level, ok := parseSSTName(name)
	assert.True(t, ok)
	assert.Equal(t, uint64(42), id)
	assert.Equal(t, 3, level)

	// lexical order equals numeric order thanks to the padding
	assert.Less(t, sstName(9, 0), sstName(10, 0))

	for _, bad := range []string{"README.txt", "sst_", "sst_12", "sst_x.0", "sst_12.", "sst_12.x"} {
		_, _, ok := parseSSTName(bad)
		assert.False(t, ok, bad)
	}
}

func TestTargetSSTSize(t *testing.T) {
	e := &Engine{opts: Options{PerMemSizeLimit: 1000, LevelRatio: 4}}
	assert.Equal(t, 1000, e.targetSSTSize(0))
	assert.Equal(t, 4000, e.targetSSTSize(1))
	assert.Equal(t, 16000, e.targetSSTSize(2))
}
