package redis

import (
	"strconv"

	"github.com/tidekv/tidekv/lsm"
)

// Sorted sets store two records per member (a SCORE entry ordered by the
// zero-padded score, and an ELEM entry for point lookup) plus a directory
// marker at the user key. Score-ordered scans are prefix scans over the
// SCORE entries.

// removeZSetRecords deletes every record under the sorted set's prefix.
// Callers hold the exclusive lock.
func (s *Store) removeZSetRecords(key string) {
	it, ok, err := s.db.ScanMonotone(lsm.PrefixPredicate(zsetPrefix(key)))
	if err != nil || !ok {
		return
	}
	var stale []string
	for ; it.Valid(); it.Next() {
		if it.Value() == "" {
			continue
		}
		stale = append(stale, it.Key())
	}
	s.db.RemoveBatch(stale)
}

// cleanExpiredZSet drops the directory and every member record once the
// set's TTL is due.
func (s *Store) cleanExpiredZSet(key string) bool {
	return s.cleanExpired(key, func() {
		s.db.Remove(key)
		s.removeZSetRecords(key)
	})
}

func parseScore(v string) (int64, bool) {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// ZAdd inserts or rescores (score, member) pairs and returns how many
// members are new. A member re-added with its current score is a no-op.
func (s *Store) ZAdd(key string, pairs []string) string {
	type member struct {
		score int64
		elem  string
	}
	members := make([]member, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		score, ok := parseScore(pairs[i])
		if !ok {
			return errReply("value is not a valid score")
		}
		members = append(members, member{score, pairs[i+1]})
	}

	s.cleanExpiredZSet(key)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok, _ := s.db.Get(key); !ok {
		if err := s.db.Put(key, zsetPrefix(key)); err != nil {
			return errReply("%s", err)
		}
	}
	added := int64(0)
	for _, m := range members {
		scoreStr := strconv.FormatInt(m.score, 10)
		old, ok, err := s.db.Get(zsetElemKey(key, m.elem))
		if err != nil {
			return errReply("%s", err)
		}
		if ok {
			if old == scoreStr {
				continue
			}
			if oldScore, pok := parseScore(old); pok {
				s.db.Remove(zsetScoreKey(key, oldScore))
			}
		} else {
			added++
		}
		if err := s.db.Put(zsetScoreKey(key, m.score), m.elem); err != nil {
			return errReply("%s", err)
		}
		if err := s.db.Put(zsetElemKey(key, m.elem), scoreStr); err != nil {
			return errReply("%s", err)
		}
	}
	return intReply(added)
}

// ZRem deletes members and returns how many existed.
func (s *Store) ZRem(key string, members []string) string {
	if s.cleanExpiredZSet(key) {
		return intReply(0)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := int64(0)
	for _, m := range members {
		v, ok, err := s.db.Get(zsetElemKey(key, m))
		if err != nil {
			return errReply("%s", err)
		}
		if !ok {
			continue
		}
		if score, pok := parseScore(v); pok {
			s.db.Remove(zsetScoreKey(key, score))
		}
		s.db.Remove(zsetElemKey(key, m))
		removed++
	}
	return intReply(removed)
}

// scoreOrdered collects the members of key in ascending score order.
// Callers hold at least the shared lock.
func (s *Store) scoreOrdered(key string) ([]string, error) {
	it, ok, err := s.db.ScanMonotone(lsm.PrefixPredicate(zsetScorePrefix(key)))
	if err != nil || !ok {
		return nil, err
	}
	var members []string
	for ; it.Valid(); it.Next() {
		if it.Value() == "" {
			continue
		}
		members = append(members, it.Value())
	}
	return members, nil
}

// ZRange returns members between start and stop in score order, with the
// same negative-index and clamping rules as LRANGE.
func (s *Store) ZRange(key string, start, stop int) string {
	if s.cleanExpiredZSet(key) {
		return arrayReply(nil)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	members, err := s.scoreOrdered(key)
	if err != nil {
		return errReply("%s", err)
	}
	lo, hi, ok := clampRange(start, stop, len(members))
	if !ok {
		return arrayReply(nil)
	}
	return arrayReply(members[lo : hi+1])
}

// ZCard counts the set's members.
func (s *Store) ZCard(key string) string {
	if s.cleanExpiredZSet(key) {
		return intReply(0)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	members, err := s.scoreOrdered(key)
	if err != nil {
		return errReply("%s", err)
	}
	return intReply(int64(len(members)))
}

// ZScore returns the member's score, or nil.
func (s *Store) ZScore(key, member string) string {
	if s.cleanExpiredZSet(key) {
		return replyNil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok, err := s.db.Get(zsetElemKey(key, member))
	if err != nil {
		return errReply("%s", err)
	}
	if !ok {
		return replyNil
	}
	return bulkReply(v)
}

// ZIncrBy adds incr to the member's score, creating it at incr when absent.
// Scores stay non-negative integers.
func (s *Store) ZIncrBy(key, incr, member string) string {
	delta, err := strconv.ParseInt(incr, 10, 64)
	if err != nil {
		return errReply("value is not an integer or out of range")
	}

	s.cleanExpiredZSet(key)

	s.mu.Lock()
	defer s.mu.Unlock()
	var score int64
	old, ok, gerr := s.db.Get(zsetElemKey(key, member))
	if gerr != nil {
		return errReply("%s", gerr)
	}
	if ok {
		oldScore, pok := parseScore(old)
		if !pok {
			return errReply("value is not a valid score")
		}
		score = oldScore
	}
	if score+delta < 0 {
		return errReply("resulting score is negative")
	}
	if ok {
		s.db.Remove(zsetScoreKey(key, score))
	}
	score += delta
	if _, dok, _ := s.db.Get(key); !dok {
		if err := s.db.Put(key, zsetPrefix(key)); err != nil {
			return errReply("%s", err)
		}
	}
	if err := s.db.Put(zsetScoreKey(key, score), member); err != nil {
		return errReply("%s", err)
	}
	if err := s.db.Put(zsetElemKey(key, member), strconv.FormatInt(score, 10)); err != nil {
		return errReply("%s", err)
	}
	return intReply(score)
}

// ZRank reports the member's zero-based position in score order, as a nil
// bulk string when the member is absent.
func (s *Store) ZRank(key, member string) string {
	if s.cleanExpiredZSet(key) {
		return replyNil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok, err := s.db.Get(zsetElemKey(key, member))
	if err != nil {
		return errReply("%s", err)
	}
	if !ok {
		return replyNil
	}
	score, pok := parseScore(v)
	if !pok {
		return replyNil
	}
	target := zsetScoreKey(key, score)

	it, found, err := s.db.ScanMonotone(lsm.PrefixPredicate(zsetScorePrefix(key)))
	if err != nil {
		return errReply("%s", err)
	}
	if !found {
		return replyNil
	}
	rank := int64(0)
	for ; it.Valid(); it.Next() {
		if it.Value() == "" {
			continue
		}
		if it.Key() == target {
			return intReply(rank)
		}
		rank++
	}
	return replyNil
}
