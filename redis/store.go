package redis

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tidekv/tidekv/lsm"
)

// Store projects Redis-style data structures onto the ordered key-value
// engine.
//
// All commands coordinate through one process-wide reader/writer lock,
// separate from the engine's internal lock. Lazy expiry starts under the
// shared lock; when cleanup is needed the shared lock is dropped and the
// exclusive lock taken, and because another writer may have run in between,
// every upgrading path re-reads the state it depends on before acting.
type Store struct {
	mu sync.RWMutex
	db *lsm.Engine

	// now is the clock used for TTL decisions; tests substitute it.
	now func() time.Time
}

// NewStore wraps an engine.
func NewStore(db *lsm.Engine) *Store {
	return &Store{db: db, now: time.Now}
}

// Execute dispatches one parsed command and returns its framed RESP reply.
// Argument errors come back as -ERR; missing data is nil or zero, never an
// error.
func (s *Store) Execute(args []string) string {
	if len(args) == 0 {
		return errReply("empty command")
	}
	cmd := strings.ToUpper(args[0])
	switch cmd {
	case "PING":
		return replyPong
	case "SET":
		if len(args) != 3 {
			return wrongArgsReply(cmd)
		}
		return s.Set(args[1], args[2])
	case "GET":
		if len(args) != 2 {
			return wrongArgsReply(cmd)
		}
		return s.Get(args[1])
	case "DEL":
		if len(args) < 2 {
			return wrongArgsReply(cmd)
		}
		return s.Del(args[1:])
	case "INCR":
		if len(args) != 2 {
			return wrongArgsReply(cmd)
		}
		return s.Incr(args[1])
	case "DECR":
		if len(args) != 2 {
			return wrongArgsReply(cmd)
		}
		return s.Decr(args[1])
	case "EXPIRE":
		if len(args) != 3 {
			return wrongArgsReply(cmd)
		}
		return s.Expire(args[1], args[2])
	case "TTL":
		if len(args) != 2 {
			return wrongArgsReply(cmd)
		}
		return s.TTL(args[1])
	case "HSET":
		if len(args) != 4 {
			return wrongArgsReply(cmd)
		}
		return s.HSet(args[1], args[2], args[3])
	case "HGET":
		if len(args) != 3 {
			return wrongArgsReply(cmd)
		}
		return s.HGet(args[1], args[2])
	case "HDEL":
		if len(args) != 3 {
			return wrongArgsReply(cmd)
		}
		return s.HDel(args[1], args[2])
	case "HKEYS":
		if len(args) != 2 {
			return wrongArgsReply(cmd)
		}
		return s.HKeys(args[1])
	case "LPUSH":
		if len(args) != 3 {
			return wrongArgsReply(cmd)
		}
		return s.LPush(args[1], args[2])
	case "RPUSH":
		if len(args) != 3 {
			return wrongArgsReply(cmd)
		}
		return s.RPush(args[1], args[2])
	case "LPOP":
		if len(args) != 2 {
			return wrongArgsReply(cmd)
		}
		return s.LPop(args[1])
	case "RPOP":
		if len(args) != 2 {
			return wrongArgsReply(cmd)
		}
		return s.RPop(args[1])
	case "LLEN":
		if len(args) != 2 {
			return wrongArgsReply(cmd)
		}
		return s.LLen(args[1])
	case "LRANGE":
		if len(args) != 4 {
			return wrongArgsReply(cmd)
		}
		start, err1 := strconv.Atoi(args[2])
		stop, err2 := strconv.Atoi(args[3])
		if err1 != nil || err2 != nil {
			return errReply("value is not an integer or out of range")
		}
		return s.LRange(args[1], start, stop)
	case "ZADD":
		if len(args) < 4 || len(args)%2 != 0 {
			return wrongArgsReply(cmd)
		}
		return s.ZAdd(args[1], args[2:])
	case "ZREM":
		if len(args) < 3 {
			return wrongArgsReply(cmd)
		}
		return s.ZRem(args[1], args[2:])
	case "ZRANGE":
		if len(args) != 4 {
			return wrongArgsReply(cmd)
		}
		start, err1 := strconv.Atoi(args[2])
		stop, err2 := strconv.Atoi(args[3])
		if err1 != nil || err2 != nil {
			return errReply("value is not an integer or out of range")
		}
		return s.ZRange(args[1], start, stop)
	case "ZCARD":
		if len(args) != 2 {
			return wrongArgsReply(cmd)
		}
		return s.ZCard(args[1])
	case "ZSCORE":
		if len(args) != 3 {
			return wrongArgsReply(cmd)
		}
		return s.ZScore(args[1], args[2])
	case "ZINCRBY":
		if len(args) != 4 {
			return wrongArgsReply(cmd)
		}
		return s.ZIncrBy(args[1], args[2], args[3])
	case "ZRANK":
		if len(args) != 3 {
			return wrongArgsReply(cmd)
		}
		return s.ZRank(args[1], args[2])
	case "FLUSHALL":
		return s.FlushAll()
	case "CLEAR":
		return s.Clear()
	default:
		return errReply("unknown command '%s'", args[0])
	}
}

// FlushAll forces every buffered write down to SST files.
func (s *Store) FlushAll() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.FlushAll(); err != nil {
		return errReply("%s", err)
	}
	return replyOK
}

// Clear wipes the whole store.
func (s *Store) Clear() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Clear(); err != nil {
		return errReply("%s", err)
	}
	return replyOK
}

func (s *Store) nowUnix() int64 {
	return s.now().Unix()
}

// expiredVal reports whether an EXPIRE_ record's value lies in the past.
func (s *Store) expiredVal(v string) bool {
	at, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return false
	}
	return at < s.nowUnix()
}

// expireDue checks, under whatever lock the caller holds, whether key has an
// expire record that is due.
func (s *Store) expireDue(key string) bool {
	ev, ok, err := s.db.Get(expireKey(key))
	return err == nil && ok && s.expiredVal(ev)
}

// cleanExpired runs the lazy-expiry protocol for key: peek under the shared
// lock, and when cleanup is due upgrade to the exclusive lock. The upgrade
// is not atomic, so the expiry is re-verified after reacquiring before
// removeFn deletes the structure's records (called with the exclusive lock
// held). Returns whether the structure was expired and cleaned. No lock is
// held on return.
func (s *Store) cleanExpired(key string, removeFn func()) bool {
	s.mu.RLock()
	due := s.expireDue(key)
	s.mu.RUnlock()
	if !due {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.expireDue(key) {
		// someone else cleaned up or refreshed the TTL in the window
		return false
	}
	removeFn()
	s.db.Remove(expireKey(key))
	return true
}
