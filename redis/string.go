package redis

import "strconv"

// Set stores a raw string value and drops any expiry the key carried.
func (s *Store) Set(key, value string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Put(key, value); err != nil {
		return errReply("%s", err)
	}
	if _, ok, _ := s.db.Get(expireKey(key)); ok {
		s.db.Remove(expireKey(key))
	}
	return replyOK
}

// Get returns the value unless the key has expired, in which case the key
// and its expire record are removed and nil is returned.
func (s *Store) Get(key string) string {
	s.mu.RLock()
	v, ok, err := s.db.Get(key)
	if err != nil {
		s.mu.RUnlock()
		return errReply("%s", err)
	}
	_, eok, _ := s.db.Get(expireKey(key))
	due := eok && s.expireDue(key)
	strayExpire := !ok && eok
	if !due && !strayExpire {
		s.mu.RUnlock()
		if !ok {
			return replyNil
		}
		return bulkReply(v)
	}
	s.mu.RUnlock()

	// Expiry or a stray expire record was observed; upgrade and re-read,
	// since another writer may have raced in between.
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok, err = s.db.Get(key)
	if err != nil {
		return errReply("%s", err)
	}
	if s.expireDue(key) {
		s.db.Remove(key)
		s.db.Remove(expireKey(key))
		return replyNil
	}
	if !ok {
		if _, eok, _ := s.db.Get(expireKey(key)); eok {
			s.db.Remove(expireKey(key))
		}
		return replyNil
	}
	return bulkReply(v)
}

// Del removes each key. Hash directories drop their field records and
// sorted-set directories drop every encoded member record; the expire
// record always goes. Returns the number of keys that existed.
func (s *Store) Del(keys []string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := int64(0)
	for _, key := range keys {
		v, ok, err := s.db.Get(key)
		if err != nil {
			return errReply("%s", err)
		}
		if ok {
			if isHashValue(v) {
				for _, f := range fieldsFromHashValue(v) {
					s.db.Remove(fieldKey(key, f))
				}
			} else if isZSetValue(v) {
				s.removeZSetRecords(key)
			}
			s.db.Remove(key)
			count++
		}
		if _, eok, _ := s.db.Get(expireKey(key)); eok {
			s.db.Remove(expireKey(key))
		}
	}
	return intReply(count)
}

func (s *Store) incrBy(key string, delta int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	v, ok, err := s.db.Get(key)
	if err != nil {
		return errReply("%s", err)
	}
	if ok {
		n, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			return errReply("value is not an integer or out of range")
		}
	}
	n += delta
	if err := s.db.Put(key, strconv.FormatInt(n, 10)); err != nil {
		return errReply("%s", err)
	}
	return intReply(n)
}

// Incr atomically adds one to the integer stored at key, treating a missing
// key as zero.
func (s *Store) Incr(key string) string {
	return s.incrBy(key, 1)
}

// Decr atomically subtracts one from the integer stored at key.
func (s *Store) Decr(key string) string {
	return s.incrBy(key, -1)
}

// Expire sets the key's expiry to now plus the given number of seconds.
func (s *Store) Expire(key, seconds string) string {
	secs, err := strconv.ParseInt(seconds, 10, 64)
	if err != nil {
		return errReply("value is not an integer or out of range")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	at := s.nowUnix() + secs
	if err := s.db.Put(expireKey(key), strconv.FormatInt(at, 10)); err != nil {
		return errReply("%s", err)
	}
	return intReply(1)
}

// TTL reports the remaining lifetime: -2 for a missing or expired key, -1
// for a key with no expiry. TTL itself never deletes expired data; cleanup
// is deferred to the next read or write of the key.
func (s *Store) TTL(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok, err := s.db.Get(key)
	if err != nil {
		return errReply("%s", err)
	}
	if !ok {
		return intReply(-2)
	}
	ev, eok, _ := s.db.Get(expireKey(key))
	if !eok {
		return intReply(-1)
	}
	at, perr := strconv.ParseInt(ev, 10, 64)
	if perr != nil {
		return intReply(-1)
	}
	now := s.nowUnix()
	if at < now {
		return intReply(-2)
	}
	return intReply(at - now)
}
