package redis

// Lists store their elements in one record, joined by the list separator.

// cleanExpiredList drops the list record once its TTL is due.
func (s *Store) cleanExpiredList(key string) bool {
	return s.cleanExpired(key, func() {
		s.db.Remove(key)
	})
}

func (s *Store) push(key, value string, front bool) string {
	s.cleanExpiredList(key)

	s.mu.Lock()
	defer s.mu.Unlock()
	v, _, err := s.db.Get(key)
	if err != nil {
		return errReply("%s", err)
	}
	elems := splitList(v)
	if front {
		elems = append([]string{value}, elems...)
	} else {
		elems = append(elems, value)
	}
	if err := s.db.Put(key, joinList(elems)); err != nil {
		return errReply("%s", err)
	}
	return intReply(int64(len(elems)))
}

// LPush prepends an element and returns the new length.
func (s *Store) LPush(key, value string) string {
	return s.push(key, value, true)
}

// RPush appends an element and returns the new length.
func (s *Store) RPush(key, value string) string {
	return s.push(key, value, false)
}

func (s *Store) pop(key string, front bool) string {
	if s.cleanExpiredList(key) {
		return replyNil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok, err := s.db.Get(key)
	if err != nil {
		return errReply("%s", err)
	}
	if !ok {
		return replyNil
	}
	elems := splitList(v)
	if len(elems) == 0 {
		return replyNil
	}
	var value string
	if front {
		value, elems = elems[0], elems[1:]
	} else {
		value, elems = elems[len(elems)-1], elems[:len(elems)-1]
	}
	if len(elems) == 0 {
		s.db.Remove(key)
	} else {
		if err := s.db.Put(key, joinList(elems)); err != nil {
			return errReply("%s", err)
		}
	}
	return bulkReply(value)
}

// LPop removes and returns the head element, deleting the key once empty.
func (s *Store) LPop(key string) string {
	return s.pop(key, true)
}

// RPop removes and returns the tail element, deleting the key once empty.
func (s *Store) RPop(key string) string {
	return s.pop(key, false)
}

// LLen returns the element count.
func (s *Store) LLen(key string) string {
	if s.cleanExpiredList(key) {
		return intReply(0)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok, err := s.db.Get(key)
	if err != nil {
		return errReply("%s", err)
	}
	if !ok {
		return intReply(0)
	}
	return intReply(int64(len(splitList(v))))
}

// clampRange resolves negative indices against length and clamps both ends.
// ok is false when the resolved window is empty.
func clampRange(start, stop, length int) (int, int, bool) {
	if start < 0 {
		start += length
	}
	if stop < 0 {
		stop += length
	}
	if start < 0 {
		start = 0
	}
	if stop >= length {
		stop = length - 1
	}
	if start > stop || length == 0 {
		return 0, 0, false
	}
	return start, stop, true
}

// LRange returns the elements between start and stop inclusive; negative
// indices count from the tail.
func (s *Store) LRange(key string, start, stop int) string {
	if s.cleanExpiredList(key) {
		return arrayReply(nil)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok, err := s.db.Get(key)
	if err != nil {
		return errReply("%s", err)
	}
	if !ok {
		return arrayReply(nil)
	}
	elems := splitList(v)
	lo, hi, ok2 := clampRange(start, stop, len(elems))
	if !ok2 {
		return arrayReply(nil)
	}
	return arrayReply(elems[lo : hi+1])
}
