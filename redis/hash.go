package redis

// cleanExpiredHash removes every field record and the directory once the
// hash's TTL is due. Runs the shared-then-exclusive expiry protocol.
func (s *Store) cleanExpiredHash(key string) bool {
	return s.cleanExpired(key, func() {
		v, ok, _ := s.db.Get(key)
		if !ok {
			return
		}
		for _, f := range fieldsFromHashValue(v) {
			s.db.Remove(fieldKey(key, f))
		}
		s.db.Remove(key)
	})
}

// HSet writes one field and registers it in the directory record.
func (s *Store) HSet(key, field, value string) string {
	s.cleanExpiredHash(key)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Put(fieldKey(key, field), value); err != nil {
		return errReply("%s", err)
	}
	dir, _, _ := s.db.Get(key)
	fields := fieldsFromHashValue(dir)
	known := false
	for _, f := range fields {
		if f == field {
			known = true
			break
		}
	}
	if !known {
		fields = append(fields, field)
		if err := s.db.Put(key, hashValueFromFields(fields)); err != nil {
			return errReply("%s", err)
		}
	}
	return replyOK
}

// HGet returns a single field value, or nil.
func (s *Store) HGet(key, field string) string {
	if s.cleanExpiredHash(key) {
		return replyNil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok, err := s.db.Get(fieldKey(key, field))
	if err != nil {
		return errReply("%s", err)
	}
	if !ok {
		return replyNil
	}
	return bulkReply(v)
}

// HDel removes a field and drops it from the directory; the directory
// itself goes once the last field is deleted.
func (s *Store) HDel(key, field string) string {
	if s.cleanExpiredHash(key) {
		return intReply(0)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	count := int64(0)
	if _, ok, _ := s.db.Get(fieldKey(key, field)); ok {
		s.db.Remove(fieldKey(key, field))
		count++
	}
	dir, _, _ := s.db.Get(key)
	fields := fieldsFromHashValue(dir)
	for i, f := range fields {
		if f == field {
			fields = append(fields[:i], fields[i+1:]...)
			if len(fields) == 0 {
				s.db.Remove(key)
			} else {
				if err := s.db.Put(key, hashValueFromFields(fields)); err != nil {
					return errReply("%s", err)
				}
			}
			break
		}
	}
	return intReply(count)
}

// HKeys lists the hash's fields from the directory record.
func (s *Store) HKeys(key string) string {
	if s.cleanExpiredHash(key) {
		return arrayReply(nil)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	dir, _, err := s.db.Get(key)
	if err != nil {
		return errReply("%s", err)
	}
	return arrayReply(fieldsFromHashValue(dir))
}
