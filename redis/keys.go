package redis

// Key encoding for the data-structure overlay.
//
// Every rich structure maps to one or more engine records distinguished by
// fixed prefixes. The overlay does not escape user input, so user keys and
// members must avoid the reserved prefixes; this is a documented limitation
// of the encoding.

import (
	"fmt"
	"strings"
)

const (
	expirePrefix    = "EXPIRE_"
	fieldPrefix     = "FIELD_"
	hashValuePrefix = "HASH_"
	zsetKeyPrefix   = "ZSET_"
	zsetScoreInfix  = "_SCORE_"
	zsetElemInfix   = "_ELEM_"
	fieldSeparator  = ","
	listSeparator   = ","

	// scoreWidth zero-pads scores so lexicographic order over SCORE keys
	// equals numeric order over non-negative scores.
	scoreWidth = 20
)

func expireKey(key string) string {
	return expirePrefix + key
}

func fieldKey(key, field string) string {
	return fieldPrefix + key + "_" + field
}

func isHashValue(v string) bool {
	return strings.HasPrefix(v, hashValuePrefix)
}

func hashValueFromFields(fields []string) string {
	return hashValuePrefix + strings.Join(fields, fieldSeparator)
}

func fieldsFromHashValue(v string) []string {
	if !isHashValue(v) {
		return nil
	}
	list := v[len(hashValuePrefix):]
	if list == "" {
		return nil
	}
	return strings.Split(list, fieldSeparator)
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	return strings.Split(v, listSeparator)
}

func joinList(elems []string) string {
	return strings.Join(elems, listSeparator)
}

func isZSetValue(v string) bool {
	return strings.HasPrefix(v, zsetKeyPrefix)
}

// zsetPrefix covers every record of the sorted set: SCORE and ELEM entries
// both share it. It doubles as the directory record's value.
func zsetPrefix(key string) string {
	return zsetKeyPrefix + key + "_"
}

func zsetScorePrefix(key string) string {
	return zsetKeyPrefix + key + zsetScoreInfix
}

func padScore(score int64) string {
	return fmt.Sprintf("%0*d", scoreWidth, score)
}

func zsetScoreKey(key string, score int64) string {
	return zsetScorePrefix(key) + padScore(score)
}

func zsetElemKey(key, elem string) string {
	return zsetKeyPrefix + key + zsetElemInfix + elem
}
