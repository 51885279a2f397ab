// Package lsm implements a log-structured merge-tree storage engine.
//
// Writes land in a skip-list memtable; full tables freeze and flush into
// immutable sorted-string tables (SSTs) organized in leveled tiers. L0
// files may overlap and are consulted newest first; deeper levels hold
// disjoint key ranges found by binary search. A level that accumulates too
// many files is folded into the next one by streaming a merged iterator
// through new builders.
//
// Deletion is a tombstone: a record with an empty value. Tombstones mask
// older values at every layer and are preserved through compaction, so the
// empty string cannot be stored as live data.
package lsm
