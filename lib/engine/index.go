package engine

import (
	"github.com/google/btree"

	"github.com/jmendel/idb/lib/keypath"
)

// --------------------------------------------------------------------------
// Index Definition
// --------------------------------------------------------------------------

// IndexDef describes a secondary index of a store.
type IndexDef struct {
	Name       string // Unique within the store
	KeyPath    string // Dot-separated path resolved against record values
	Unique     bool   // Reject two records sharing an index key
	MultiEntry bool   // Fan an array value out to one entry per element
}

// --------------------------------------------------------------------------
// Index Entries
// --------------------------------------------------------------------------

// indexEntry is one (index key, primary key) pair. Entries order by index
// key first, then primary key, which makes duplicate index keys a
// contiguous run in primary-key order.
//
// pos is only ever non-zero on pivot entries used to position scans before
// (-1) or after (+1) the duplicate run of a key; it is never stored.
type indexEntry struct {
	key     keypath.Key
	primary keypath.Key
	pos     int8
}

func lessIndexEntry(a, b indexEntry) bool {
	if c := keypath.Compare(a.key, b.key); c != 0 {
		return c < 0
	}
	if a.pos != b.pos {
		return a.pos < b.pos
	}
	return keypath.Compare(a.primary, b.primary) < 0
}

// pivots for positioning scans around the duplicate run of a key
func beforeKey(k keypath.Key) indexEntry { return indexEntry{key: k, pos: -1} }
func afterKey(k keypath.Key) indexEntry  { return indexEntry{key: k, pos: 1} }

// --------------------------------------------------------------------------
// Index State
// --------------------------------------------------------------------------

// indexState is the derived ordered mapping from index key to primary keys.
// It is owned by exactly one store and kept consistent with the record
// table: every mutation updates the index before its request completes.
type indexState struct {
	def     IndexDef
	entries *btree.BTreeG[indexEntry]
}

func newIndexState(def IndexDef) *indexState {
	return &indexState{
		def:     def,
		entries: btree.NewG(btreeDegree, lessIndexEntry),
	}
}

// keysFor resolves the index keys a record value contributes.
func (ix *indexState) keysFor(value keypath.Value) []keypath.Key {
	return keypath.IndexKeys(value, ix.def.KeyPath, ix.def.MultiEntry)
}

// conflict returns the first index key of value that a unique index already
// maps to a different primary key. Always false for non-unique indices.
func (ix *indexState) conflict(value keypath.Value, primary keypath.Key) (keypath.Key, bool) {
	if !ix.def.Unique {
		return keypath.Key{}, false
	}
	for _, k := range ix.keysFor(value) {
		existing, ok := ix.firstPrimary(k)
		if ok && !existing.Equal(primary) {
			return k, true
		}
	}
	return keypath.Key{}, false
}

// insert adds the entries for one record. Uniqueness must have been checked
// beforehand via conflict.
func (ix *indexState) insert(primary keypath.Key, value keypath.Value) {
	for _, k := range ix.keysFor(value) {
		ix.entries.ReplaceOrInsert(indexEntry{key: k, primary: primary})
	}
}

// remove retracts the entries for one record, given the value it was stored
// under.
func (ix *indexState) remove(primary keypath.Key, value keypath.Value) {
	for _, k := range ix.keysFor(value) {
		ix.entries.Delete(indexEntry{key: k, primary: primary})
	}
}

// firstPrimary returns the lowest primary key mapped to the given index key.
func (ix *indexState) firstPrimary(k keypath.Key) (keypath.Key, bool) {
	var (
		found   bool
		primary keypath.Key
	)
	ix.entries.AscendGreaterOrEqual(beforeKey(k), func(e indexEntry) bool {
		if !e.key.Equal(k) {
			return false
		}
		primary = e.primary
		found = true
		return false
	})
	return primary, found
}

// scan walks the entries inside rng in ascending order, calling fn with each
// (index key, primary key) pair until fn returns false.
func (ix *indexState) scan(rng *KeyRange, fn func(key, primary keypath.Key) bool) {
	iter := func(e indexEntry) bool {
		if rng.aboveUpper(e.key) {
			return false
		}
		if !rng.Contains(e.key) {
			return true
		}
		return fn(e.key, e.primary)
	}
	if lower, _ := rng.Lower(); lower != nil {
		ix.entries.AscendGreaterOrEqual(beforeKey(*lower), iter)
	} else {
		ix.entries.Ascend(iter)
	}
}

// count returns the number of entries inside rng.
func (ix *indexState) count(rng *KeyRange) uint64 {
	var n uint64
	ix.scan(rng, func(_, _ keypath.Key) bool {
		n++
		return true
	})
	return n
}

// clone returns a copy-on-write snapshot of the index for rollback.
func (ix *indexState) clone() *indexState {
	return &indexState{def: ix.def, entries: ix.entries.Clone()}
}
