package engine

import (
	"math"

	"github.com/google/btree"

	"github.com/jmendel/idb/lib/keypath"
)

// Degree of all record and index trees. Small databases dominate the test
// double's workload, deeper fan-out buys nothing here.
const btreeDegree = 8

// --------------------------------------------------------------------------
// Store Definition
// --------------------------------------------------------------------------

// StoreDef describes an object store.
type StoreDef struct {
	Name          string // Unique within the database
	KeyPath       string // Dot-separated path of the primary key, "" = out-of-band keys
	AutoIncrement bool   // Generate integer keys for keyless writes
}

// recordEntry is one primary key / value pair of the record table.
type recordEntry struct {
	key   keypath.Key
	value keypath.Value
}

func lessRecordEntry(a, b recordEntry) bool {
	return keypath.Compare(a.key, b.key) < 0
}

// --------------------------------------------------------------------------
// Store State
// --------------------------------------------------------------------------

// storeState is the record table of one store plus its secondary indices
// and its key generator. All mutation paths go through insert/deleteKey/
// deleteRange/clear, which keep every index consistent before returning.
type storeState struct {
	def        StoreDef
	records    *btree.BTreeG[recordEntry]
	indices    map[string]*indexState
	indexNames []string // creation order, for deterministic listings
	nextAuto   uint64   // next generated key, strictly increasing, never reused
}

func newStoreState(def StoreDef) *storeState {
	return &storeState{
		def:      def,
		records:  btree.NewG(btreeDegree, lessRecordEntry),
		indices:  map[string]*indexState{},
		nextAuto: 1,
	}
}

// --------------------------------------------------------------------------
// Key Resolution
// --------------------------------------------------------------------------

// resolveKey determines the primary key for a write. Precedence: an
// explicit key wins (it must be orderable, so NaN numbers are rejected),
// then a key-path-resolvable value, then the generator
// for auto-increment stores (writing the generated key back into the value
// when a key path exists). A write no rule can key fails with DataError.
func (st *storeState) resolveKey(value keypath.Value, explicit *keypath.Key) (keypath.Key, keypath.Value, error) {
	if explicit != nil {
		if !explicit.Valid() {
			return keypath.Key{}, value, Errorf(ErrData,
				"store %q: explicit key %s is not a valid key", st.def.Name, *explicit)
		}
		return *explicit, value, nil
	}
	if st.def.KeyPath != "" {
		if resolved, ok := keypath.Extract(value, st.def.KeyPath); ok {
			key, ok := keypath.KeyFromValue(resolved)
			if !ok {
				return keypath.Key{}, value, Errorf(ErrData,
					"store %q: value at key path %q is not a valid key", st.def.Name, st.def.KeyPath)
			}
			return key, value, nil
		}
	}
	if st.def.AutoIncrement {
		key := keypath.NumberKey(float64(st.nextAuto))
		if st.def.KeyPath != "" {
			injected, ok := keypath.Inject(value, st.def.KeyPath, key)
			if !ok {
				return keypath.Key{}, value, Errorf(ErrData,
					"store %q: cannot write generated key at path %q", st.def.Name, st.def.KeyPath)
			}
			value = injected
		}
		return key, value, nil
	}
	return keypath.Key{}, value, Errorf(ErrData, "store %q: no key supplied and none resolvable", st.def.Name)
}

// bumpGenerator advances the key generator past an integer key so generated
// keys stay strictly increasing and are never reused, even across deletes.
func (st *storeState) bumpGenerator(key keypath.Key) {
	if !st.def.AutoIncrement || key.Kind != keypath.KeyNumber {
		return
	}
	f := math.Floor(key.Num)
	if f >= float64(st.nextAuto) && f < math.MaxUint64 {
		st.nextAuto = uint64(f) + 1
	}
}

// --------------------------------------------------------------------------
// Mutations
// --------------------------------------------------------------------------

// insert performs add (overwrite=false) or put (overwrite=true). The final
// key, uniqueness of the primary key, and every unique index are validated
// before anything is applied, so a failed insert leaves no trace. On
// success all indices are up to date when insert returns.
func (st *storeState) insert(value keypath.Value, explicit *keypath.Key, overwrite bool) (keypath.Key, error) {
	key, value, err := st.resolveKey(value, explicit)
	if err != nil {
		return keypath.Key{}, err
	}

	old, exists := st.records.Get(recordEntry{key: key})
	if exists && !overwrite {
		return keypath.Key{}, Errorf(ErrConstraint, "store %q: key %s already exists", st.def.Name, key)
	}
	for _, name := range st.indexNames {
		ix := st.indices[name]
		if exists {
			// The record's own old entries must not count as collisions.
			ix.remove(key, old.value)
		}
		if ixKey, clash := ix.conflict(value, key); clash {
			// Roll the probing removals back before reporting.
			for _, n := range st.indexNames {
				if n == name {
					break
				}
				if exists {
					st.indices[n].remove(key, value)
					st.indices[n].insert(key, old.value)
				} else {
					st.indices[n].remove(key, value)
				}
			}
			if exists {
				ix.insert(key, old.value)
			}
			return keypath.Key{}, Errorf(ErrConstraint,
				"index %q on store %q: key %s already mapped", name, st.def.Name, ixKey)
		}
		ix.insert(key, value)
	}

	st.records.ReplaceOrInsert(recordEntry{key: key, value: value})
	st.bumpGenerator(key)
	return key, nil
}

// deleteKey removes one record and retracts its index entries. Reports
// whether a record existed.
func (st *storeState) deleteKey(key keypath.Key) bool {
	old, existed := st.records.Delete(recordEntry{key: key})
	if !existed {
		return false
	}
	for _, name := range st.indexNames {
		st.indices[name].remove(key, old.value)
	}
	return true
}

// deleteRange removes every record inside rng. Returns the removal count.
func (st *storeState) deleteRange(rng *KeyRange) int {
	victims := st.collect(rng, 0)
	for _, e := range victims {
		st.deleteKey(e.key)
	}
	return len(victims)
}

// clear drops every record and every index entry. The key generator is NOT
// reset; generated keys are never reused.
func (st *storeState) clear() {
	st.records.Clear(false)
	for _, name := range st.indexNames {
		st.indices[name].entries.Clear(false)
	}
}

// --------------------------------------------------------------------------
// Reads
// --------------------------------------------------------------------------

// get returns the value stored under key.
func (st *storeState) get(key keypath.Key) (keypath.Value, bool) {
	e, ok := st.records.Get(recordEntry{key: key})
	if !ok {
		return keypath.Value{}, false
	}
	return e.value, true
}

// collect returns up to limit records inside rng in ascending key order;
// limit 0 means unbounded.
func (st *storeState) collect(rng *KeyRange, limit int) []recordEntry {
	var out []recordEntry
	iter := func(e recordEntry) bool {
		if rng.aboveUpper(e.key) {
			return false
		}
		if !rng.Contains(e.key) {
			return true
		}
		out = append(out, e)
		return limit <= 0 || len(out) < limit
	}
	if lower, _ := rng.Lower(); lower != nil {
		st.records.AscendGreaterOrEqual(recordEntry{key: *lower}, iter)
	} else {
		st.records.Ascend(iter)
	}
	return out
}

// count returns the number of records inside rng.
func (st *storeState) count(rng *KeyRange) uint64 {
	var n uint64
	iter := func(e recordEntry) bool {
		if rng.aboveUpper(e.key) {
			return false
		}
		if rng.Contains(e.key) {
			n++
		}
		return true
	}
	if lower, _ := rng.Lower(); lower != nil {
		st.records.AscendGreaterOrEqual(recordEntry{key: *lower}, iter)
	} else {
		st.records.Ascend(iter)
	}
	return n
}

// --------------------------------------------------------------------------
// Index Catalog
// --------------------------------------------------------------------------

// createIndex adds a secondary index, backfilling entries for all existing
// records. A unique collision during backfill fails without leaving a
// partial index behind.
func (st *storeState) createIndex(def IndexDef) error {
	if _, exists := st.indices[def.Name]; exists {
		return Errorf(ErrConstraint, "store %q: index %q already exists", st.def.Name, def.Name)
	}
	ix := newIndexState(def)
	var backfillErr error
	st.records.Ascend(func(e recordEntry) bool {
		if ixKey, clash := ix.conflict(e.value, e.key); clash {
			backfillErr = Errorf(ErrConstraint,
				"index %q on store %q: backfill collision on key %s", def.Name, st.def.Name, ixKey)
			return false
		}
		ix.insert(e.key, e.value)
		return true
	})
	if backfillErr != nil {
		return backfillErr
	}
	st.indices[def.Name] = ix
	st.indexNames = append(st.indexNames, def.Name)
	return nil
}

// deleteIndex drops a secondary index.
func (st *storeState) deleteIndex(name string) error {
	if _, exists := st.indices[name]; !exists {
		return Errorf(ErrNotFound, "store %q: no index %q", st.def.Name, name)
	}
	delete(st.indices, name)
	for i, n := range st.indexNames {
		if n == name {
			st.indexNames = append(st.indexNames[:i], st.indexNames[i+1:]...)
			break
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Snapshots
// --------------------------------------------------------------------------

// storeSnapshot captures a store's full state for transaction rollback.
// Tree clones are copy-on-write, so taking a snapshot is cheap.
type storeSnapshot struct {
	def        StoreDef
	records    *btree.BTreeG[recordEntry]
	indices    map[string]*indexState
	indexNames []string
	nextAuto   uint64
}

func (st *storeState) snapshot() *storeSnapshot {
	indices := make(map[string]*indexState, len(st.indices))
	for name, ix := range st.indices {
		indices[name] = ix.clone()
	}
	names := make([]string, len(st.indexNames))
	copy(names, st.indexNames)
	return &storeSnapshot{
		def:        st.def,
		records:    st.records.Clone(),
		indices:    indices,
		indexNames: names,
		nextAuto:   st.nextAuto,
	}
}

func (st *storeState) restore(snap *storeSnapshot) {
	st.def = snap.def
	st.records = snap.records
	st.indices = snap.indices
	st.indexNames = snap.indexNames
	st.nextAuto = snap.nextAuto
}
