package engine

import (
	"github.com/jmendel/idb/lib/keypath"
)

// --------------------------------------------------------------------------
// Store Handle
// --------------------------------------------------------------------------

// StoreHandle is the per-transaction view of one object store. Every
// operation applies its side effects synchronously and returns a Request
// whose notification is deferred (see Scheduler). Precondition violations
// (finished transaction, read-only mode, bad arguments) are returned
// synchronously instead and issue no request.
type StoreHandle struct {
	tx *Transaction
	st *storeState
}

// Name returns the store name.
func (h *StoreHandle) Name() string { return h.st.def.Name }

// Def returns the store definition.
func (h *StoreHandle) Def() StoreDef { return h.st.def }

// IndexNames returns the store's index names in creation order.
func (h *StoreHandle) IndexNames() []string {
	names := make([]string, len(h.st.indexNames))
	copy(names, h.st.indexNames)
	return names
}

// issue runs apply synchronously and schedules the deferred notification.
func (h *StoreHandle) issue(mutating bool, apply func() (Result, error)) (*Request, error) {
	if err := h.tx.checkActive(); err != nil {
		return nil, err
	}
	if mutating && h.tx.mode == ReadOnly {
		return nil, Errorf(ErrInvalidState, "store %q: write in a readonly transaction", h.st.def.Name)
	}
	res, err := apply()
	r := newRequest(h.tx.sched, h.tx)
	r.resolve(res, err)
	h.tx.schedule(r)
	return r, nil
}

// --------------------------------------------------------------------------
// Writes
// --------------------------------------------------------------------------

// Add inserts a record, failing the request with Constraint if the resolved
// key already exists. At most one explicit key may be supplied.
func (h *StoreHandle) Add(value keypath.Value, key ...keypath.Key) (*Request, error) {
	return h.write(value, key, false)
}

// Put inserts or overwrites a record under the resolved key.
func (h *StoreHandle) Put(value keypath.Value, key ...keypath.Key) (*Request, error) {
	return h.write(value, key, true)
}

func (h *StoreHandle) write(value keypath.Value, key []keypath.Key, overwrite bool) (*Request, error) {
	if len(key) > 1 {
		return nil, NewError(ErrData, "at most one explicit key may be supplied")
	}
	var explicit *keypath.Key
	if len(key) == 1 {
		explicit = &key[0]
	}
	return h.issue(true, func() (Result, error) {
		k, err := h.st.insert(value, explicit, overwrite)
		if err != nil {
			return Result{}, err
		}
		return Result{Key: k, HasKey: true}, nil
	})
}

// Delete removes the record under key. The request succeeds whether or not
// a record existed; Count reports the number removed.
func (h *StoreHandle) Delete(key keypath.Key) (*Request, error) {
	return h.issue(true, func() (Result, error) {
		var n uint64
		if h.st.deleteKey(key) {
			n = 1
		}
		return Result{Count: n}, nil
	})
}

// DeleteRange removes every record inside rng (nil = all).
func (h *StoreHandle) DeleteRange(rng *KeyRange) (*Request, error) {
	return h.issue(true, func() (Result, error) {
		n := h.st.deleteRange(rng)
		return Result{Count: uint64(n)}, nil
	})
}

// Clear removes every record of the store. The key generator keeps its
// position.
func (h *StoreHandle) Clear() (*Request, error) {
	return h.issue(true, func() (Result, error) {
		h.st.clear()
		return Result{}, nil
	})
}

// --------------------------------------------------------------------------
// Reads
// --------------------------------------------------------------------------

// Get reads the record under key. A missing key is not an error: the
// request succeeds with HasValue false.
func (h *StoreHandle) Get(key keypath.Key) (*Request, error) {
	return h.issue(false, func() (Result, error) {
		v, ok := h.st.get(key)
		return Result{Value: v, HasValue: ok}, nil
	})
}

// GetAll reads the values inside rng in key order, capped at limit when
// limit > 0.
func (h *StoreHandle) GetAll(rng *KeyRange, limit int) (*Request, error) {
	return h.issue(false, func() (Result, error) {
		entries := h.st.collect(rng, limit)
		values := make([]keypath.Value, len(entries))
		for i, e := range entries {
			values[i] = e.value
		}
		return Result{Values: values}, nil
	})
}

// GetAllKeys reads the primary keys inside rng in key order, capped at
// limit when limit > 0.
func (h *StoreHandle) GetAllKeys(rng *KeyRange, limit int) (*Request, error) {
	return h.issue(false, func() (Result, error) {
		entries := h.st.collect(rng, limit)
		keys := make([]keypath.Key, len(entries))
		for i, e := range entries {
			keys[i] = e.key
		}
		return Result{Keys: keys}, nil
	})
}

// Count counts the records inside rng (nil = all).
func (h *StoreHandle) Count(rng *KeyRange) (*Request, error) {
	return h.issue(false, func() (Result, error) {
		return Result{Count: h.st.count(rng)}, nil
	})
}

// OpenCursor opens a cursor over the store's records. The request resolves
// with the cursor positioned at the first qualifying entry, or with a nil
// cursor when nothing qualifies.
func (h *StoreHandle) OpenCursor(rng *KeyRange, dir Direction) (*Request, error) {
	cur := &Cursor{tx: h.tx, st: h.st, rng: rng, dir: dir}
	req, err := h.issue(false, func() (Result, error) {
		return cur.step(nil, 1)
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// --------------------------------------------------------------------------
// Indices
// --------------------------------------------------------------------------

// Index returns a handle for the named secondary index.
func (h *StoreHandle) Index(name string) (*IndexHandle, error) {
	ix, ok := h.st.indices[name]
	if !ok {
		return nil, Errorf(ErrNotFound, "no index %q on store %q", name, h.st.def.Name)
	}
	return &IndexHandle{tx: h.tx, st: h.st, ix: ix}, nil
}

// CreateIndex adds a secondary index, backfilling entries for existing
// records. Synchronous; legal only inside an active versionchange
// transaction. A backfill collision on a unique index aborts the
// transaction (and with it the upgrade).
func (h *StoreHandle) CreateIndex(def IndexDef) (*IndexHandle, error) {
	if err := h.tx.checkVersionChange(); err != nil {
		return nil, err
	}
	if err := h.st.createIndex(def); err != nil {
		if IsKind(err, ErrConstraint) {
			h.tx.abort(err)
		}
		return nil, err
	}
	return &IndexHandle{tx: h.tx, st: h.st, ix: h.st.indices[def.Name]}, nil
}

// DeleteIndex drops a secondary index. Synchronous; versionchange only.
func (h *StoreHandle) DeleteIndex(name string) error {
	if err := h.tx.checkVersionChange(); err != nil {
		return err
	}
	return h.st.deleteIndex(name)
}

// --------------------------------------------------------------------------
// Index Handle
// --------------------------------------------------------------------------

// IndexHandle is the per-transaction view of one secondary index. Reads
// traverse the index's derived key order; every primary key an index entry
// references is guaranteed to exist in the record table.
type IndexHandle struct {
	tx *Transaction
	st *storeState
	ix *indexState
}

// Name returns the index name.
func (h *IndexHandle) Name() string { return h.ix.def.Name }

// Def returns the index definition.
func (h *IndexHandle) Def() IndexDef { return h.ix.def }

func (h *IndexHandle) issue(apply func() (Result, error)) (*Request, error) {
	if err := h.tx.checkActive(); err != nil {
		return nil, err
	}
	res, err := apply()
	r := newRequest(h.tx.sched, h.tx)
	r.resolve(res, err)
	h.tx.schedule(r)
	return r, nil
}

// Get reads the record of the lowest primary key mapped to the given index
// key. A missing key succeeds with HasValue false.
func (h *IndexHandle) Get(key keypath.Key) (*Request, error) {
	return h.issue(func() (Result, error) {
		primary, ok := h.ix.firstPrimary(key)
		if !ok {
			return Result{}, nil
		}
		v, ok := h.st.get(primary)
		if !ok {
			return Result{}, nil
		}
		return Result{Value: v, HasValue: true, Key: primary, HasKey: true}, nil
	})
}

// GetAll reads the record values inside rng in index key order, capped at
// limit when limit > 0. Records referenced by several index entries appear
// once per entry.
func (h *IndexHandle) GetAll(rng *KeyRange, limit int) (*Request, error) {
	return h.issue(func() (Result, error) {
		var values []keypath.Value
		h.ix.scan(rng, func(_, primary keypath.Key) bool {
			if v, ok := h.st.get(primary); ok {
				values = append(values, v)
			}
			return limit <= 0 || len(values) < limit
		})
		return Result{Values: values}, nil
	})
}

// GetAllKeys reads the primary keys inside rng in index key order, capped
// at limit when limit > 0.
func (h *IndexHandle) GetAllKeys(rng *KeyRange, limit int) (*Request, error) {
	return h.issue(func() (Result, error) {
		var keys []keypath.Key
		h.ix.scan(rng, func(_, primary keypath.Key) bool {
			keys = append(keys, primary)
			return limit <= 0 || len(keys) < limit
		})
		return Result{Keys: keys}, nil
	})
}

// Count counts the index entries inside rng (nil = all).
func (h *IndexHandle) Count(rng *KeyRange) (*Request, error) {
	return h.issue(func() (Result, error) {
		return Result{Count: h.ix.count(rng)}, nil
	})
}

// OpenCursor opens a cursor over the index's derived key order.
func (h *IndexHandle) OpenCursor(rng *KeyRange, dir Direction) (*Request, error) {
	cur := &Cursor{tx: h.tx, st: h.st, ix: h.ix, rng: rng, dir: dir}
	return h.issue(func() (Result, error) {
		return cur.step(nil, 1)
	})
}
