package engine

import (
	"github.com/jmendel/idb/lib/keypath"
)

// --------------------------------------------------------------------------
// Directions
// --------------------------------------------------------------------------

// Direction selects a cursor's traversal order. The unique variants skip
// duplicate index keys, surfacing only the lowest primary key of each
// distinct key; over a store they behave like their plain counterparts.
type Direction uint8

const (
	Next Direction = iota
	NextUnique
	Prev
	PrevUnique
)

func (d Direction) String() string {
	switch d {
	case Next:
		return "next"
	case NextUnique:
		return "nextunique"
	case Prev:
		return "prev"
	case PrevUnique:
		return "prevunique"
	default:
		return "unknown"
	}
}

func (d Direction) forward() bool { return d == Next || d == NextUnique }
func (d Direction) unique() bool  { return d == NextUnique || d == PrevUnique }

// --------------------------------------------------------------------------
// Cursor
// --------------------------------------------------------------------------

// Cursor is an ordered, optionally range-filtered traversal over a store's
// record table or an index's derived key order. A cursor advances strictly
// monotonically in its declared direction; re-visiting requires reopening.
//
// The cursor iterates the live trees: records inserted or removed behind
// the current position are seen or missed accordingly, exactly like the
// emulated platform.
type Cursor struct {
	tx  *Transaction
	st  *storeState
	ix  *indexState // nil for store cursors
	rng *KeyRange
	dir Direction

	started   bool
	exhausted bool

	curKey     keypath.Key // index key; equals the primary key for store cursors
	curPrimary keypath.Key
	curValue   keypath.Value
}

// Direction returns the declared traversal direction.
func (c *Cursor) Direction() Direction { return c.dir }

// Exhausted reports whether the cursor has run past its last qualifying
// entry.
func (c *Cursor) Exhausted() bool { return c.exhausted }

// Key returns the cursor's current key (the index key for index cursors).
// The boolean result is false before the first positioning and after
// exhaustion.
func (c *Cursor) Key() (keypath.Key, bool) {
	return c.curKey, c.positioned()
}

// PrimaryKey returns the primary key of the current record.
func (c *Cursor) PrimaryKey() (keypath.Key, bool) {
	return c.curPrimary, c.positioned()
}

// Value returns the current record value.
func (c *Cursor) Value() (keypath.Value, bool) {
	return c.curValue, c.positioned()
}

func (c *Cursor) positioned() bool { return c.started && !c.exhausted }

// --------------------------------------------------------------------------
// Traversal
// --------------------------------------------------------------------------

// Continue moves to the next position. When a key is supplied it instead
// seeks to the first position at or past that key in the cursor's
// direction; the seek key must lie strictly beyond the current position.
// The request resolves with the repositioned cursor, or with a nil cursor
// once the range is exhausted.
func (c *Cursor) Continue(key ...keypath.Key) (*Request, error) {
	if len(key) > 1 {
		return nil, NewError(ErrData, "at most one seek key may be supplied")
	}
	var seek *keypath.Key
	if len(key) == 1 {
		seek = &key[0]
		if c.positioned() {
			cmp := keypath.Compare(*seek, c.curKey)
			if c.dir.forward() && cmp <= 0 {
				return nil, Errorf(ErrData, "seek key %s is not past the cursor position %s", *seek, c.curKey)
			}
			if !c.dir.forward() && cmp >= 0 {
				return nil, Errorf(ErrData, "seek key %s is not past the cursor position %s", *seek, c.curKey)
			}
		}
	}
	return c.issue(false, func() (Result, error) {
		return c.step(seek, 1)
	})
}

// Advance skips n positions without surfacing the intermediate entries.
func (c *Cursor) Advance(n int) (*Request, error) {
	if n <= 0 {
		return nil, Errorf(ErrData, "advance count must be positive, got %d", n)
	}
	return c.issue(false, func() (Result, error) {
		return c.step(nil, n)
	})
}

// step advances the cursor n positions, seeking first when seek is set.
// Running out of qualifying entries sets the exhausted flag and nulls the
// position; the resolved Result then carries a nil cursor.
func (c *Cursor) step(seek *keypath.Key, n int) (Result, error) {
	for i := 0; i < n; i++ {
		if c.exhausted {
			break
		}
		var (
			e  recordEntry
			ok bool
		)
		if c.ix == nil {
			e, ok = c.stepStore(seek)
		} else {
			e, ok = c.stepIndex(seek)
		}
		seek = nil
		if !ok {
			c.exhausted = true
			break
		}
		c.started = true
		if c.ix == nil {
			c.curKey = e.key
		}
		c.curPrimary = e.key
		c.curValue = e.value
	}
	if c.exhausted {
		c.curKey = keypath.Key{}
		c.curPrimary = keypath.Key{}
		c.curValue = keypath.Value{}
		return Result{}, nil
	}
	return Result{Cursor: c}, nil
}

// stepStore finds the next qualifying record of a store cursor.
func (c *Cursor) stepStore(seek *keypath.Key) (recordEntry, bool) {
	var (
		found  recordEntry
		ok     bool
		strict = c.started && seek == nil
	)
	qualifies := func(k keypath.Key) bool {
		if !c.rng.Contains(k) {
			return false
		}
		if seek != nil {
			cmp := keypath.Compare(k, *seek)
			if c.dir.forward() && cmp < 0 {
				return false
			}
			if !c.dir.forward() && cmp > 0 {
				return false
			}
		}
		if c.started {
			cmp := keypath.Compare(k, c.curPrimary)
			if c.dir.forward() && (cmp < 0 || (strict && cmp == 0)) {
				return false
			}
			if !c.dir.forward() && (cmp > 0 || (strict && cmp == 0)) {
				return false
			}
		}
		return true
	}
	if c.dir.forward() {
		iter := func(e recordEntry) bool {
			if c.rng.aboveUpper(e.key) {
				return false
			}
			if qualifies(e.key) {
				found, ok = e, true
				return false
			}
			return true
		}
		if pivot := c.forwardPivot(seek); pivot != nil {
			c.st.records.AscendGreaterOrEqual(recordEntry{key: *pivot}, iter)
		} else {
			c.st.records.Ascend(iter)
		}
	} else {
		iter := func(e recordEntry) bool {
			if c.rng.belowLower(e.key) {
				return false
			}
			if qualifies(e.key) {
				found, ok = e, true
				return false
			}
			return true
		}
		if pivot := c.reversePivot(seek); pivot != nil {
			c.st.records.DescendLessOrEqual(recordEntry{key: *pivot}, iter)
		} else {
			c.st.records.Descend(iter)
		}
	}
	return found, ok
}

// stepIndex finds the next qualifying entry of an index cursor and loads
// the record it references.
func (c *Cursor) stepIndex(seek *keypath.Key) (recordEntry, bool) {
	key, primary, ok := c.nextIndexPos(seek)
	if !ok {
		return recordEntry{}, false
	}
	v, ok := c.st.get(primary)
	if !ok {
		// Index entries always reference live records.
		return recordEntry{}, false
	}
	c.curKey = key
	return recordEntry{key: primary, value: v}, true
}

// nextIndexPos resolves the next (index key, primary key) position.
func (c *Cursor) nextIndexPos(seek *keypath.Key) (keypath.Key, keypath.Key, bool) {
	var (
		key     keypath.Key
		primary keypath.Key
		ok      bool
	)
	if c.dir.forward() {
		var pivot indexEntry
		switch {
		case seek != nil:
			pivot = beforeKey(*seek)
		case c.started && c.dir.unique():
			pivot = afterKey(c.curKey)
		case c.started:
			pivot = indexEntry{key: c.curKey, primary: c.curPrimary}
		default:
			if lower, _ := c.rng.Lower(); lower != nil {
				pivot = beforeKey(*lower)
			} else {
				pivot = beforeKey(keypath.Key{}) // number zero region; Ascend covers it below
			}
		}
		skipCurrent := c.started && seek == nil && !c.dir.unique()
		iter := func(e indexEntry) bool {
			if c.rng.aboveUpper(e.key) {
				return false
			}
			if skipCurrent && e.key.Equal(c.curKey) && e.primary.Equal(c.curPrimary) {
				return true
			}
			if !c.rng.Contains(e.key) {
				return true
			}
			key, primary, ok = e.key, e.primary, true
			return false
		}
		if !c.started && seek == nil {
			if lower, _ := c.rng.Lower(); lower == nil {
				c.ix.entries.Ascend(iter)
				return key, primary, ok
			}
		}
		c.ix.entries.AscendGreaterOrEqual(pivot, iter)
		return key, primary, ok
	}

	// Reverse directions. For prevunique the candidate key is found first,
	// then its lowest primary is surfaced.
	var pivot indexEntry
	havePivot := true
	switch {
	case seek != nil:
		pivot = afterKey(*seek)
	case c.started && c.dir.unique():
		pivot = beforeKey(c.curKey)
	case c.started:
		pivot = indexEntry{key: c.curKey, primary: c.curPrimary}
	default:
		if upper, _ := c.rng.Upper(); upper != nil {
			pivot = afterKey(*upper)
		} else {
			havePivot = false
		}
	}
	skipCurrent := c.started && seek == nil && !c.dir.unique()
	iter := func(e indexEntry) bool {
		if c.rng.belowLower(e.key) {
			return false
		}
		if skipCurrent && e.key.Equal(c.curKey) && e.primary.Equal(c.curPrimary) {
			return true
		}
		if !c.rng.Contains(e.key) {
			return true
		}
		key, primary, ok = e.key, e.primary, true
		return false
	}
	if havePivot {
		c.ix.entries.DescendLessOrEqual(pivot, iter)
	} else {
		c.ix.entries.Descend(iter)
	}
	if ok && c.dir.unique() {
		if first, found := c.ix.firstPrimary(key); found {
			primary = first
		}
	}
	return key, primary, ok
}

// forwardPivot picks the highest known lower limit for a forward store
// scan, nil when the scan must start at the tree minimum.
func (c *Cursor) forwardPivot(seek *keypath.Key) *keypath.Key {
	var pivot *keypath.Key
	if lower, _ := c.rng.Lower(); lower != nil {
		pivot = lower
	}
	if seek != nil && (pivot == nil || keypath.Compare(*seek, *pivot) > 0) {
		pivot = seek
	}
	if c.started && (pivot == nil || keypath.Compare(c.curPrimary, *pivot) > 0) {
		k := c.curPrimary
		pivot = &k
	}
	return pivot
}

// reversePivot picks the lowest known upper limit for a reverse store scan.
func (c *Cursor) reversePivot(seek *keypath.Key) *keypath.Key {
	var pivot *keypath.Key
	if upper, _ := c.rng.Upper(); upper != nil {
		pivot = upper
	}
	if seek != nil && (pivot == nil || keypath.Compare(*seek, *pivot) < 0) {
		pivot = seek
	}
	if c.started && (pivot == nil || keypath.Compare(c.curPrimary, *pivot) < 0) {
		k := c.curPrimary
		pivot = &k
	}
	return pivot
}

// --------------------------------------------------------------------------
// Mutation Through the Cursor
// --------------------------------------------------------------------------

// Update overwrites the record under the cursor through the same path as a
// store put, re-validating index invariants. For stores with a key path
// the new value must resolve to the cursor's primary key. The cursor's
// position is preserved and not re-evaluated against the range.
func (c *Cursor) Update(value keypath.Value) (*Request, error) {
	if !c.positioned() {
		return nil, NewError(ErrInvalidState, "cursor is not positioned on a record")
	}
	var explicit *keypath.Key
	if c.st.def.KeyPath != "" {
		resolved, ok := keypath.Extract(value, c.st.def.KeyPath)
		if !ok {
			return nil, Errorf(ErrData, "value has no key at path %q", c.st.def.KeyPath)
		}
		k, ok := keypath.KeyFromValue(resolved)
		if !ok || !k.Equal(c.curPrimary) {
			return nil, Errorf(ErrData, "value key does not match the cursor's primary key %s", c.curPrimary)
		}
	} else {
		k := c.curPrimary
		explicit = &k
	}
	return c.issue(true, func() (Result, error) {
		k, err := c.st.insert(value, explicit, true)
		if err != nil {
			return Result{}, err
		}
		c.curValue = value
		return Result{Key: k, HasKey: true}, nil
	})
}

// Delete removes the record under the cursor. The remembered position is
// kept so a subsequent Continue proceeds from it.
func (c *Cursor) Delete() (*Request, error) {
	if !c.positioned() {
		return nil, NewError(ErrInvalidState, "cursor is not positioned on a record")
	}
	return c.issue(true, func() (Result, error) {
		var n uint64
		if c.st.deleteKey(c.curPrimary) {
			n = 1
		}
		return Result{Count: n}, nil
	})
}

// issue mirrors StoreHandle.issue for cursor-originated requests.
func (c *Cursor) issue(mutating bool, apply func() (Result, error)) (*Request, error) {
	if err := c.tx.checkActive(); err != nil {
		return nil, err
	}
	if mutating && c.tx.mode == ReadOnly {
		return nil, Errorf(ErrInvalidState, "store %q: write in a readonly transaction", c.st.def.Name)
	}
	res, err := apply()
	r := newRequest(c.tx.sched, c.tx)
	r.resolve(res, err)
	c.tx.schedule(r)
	return r, nil
}
