package engine

import "github.com/jmendel/idb/lib/keypath"

// --------------------------------------------------------------------------
// Key Ranges
// --------------------------------------------------------------------------

// KeyRange restricts an operation to a contiguous span of the key order.
// Either bound may be absent; each present bound is independently open or
// closed. A nil *KeyRange means "all keys" everywhere a range is accepted.
type KeyRange struct {
	lower, upper         *keypath.Key
	lowerOpen, upperOpen bool
}

// Only returns the range matching exactly one key.
func Only(k keypath.Key) *KeyRange {
	return &KeyRange{lower: &k, upper: &k}
}

// LowerBound returns the range of all keys at (or, if open, strictly above)
// the given key.
func LowerBound(k keypath.Key, open bool) *KeyRange {
	return &KeyRange{lower: &k, lowerOpen: open}
}

// UpperBound returns the range of all keys at (or, if open, strictly below)
// the given key.
func UpperBound(k keypath.Key, open bool) *KeyRange {
	return &KeyRange{upper: &k, upperOpen: open}
}

// Bound returns the range between two keys. It fails with a DataError when
// the lower bound is above the upper bound, or when the bounds are equal
// and either end is open.
func Bound(lower, upper keypath.Key, lowerOpen, upperOpen bool) (*KeyRange, error) {
	c := keypath.Compare(lower, upper)
	if c > 0 {
		return nil, Errorf(ErrData, "lower bound %s is above upper bound %s", lower, upper)
	}
	if c == 0 && (lowerOpen || upperOpen) {
		return nil, NewError(ErrData, "empty range: equal bounds with an open end")
	}
	return &KeyRange{lower: &lower, upper: &upper, lowerOpen: lowerOpen, upperOpen: upperOpen}, nil
}

// Lower returns the lower bound and whether it is open. The key pointer is
// nil for an unbounded end. Safe on a nil range.
func (r *KeyRange) Lower() (*keypath.Key, bool) {
	if r == nil {
		return nil, false
	}
	return r.lower, r.lowerOpen
}

// Upper returns the upper bound and whether it is open. Safe on a nil range.
func (r *KeyRange) Upper() (*keypath.Key, bool) {
	if r == nil {
		return nil, false
	}
	return r.upper, r.upperOpen
}

// Contains reports whether the key falls inside the range. A nil range
// contains every key.
func (r *KeyRange) Contains(k keypath.Key) bool {
	if r == nil {
		return true
	}
	if r.lower != nil {
		c := keypath.Compare(k, *r.lower)
		if c < 0 || (c == 0 && r.lowerOpen) {
			return false
		}
	}
	if r.upper != nil {
		c := keypath.Compare(k, *r.upper)
		if c > 0 || (c == 0 && r.upperOpen) {
			return false
		}
	}
	return true
}

// belowLower reports whether k is below the range (used by cursors seeking
// the first qualifying position).
func (r *KeyRange) belowLower(k keypath.Key) bool {
	if r == nil || r.lower == nil {
		return false
	}
	c := keypath.Compare(k, *r.lower)
	return c < 0 || (c == 0 && r.lowerOpen)
}

// aboveUpper reports whether k is above the range.
func (r *KeyRange) aboveUpper(k keypath.Key) bool {
	if r == nil || r.upper == nil {
		return false
	}
	c := keypath.Compare(k, *r.upper)
	return c > 0 || (c == 0 && r.upperOpen)
}
