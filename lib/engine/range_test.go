package engine

import (
	"testing"

	"github.com/jmendel/idb/lib/keypath"
)

// TestKeyRangeContains tests range membership for the four constructors
func TestKeyRangeContains(t *testing.T) {
	closed, err := Bound(keypath.NumberKey(2), keypath.NumberKey(4), false, false)
	if err != nil {
		t.Fatalf("Bound: %v", err)
	}
	open, err := Bound(keypath.NumberKey(2), keypath.NumberKey(4), true, true)
	if err != nil {
		t.Fatalf("Bound: %v", err)
	}

	testCases := []struct {
		name string
		rng  *KeyRange
		key  keypath.Key
		want bool
	}{
		{"nil range contains everything", nil, keypath.StringKey("x"), true},
		{"only match", Only(keypath.NumberKey(3)), keypath.NumberKey(3), true},
		{"only miss", Only(keypath.NumberKey(3)), keypath.NumberKey(4), false},
		{"closed lower edge", closed, keypath.NumberKey(2), true},
		{"closed upper edge", closed, keypath.NumberKey(4), true},
		{"open lower edge", open, keypath.NumberKey(2), false},
		{"open upper edge", open, keypath.NumberKey(4), false},
		{"open interior", open, keypath.NumberKey(3), true},
		{"lower bound inclusive", LowerBound(keypath.NumberKey(2), false), keypath.NumberKey(2), true},
		{"lower bound exclusive", LowerBound(keypath.NumberKey(2), true), keypath.NumberKey(2), false},
		{"upper bound unbounded below", UpperBound(keypath.NumberKey(2), false), keypath.NumberKey(-100), true},
		{"cross-kind above upper", UpperBound(keypath.NumberKey(2), false), keypath.StringKey("a"), false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.rng.Contains(tc.key); got != tc.want {
				t.Errorf("Contains(%s) = %v, want %v", tc.key, got, tc.want)
			}
		})
	}
}

// TestKeyRangeBoundValidation tests that inverted and empty bounds are
// rejected with DataError
func TestKeyRangeBoundValidation(t *testing.T) {
	if _, err := Bound(keypath.NumberKey(4), keypath.NumberKey(2), false, false); !IsKind(err, ErrData) {
		t.Errorf("inverted bound: err = %v, want DataError", err)
	}
	if _, err := Bound(keypath.NumberKey(2), keypath.NumberKey(2), true, false); !IsKind(err, ErrData) {
		t.Errorf("half-open empty bound: err = %v, want DataError", err)
	}
	if _, err := Bound(keypath.NumberKey(2), keypath.NumberKey(2), false, false); err != nil {
		t.Errorf("degenerate closed bound: err = %v, want nil", err)
	}
}
