package keypath

import (
	"math"
	"testing"
	"time"
)

// TestKeyOrdering tests the total order over keys: numbers sort before
// timestamps, timestamps before strings, strings before binary
func TestKeyOrdering(t *testing.T) {
	ordered := []Key{
		NumberKey(math.Inf(-1)),
		NumberKey(-10),
		NumberKey(0),
		NumberKey(0.5),
		NumberKey(42),
		NumberKey(math.Inf(1)),
		TimeKey(time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)),
		TimeKey(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)),
		StringKey(""),
		StringKey("a"),
		StringKey("ab"),
		StringKey("b"),
		BinaryKey([]byte{}),
		BinaryKey([]byte{0x00}),
		BinaryKey([]byte{0x00, 0x01}),
		BinaryKey([]byte{0x01}),
	}

	for i := 0; i < len(ordered); i++ {
		for j := 0; j < len(ordered); j++ {
			got := Compare(ordered[i], ordered[j])
			want := 0
			if i < j {
				want = -1
			} else if i > j {
				want = 1
			}
			if got != want {
				t.Errorf("Compare(%s, %s) = %d, want %d", ordered[i], ordered[j], got, want)
			}
		}
	}
}

// TestKeyEqual tests equality across kinds
func TestKeyEqual(t *testing.T) {
	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	testCases := []struct {
		name string
		a, b Key
		want bool
	}{
		{"same number", NumberKey(7), NumberKey(7), true},
		{"different number", NumberKey(7), NumberKey(8), false},
		{"same string", StringKey("x"), StringKey("x"), true},
		{"same time", TimeKey(ts), TimeKey(ts), true},
		{"same binary", BinaryKey([]byte{1, 2}), BinaryKey([]byte{1, 2}), true},
		{"number vs string", NumberKey(7), StringKey("7"), false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.a.Equal(tc.b); got != tc.want {
				t.Errorf("Equal(%s, %s) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

// TestKeyValid tests which keys participate in the total order
func TestKeyValid(t *testing.T) {
	testCases := []struct {
		name string
		key  Key
		want bool
	}{
		{"number", NumberKey(0), true},
		{"infinity", NumberKey(math.Inf(1)), true},
		{"nan", NumberKey(math.NaN()), false},
		{"time", TimeKey(time.Time{}), true},
		{"empty string", StringKey(""), true},
		{"binary", BinaryKey(nil), true},
		{"unknown kind", Key{Kind: KeyKind(99)}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.key.Valid(); got != tc.want {
				t.Errorf("Valid(%s) = %v, want %v", tc.key, got, tc.want)
			}
		})
	}
}

// TestKeyFromValue tests which values qualify as keys
func TestKeyFromValue(t *testing.T) {
	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	valid := []struct {
		name string
		val  Value
		want Key
	}{
		{"number", Number(3.5), NumberKey(3.5)},
		{"time", Timestamp(ts), TimeKey(ts)},
		{"string", String("id-1"), StringKey("id-1")},
		{"binary", Binary([]byte{0xff}), BinaryKey([]byte{0xff})},
	}
	for _, tc := range valid {
		t.Run(tc.name, func(t *testing.T) {
			k, ok := KeyFromValue(tc.val)
			if !ok {
				t.Fatalf("KeyFromValue(%s) rejected, want %s", tc.val, tc.want)
			}
			if !k.Equal(tc.want) {
				t.Errorf("KeyFromValue(%s) = %s, want %s", tc.val, k, tc.want)
			}
		})
	}

	invalid := []struct {
		name string
		val  Value
	}{
		{"null", Null()},
		{"bool", Boolean(true)},
		{"nan", Number(math.NaN())},
		{"array", Array(Number(1))},
		{"object", Object(map[string]Value{"a": Number(1)})},
	}
	for _, tc := range invalid {
		t.Run(tc.name, func(t *testing.T) {
			if k, ok := KeyFromValue(tc.val); ok {
				t.Errorf("KeyFromValue(%s) = %s, want rejection", tc.val, k)
			}
		})
	}
}

// TestKeyValueRoundTrip tests that a key converts back to an equal value
func TestKeyValueRoundTrip(t *testing.T) {
	keys := []Key{
		NumberKey(-1.5),
		TimeKey(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)),
		StringKey("hello"),
		BinaryKey([]byte{1, 2, 3}),
	}
	for _, k := range keys {
		back, ok := KeyFromValue(k.Value())
		if !ok {
			t.Fatalf("KeyFromValue(%s.Value()) rejected", k)
		}
		if !back.Equal(k) {
			t.Errorf("round trip of %s = %s", k, back)
		}
	}
}
