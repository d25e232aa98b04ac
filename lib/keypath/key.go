package keypath

import (
	"bytes"
	"fmt"
	"math"
	"time"
)

// --------------------------------------------------------------------------
// Key Kind
// --------------------------------------------------------------------------

// KeyKind identifies the variant of a Key. The declaration order of the
// constants is the cross-kind sort order: every number sorts before every
// time, every time before every string, every string before every binary key.
type KeyKind uint8

const (
	KeyNumber KeyKind = iota
	KeyTime
	KeyString
	KeyBinary
)

func (k KeyKind) String() string {
	switch k {
	case KeyNumber:
		return "Number"
	case KeyTime:
		return "Time"
	case KeyString:
		return "String"
	case KeyBinary:
		return "Binary"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(k))
	}
}

// --------------------------------------------------------------------------
// Key
// --------------------------------------------------------------------------

// Key is a primary or index key. Exactly one payload field is meaningful,
// selected by Kind. Keys are totally ordered by Compare.
type Key struct {
	Kind KeyKind
	Num  float64
	Time time.Time
	Str  string
	Bin  []byte
}

// Constructors for each variant.

func NumberKey(f float64) Key { return Key{Kind: KeyNumber, Num: f} }
func TimeKey(t time.Time) Key { return Key{Kind: KeyTime, Time: t} }
func StringKey(s string) Key  { return Key{Kind: KeyString, Str: s} }
func BinaryKey(b []byte) Key  { return Key{Kind: KeyBinary, Bin: b} }

// KeyFromValue converts a document value into a key. The boolean result is
// false when the value's kind does not participate in the key order (null,
// bool, array, object) or when the number is NaN.
func KeyFromValue(v Value) (Key, bool) {
	switch v.Kind {
	case KindNumber:
		if math.IsNaN(v.Num) {
			return Key{}, false
		}
		return NumberKey(v.Num), true
	case KindTime:
		return TimeKey(v.Time), true
	case KindString:
		return StringKey(v.Str), true
	case KindBinary:
		return BinaryKey(v.Bin), true
	default:
		return Key{}, false
	}
}

// Value converts the key back into its document value form.
func (k Key) Value() Value {
	switch k.Kind {
	case KeyNumber:
		return Number(k.Num)
	case KeyTime:
		return Timestamp(k.Time)
	case KeyString:
		return String(k.Str)
	case KeyBinary:
		return Binary(k.Bin)
	default:
		return Null()
	}
}

// Compare returns -1, 0 or 1 ordering a before, equal to or after b.
// Keys of different kinds order by kind (number < time < string < binary).
func Compare(a, b Key) int {
	if a.Kind != b.Kind {
		if a.Kind < b.Kind {
			return -1
		}
		return 1
	}
	switch a.Kind {
	case KeyNumber:
		switch {
		case a.Num < b.Num:
			return -1
		case a.Num > b.Num:
			return 1
		default:
			return 0
		}
	case KeyTime:
		switch {
		case a.Time.Before(b.Time):
			return -1
		case a.Time.After(b.Time):
			return 1
		default:
			return 0
		}
	case KeyString:
		switch {
		case a.Str < b.Str:
			return -1
		case a.Str > b.Str:
			return 1
		default:
			return 0
		}
	case KeyBinary:
		return bytes.Compare(a.Bin, b.Bin)
	default:
		return 0
	}
}

// Equal reports whether two keys compare equal.
func (k Key) Equal(o Key) bool { return Compare(k, o) == 0 }

// Valid reports whether the key participates in the total order. A NaN
// number key compares equal to every number and must never be stored.
func (k Key) Valid() bool {
	switch k.Kind {
	case KeyNumber:
		return !math.IsNaN(k.Num)
	case KeyTime, KeyString, KeyBinary:
		return true
	default:
		return false
	}
}

// String renders the key for logs and test failures.
func (k Key) String() string {
	switch k.Kind {
	case KeyNumber:
		return fmt.Sprintf("%g", k.Num)
	case KeyTime:
		return k.Time.Format(time.RFC3339Nano)
	case KeyString:
		return fmt.Sprintf("%q", k.Str)
	case KeyBinary:
		return fmt.Sprintf("0x%x", k.Bin)
	default:
		return "<invalid>"
	}
}
