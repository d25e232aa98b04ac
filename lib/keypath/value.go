package keypath

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Value Kind
// --------------------------------------------------------------------------

// Kind identifies which variant of a Value is populated.
type Kind uint8

const (
	KindNull   Kind = iota // No value.
	KindBool               // Boolean scalar.
	KindNumber             // Float64 scalar.
	KindTime               // Timestamp scalar.
	KindString             // String scalar.
	KindBinary             // Raw byte slice scalar.
	KindArray              // Ordered sequence of values.
	KindObject             // String-keyed map of values.
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "Null"
	case KindBool:
		return "Bool"
	case KindNumber:
		return "Number"
	case KindTime:
		return "Time"
	case KindString:
		return "String"
	case KindBinary:
		return "Binary"
	case KindArray:
		return "Array"
	case KindObject:
		return "Object"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(k))
	}
}

// --------------------------------------------------------------------------
// Value
// --------------------------------------------------------------------------

// Value is the tagged document variant stored by the engine. Exactly one
// payload field is meaningful, selected by Kind. The zero Value is null.
//
// Values are treated as immutable once handed to the engine; Clone produces
// a deep copy for callers that want to mutate.
type Value struct {
	Kind Kind
	Bool bool
	Num  float64
	Time time.Time
	Str  string
	Bin  []byte
	Arr  []Value
	Obj  map[string]Value
}

// Constructors for each variant.

func Null() Value                 { return Value{Kind: KindNull} }
func Boolean(b bool) Value        { return Value{Kind: KindBool, Bool: b} }
func Number(f float64) Value      { return Value{Kind: KindNumber, Num: f} }
func Timestamp(t time.Time) Value { return Value{Kind: KindTime, Time: t} }
func String(s string) Value       { return Value{Kind: KindString, Str: s} }
func Binary(b []byte) Value       { return Value{Kind: KindBinary, Bin: b} }
func Array(elems ...Value) Value  { return Value{Kind: KindArray, Arr: elems} }
func Object(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{Kind: KindObject, Obj: m}
}

// IsNull reports whether the value is the null variant.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// Clone returns a deep copy of the value. Scalars are copied by value,
// binary payloads, arrays and objects are duplicated recursively.
func (v Value) Clone() Value {
	switch v.Kind {
	case KindBinary:
		b := make([]byte, len(v.Bin))
		copy(b, v.Bin)
		return Value{Kind: KindBinary, Bin: b}
	case KindArray:
		elems := make([]Value, len(v.Arr))
		for i, e := range v.Arr {
			elems[i] = e.Clone()
		}
		return Value{Kind: KindArray, Arr: elems}
	case KindObject:
		m := make(map[string]Value, len(v.Obj))
		for k, e := range v.Obj {
			m[k] = e.Clone()
		}
		return Value{Kind: KindObject, Obj: m}
	default:
		return v
	}
}

// Equal reports deep structural equality of two values. Times compare with
// time.Time.Equal so location differences do not matter.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindNull:
		return true
	case KindBool:
		return v.Bool == o.Bool
	case KindNumber:
		return v.Num == o.Num
	case KindTime:
		return v.Time.Equal(o.Time)
	case KindString:
		return v.Str == o.Str
	case KindBinary:
		if len(v.Bin) != len(o.Bin) {
			return false
		}
		for i := range v.Bin {
			if v.Bin[i] != o.Bin[i] {
				return false
			}
		}
		return true
	case KindArray:
		if len(v.Arr) != len(o.Arr) {
			return false
		}
		for i := range v.Arr {
			if !v.Arr[i].Equal(o.Arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(v.Obj) != len(o.Obj) {
			return false
		}
		for k, e := range v.Obj {
			oe, ok := o.Obj[k]
			if !ok || !e.Equal(oe) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// String renders the value for logs and test failures.
func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindBool:
		return fmt.Sprintf("%t", v.Bool)
	case KindNumber:
		return fmt.Sprintf("%g", v.Num)
	case KindTime:
		return v.Time.Format(time.RFC3339Nano)
	case KindString:
		return fmt.Sprintf("%q", v.Str)
	case KindBinary:
		return fmt.Sprintf("0x%x", v.Bin)
	case KindArray:
		parts := make([]string, len(v.Arr))
		for i, e := range v.Arr {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindObject:
		keys := make([]string, 0, len(v.Obj))
		for k := range v.Obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%s: %s", k, v.Obj[k].String())
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return "<invalid>"
	}
}
