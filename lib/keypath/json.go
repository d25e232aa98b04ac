package keypath

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// JSON mapping of the document model. Scalars that JSON has native forms
// for map directly; the two kinds JSON lacks use single-member wrapper
// objects so fixtures stay hand-editable:
//
//	time    -> {"$time": "<RFC3339Nano>"}
//	binary  -> {"$bytes": "<base64>"}
//
// Plain objects whose only member happens to be "$time" or "$bytes" are
// ambiguous and decode as the wrapped scalar; fixture authors must avoid
// those member names.

const (
	jsonTimeTag  = "$time"
	jsonBytesTag = "$bytes"
)

// --------------------------------------------------------------------------
// Value
// --------------------------------------------------------------------------

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.Bool)
	case KindNumber:
		return json.Marshal(v.Num)
	case KindTime:
		return json.Marshal(map[string]string{jsonTimeTag: v.Time.Format(time.RFC3339Nano)})
	case KindString:
		return json.Marshal(v.Str)
	case KindBinary:
		return json.Marshal(map[string]string{jsonBytesTag: base64.StdEncoding.EncodeToString(v.Bin)})
	case KindArray:
		if v.Arr == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.Arr)
	case KindObject:
		if v.Obj == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(v.Obj)
	default:
		return nil, fmt.Errorf("keypath: cannot marshal value kind %s", v.Kind)
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(b []byte) error {
	var raw interface{}
	dec := jsonNumberDecoder(b)
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	val, err := valueFromJSON(raw)
	if err != nil {
		return err
	}
	*v = val
	return nil
}

// jsonNumberDecoder decodes with json.Number so large integers survive the
// round trip through float64 only once.
func jsonNumberDecoder(b []byte) *json.Decoder {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	return dec
}

func valueFromJSON(raw interface{}) (Value, error) {
	switch t := raw.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Boolean(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, err
		}
		return Number(f), nil
	case string:
		return String(t), nil
	case []interface{}:
		elems := make([]Value, len(t))
		for i, e := range t {
			v, err := valueFromJSON(e)
			if err != nil {
				return Value{}, err
			}
			elems[i] = v
		}
		return Array(elems...), nil
	case map[string]interface{}:
		if len(t) == 1 {
			if s, ok := t[jsonTimeTag].(string); ok {
				ts, err := time.Parse(time.RFC3339Nano, s)
				if err != nil {
					return Value{}, fmt.Errorf("keypath: bad %s value: %w", jsonTimeTag, err)
				}
				return Timestamp(ts), nil
			}
			if s, ok := t[jsonBytesTag].(string); ok {
				b, err := base64.StdEncoding.DecodeString(s)
				if err != nil {
					return Value{}, fmt.Errorf("keypath: bad %s value: %w", jsonBytesTag, err)
				}
				return Binary(b), nil
			}
		}
		m := make(map[string]Value, len(t))
		for k, e := range t {
			v, err := valueFromJSON(e)
			if err != nil {
				return Value{}, err
			}
			m[k] = v
		}
		return Object(m), nil
	default:
		return Value{}, fmt.Errorf("keypath: cannot unmarshal %T", raw)
	}
}

// --------------------------------------------------------------------------
// Key
// --------------------------------------------------------------------------

// MarshalJSON implements json.Marshaler. Keys reuse the value encoding; the
// key kinds are exactly the unambiguous subset of the value kinds.
func (k Key) MarshalJSON() ([]byte, error) {
	return k.Value().MarshalJSON()
}

// UnmarshalJSON implements json.Unmarshaler.
func (k *Key) UnmarshalJSON(b []byte) error {
	var v Value
	if err := v.UnmarshalJSON(b); err != nil {
		return err
	}
	key, ok := KeyFromValue(v)
	if !ok {
		return fmt.Errorf("keypath: %s is not a valid key", v.Kind)
	}
	*k = key
	return nil
}
