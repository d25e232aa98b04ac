package keypath

import "strings"

// --------------------------------------------------------------------------
// Path Resolution
// --------------------------------------------------------------------------

// Extract resolves a dot-separated key path against a value. The boolean
// result is false when any path segment is missing or crosses a non-object.
// The empty path resolves to the value itself.
func Extract(v Value, path string) (Value, bool) {
	if path == "" {
		return v, true
	}
	cur := v
	for _, seg := range strings.Split(path, ".") {
		if cur.Kind != KindObject {
			return Value{}, false
		}
		next, ok := cur.Obj[seg]
		if !ok {
			return Value{}, false
		}
		cur = next
	}
	return cur, true
}

// Inject writes key (in value form) into v at the given path, creating
// intermediate objects for missing segments. It returns the updated value
// and false when the path crosses an existing non-object, in which case the
// input is returned unchanged.
//
// The root must be an object and the path must be non-empty; a generated key
// cannot replace the stored value itself.
func Inject(v Value, path string, key Key) (Value, bool) {
	if path == "" || v.Kind != KindObject {
		return v, false
	}
	segs := strings.Split(path, ".")
	root := v.Clone()
	cur := root
	for _, seg := range segs[:len(segs)-1] {
		next, ok := cur.Obj[seg]
		if !ok {
			next = Object(nil)
			cur.Obj[seg] = next
		} else if next.Kind != KindObject {
			return v, false
		}
		cur = next
	}
	cur.Obj[segs[len(segs)-1]] = key.Value()
	return root, true
}

// --------------------------------------------------------------------------
// Index Fan-Out
// --------------------------------------------------------------------------

// IndexKeys resolves the index keys a value contributes under the given key
// path. Without multiEntry the resolved value yields at most one key. With
// multiEntry an array value fans out to one key per valid element, with
// duplicates removed; a non-array value degrades to the single-key case.
//
// A missing path or a key-invalid resolved value contributes no keys; the
// record is simply absent from the index.
func IndexKeys(v Value, path string, multiEntry bool) []Key {
	resolved, ok := Extract(v, path)
	if !ok {
		return nil
	}
	if !multiEntry || resolved.Kind != KindArray {
		if k, ok := KeyFromValue(resolved); ok {
			return []Key{k}
		}
		return nil
	}
	keys := make([]Key, 0, len(resolved.Arr))
	for _, elem := range resolved.Arr {
		k, ok := KeyFromValue(elem)
		if !ok {
			continue
		}
		dup := false
		for _, seen := range keys {
			if seen.Equal(k) {
				dup = true
				break
			}
		}
		if !dup {
			keys = append(keys, k)
		}
	}
	return keys
}
