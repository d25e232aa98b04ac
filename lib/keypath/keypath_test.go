package keypath

import (
	"testing"
)

func doc() Value {
	return Object(map[string]Value{
		"id":   Number(7),
		"name": String("widget"),
		"meta": Object(map[string]Value{
			"owner": String("alice"),
			"size":  Number(3),
		}),
		"tags": Array(String("a"), String("b"), String("a"), Number(1)),
	})
}

// TestExtract tests key path resolution against nested documents
func TestExtract(t *testing.T) {
	testCases := []struct {
		name string
		path string
		want Value
		ok   bool
	}{
		{"top level", "id", Number(7), true},
		{"nested", "meta.owner", String("alice"), true},
		{"empty path is identity", "", doc(), true},
		{"missing segment", "missing", Value{}, false},
		{"missing nested segment", "meta.missing", Value{}, false},
		{"crosses scalar", "name.sub", Value{}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Extract(doc(), tc.path)
			if ok != tc.ok {
				t.Fatalf("Extract(%q) ok = %v, want %v", tc.path, ok, tc.ok)
			}
			if ok && !got.Equal(tc.want) {
				t.Errorf("Extract(%q) = %s, want %s", tc.path, got, tc.want)
			}
		})
	}
}

// TestInject tests writing generated keys into documents
func TestInject(t *testing.T) {
	t.Run("existing segment", func(t *testing.T) {
		in := Object(map[string]Value{"name": String("x")})
		out, ok := Inject(in, "id", NumberKey(42))
		if !ok {
			t.Fatal("Inject failed")
		}
		if got, _ := Extract(out, "id"); !got.Equal(Number(42)) {
			t.Errorf("injected id = %s, want 42", got)
		}
	})

	t.Run("creates intermediate objects", func(t *testing.T) {
		in := Object(map[string]Value{})
		out, ok := Inject(in, "meta.seq.id", NumberKey(1))
		if !ok {
			t.Fatal("Inject failed")
		}
		if got, ok := Extract(out, "meta.seq.id"); !ok || !got.Equal(Number(1)) {
			t.Errorf("injected meta.seq.id = %s, want 1", got)
		}
	})

	t.Run("does not mutate the input", func(t *testing.T) {
		in := Object(map[string]Value{"name": String("x")})
		_, ok := Inject(in, "id", NumberKey(42))
		if !ok {
			t.Fatal("Inject failed")
		}
		if _, found := Extract(in, "id"); found {
			t.Error("Inject mutated its input")
		}
	})

	t.Run("path crosses scalar", func(t *testing.T) {
		in := Object(map[string]Value{"name": String("x")})
		if _, ok := Inject(in, "name.id", NumberKey(1)); ok {
			t.Error("expected failure when path crosses a scalar")
		}
	})

	t.Run("non-object root", func(t *testing.T) {
		if _, ok := Inject(Number(1), "id", NumberKey(1)); ok {
			t.Error("expected failure for non-object root")
		}
	})
}

// TestIndexKeys tests index key fan-out
func TestIndexKeys(t *testing.T) {
	t.Run("single key", func(t *testing.T) {
		keys := IndexKeys(doc(), "meta.owner", false)
		if len(keys) != 1 || !keys[0].Equal(StringKey("alice")) {
			t.Errorf("got %v, want [\"alice\"]", keys)
		}
	})

	t.Run("array without multiEntry yields nothing", func(t *testing.T) {
		// an array is not itself a valid key
		if keys := IndexKeys(doc(), "tags", false); len(keys) != 0 {
			t.Errorf("got %v, want none", keys)
		}
	})

	t.Run("multiEntry fans out and dedupes", func(t *testing.T) {
		keys := IndexKeys(doc(), "tags", true)
		want := []Key{StringKey("a"), StringKey("b"), NumberKey(1)}
		if len(keys) != len(want) {
			t.Fatalf("got %v, want %v", keys, want)
		}
		for i := range want {
			if !keys[i].Equal(want[i]) {
				t.Errorf("keys[%d] = %s, want %s", i, keys[i], want[i])
			}
		}
	})

	t.Run("multiEntry on scalar degrades to single key", func(t *testing.T) {
		keys := IndexKeys(doc(), "id", true)
		if len(keys) != 1 || !keys[0].Equal(NumberKey(7)) {
			t.Errorf("got %v, want [7]", keys)
		}
	})

	t.Run("missing path yields nothing", func(t *testing.T) {
		if keys := IndexKeys(doc(), "nope", true); len(keys) != 0 {
			t.Errorf("got %v, want none", keys)
		}
	})

	t.Run("key-invalid value yields nothing", func(t *testing.T) {
		v := Object(map[string]Value{"flag": Boolean(true)})
		if keys := IndexKeys(v, "flag", false); len(keys) != 0 {
			t.Errorf("got %v, want none", keys)
		}
	})
}
