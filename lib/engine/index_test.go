package engine

import (
	"testing"

	"github.com/jmendel/idb/lib/keypath"
)

func userObj(id float64, email string, tags ...string) keypath.Value {
	m := map[string]keypath.Value{
		"id":    keypath.Number(id),
		"email": keypath.String(email),
	}
	if len(tags) > 0 {
		elems := make([]keypath.Value, len(tags))
		for i, tag := range tags {
			elems[i] = keypath.String(tag)
		}
		m["tags"] = keypath.Array(elems...)
	}
	return keypath.Object(m)
}

// newUserConn builds a store keyed on "id" with a unique email index and a
// multi-entry tag index
func newUserConn(t *testing.T) (*Registry, *Conn) {
	t.Helper()
	return newStoreConn(t, StoreDef{Name: "users", KeyPath: "id"},
		IndexDef{Name: "by_email", KeyPath: "email", Unique: true},
		IndexDef{Name: "by_tag", KeyPath: "tags", MultiEntry: true},
	)
}

// TestUniqueIndexCollision tests that a write mapping an occupied unique
// index key fails with ConstraintError and leaves no trace
func TestUniqueIndexCollision(t *testing.T) {
	reg, conn := newUserConn(t)
	_, st := beginTx(t, conn, "users", ReadWrite)
	add, _ := st.Add(userObj(1, "a@example.com"))
	await(t, reg, add)

	_, st = beginTx(t, conn, "users", ReadWrite)
	dup, _ := st.Add(userObj(2, "a@example.com"))
	if err := awaitErr(t, reg, dup); !IsKind(err, ErrConstraint) {
		t.Fatalf("err = %v, want ConstraintError", err)
	}

	// neither record 2 nor any index entry for it may exist
	_, st = beginTx(t, conn, "users", ReadOnly)
	get, _ := st.Get(keypath.NumberKey(2))
	if res := await(t, reg, get); res.HasValue {
		t.Error("record 2 exists after failed add")
	}
	_, st = beginTx(t, conn, "users", ReadOnly)
	ix, err := st.Index("by_email")
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	lookup, _ := ix.Get(keypath.StringKey("a@example.com"))
	res := await(t, reg, lookup)
	if !res.HasKey || !res.Key.Equal(keypath.NumberKey(1)) {
		t.Errorf("index still maps to %v, want primary 1", res.Key)
	}

	// overwriting the holder itself is no collision
	_, st = beginTx(t, conn, "users", ReadWrite)
	put, err := st.Put(userObj(1, "a@example.com"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	await(t, reg, put)
}

// TestIndexGetAndGetAll tests lookups through the derived key order
func TestIndexGetAndGetAll(t *testing.T) {
	reg, conn := newUserConn(t)
	_, st := beginTx(t, conn, "users", ReadWrite)
	st.Add(userObj(1, "c@example.com"))
	st.Add(userObj(2, "a@example.com"))
	st.Add(userObj(3, "b@example.com"))
	reg.Scheduler().RunUntilIdle()

	_, st = beginTx(t, conn, "users", ReadOnly)
	ix, _ := st.Index("by_email")

	get, _ := ix.Get(keypath.StringKey("b@example.com"))
	res := await(t, reg, get)
	if !res.HasValue || !res.Key.Equal(keypath.NumberKey(3)) {
		t.Errorf("Get = key %v, want primary 3", res.Key)
	}

	_, st = beginTx(t, conn, "users", ReadOnly)
	ix, _ = st.Index("by_email")
	miss, _ := ix.Get(keypath.StringKey("nobody@example.com"))
	if res := await(t, reg, miss); res.HasValue {
		t.Error("missing index key produced a value")
	}

	// GetAllKeys surfaces primaries in index key order
	_, st = beginTx(t, conn, "users", ReadOnly)
	ix, _ = st.Index("by_email")
	keys, _ := ix.GetAllKeys(nil, 0)
	res = await(t, reg, keys)
	want := []float64{2, 3, 1}
	if len(res.Keys) != len(want) {
		t.Fatalf("keys = %v, want %v", res.Keys, want)
	}
	for i := range want {
		if !res.Keys[i].Equal(keypath.NumberKey(want[i])) {
			t.Errorf("keys[%d] = %v, want %g", i, res.Keys[i], want[i])
		}
	}
}

// TestMultiEntryIndex tests array fan-out, per-record deduplication and
// retraction on overwrite
func TestMultiEntryIndex(t *testing.T) {
	reg, conn := newUserConn(t)
	_, st := beginTx(t, conn, "users", ReadWrite)
	st.Add(userObj(1, "a@example.com", "go", "db", "go")) // duplicate element
	st.Add(userObj(2, "b@example.com", "db"))
	reg.Scheduler().RunUntilIdle()

	_, st = beginTx(t, conn, "users", ReadOnly)
	ix, _ := st.Index("by_tag")
	cnt, _ := ix.Count(nil)
	// record 1 contributes go+db (deduped), record 2 contributes db
	if res := await(t, reg, cnt); res.Count != 3 {
		t.Errorf("entry count = %d, want 3", res.Count)
	}

	_, st = beginTx(t, conn, "users", ReadOnly)
	ix, _ = st.Index("by_tag")
	keys, _ := ix.GetAllKeys(Only(keypath.StringKey("db")), 0)
	res := await(t, reg, keys)
	if len(res.Keys) != 2 {
		t.Fatalf("primaries under \"db\" = %v, want 2", res.Keys)
	}

	// overwriting record 1 without tags retracts its entries
	_, st = beginTx(t, conn, "users", ReadWrite)
	put, _ := st.Put(userObj(1, "a@example.com"))
	await(t, reg, put)

	_, st = beginTx(t, conn, "users", ReadOnly)
	ix, _ = st.Index("by_tag")
	cnt, _ = ix.Count(nil)
	if res := await(t, reg, cnt); res.Count != 1 {
		t.Errorf("entry count after overwrite = %d, want 1", res.Count)
	}
}

// TestRecordsWithoutIndexKey tests that records missing the index path are
// simply absent from the index
func TestRecordsWithoutIndexKey(t *testing.T) {
	reg, conn := newStoreConn(t, StoreDef{Name: "users", KeyPath: "id"},
		IndexDef{Name: "by_nick", KeyPath: "nick"})
	_, st := beginTx(t, conn, "users", ReadWrite)
	st.Add(numObj(1, "no nick"))
	st.Add(keypath.Object(map[string]keypath.Value{
		"id":   keypath.Number(2),
		"nick": keypath.String("ace"),
	}))
	reg.Scheduler().RunUntilIdle()

	_, st = beginTx(t, conn, "users", ReadOnly)
	ix, _ := st.Index("by_nick")
	cnt, _ := ix.Count(nil)
	if res := await(t, reg, cnt); res.Count != 1 {
		t.Errorf("entry count = %d, want 1", res.Count)
	}
	_, st = beginTx(t, conn, "users", ReadOnly)
	cnt, _ = st.Count(nil)
	if res := await(t, reg, cnt); res.Count != 2 {
		t.Errorf("record count = %d, want 2", res.Count)
	}
}

// TestIndexMaintainedThroughMutations tests that delete and clear retract
// index entries
func TestIndexMaintainedThroughMutations(t *testing.T) {
	reg, conn := newUserConn(t)
	_, st := beginTx(t, conn, "users", ReadWrite)
	st.Add(userObj(1, "a@example.com"))
	st.Add(userObj(2, "b@example.com"))
	reg.Scheduler().RunUntilIdle()

	_, st = beginTx(t, conn, "users", ReadWrite)
	del, _ := st.Delete(keypath.NumberKey(1))
	await(t, reg, del)

	_, st = beginTx(t, conn, "users", ReadOnly)
	ix, _ := st.Index("by_email")
	lookup, _ := ix.Get(keypath.StringKey("a@example.com"))
	if res := await(t, reg, lookup); res.HasValue {
		t.Error("index entry survived record deletion")
	}

	// freed unique key is reusable
	_, st = beginTx(t, conn, "users", ReadWrite)
	add, err := st.Add(userObj(3, "a@example.com"))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	await(t, reg, add)

	_, st = beginTx(t, conn, "users", ReadWrite)
	clr, _ := st.Clear()
	await(t, reg, clr)
	_, st = beginTx(t, conn, "users", ReadOnly)
	ix, _ = st.Index("by_email")
	cnt, _ := ix.Count(nil)
	if res := await(t, reg, cnt); res.Count != 0 {
		t.Errorf("entry count after clear = %d, want 0", res.Count)
	}
}

// TestCreateIndexBackfill tests that an index created during an upgrade
// covers the records already in the store
func TestCreateIndexBackfill(t *testing.T) {
	reg, conn := newStoreConn(t, StoreDef{Name: "users", KeyPath: "id"})
	_, st := beginTx(t, conn, "users", ReadWrite)
	st.Add(userObj(1, "a@example.com"))
	st.Add(userObj(2, "b@example.com"))
	reg.Scheduler().RunUntilIdle()

	conn2 := openTestDB(t, reg, "testdb", 2, func(tx *Transaction) {
		st, err := tx.Store("users")
		if err != nil {
			t.Fatalf("Store: %v", err)
		}
		if _, err := st.CreateIndex(IndexDef{Name: "by_email", KeyPath: "email", Unique: true}); err != nil {
			t.Fatalf("CreateIndex: %v", err)
		}
	})

	_, st = beginTx(t, conn2, "users", ReadOnly)
	ix, err := st.Index("by_email")
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	lookup, _ := ix.Get(keypath.StringKey("b@example.com"))
	res := await(t, reg, lookup)
	if !res.HasKey || !res.Key.Equal(keypath.NumberKey(2)) {
		t.Errorf("backfilled lookup = %v, want primary 2", res.Key)
	}
}

// TestCreateIndexBackfillCollisionAbortsUpgrade tests that a unique
// collision in existing data aborts the upgrade and rolls it back
func TestCreateIndexBackfillCollisionAbortsUpgrade(t *testing.T) {
	reg, conn := newStoreConn(t, StoreDef{Name: "users", KeyPath: "id"})
	_, st := beginTx(t, conn, "users", ReadWrite)
	st.Add(userObj(1, "same@example.com"))
	st.Add(userObj(2, "same@example.com"))
	reg.Scheduler().RunUntilIdle()

	open := reg.Open("testdb", 2).OnUpgrade(func(tx *Transaction, _, _ uint64) {
		st, err := tx.Store("users")
		if err != nil {
			t.Fatalf("Store: %v", err)
		}
		_, err = st.CreateIndex(IndexDef{Name: "by_email", KeyPath: "email", Unique: true})
		if !IsKind(err, ErrConstraint) {
			t.Errorf("CreateIndex err = %v, want ConstraintError", err)
		}
	})
	reg.Scheduler().RunUntilIdle()

	if err := open.Err(); !IsKind(err, ErrConstraint) {
		t.Fatalf("open err = %v, want ConstraintError", err)
	}
	db, _ := reg.Database("testdb")
	if db.Version() != 1 {
		t.Errorf("version = %d, want 1 (upgrade rolled back)", db.Version())
	}
	if defs, _ := db.IndexDefs("users"); len(defs) != 0 {
		t.Errorf("index defs after rollback = %v, want none", defs)
	}
}

// TestDeleteIndex tests index removal during an upgrade
func TestDeleteIndex(t *testing.T) {
	reg, conn := newUserConn(t)
	_ = conn

	conn2 := openTestDB(t, reg, "testdb", 2, func(tx *Transaction) {
		st, err := tx.Store("users")
		if err != nil {
			t.Fatalf("Store: %v", err)
		}
		if err := st.DeleteIndex("by_tag"); err != nil {
			t.Fatalf("DeleteIndex: %v", err)
		}
		if err := st.DeleteIndex("ghost"); !IsKind(err, ErrNotFound) {
			t.Errorf("DeleteIndex(ghost) err = %v, want NotFound", err)
		}
	})

	_, st := beginTx(t, conn2, "users", ReadOnly)
	if _, err := st.Index("by_tag"); !IsKind(err, ErrNotFound) {
		t.Errorf("Index(by_tag) err = %v, want NotFound", err)
	}
	names := st.IndexNames()
	if len(names) != 1 || names[0] != "by_email" {
		t.Errorf("index names = %v, want [by_email]", names)
	}
	reg.Scheduler().RunUntilIdle()
}
