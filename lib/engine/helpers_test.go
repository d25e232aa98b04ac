package engine

import (
	"testing"
	"time"

	"github.com/jmendel/idb/lib/keypath"
)

// timeKeyFixture is a fixed instant for tests exercising time keys.
var timeKeyFixture = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// openTestDB opens (creating or upgrading) a database, running setup inside
// the upgrade transaction, and drains the scheduler.
func openTestDB(t *testing.T, reg *Registry, name string, version uint64, setup func(tx *Transaction)) *Conn {
	t.Helper()
	open := reg.Open(name, version)
	if setup != nil {
		open.OnUpgrade(func(tx *Transaction, _, _ uint64) { setup(tx) })
	}
	reg.Scheduler().RunUntilIdle()
	res, err := open.Result()
	if err != nil {
		t.Fatalf("open %q at version %d failed: %v", name, version, err)
	}
	return res.Conn
}

// newStoreConn builds a registry with one database holding the given store
// and indices.
func newStoreConn(t *testing.T, def StoreDef, indices ...IndexDef) (*Registry, *Conn) {
	t.Helper()
	reg := NewRegistry()
	conn := openTestDB(t, reg, "testdb", 1, func(tx *Transaction) {
		st, err := tx.CreateStore(def)
		if err != nil {
			t.Fatalf("CreateStore: %v", err)
		}
		for _, ix := range indices {
			if _, err := st.CreateIndex(ix); err != nil {
				t.Fatalf("CreateIndex %q: %v", ix.Name, err)
			}
		}
	})
	return reg, conn
}

// beginTx starts a transaction over one store and returns its handle.
func beginTx(t *testing.T, conn *Conn, store string, mode Mode) (*Transaction, *StoreHandle) {
	t.Helper()
	tx, err := conn.CreateTransaction([]string{store}, mode)
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	st, err := tx.Store(store)
	if err != nil {
		t.Fatalf("Store(%q): %v", store, err)
	}
	return tx, st
}

// await drains the scheduler and returns the request's successful result.
func await(t *testing.T, reg *Registry, req *Request) Result {
	t.Helper()
	reg.Scheduler().RunUntilIdle()
	res, err := req.Result()
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if !req.Done() {
		t.Fatal("request not delivered after drain")
	}
	return res
}

// awaitErr drains the scheduler and returns the request's error, keeping the
// owning transaction alive by acknowledging the failure.
func awaitErr(t *testing.T, reg *Registry, req *Request) error {
	t.Helper()
	req.OnError(func(error) bool { return true })
	reg.Scheduler().RunUntilIdle()
	if !req.Done() {
		t.Fatal("request not delivered after drain")
	}
	return req.Err()
}

// numObj builds a record object with a numeric "id" member and a name.
func numObj(id float64, name string) keypath.Value {
	return keypath.Object(map[string]keypath.Value{
		"id":   keypath.Number(id),
		"name": keypath.String(name),
	})
}
