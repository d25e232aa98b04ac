package engine

import (
	"sort"

	"github.com/jmendel/idb/lib/keypath"
)

// --------------------------------------------------------------------------
// Database
// --------------------------------------------------------------------------

// Database holds one named database: its schema version, its object stores
// and their indices. Databases are owned by a Registry; normal interaction
// goes through Conn handles, the exported methods below are the
// seeding/introspection bypass used by test fixtures (no transactions, no
// requests, no ordering guarantees).
type Database struct {
	name          string
	version       uint64
	sched         *Scheduler
	stores        map[string]*storeState
	storeNames    []string // creation order
	upgradeActive bool
}

func newDatabase(name string, version uint64, sched *Scheduler) *Database {
	return &Database{
		name:    name,
		version: version,
		sched:   sched,
		stores:  map[string]*storeState{},
	}
}

// Name returns the database name.
func (db *Database) Name() string { return db.name }

// Version returns the current schema version.
func (db *Database) Version() uint64 { return db.version }

// StoreNames returns the store names in creation order.
func (db *Database) StoreNames() []string {
	names := make([]string, len(db.storeNames))
	copy(names, db.storeNames)
	return names
}

// StoreDef returns the definition of the named store.
func (db *Database) StoreDef(name string) (StoreDef, bool) {
	st, ok := db.stores[name]
	if !ok {
		return StoreDef{}, false
	}
	return st.def, true
}

// IndexDefs returns the index definitions of the named store in creation
// order.
func (db *Database) IndexDefs(store string) ([]IndexDef, error) {
	st, ok := db.stores[store]
	if !ok {
		return nil, Errorf(ErrNotFound, "no store %q in database %q", store, db.name)
	}
	defs := make([]IndexDef, 0, len(st.indexNames))
	for _, name := range st.indexNames {
		defs = append(defs, st.indices[name].def)
	}
	return defs, nil
}

// --------------------------------------------------------------------------
// Seeding Bypass
// --------------------------------------------------------------------------

// DefineStore adds a store to the catalog outside any transaction. Test
// fixture use only.
func (db *Database) DefineStore(def StoreDef) error {
	if _, exists := db.stores[def.Name]; exists {
		return Errorf(ErrConstraint, "store %q already exists in database %q", def.Name, db.name)
	}
	db.stores[def.Name] = newStoreState(def)
	db.storeNames = append(db.storeNames, def.Name)
	return nil
}

// DefineIndex adds an index outside any transaction, backfilling existing
// records. Test fixture use only.
func (db *Database) DefineIndex(store string, def IndexDef) error {
	st, ok := db.stores[store]
	if !ok {
		return Errorf(ErrNotFound, "no store %q in database %q", store, db.name)
	}
	return st.createIndex(def)
}

// PutRaw upserts a record outside any transaction, maintaining all
// indices. Test fixture use only.
func (db *Database) PutRaw(store string, value keypath.Value, key *keypath.Key) (keypath.Key, error) {
	st, ok := db.stores[store]
	if !ok {
		return keypath.Key{}, Errorf(ErrNotFound, "no store %q in database %q", store, db.name)
	}
	return st.insert(value, key, true)
}

// RecordDump is one primary key / value pair of a raw store dump.
type RecordDump struct {
	Key   keypath.Key
	Value keypath.Value
}

// DumpRecords returns the named store's records in key order, bypassing
// the transaction path. Test fixture use only.
func (db *Database) DumpRecords(store string) ([]RecordDump, error) {
	st, ok := db.stores[store]
	if !ok {
		return nil, Errorf(ErrNotFound, "no store %q in database %q", store, db.name)
	}
	var out []RecordDump
	st.records.Ascend(func(e recordEntry) bool {
		out = append(out, RecordDump{Key: e.key, Value: e.value})
		return true
	})
	return out, nil
}

// --------------------------------------------------------------------------
// Connection
// --------------------------------------------------------------------------

// Conn is a caller's handle on an open database, returned by
// Registry.Open. Transactions are created against a Conn; closing it only
// invalidates the handle, the database itself lives in the registry.
type Conn struct {
	db     *Database
	closed bool
}

// Name returns the database name.
func (c *Conn) Name() string { return c.db.name }

// Version returns the schema version the connection observes.
func (c *Conn) Version() uint64 { return c.db.version }

// StoreNames returns the store names in creation order.
func (c *Conn) StoreNames() []string { return c.db.StoreNames() }

// Close invalidates the handle. Subsequent CreateTransaction calls fail
// with InvalidState.
func (c *Conn) Close() { c.closed = true }

// CreateTransaction starts a transaction over the named stores.
// VersionChange is rejected here: upgrade transactions are created only by
// the registry during Open.
func (c *Conn) CreateTransaction(names []string, mode Mode) (*Transaction, error) {
	if c.closed {
		return nil, NewError(ErrInvalidState, "connection is closed")
	}
	if mode == VersionChange {
		return nil, NewError(ErrInvalidState, "versionchange transactions are created by Registry.Open")
	}
	if c.db.upgradeActive {
		return nil, Errorf(ErrInvalidState, "database %q has an active versionchange transaction", c.db.name)
	}
	if len(names) == 0 {
		return nil, NewError(ErrData, "transaction scope must name at least one store")
	}
	sorted := make([]string, len(names))
	copy(sorted, names)
	sort.Strings(sorted)
	for _, n := range sorted {
		if _, ok := c.db.stores[n]; !ok {
			return nil, Errorf(ErrNotFound, "no store %q in database %q", n, c.db.name)
		}
	}
	return newTransaction(c.db, sorted, mode), nil
}
