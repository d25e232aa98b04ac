package fixture

import (
	"github.com/lni/dragonboat/v4/logger"

	"github.com/jmendel/idb/lib/engine"
	"github.com/jmendel/idb/lib/keypath"
)

var fixtureLog = logger.GetLogger("fixture")

// --------------------------------------------------------------------------
// Fixture Documents
// --------------------------------------------------------------------------

// Fixture is a complete description of registry contents: databases with
// their schema and initial records.
type Fixture struct {
	Databases []DatabaseFixture `json:"databases"`
}

// DatabaseFixture describes one database.
type DatabaseFixture struct {
	Name    string         `json:"name"`
	Version uint64         `json:"version"`
	Stores  []StoreFixture `json:"stores,omitempty"`
}

// StoreFixture describes one object store with its indices and records.
type StoreFixture struct {
	Name          string          `json:"name"`
	KeyPath       string          `json:"keyPath,omitempty"`
	AutoIncrement bool            `json:"autoIncrement,omitempty"`
	Indices       []IndexFixture  `json:"indices,omitempty"`
	Records       []RecordFixture `json:"records,omitempty"`
}

// IndexFixture describes one secondary index.
type IndexFixture struct {
	Name       string `json:"name"`
	KeyPath    string `json:"keyPath"`
	Unique     bool   `json:"unique,omitempty"`
	MultiEntry bool   `json:"multiEntry,omitempty"`
}

// RecordFixture is one record. Key may be omitted for stores that resolve
// keys from the value or generate them.
type RecordFixture struct {
	Key   *keypath.Key  `json:"key,omitempty"`
	Value keypath.Value `json:"value"`
}

// --------------------------------------------------------------------------
// Seed / Dump
// --------------------------------------------------------------------------

// Seed applies the fixture to the registry through the raw bypass,
// replacing any databases of the same names. Schema errors (duplicate
// stores, index backfill collisions) and record errors (unresolvable keys,
// unique collisions) abort the seed with the engine's error.
func Seed(reg *engine.Registry, fx Fixture) error {
	for _, dbf := range fx.Databases {
		db := reg.SeedDatabase(dbf.Name, dbf.Version)
		for _, sf := range dbf.Stores {
			err := db.DefineStore(engine.StoreDef{
				Name:          sf.Name,
				KeyPath:       sf.KeyPath,
				AutoIncrement: sf.AutoIncrement,
			})
			if err != nil {
				return err
			}
			for _, ixf := range sf.Indices {
				err := db.DefineIndex(sf.Name, engine.IndexDef{
					Name:       ixf.Name,
					KeyPath:    ixf.KeyPath,
					Unique:     ixf.Unique,
					MultiEntry: ixf.MultiEntry,
				})
				if err != nil {
					return err
				}
			}
			for _, rf := range sf.Records {
				if _, err := db.PutRaw(sf.Name, rf.Value, rf.Key); err != nil {
					return err
				}
			}
		}
		fixtureLog.Debugf("seeded database %q at version %d with %d stores",
			dbf.Name, dbf.Version, len(dbf.Stores))
	}
	return nil
}

// Dump reads the named databases (all when names is empty) back into a
// fixture, records in key order. The result of a Dump seeds an equivalent
// registry.
func Dump(reg *engine.Registry, names ...string) (Fixture, error) {
	if len(names) == 0 {
		names = reg.DatabaseNames()
	}
	var fx Fixture
	for _, name := range names {
		db, ok := reg.Database(name)
		if !ok {
			return Fixture{}, engine.Errorf(engine.ErrNotFound, "no database %q", name)
		}
		dbf := DatabaseFixture{Name: db.Name(), Version: db.Version()}
		for _, storeName := range db.StoreNames() {
			def, _ := db.StoreDef(storeName)
			sf := StoreFixture{
				Name:          def.Name,
				KeyPath:       def.KeyPath,
				AutoIncrement: def.AutoIncrement,
			}
			ixDefs, err := db.IndexDefs(storeName)
			if err != nil {
				return Fixture{}, err
			}
			for _, ixDef := range ixDefs {
				sf.Indices = append(sf.Indices, IndexFixture{
					Name:       ixDef.Name,
					KeyPath:    ixDef.KeyPath,
					Unique:     ixDef.Unique,
					MultiEntry: ixDef.MultiEntry,
				})
			}
			records, err := db.DumpRecords(storeName)
			if err != nil {
				return Fixture{}, err
			}
			for _, rec := range records {
				k := rec.Key
				sf.Records = append(sf.Records, RecordFixture{Key: &k, Value: rec.Value})
			}
			dbf.Stores = append(dbf.Stores, sf)
		}
		fx.Databases = append(fx.Databases, dbf)
	}
	return fx, nil
}
