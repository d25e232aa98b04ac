package engine

import (
	"sort"

	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var (
	engineLog = logger.GetLogger("engine")

	metricOpens    = metrics.GetOrCreateCounter("idb_opens_total")
	metricUpgrades = metrics.GetOrCreateCounter("idb_upgrades_total")
	metricDeletes  = metrics.GetOrCreateCounter("idb_database_deletes_total")
)

// --------------------------------------------------------------------------
// Registry
// --------------------------------------------------------------------------

// Registry is the top-level catalog of named databases. It is an explicit,
// caller-owned instance (typically one per test) and owns the scheduler
// that drives all deferred completions of its databases.
//
// Thread-safety: the database table is concurrent, but operations and
// notification delivery are confined to the goroutine draining the
// scheduler.
type Registry struct {
	sched *Scheduler
	dbs   *xsync.MapOf[string, *Database]
}

// NewRegistry creates an empty registry with its own scheduler.
func NewRegistry() *Registry {
	return &Registry{
		sched: NewScheduler(),
		dbs:   xsync.NewMapOf[string, *Database](),
	}
}

// Scheduler returns the registry's completion scheduler. Callers drive it
// with RunUntilIdle after issuing operations.
func (r *Registry) Scheduler() *Scheduler { return r.sched }

// --------------------------------------------------------------------------
// Open
// --------------------------------------------------------------------------

// OpenRequest is the deferred handle of a Registry.Open call. In addition
// to the success/error notifications it exposes the upgrade hook that runs
// inside the versionchange transaction when a schema upgrade is needed.
type OpenRequest struct {
	*Request
	onUpgrade func(tx *Transaction, oldVersion, newVersion uint64)
}

// OnUpgrade attaches the upgrade callback. It fires at most once, before
// the success notification, with the versionchange transaction and the
// old/new version pair. Catalog mutations are only possible inside it.
func (o *OpenRequest) OnUpgrade(fn func(tx *Transaction, oldVersion, newVersion uint64)) *OpenRequest {
	o.onUpgrade = fn
	return o
}

// Open opens (creating or upgrading as needed) the named database at the
// requested version:
//
//   - unknown name: the database is created at the requested version; when
//     version > 0 an upgrade transaction (old version 0) runs first.
//   - stored version below requested: a versionchange transaction runs and
//     commits before the open completes.
//   - stored version above requested: the open fails with VersionError and
//     mutates nothing.
//
// While another versionchange transaction is active on the database the
// open waits its turn.
func (r *Registry) Open(name string, version uint64) *OpenRequest {
	metricOpens.Inc()
	o := &OpenRequest{Request: newRequest(r.sched, nil)}
	var attempt func()
	attempt = func() {
		db, ok := r.dbs.Load(name)
		created := !ok
		if created {
			db = newDatabase(name, 0, r.sched)
			r.dbs.Store(name, db)
		}
		if db.upgradeActive {
			// An upgrade is in flight; try again after it settles.
			r.sched.Post(attempt)
			return
		}
		switch {
		case db.version > version:
			o.resolve(Result{}, Errorf(ErrVersion,
				"database %q is at version %d, version %d requested", name, db.version, version))
			r.sched.Post(o.deliver)
		case db.version == version:
			o.resolve(Result{Conn: &Conn{db: db}}, nil)
			r.sched.Post(o.deliver)
		default:
			r.upgrade(db, o, version, created)
		}
	}
	r.sched.Post(attempt)
	return o
}

// upgrade runs the versionchange transaction for an open that found a
// lower stored version. The open request completes only after the upgrade
// transaction has committed; an aborted upgrade fails the open and rolls
// the catalog back. When the open created the database entry itself
// (created), an aborted upgrade unregisters it again so no version-0
// shell stays listed.
func (r *Registry) upgrade(db *Database, o *OpenRequest, newVersion uint64, created bool) {
	metricUpgrades.Inc()
	oldVersion := db.version
	engineLog.Infof("upgrading database %q from version %d to %d", db.name, oldVersion, newVersion)

	db.upgradeActive = true
	tx := newTransaction(db, nil, VersionChange)
	db.version = newVersion

	tx.OnComplete(func() {
		o.resolve(Result{Conn: &Conn{db: db}}, nil)
		r.sched.Post(o.deliver)
	})
	tx.OnAbort(func(err error) {
		engineLog.Warningf("upgrade of database %q to version %d aborted: %v", db.name, newVersion, err)
		if created {
			r.dbs.Delete(db.name)
		}
		o.resolve(Result{}, err)
		r.sched.Post(o.deliver)
	})

	if o.onUpgrade != nil {
		o.onUpgrade(tx, oldVersion, newVersion)
	}
}

// --------------------------------------------------------------------------
// Delete / List
// --------------------------------------------------------------------------

// DeleteDatabase removes the named database with all its stores and
// records. Deleting an unknown name succeeds. Like Open, the request waits
// for an in-flight versionchange transaction.
func (r *Registry) DeleteDatabase(name string) *Request {
	req := newRequest(r.sched, nil)
	var attempt func()
	attempt = func() {
		if db, ok := r.dbs.Load(name); ok && db.upgradeActive {
			r.sched.Post(attempt)
			return
		}
		if _, ok := r.dbs.LoadAndDelete(name); ok {
			metricDeletes.Inc()
			engineLog.Infof("deleted database %q", name)
		}
		req.resolve(Result{}, nil)
		r.sched.Post(req.deliver)
	}
	r.sched.Post(attempt)
	return req
}

// ListDatabases reports the name/version pairs of all known databases,
// sorted by name.
func (r *Registry) ListDatabases() *Request {
	req := newRequest(r.sched, nil)
	r.sched.Post(func() {
		var infos []DatabaseInfo
		r.dbs.Range(func(name string, db *Database) bool {
			infos = append(infos, DatabaseInfo{Name: name, Version: db.version})
			return true
		})
		sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
		req.resolve(Result{Databases: infos}, nil)
		r.sched.Post(req.deliver)
	})
	return req
}

// --------------------------------------------------------------------------
// Seeding / Introspection Bypass
// --------------------------------------------------------------------------

// SeedDatabase creates (or replaces) a database at the given version,
// bypassing the request path. Test fixture use only.
func (r *Registry) SeedDatabase(name string, version uint64) *Database {
	db := newDatabase(name, version, r.sched)
	r.dbs.Store(name, db)
	return db
}

// Database returns the named database for raw introspection.
func (r *Registry) Database(name string) (*Database, bool) {
	return r.dbs.Load(name)
}

// DatabaseNames returns all known database names, sorted.
func (r *Registry) DatabaseNames() []string {
	var names []string
	r.dbs.Range(func(name string, _ *Database) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}
