package engine

import (
	"github.com/VictoriaMetrics/metrics"
)

var (
	metricTxStarted   = metrics.GetOrCreateCounter("idb_transactions_started_total")
	metricTxCommitted = metrics.GetOrCreateCounter("idb_transactions_committed_total")
	metricTxAborted   = metrics.GetOrCreateCounter("idb_transactions_aborted_total")
)

// --------------------------------------------------------------------------
// Access Modes
// --------------------------------------------------------------------------

// Mode is a transaction's access mode.
type Mode uint8

const (
	ReadOnly      Mode = iota // Reads only
	ReadWrite                 // Reads and record mutations
	VersionChange             // Catalog mutations; registry-created only
)

func (m Mode) String() string {
	switch m {
	case ReadOnly:
		return "readonly"
	case ReadWrite:
		return "readwrite"
	case VersionChange:
		return "versionchange"
	default:
		return "unknown"
	}
}

// --------------------------------------------------------------------------
// Transaction State
// --------------------------------------------------------------------------

// TxState is a transaction's lifecycle state.
type TxState uint8

const (
	TxActive TxState = iota
	TxCommitting
	TxCommitted
	TxAborted
)

func (s TxState) String() string {
	switch s {
	case TxActive:
		return "active"
	case TxCommitting:
		return "committing"
	case TxCommitted:
		return "committed"
	case TxAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// --------------------------------------------------------------------------
// Catalog Snapshot
// --------------------------------------------------------------------------

// catalogSnapshot captures a database's whole schema and contents before a
// versionchange transaction, so an aborted upgrade can be rolled back.
type catalogSnapshot struct {
	version    uint64
	stores     map[string]*storeSnapshot
	storeNames []string
}

// --------------------------------------------------------------------------
// Transaction
// --------------------------------------------------------------------------

// Transaction groups operations against a declared set of stores. It is
// created through Conn.CreateTransaction (or by the registry for
// versionchange upgrades) and runs the state machine
// active -> committing -> {committed, aborted}.
//
// Auto-commit: once a scheduler turn ends with no outstanding request and
// no new operation issued, the transaction commits and fires its completion
// notification, strictly after all request notifications.
//
// Thread-safety: transactions are confined to the scheduler goroutine.
type Transaction struct {
	db    *Database
	sched *Scheduler
	mode  Mode
	scope map[string]struct{} // nil for versionchange = whole database

	state   TxState
	err     error
	pending int // issued, notification not yet delivered

	requests  []*Request
	snapshots map[string]*storeSnapshot // readwrite rollback state
	catSnap   *catalogSnapshot          // versionchange rollback state

	onComplete []func()
	onAbort    []func(error)
}

// newTransaction snapshots the rollback state and registers the
// transaction with its database.
func newTransaction(db *Database, names []string, mode Mode) *Transaction {
	tx := &Transaction{
		db:    db,
		sched: db.sched,
		mode:  mode,
		state: TxActive,
	}
	switch mode {
	case VersionChange:
		stores := make(map[string]*storeSnapshot, len(db.stores))
		for name, st := range db.stores {
			stores[name] = st.snapshot()
		}
		order := make([]string, len(db.storeNames))
		copy(order, db.storeNames)
		tx.catSnap = &catalogSnapshot{version: db.version, stores: stores, storeNames: order}
	default:
		tx.scope = make(map[string]struct{}, len(names))
		for _, n := range names {
			tx.scope[n] = struct{}{}
		}
		if mode == ReadWrite {
			tx.snapshots = make(map[string]*storeSnapshot, len(names))
			for _, n := range names {
				tx.snapshots[n] = db.stores[n].snapshot()
			}
		}
	}
	metricTxStarted.Inc()
	// Arm the initial auto-commit probe. A transaction that never issues a
	// request must still commit once a turn ends with nothing outstanding.
	tx.sched.Post(tx.tryAutoCommit)
	return tx
}

// Mode returns the access mode.
func (tx *Transaction) Mode() Mode { return tx.mode }

// State returns the lifecycle state.
func (tx *Transaction) State() TxState { return tx.state }

// Err returns the abort cause, nil unless the transaction aborted.
func (tx *Transaction) Err() error { return tx.err }

// Database returns the owning database's name and version.
func (tx *Transaction) Database() (name string, version uint64) {
	return tx.db.name, tx.db.version
}

// OnComplete attaches a commit notification callback. Attaching after
// commit invokes it immediately.
func (tx *Transaction) OnComplete(fn func()) {
	if tx.state == TxCommitted {
		fn()
		return
	}
	tx.onComplete = append(tx.onComplete, fn)
}

// OnAbort attaches an abort notification callback. Attaching after abort
// invokes it immediately.
func (tx *Transaction) OnAbort(fn func(error)) {
	if tx.state == TxAborted {
		fn(tx.err)
		return
	}
	tx.onAbort = append(tx.onAbort, fn)
}

// --------------------------------------------------------------------------
// Scope
// --------------------------------------------------------------------------

// Store returns a handle for operating on the named store within this
// transaction. Fails with InvalidState when the store is outside the
// declared scope and NotFound when it does not exist.
func (tx *Transaction) Store(name string) (*StoreHandle, error) {
	if !tx.inScope(name) {
		return nil, Errorf(ErrInvalidState, "store %q is not in the transaction scope", name)
	}
	st, ok := tx.db.stores[name]
	if !ok {
		return nil, Errorf(ErrNotFound, "no store %q in database %q", name, tx.db.name)
	}
	return &StoreHandle{tx: tx, st: st}, nil
}

func (tx *Transaction) inScope(name string) bool {
	if tx.mode == VersionChange {
		return true
	}
	_, ok := tx.scope[name]
	return ok
}

// checkActive rejects operations once the transaction left the active
// state.
func (tx *Transaction) checkActive() error {
	if tx.state != TxActive {
		return Errorf(ErrInvalidState, "transaction is %s", tx.state)
	}
	return nil
}

// --------------------------------------------------------------------------
// Catalog Operations (versionchange only)
// --------------------------------------------------------------------------

// checkVersionChange rejects catalog mutations outside an active
// versionchange transaction.
func (tx *Transaction) checkVersionChange() error {
	if err := tx.checkActive(); err != nil {
		return err
	}
	if tx.mode != VersionChange {
		return Errorf(ErrInvalidState, "catalog mutation requires a versionchange transaction, not %s", tx.mode)
	}
	return nil
}

// CreateStore adds an object store to the catalog. Synchronous; legal only
// inside an active versionchange transaction.
func (tx *Transaction) CreateStore(def StoreDef) (*StoreHandle, error) {
	if err := tx.checkVersionChange(); err != nil {
		return nil, err
	}
	if _, exists := tx.db.stores[def.Name]; exists {
		return nil, Errorf(ErrConstraint, "store %q already exists in database %q", def.Name, tx.db.name)
	}
	st := newStoreState(def)
	tx.db.stores[def.Name] = st
	tx.db.storeNames = append(tx.db.storeNames, def.Name)
	return &StoreHandle{tx: tx, st: st}, nil
}

// DeleteStore removes an object store and all its records and indices.
func (tx *Transaction) DeleteStore(name string) error {
	if err := tx.checkVersionChange(); err != nil {
		return err
	}
	if _, exists := tx.db.stores[name]; !exists {
		return Errorf(ErrNotFound, "no store %q in database %q", name, tx.db.name)
	}
	delete(tx.db.stores, name)
	for i, n := range tx.db.storeNames {
		if n == name {
			tx.db.storeNames = append(tx.db.storeNames[:i], tx.db.storeNames[i+1:]...)
			break
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Request Scheduling
// --------------------------------------------------------------------------

// schedule queues the delivery of an already resolved request. The FIFO
// scheduler preserves issuance order; the auto-commit probe posted after
// the last delivery keeps the commit notification strictly behind every
// request notification.
func (tx *Transaction) schedule(r *Request) {
	tx.requests = append(tx.requests, r)
	tx.pending++
	tx.sched.Post(func() {
		r.deliver()
		tx.pending--
		if tx.pending == 0 && tx.state == TxActive {
			tx.sched.Post(tx.tryAutoCommit)
		}
	})
}

// tryAutoCommit commits if the transaction is still active with nothing
// outstanding. Operations issued between the probe being posted and run
// leave pending non-zero, which re-arms a later probe instead.
func (tx *Transaction) tryAutoCommit() {
	if tx.state != TxActive || tx.pending != 0 {
		return
	}
	tx.commit()
}

// commit finishes the transaction successfully and fires the completion
// notification. Writes were applied eagerly, so committing only discards
// the rollback state.
func (tx *Transaction) commit() {
	tx.state = TxCommitting
	tx.snapshots = nil
	tx.catSnap = nil
	if tx.mode == VersionChange {
		tx.db.upgradeActive = false
	}
	tx.state = TxCommitted
	metricTxCommitted.Inc()
	for _, fn := range tx.onComplete {
		fn()
	}
}

// --------------------------------------------------------------------------
// Abort
// --------------------------------------------------------------------------

// Abort explicitly aborts the transaction: writes are rolled back to the
// pre-transaction snapshot, every not-yet-notified request is failed with
// AbortError, and the abort notification fires instead of commit, after
// those request notifications.
func (tx *Transaction) Abort() error {
	if err := tx.checkActive(); err != nil {
		return err
	}
	tx.abort(NewError(ErrAbort, "transaction aborted"))
	return nil
}

// cascadeAbort aborts after an unacknowledged request failure.
func (tx *Transaction) cascadeAbort(cause error) {
	if tx.state != TxActive {
		return
	}
	tx.abort(cause)
}

func (tx *Transaction) abort(cause error) {
	tx.state = TxAborted
	tx.err = cause
	metricTxAborted.Inc()
	engineLog.Debugf("transaction on %q aborted: %v", tx.db.name, cause)

	// Roll written stores back to their pre-transaction snapshots.
	switch tx.mode {
	case ReadWrite:
		for name, snap := range tx.snapshots {
			if st, ok := tx.db.stores[name]; ok {
				st.restore(snap)
			}
		}
	case VersionChange:
		tx.db.version = tx.catSnap.version
		stores := make(map[string]*storeState, len(tx.catSnap.stores))
		for name, snap := range tx.catSnap.stores {
			st := &storeState{}
			st.restore(snap)
			stores[name] = st
		}
		tx.db.stores = stores
		tx.db.storeNames = tx.catSnap.storeNames
		tx.db.upgradeActive = false
	}
	tx.snapshots = nil
	tx.catSnap = nil

	// Invalidate every request whose notification has not fired yet. Their
	// delivery tasks are already queued ahead of the abort notification.
	abortErr := NewError(ErrAbort, "transaction aborted")
	for _, r := range tx.requests {
		if !r.delivered {
			r.fail(abortErr)
		}
	}
	tx.sched.Post(func() {
		for _, fn := range tx.onAbort {
			fn(tx.err)
		}
	})
}
