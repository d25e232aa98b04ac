package engine

import (
	"github.com/VictoriaMetrics/metrics"

	"github.com/jmendel/idb/lib/keypath"
)

var (
	metricRequests       = metrics.GetOrCreateCounter("idb_requests_total")
	metricRequestsFailed = metrics.GetOrCreateCounter("idb_requests_failed_total")
)

// --------------------------------------------------------------------------
// Request State
// --------------------------------------------------------------------------

// RequestState tracks the externally visible lifecycle of a request. A
// request's outcome is computed synchronously when the operation is issued,
// but the request stays Pending until its notification turn has run.
type RequestState uint8

const (
	RequestPending RequestState = iota
	RequestDone
)

func (s RequestState) String() string {
	switch s {
	case RequestPending:
		return "Pending"
	case RequestDone:
		return "Done"
	default:
		return "Unknown"
	}
}

// --------------------------------------------------------------------------
// Result
// --------------------------------------------------------------------------

// DatabaseInfo is one entry of a ListDatabases result.
type DatabaseInfo struct {
	Name    string
	Version uint64
}

// Result carries the payload of a successful request. Which fields are
// populated depends on the operation: Key for add/put, Value for get,
// Keys/Values for the batch reads, Count for count, Cursor for cursor
// operations (nil once the cursor is exhausted), Conn for open and
// Databases for ListDatabases.
type Result struct {
	Key       keypath.Key
	HasKey    bool
	Value     keypath.Value
	HasValue  bool
	Keys      []keypath.Key
	Values    []keypath.Value
	Count     uint64
	Cursor    *Cursor
	Conn      *Conn
	Databases []DatabaseInfo
}

// --------------------------------------------------------------------------
// Request
// --------------------------------------------------------------------------

// Request is the deferred-completion handle returned by every operation.
// The operation's side effects are already applied when the request is
// handed out; only the notification is deferred.
//
// Error callbacks return an acknowledgement flag. A failed request whose
// delivery ends with no callback returning true cascade-aborts its owning
// transaction. Registry-level requests have no owning transaction and never
// cascade.
//
// Thread-safety: requests are confined to the scheduler goroutine; they
// have no internal locking.
type Request struct {
	sched *Scheduler
	tx    *Transaction

	state     RequestState
	res       Result
	err       error
	delivered bool

	onSuccess []func(Result)
	onError   []func(error) bool
}

func newRequest(sched *Scheduler, tx *Transaction) *Request {
	metricRequests.Inc()
	return &Request{sched: sched, tx: tx}
}

// OnSuccess attaches a success callback. Attaching to an already delivered
// successful request invokes the callback immediately.
func (r *Request) OnSuccess(fn func(Result)) *Request {
	if r.delivered {
		if r.err == nil {
			fn(r.res)
		}
		return r
	}
	r.onSuccess = append(r.onSuccess, fn)
	return r
}

// OnError attaches an error callback. The returned flag acknowledges the
// failure: if no callback acknowledges it by the end of the delivery turn,
// the owning transaction aborts. Attaching to an already delivered failed
// request invokes the callback immediately; the flag is then ignored since
// the cascade decision has been made.
func (r *Request) OnError(fn func(error) bool) *Request {
	if r.delivered {
		if r.err != nil {
			fn(r.err)
		}
		return r
	}
	r.onError = append(r.onError, fn)
	return r
}

// State returns the request's lifecycle state.
func (r *Request) State() RequestState { return r.state }

// Done reports whether the notification has been delivered.
func (r *Request) Done() bool { return r.delivered }

// Result returns the request outcome. It is only meaningful once Done
// reports true.
func (r *Request) Result() (Result, error) { return r.res, r.err }

// Err returns the request error, nil on success or while pending.
func (r *Request) Err() error { return r.err }

// resolve records the outcome computed at issuance time.
func (r *Request) resolve(res Result, err error) {
	r.res = res
	r.err = err
}

// fail overrides the outcome with an error. Used by transaction abort to
// invalidate not-yet-notified requests.
func (r *Request) fail(err error) {
	r.res = Result{}
	r.err = err
}

// deliver runs the notification callbacks. Runs as a scheduler task.
func (r *Request) deliver() {
	if r.delivered {
		return
	}
	r.delivered = true
	r.state = RequestDone

	if r.err != nil {
		metricRequestsFailed.Inc()
		handled := false
		for _, fn := range r.onError {
			if fn(r.err) {
				handled = true
			}
		}
		if !handled && r.tx != nil {
			r.tx.cascadeAbort(r.err)
		}
		return
	}
	for _, fn := range r.onSuccess {
		fn(r.res)
	}
}
