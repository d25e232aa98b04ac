package engine

import (
	"sync"

	"github.com/VictoriaMetrics/metrics"
)

// --------------------------------------------------------------------------
// Metrics
// --------------------------------------------------------------------------

var (
	metricTurns = metrics.GetOrCreateCounter("idb_scheduler_turns_total")
	metricTasks = metrics.GetOrCreateCounter("idb_scheduler_tasks_total")
)

// --------------------------------------------------------------------------
// Scheduler
// --------------------------------------------------------------------------

// Scheduler is the cooperative completion queue of the engine. Operations
// apply their side effects synchronously and post their notification as a
// task; a later drain of the queue delivers them. One task is one turn.
//
// The queue is strictly FIFO, which is what makes the issuance-order
// notification guarantee hold: requests post their delivery tasks in the
// order the operations were issued.
//
// Thread-safety: Post may be called from any goroutine; the queue is
// mutex-guarded. Draining is not reentrant, a single goroutine must own
// RunUntilIdle. Tasks run on the draining goroutine, which is the engine's
// "event loop thread".
type Scheduler struct {
	mu    sync.Mutex
	queue []func()
}

// NewScheduler creates an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Post appends a task to the queue. The task runs during a later drain,
// never synchronously, so a caller can post from inside its own call stack
// and is guaranteed to have returned before the task fires.
func (s *Scheduler) Post(task func()) {
	s.mu.Lock()
	s.queue = append(s.queue, task)
	s.mu.Unlock()
	metricTasks.Inc()
}

// RunUntilIdle drains the queue until it is empty, including tasks posted
// by the tasks it runs. It returns the number of turns executed.
func (s *Scheduler) RunUntilIdle() int {
	turns := 0
	for {
		task, ok := s.pop()
		if !ok {
			return turns
		}
		turns++
		metricTurns.Inc()
		task()
	}
}

// Idle reports whether the queue is empty.
func (s *Scheduler) Idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue) == 0
}

// pop removes and returns the head of the queue.
func (s *Scheduler) pop() (func(), bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil, false
	}
	task := s.queue[0]
	s.queue = s.queue[1:]
	return task, true
}
