package clrt

import "sync"

// Event execution statuses. An event moves Queued → Submitted → Running →
// Complete; any negative Code value is a terminal error status.
const (
	EventComplete  int32 = 0
	EventRunning   int32 = 1
	EventSubmitted int32 = 2
	EventQueued    int32 = 3
)

// eventWork is the retained closure an event runs on the queue worker.
type eventWork func(q *Queue) error

// Event represents one enqueued command. It holds the dependency events
// that must complete first, the retained closure to run, and the execution
// status. Dependencies must exist before the event is created, so the
// graph is acyclic by construction.
//
// A terminal status (Complete or an error Code) is set exactly once and is
// immutable afterwards; Wait may be called any number of times from any
// goroutine.
type Event struct {
	ctx   *Context
	queue *Queue
	deps  []*Event
	work  eventWork

	mu     sync.Mutex
	status int32
	done   chan struct{}
}

func newEvent(q *Queue, deps []*Event, work eventWork) *Event {
	return &Event{
		ctx:    q.ctx,
		queue:  q,
		deps:   append([]*Event(nil), deps...),
		work:   work,
		status: EventQueued,
		done:   make(chan struct{}),
	}
}

// newTrivialEvent builds an event whose closure always succeeds. Markers,
// barriers and zero-sized launches use it.
func newTrivialEvent(q *Queue, deps []*Event) *Event {
	return newEvent(q, deps, func(*Queue) error { return nil })
}

// Context returns the context the event was enqueued in.
func (e *Event) Context() *Context { return e.ctx }

// Status returns the current execution status without blocking.
func (e *Event) Status() int32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// terminal reports whether s is a final status.
func terminal(s int32) bool { return s <= EventComplete }

// setStatus advances the execution status. Once a terminal status is set,
// further transitions are ignored.
func (e *Event) setStatus(s int32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if terminal(e.status) {
		return
	}
	e.status = s
	if terminal(s) {
		close(e.done)
	}
}

// Wait blocks until the event reaches a terminal status and returns it as
// a Code: Success for completion, the propagated error code otherwise.
func (e *Event) Wait() Code {
	<-e.done
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status < 0 {
		return Code(e.status)
	}
	return Success
}

// call runs the event's closure and resolves the status from its result.
func (e *Event) call(q *Queue) {
	e.setStatus(EventRunning)
	if err := e.work(q); err != nil {
		e.setStatus(int32(CodeOf(err)))
		return
	}
	e.setStatus(EventComplete)
}

// waitDeps waits for every dependency and returns the first error code
// encountered, in dependency order.
func (e *Event) waitDeps() Code {
	for _, d := range e.deps {
		if c := d.Wait(); c != Success {
			return c
		}
	}
	return Success
}
