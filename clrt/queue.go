package clrt

import (
	"io"
	"os"
	"sync"

	"github.com/goclrt/goclrt/hal"
	"k8s.io/klog/v2"
)

// queueBatchBacklog bounds how many flushed batches may be in flight to
// the worker before Flush blocks.
const queueBatchBacklog = 8

// Queue is an ordered, asynchronously drained command stream bound to one
// context device. Every queue owns one backend execution context and one
// worker goroutine; the backend context is only ever touched from that
// worker.
//
// Enqueue operations never block the caller: they append an event to the
// pending list. Flush hands the entire pending list to the worker as one
// batch; within a batch, closures run in submission order.
type Queue struct {
	ctx  *Context
	dev  *Device
	exec hal.Context

	mu      sync.Mutex
	refs    int
	pending []*Event
	debugW  io.Writer

	work chan []*Event
	done chan struct{}
}

// SetDebugWriter redirects kernel debug (printf) output, which goes to
// standard output by default.
func (q *Queue) SetDebugWriter(w io.Writer) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.debugW = w
}

func (q *Queue) debugWriter() io.Writer {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.debugW == nil {
		return os.Stdout
	}
	return q.debugW
}

// CreateQueue creates a command queue on a device of the context and
// starts its worker.
func CreateQueue(ctx *Context, dev *Device) (*Queue, error) {
	if ctx == nil {
		return nil, errorf(ErrInvalidHandle, "nil context")
	}
	if dev == nil || !ctx.hasDevice(dev) {
		return nil, errorf(ErrInvalidHandle, "device %v is not part of the context", dev)
	}
	exec, err := dev.screen.CreateContext()
	if err != nil {
		return nil, errorf(ErrResourceExhaustion, "creating execution context on %s: %v", dev, err)
	}
	q := &Queue{
		ctx:  ctx,
		dev:  dev,
		exec: exec,
		refs: 1,
		work: make(chan []*Event, queueBatchBacklog),
		done: make(chan struct{}),
	}
	go q.worker()
	return q, nil
}

// Context returns the owning context.
func (q *Queue) Context() *Context { return q.ctx }

// Device returns the device the queue executes on.
func (q *Queue) Device() *Device { return q.dev }

func (q *Queue) worker() {
	klog.V(2).Infof("queue worker on %s started", q.dev)
	for batch := range q.work {
		for _, e := range batch {
			if c := e.waitDeps(); c != Success {
				// Propagate the dependency's exact status without
				// running the closure.
				e.setStatus(int32(c))
				continue
			}
			e.call(q)
		}
		// Wait on the whole batch so resources referenced by its
		// closures stay valid until every event retired.
		for _, e := range batch {
			e.Wait()
		}
		q.exec.Flush().Wait()
	}
	q.exec.Destroy()
	klog.V(2).Infof("queue worker on %s stopped", q.dev)
	close(q.done)
}

// queueEvent appends e to the pending list. The event stays Queued until
// the next flush.
func (q *Queue) queueEvent(e *Event) {
	q.mu.Lock()
	q.pending = append(q.pending, e)
	q.mu.Unlock()
}

// pendingSnapshot returns the current pending list. Barriers depend on it.
func (q *Queue) pendingSnapshot() []*Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*Event(nil), q.pending...)
}

// Flush drains the pending list and submits it to the worker as a single
// batch. With wait set, Flush additionally blocks until the last event of
// the batch retired; the worker handles a batch in submission order, so
// the last event retiring implies the whole batch did.
func (q *Queue) Flush(wait bool) {
	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, e := range batch {
		e.setStatus(EventSubmitted)
	}
	if len(batch) > 0 {
		q.work <- batch
	}
	if wait && len(batch) > 0 {
		batch[len(batch)-1].Wait()
	}
}

// Finish flushes the queue and blocks until all submitted work retired.
func (q *Queue) Finish() {
	q.Flush(true)
}

// Retain adds a reference to the queue.
func (q *Queue) Retain() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.refs++
}

// Release drops one reference. The final release implicitly flushes,
// stops the worker and destroys the backend execution context.
func (q *Queue) Release() {
	q.mu.Lock()
	if q.refs == 0 {
		q.mu.Unlock()
		klog.Errorf("Release called on already-destroyed queue")
		return
	}
	q.refs--
	last := q.refs == 0
	q.mu.Unlock()
	if !last {
		return
	}

	q.Flush(true)
	close(q.work)
	<-q.done
}
