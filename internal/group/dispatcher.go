package group

import (
	"sync"
	"time"

	"groupcore/internal/logger"
	"groupcore/pkg/domain"
)

// DefaultQueueCapacity bounds the dispatcher's in-flight event queue.
const DefaultQueueCapacity = 256

// Dispatcher fans committed group events out to subscribers. Delivery runs
// on a single goroutine, so every subscriber observes events in dispatch
// order. Dispatch blocks only when the queue is full.
type Dispatcher struct {
	mu        sync.Mutex
	queue     chan domain.Event
	done      chan struct{}
	listeners map[int]func(domain.Event)
	nextID    int
	closed    bool
	pending   sync.WaitGroup
	log       *logger.Logger
}

// NewDispatcher starts a dispatcher with the given queue capacity.
func NewDispatcher(capacity int, log *logger.Logger) *Dispatcher {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	if log == nil {
		log = logger.Nop()
	}
	d := &Dispatcher{
		queue:     make(chan domain.Event, capacity),
		done:      make(chan struct{}),
		listeners: make(map[int]func(domain.Event)),
		log:       log,
	}
	go d.deliver()
	return d
}

func (d *Dispatcher) deliver() {
	defer close(d.done)
	for evt := range d.queue {
		d.mu.Lock()
		fns := make([]func(domain.Event), 0, len(d.listeners))
		for _, fn := range d.listeners {
			fns = append(fns, fn)
		}
		d.mu.Unlock()
		for _, fn := range fns {
			fn(evt)
		}
	}
}

// Subscribe registers fn for every subsequent event and returns a function
// that unsubscribes it.
func (d *Dispatcher) Subscribe(fn func(domain.Event)) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextID
	d.nextID++
	d.listeners[id] = fn
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.listeners, id)
	}
}

// Dispatch enqueues an event for delivery. Events dispatched after Close
// are dropped with a warning.
func (d *Dispatcher) Dispatch(evt domain.Event) {
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.log.Warn("event dropped after dispatcher close", "type", string(evt.Type), "group", evt.Group)
		return
	}
	d.pending.Add(1)
	d.mu.Unlock()
	defer d.pending.Done()
	d.queue <- evt
}

// Close stops accepting events and blocks until the queue drains.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()
	d.pending.Wait()
	close(d.queue)
	<-d.done
}
