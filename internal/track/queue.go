package track

import "sync"

// measurementQueue is an unbounded, shutdown-aware, multi-producer/
// single-consumer queue of measurements. Push never blocks. Pop blocks
// until an item is available or the queue is shut down and drained, at
// which point it returns ok=false. This mirrors the original's
// ThreadSafeQueue<T>: a mutex-guarded slice with a condition variable and
// a shutdown flag.
type measurementQueue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	items    []Measurement
	shutdown bool
}

func newMeasurementQueue() *measurementQueue {
	q := &measurementQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push enqueues m and wakes one waiting consumer. It accepts pushes from
// any goroutine and never blocks.
func (q *measurementQueue) Push(m Measurement) {
	q.mu.Lock()
	q.items = append(q.items, m)
	q.mu.Unlock()
	q.cond.Signal()
}

// Pop blocks until an item is available or the queue has been shut down
// and drained. ok is false only in the latter case.
func (q *measurementQueue) Pop() (m Measurement, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.shutdown {
		q.cond.Wait()
	}

	if len(q.items) == 0 && q.shutdown {
		return Measurement{}, false
	}

	m = q.items[0]
	q.items = q.items[1:]
	return m, true
}

// TryPop returns immediately: an item and ok=true if one was queued, or
// ok=false if the queue was empty.
func (q *measurementQueue) TryPop() (m Measurement, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return Measurement{}, false
	}
	m = q.items[0]
	q.items = q.items[1:]
	return m, true
}

// Len returns the number of items currently queued.
func (q *measurementQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Empty reports whether the queue currently holds no items.
func (q *measurementQueue) Empty() bool {
	return q.Len() == 0
}

// Shutdown marks the queue closed and wakes every blocked Pop. Once the
// queue drains, all future Pop calls return ok=false.
func (q *measurementQueue) Shutdown() {
	q.mu.Lock()
	q.shutdown = true
	q.mu.Unlock()
	q.cond.Broadcast()
}
