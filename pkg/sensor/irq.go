package sensor

import (
	"sync/atomic"
	"time"
)

const interruptSlots = 8

// InterruptQueue is a fixed ring of interrupt timestamps with one producer
// and one consumer. Push takes no lock and allocates nothing, so it may run
// inside a pin interrupt handler. Forward drains the ring into a controller
// from ordinary code.
type InterruptQueue struct {
	slots [interruptSlots]atomic.Int64
	head  atomic.Uint32 // written by the producer only
	tail  atomic.Uint32 // written by the consumer only
	drops atomic.Uint32
}

// Push records an interrupt observed at at. It reports false and counts a
// drop when the ring is full.
func (q *InterruptQueue) Push(at time.Time) bool {
	h := q.head.Load()
	if h-q.tail.Load() >= interruptSlots {
		q.drops.Add(1)
		return false
	}
	q.slots[h%interruptSlots].Store(at.UnixNano())
	q.head.Store(h + 1)
	return true
}

// Pop removes the oldest timestamp.
func (q *InterruptQueue) Pop() (time.Time, bool) {
	t := q.tail.Load()
	if t == q.head.Load() {
		return time.Time{}, false
	}
	ns := q.slots[t%interruptSlots].Load()
	q.tail.Store(t + 1)
	return time.Unix(0, ns), true
}

// Forward hands every queued interrupt to c and returns how many it sent.
func (q *InterruptQueue) Forward(c *Controller) int {
	n := 0
	for {
		at, ok := q.Pop()
		if !ok {
			return n
		}
		c.NotifyInterrupt(at)
		n++
	}
}

// Drops returns the number of interrupts lost to a full ring.
func (q *InterruptQueue) Drops() uint32 {
	return q.drops.Load()
}
