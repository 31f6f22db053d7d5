// internal/workq/workq.go

// Package workq is the deferred job FIFO between interrupt-level producers and
// the dispatcher. Producers append under the interrupt lock and never block; the
// single consumer pops one job at a time and runs it with the lock released.
package workq

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/emirpasic/gods/queues/circularbuffer"
)

var (
	// ErrFull is reported to the fatal handler when a job is added to a full queue.
	ErrFull = errors.New("workq: queue full")
	// ErrInconsistent is reported to the fatal handler when the empty flag and the ring disagree.
	ErrInconsistent = errors.New("workq: empty flag disagrees with ring")
)

// Queue is a fixed-capacity FIFO of jobs of type J.
type Queue[J any] struct {
	lock  sync.Locker
	ring  *circularbuffer.Queue
	size  int
	empty atomic.Bool
	fatal func(error)
}

// New creates a queue holding at most size jobs. lock is the interrupt lock
// shared with the producers. fatal is called, with the lock released, when a job
// would be lost or the queue is found corrupt; it must not return. A nil fatal
// panics.
func New[J any](size int, lock sync.Locker, fatal func(error)) (*Queue[J], error) {
	if size < 1 {
		return nil, fmt.Errorf("workq: size %d must be positive", size)
	}
	if fatal == nil {
		fatal = func(err error) { panic(err) }
	}
	q := &Queue[J]{
		lock:  lock,
		ring:  circularbuffer.New(size),
		size:  size,
		fatal: fatal,
	}
	q.empty.Store(true)
	return q, nil
}

// Add appends a job, taking the interrupt lock for the update. A full queue is
// reported to the fatal handler after the lock is released.
func (q *Queue[J]) Add(job J) {
	q.lock.Lock()
	err := q.AddLocked(job)
	q.lock.Unlock()
	if err != nil {
		q.fatal(err)
	}
}

// AddLocked appends a job. The caller holds the interrupt lock and must treat
// an ErrFull result as fatal once it has released the lock.
func (q *Queue[J]) AddLocked(job J) error {
	// the ring would silently overwrite its oldest job
	if q.ring.Full() {
		return fmt.Errorf("%w: %d jobs pending", ErrFull, q.size)
	}
	q.ring.Enqueue(job)
	q.empty.Store(false)
	return nil
}

// IsEmpty reads the empty flag without taking the lock.
func (q *Queue[J]) IsEmpty() bool { return q.empty.Load() }

// Len returns the number of pending jobs.
func (q *Queue[J]) Len() int {
	q.lock.Lock()
	defer q.lock.Unlock()
	return q.ring.Size()
}

// LenLocked is Len for a caller holding the interrupt lock.
func (q *Queue[J]) LenLocked() int { return q.ring.Size() }

// Cap returns the queue capacity.
func (q *Queue[J]) Cap() int { return q.size }

// Drain runs every pending job in FIFO order, including jobs added by the jobs
// it runs. The lock is held only while popping.
func (q *Queue[J]) Drain(run func(J)) {
	for !q.IsEmpty() {
		job, ok := q.pop()
		if !ok {
			return
		}
		run(job)
	}
}

func (q *Queue[J]) pop() (job J, ok bool) {
	q.lock.Lock()
	v, ok := q.ring.Dequeue()
	if !ok {
		q.empty.Store(true)
		q.lock.Unlock()
		q.fatal(ErrInconsistent)
		return job, false
	}
	if q.ring.Empty() {
		q.empty.Store(true)
	}
	q.lock.Unlock()
	return v.(J), true
}
