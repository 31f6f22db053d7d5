// internal/kernel/tick.go

package kernel

import (
	"rtcore/internal/queue"
)

// timer is anything the tick queue holds: a delayed or pend-timed task, or an
// armed watchdog. Keys are absolute ticks.
type timer interface {
	expire(k *Kernel)
}

// pendQueue is a semaphore's wait queue. FIFO queues key every waiter the same
// so that insertion order is kept.
type pendQueue struct {
	q    *queue.PriList[*Task]
	fifo bool
	sem  SemID
}

func (p *pendQueue) key(t *Task) uint64 {
	if p.fifo {
		return 0
	}
	return uint64(t.priority)
}

// announce advances the tick count and expires every timer whose key is
// reached. Kernel context.
func (k *Kernel) announce() {
	now := k.ticks.Add(1)
	k.trace(StatusTick, 0, 0)
	for n := k.tickQ.GetExpired(now); n != nil; n = k.tickQ.GetExpired(now) {
		n.Value.expire(k)
	}
}

// addTimeout marks t delayed until ticks from now. Kernel context.
func (k *Kernel) addTimeout(t *Task, ticks int) {
	t.state |= TaskDelayed
	if err := k.tickQ.PutFromTail(&t.tickNode, k.ticks.Load()+uint64(ticks)); err != nil {
		k.fatal(err)
	}
}

// pend blocks the running task t on pq (nil when waiting for events) with the
// given timeout. Kernel context; the caller dispatches afterwards.
func (k *Kernel) pend(t *Task, pq *pendQueue, timeout int, obj uint32) {
	t.state |= TaskPended
	t.pendErr = nil
	t.pendQ = pq
	if pq != nil {
		if err := pq.q.Put(&t.qNode, pq.key(t)); err != nil {
			k.fatal(err)
		}
	}
	if timeout != WaitForever {
		k.addTimeout(t, timeout)
	}
	k.trace(StatusPend, t.id, obj)
}

// unblock readies a pended task that was already unlinked from its pend
// queue, cancelling its timeout. Kernel context.
func (k *Kernel) unblock(t *Task, err error) {
	t.pendQ = nil
	t.state &^= TaskPended
	if t.state&TaskDelayed != 0 {
		k.tickQ.Remove(&t.tickNode)
		t.state &^= TaskDelayed
	}
	t.pendErr = err
	k.readyPut(t)
}

// TickSet sets the tick count. Outstanding delays, timeouts and watchdogs keep
// their remaining time.
func (c *Context) TickSet(ticks uint64) error {
	if c.IsISR() {
		return ErrNotISRCallable
	}
	k := c.k
	c.enter()
	k.tickQ.Calibrate(int64(ticks - k.ticks.Load()))
	k.ticks.Store(ticks)
	c.exit()
	return nil
}
