// internal/kernel/sem.go

package kernel

import (
	"fmt"
	"math"

	"rtcore/internal/queue"
)

// SemID is a semaphore handle.
type SemID uint32

// SemOptions select the pend queue order and the notification error policy.
type SemOptions uint8

const (
	// SemQFIFO wakes waiters in arrival order.
	SemQFIFO SemOptions = 0
	// SemQPriority wakes the highest priority waiter first, FIFO within a priority.
	SemQPriority SemOptions = 1 << 0
	// SemEventSendErrNotify makes Give return ErrEventSend when the event notification fails.
	SemEventSendErrNotify SemOptions = 1 << 1

	semOptionsMask = SemQPriority | SemEventSendErrNotify
)

// EventOptions control a semaphore's event registration.
type EventOptions uint8

const (
	// EventsSendOnce deregisters after the first notification.
	EventsSendOnce EventOptions = 1 << 0
	// EventsSendIfFree notifies at registration when the semaphore is available.
	EventsSendIfFree EventOptions = 1 << 1
)

type semEvent struct {
	task   *Task
	events uint32
	opts   EventOptions
}

// Semaphore is a counting semaphore. Count and waiters are never both non-zero.
type Semaphore struct {
	id    SemID
	opts  SemOptions
	count uint32
	pendQ pendQueue
	ev    semEvent
	dead  bool
}

// SemCreate creates a counting semaphore with the given initial count.
func (k *Kernel) SemCreate(opts SemOptions, initial uint32) (SemID, error) {
	if opts&^semOptionsMask != 0 {
		return 0, fmt.Errorf("%w: semaphore options %#x", ErrInvalidArg, uint8(opts))
	}
	id := k.register(func(id uint32) any {
		return &Semaphore{
			id:    SemID(id),
			opts:  opts,
			count: initial,
			pendQ: pendQueue{
				q:    queue.NewPriList[*Task](),
				fifo: opts&SemQPriority == 0,
				sem:  SemID(id),
			},
		}
	})
	return SemID(id), nil
}

// SemTake takes the semaphore, pending up to timeout ticks when it is not
// available. It returns ErrTimeout, ErrDeleted or, for NoWait, ErrUnavailable.
func (c *Context) SemTake(id SemID, timeout int) error {
	if c.IsISR() {
		return ErrNotISRCallable
	}
	if timeout < WaitForever {
		return fmt.Errorf("%w: timeout %d", ErrInvalidArg, timeout)
	}
	s, err := c.k.semaphore(id)
	if err != nil {
		return err
	}

	c.lock()
	if s.dead {
		c.k.mu.Unlock()
		return fmt.Errorf("%w: semaphore %d", ErrInvalidID, id)
	}
	if s.count > 0 {
		s.count--
		c.k.mu.Unlock()
		return nil
	}
	if timeout == NoWait {
		c.k.mu.Unlock()
		return ErrUnavailable
	}

	c.enterLocked()
	c.k.pend(c.task, &s.pendQ, timeout, uint32(s.id))
	c.exit()
	return c.task.pendErr
}

// SemGive gives the semaphore. A pended task is handed the semaphore directly;
// otherwise the count is incremented and a registered task is notified. A give
// that would overflow the count fails with ErrInvalidArg and changes nothing.
// From interrupt context the give may be deferred and always returns nil.
func (c *Context) SemGive(id SemID) error {
	s, err := c.k.semaphore(id)
	if err != nil {
		return err
	}
	if c.IsISR() {
		c.k.request(job{op: opSemGive, sem: s})
		return nil
	}

	c.lock()
	if s.dead {
		c.k.mu.Unlock()
		return fmt.Errorf("%w: semaphore %d", ErrInvalidID, id)
	}
	if s.pendQ.q.Empty() && s.count == math.MaxUint32 {
		c.k.mu.Unlock()
		return errCountFull(s)
	}
	if s.pendQ.q.Empty() && s.ev.task == nil {
		s.count++
		c.k.mu.Unlock()
		return nil
	}
	c.enterLocked()
	err = c.k.semGive(s)
	c.exit()
	return err
}

// SemFlush readies every task pended on the semaphore. The count is unchanged.
func (c *Context) SemFlush(id SemID) error {
	s, err := c.k.semaphore(id)
	if err != nil {
		return err
	}
	if c.IsISR() {
		c.k.request(job{op: opSemFlush, sem: s})
		return nil
	}
	c.enter()
	c.k.semFlush(s)
	c.exit()
	return nil
}

// SemDelete deletes the semaphore. Every pended task wakes with ErrDeleted.
func (c *Context) SemDelete(id SemID) error {
	if c.IsISR() {
		return ErrNotISRCallable
	}
	s, err := c.k.semaphore(id)
	if err != nil {
		return err
	}
	c.enter()
	defer c.exit()
	if s.dead {
		return fmt.Errorf("%w: semaphore %d", ErrInvalidID, id)
	}
	for n := s.pendQ.q.Get(); n != nil; n = s.pendQ.q.Get() {
		c.k.unblock(n.Value, ErrDeleted)
	}
	s.dead = true
	s.ev = semEvent{}
	c.k.unregister(uint32(s.id))
	return nil
}

// SemEvStart registers the calling task to receive events each time the
// semaphore becomes available.
func (c *Context) SemEvStart(id SemID, events uint32, opts EventOptions) error {
	if c.IsISR() {
		return ErrNotISRCallable
	}
	if events == 0 || opts&^(EventsSendOnce|EventsSendIfFree) != 0 {
		return fmt.Errorf("%w: events %#x options %#x", ErrInvalidArg, events, uint8(opts))
	}
	s, err := c.k.semaphore(id)
	if err != nil {
		return err
	}
	c.enter()
	defer c.exit()
	switch {
	case s.dead:
		return fmt.Errorf("%w: semaphore %d", ErrInvalidID, id)
	case s.ev.task != nil && s.ev.task != c.task:
		return fmt.Errorf("%w: semaphore %d held by task %d", ErrAlreadyRegistered, id, s.ev.task.id)
	}
	s.ev = semEvent{task: c.task, events: events, opts: opts}
	if opts&EventsSendIfFree != 0 && s.count > 0 {
		return c.k.semNotify(s)
	}
	return nil
}

// SemEvStop removes the calling task's event registration.
func (c *Context) SemEvStop(id SemID) error {
	if c.IsISR() {
		return ErrNotISRCallable
	}
	s, err := c.k.semaphore(id)
	if err != nil {
		return err
	}
	c.enter()
	defer c.exit()
	if s.dead {
		return fmt.Errorf("%w: semaphore %d", ErrInvalidID, id)
	}
	if s.ev.task != c.task {
		return fmt.Errorf("%w: semaphore %d", ErrNotRegistered, id)
	}
	s.ev = semEvent{}
	return nil
}

// semGive is the kernel half of a give. Kernel context.
func (k *Kernel) semGive(s *Semaphore) error {
	if s.dead {
		return fmt.Errorf("%w: semaphore %d", ErrInvalidID, s.id)
	}
	if n := s.pendQ.q.Get(); n != nil {
		k.unblock(n.Value, nil)
		return nil
	}
	if s.count == math.MaxUint32 {
		return errCountFull(s)
	}
	s.count++
	if s.ev.task != nil {
		return k.semNotify(s)
	}
	return nil
}

func errCountFull(s *Semaphore) error {
	return fmt.Errorf("%w: semaphore %d count at maximum", ErrInvalidArg, s.id)
}

func (k *Kernel) semFlush(s *Semaphore) {
	if s.dead {
		return
	}
	for n := s.pendQ.q.Get(); n != nil; n = s.pendQ.q.Get() {
		k.unblock(n.Value, nil)
	}
}

// semNotify sends the registered events once. A failed send drops the
// registration. Kernel context.
func (k *Kernel) semNotify(s *Semaphore) error {
	ev := s.ev
	err := k.eventSend(ev.task, ev.events)
	if ev.opts&EventsSendOnce != 0 || err != nil {
		s.ev = semEvent{}
	}
	if err == nil {
		return nil
	}
	k.log.Warn().Err(err).
		Uint32("sem", uint32(s.id)).
		Uint32("task", uint32(ev.task.id)).
		Msg("semaphore event notification failed")
	if s.opts&SemEventSendErrNotify != 0 {
		return fmt.Errorf("%w: semaphore %d: %w", ErrEventSend, s.id, err)
	}
	return nil
}
