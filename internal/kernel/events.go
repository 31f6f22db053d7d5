// internal/kernel/events.go

package kernel

import "fmt"

// EventWait selects whether EventReceive needs all or any of the requested events.
type EventWait uint8

const (
	EventsWaitAll EventWait = iota
	EventsWaitAny
)

func (e eventState) satisfied(events uint32, all bool) bool {
	if all {
		return e.received&events == events
	}
	return e.received&events != 0
}

// EventSend posts events to a task's event register, waking it if that
// completes what it waits for.
func (c *Context) EventSend(id TaskID, events uint32) error {
	t, err := c.k.task(id)
	if err != nil {
		return err
	}
	if c.IsISR() {
		c.k.request(job{op: opEventSend, task: t, events: events})
		return nil
	}
	c.enter()
	err = c.k.eventSend(t, events)
	c.exit()
	return err
}

// EventReceive waits up to timeout ticks for events and returns the ones it
// consumed from the calling task's register.
func (c *Context) EventReceive(events uint32, wait EventWait, timeout int) (uint32, error) {
	if c.IsISR() {
		return 0, ErrNotISRCallable
	}
	if events == 0 || wait > EventsWaitAny || timeout < WaitForever {
		return 0, fmt.Errorf("%w: events %#x wait %d timeout %d", ErrInvalidArg, events, wait, timeout)
	}
	t := c.task
	all := wait == EventsWaitAll

	c.lock()
	if t.events.satisfied(events, all) {
		got := t.events.received & events
		t.events.received &^= got
		c.k.mu.Unlock()
		return got, nil
	}
	if timeout == NoWait {
		c.k.mu.Unlock()
		return 0, ErrUnavailable
	}

	c.enterLocked()
	t.events.wanted = events
	t.events.all = all
	t.events.got = 0
	c.k.pend(t, nil, timeout, 0)
	c.exit()
	if t.pendErr != nil {
		return 0, t.pendErr
	}
	return t.events.got, nil
}

// EventClear empties the calling task's event register.
func (c *Context) EventClear() error {
	if c.IsISR() {
		return ErrNotISRCallable
	}
	c.lock()
	c.task.events.received = 0
	c.k.mu.Unlock()
	return nil
}

// eventSend is the kernel half of EventSend. Kernel context.
func (k *Kernel) eventSend(t *Task, events uint32) error {
	if t == nil || t.state&TaskDead != 0 {
		return fmt.Errorf("%w: task %d", ErrInvalidID, t.ID())
	}
	t.events.received |= events
	if t.state&TaskPended == 0 || t.pendQ != nil || t.events.wanted == 0 {
		return nil
	}
	if !t.events.satisfied(t.events.wanted, t.events.all) {
		return nil
	}
	t.events.got = t.events.received & t.events.wanted
	t.events.received &^= t.events.got
	t.events.wanted = 0
	k.unblock(t, nil)
	return nil
}
