// internal/kernel/wd.go

package kernel

import (
	"fmt"

	"rtcore/internal/queue"
)

// WdID is a watchdog handle.
type WdID uint32

// WdRoutine runs in interrupt context when a watchdog fires.
type WdRoutine func(c *Context, arg any)

// WdStatus is the arming state of a watchdog.
type WdStatus uint8

const (
	WdOutOfQ WdStatus = iota
	WdInQ
	WdDead
)

func (s WdStatus) String() string {
	switch s {
	case WdOutOfQ:
		return "OUT_OF_Q"
	case WdInQ:
		return "IN_Q"
	case WdDead:
		return "DEAD"
	default:
		return "UNKNOWN"
	}
}

// Watchdog is a one-shot timer whose routine runs in interrupt context.
type Watchdog struct {
	id          WdID
	status      WdStatus
	tickNode    queue.Node[timer]
	routine     WdRoutine
	arg         any
	deferStarts int // guarded by the interrupt lock
}

// WdCreate creates an unarmed watchdog.
func (k *Kernel) WdCreate() (WdID, error) {
	id := k.register(func(id uint32) any {
		wd := &Watchdog{id: WdID(id)}
		wd.tickNode.Value = wd
		return wd
	})
	return WdID(id), nil
}

// WdStart arms the watchdog to call routine(arg) delay ticks from now,
// replacing any pending arm. A start made while the kernel is busy is deferred;
// of several deferred starts only the last takes effect.
func (c *Context) WdStart(id WdID, delay int, routine WdRoutine, arg any) error {
	if delay < 0 {
		return fmt.Errorf("%w: delay %d", ErrInvalidArg, delay)
	}
	if routine == nil {
		return fmt.Errorf("%w: nil routine", ErrInvalidArg)
	}
	wd, err := c.k.watchdog(id)
	if err != nil {
		return err
	}
	j := job{op: opWdStart, wd: wd, delay: delay, routine: routine, arg: arg}
	if c.IsISR() {
		c.k.request(j)
		return nil
	}
	c.enter()
	defer c.exit()
	if wd.status == WdDead {
		return fmt.Errorf("%w: watchdog %d", ErrInvalidID, id)
	}
	c.k.run(j)
	return nil
}

// WdCancel disarms the watchdog. Cancelling an unarmed watchdog does nothing.
func (c *Context) WdCancel(id WdID) error {
	wd, err := c.k.watchdog(id)
	if err != nil {
		return err
	}
	j := job{op: opWdCancel, wd: wd}
	if c.IsISR() {
		c.k.request(j)
		return nil
	}
	c.enter()
	c.k.run(j)
	c.exit()
	return nil
}

// WdDelete disarms and destroys the watchdog. Its routine never runs afterwards.
func (c *Context) WdDelete(id WdID) error {
	if c.IsISR() {
		return ErrNotISRCallable
	}
	wd, err := c.k.watchdog(id)
	if err != nil {
		return err
	}
	c.enter()
	defer c.exit()
	if wd.status == WdDead {
		return fmt.Errorf("%w: watchdog %d", ErrInvalidID, id)
	}
	c.k.tickQ.Remove(&wd.tickNode)
	wd.status = WdDead
	wd.routine, wd.arg = nil, nil
	c.k.unregister(uint32(wd.id))
	return nil
}

// wdStart arms wd. A queued start only applies when it is the last one
// outstanding. Kernel context.
func (k *Kernel) wdStart(wd *Watchdog, delay int, routine WdRoutine, arg any, queued bool) {
	if queued {
		k.mu.Lock()
		wd.deferStarts--
		last := wd.deferStarts == 0
		k.mu.Unlock()
		if !last {
			return
		}
	}
	if wd.status == WdDead {
		return
	}
	k.tickQ.Remove(&wd.tickNode)
	wd.routine, wd.arg = routine, arg
	wd.status = WdInQ
	if err := k.tickQ.PutFromTail(&wd.tickNode, k.ticks.Load()+uint64(delay)); err != nil {
		k.fatal(err)
	}
}

func (k *Kernel) wdCancel(wd *Watchdog) {
	if wd.status != WdInQ {
		return
	}
	k.tickQ.Remove(&wd.tickNode)
	wd.status = WdOutOfQ
}

// expire fires the watchdog from the tick queue.
func (wd *Watchdog) expire(k *Kernel) {
	wd.status = WdOutOfQ
	routine, arg := wd.routine, wd.arg
	k.trace(StatusWdFire, 0, uint32(wd.id))
	routine(&Context{k: k}, arg)
}
