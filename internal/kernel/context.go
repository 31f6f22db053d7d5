// internal/kernel/context.go

package kernel

import (
	"fmt"
	"runtime"
)

const (
	// WaitForever blocks without a timeout.
	WaitForever = -1
	// NoWait fails at once instead of blocking.
	NoWait = 0
)

// Context is the handle kernel calls are made through. A task receives its own
// Context as the argument of its entry function; interrupt-level code receives
// one from Kernel.Interrupt or as the argument of a watchdog routine.
type Context struct {
	k    *Kernel
	task *Task // nil in interrupt context
}

// IsISR reports whether the caller runs in interrupt context.
func (c *Context) IsISR() bool { return c.task == nil }

// TaskID returns the calling task, or 0 in interrupt context.
func (c *Context) TaskID() TaskID { return c.task.ID() }

// Kernel returns the kernel the context belongs to.
func (c *Context) Kernel() *Kernel { return c.k }

// lock takes the interrupt lock on behalf of the running task. It waits while
// interrupt-level code holds the kernel, and honours a pending reschedule
// before returning with the lock held and the kernel in task state.
func (c *Context) lock() {
	k := c.k
	k.mu.Lock()
	for {
		for k.state != stateTask {
			if k.stopped() {
				k.mu.Unlock()
				runtime.Goexit()
			}
			k.cond.Wait()
		}
		if k.stopped() {
			k.mu.Unlock()
			runtime.Goexit()
		}
		if !k.resched {
			return
		}
		k.state = stateKernel
		k.mu.Unlock()
		k.reschedule(c.task)
		k.mu.Lock()
	}
}

// enterLocked takes the kernel. The caller holds the lock from c.lock.
func (c *Context) enterLocked() {
	c.k.state = stateKernel
	c.k.mu.Unlock()
}

func (c *Context) enter() {
	c.lock()
	c.enterLocked()
}

// exit dispatches and leaves the kernel. It returns once the task runs again.
func (c *Context) exit() {
	c.k.reschedule(c.task)
}

func (c *Context) exitTask() {
	c.enter()
	t := c.task
	t.state = TaskDead
	c.k.unregister(uint32(t.id))
	c.k.trace(StatusFinish, t.id, 0)
	c.exit()
}

// Spawn creates a task running entry at the given priority and readies it. From
// a task, a higher priority child runs before Spawn returns.
func (c *Context) Spawn(name string, priority int, entry func(c *Context)) (TaskID, error) {
	k := c.k
	if priority < 0 || priority >= k.ready.Levels() {
		return 0, fmt.Errorf("%w: %d not in 0..%d", ErrInvalidPriority, priority, k.ready.Levels()-1)
	}
	if entry == nil {
		return 0, fmt.Errorf("%w: nil entry", ErrInvalidArg)
	}

	var t *Task
	k.register(func(id uint32) any {
		t = newTask(TaskID(id), name, priority, entry)
		t.ctx = Context{k: k, task: t}
		return t
	})
	go k.taskMain(t)

	if c.IsISR() {
		k.request(job{op: opReady, task: t})
		return t.id, nil
	}
	c.enter()
	k.readyPut(t)
	c.exit()
	return t.id, nil
}

// Delay blocks the calling task for ticks clock ticks. Delay(0) is Yield.
func (c *Context) Delay(ticks int) error {
	if c.IsISR() {
		return ErrNotISRCallable
	}
	if ticks < 0 {
		return fmt.Errorf("%w: delay %d", ErrInvalidArg, ticks)
	}
	if ticks == 0 {
		return c.Yield()
	}
	c.enter()
	c.k.addTimeout(c.task, ticks)
	c.exit()
	return nil
}

// Yield gives the processor to the next ready task of the same priority, if any.
func (c *Context) Yield() error {
	if c.IsISR() {
		return ErrNotISRCallable
	}
	c.enter()
	t := c.task
	if err := c.k.ready.Put(&t.qNode, uint64(t.priority)); err != nil {
		c.k.fatal(err)
	}
	c.exit()
	return nil
}

// Suspend stops a task until Resume. A task may suspend itself.
func (c *Context) Suspend(id TaskID) error {
	if c.IsISR() {
		return ErrNotISRCallable
	}
	t, err := c.k.task(id)
	if err != nil {
		return err
	}
	c.enter()
	defer c.exit()
	if t.state&TaskDead != 0 {
		return fmt.Errorf("%w: task %d", ErrInvalidID, id)
	}
	if t.readyMember() {
		c.k.ready.Remove(&t.qNode)
	}
	t.state |= TaskSuspended
	return nil
}

// Resume makes a suspended task eligible to run again.
func (c *Context) Resume(id TaskID) error {
	if c.IsISR() {
		return ErrNotISRCallable
	}
	t, err := c.k.task(id)
	if err != nil {
		return err
	}
	c.enter()
	defer c.exit()
	if t.state&TaskDead != 0 {
		return fmt.Errorf("%w: task %d", ErrInvalidID, id)
	}
	if t.state&TaskSuspended == 0 {
		return nil
	}
	t.state &^= TaskSuspended
	c.k.readyPut(t)
	return nil
}

// SetPriority changes a task's priority, resorting whichever queue holds it.
func (c *Context) SetPriority(id TaskID, priority int) error {
	if c.IsISR() {
		return ErrNotISRCallable
	}
	k := c.k
	if priority < 0 || priority >= k.ready.Levels() {
		return fmt.Errorf("%w: %d not in 0..%d", ErrInvalidPriority, priority, k.ready.Levels()-1)
	}
	t, err := k.task(id)
	if err != nil {
		return err
	}
	c.enter()
	defer c.exit()
	if t.state&TaskDead != 0 {
		return fmt.Errorf("%w: task %d", ErrInvalidID, id)
	}
	t.priority = priority
	switch {
	case t.readyMember():
		err = k.ready.Resort(&t.qNode, uint64(priority))
	case t.pendQ != nil:
		err = t.pendQ.q.Resort(&t.qNode, t.pendQ.key(t))
	}
	if err != nil {
		k.fatal(err)
	}
	return nil
}
