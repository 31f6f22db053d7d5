// internal/kernel/dispatch.go

package kernel

import (
	"runtime"
	"runtime/debug"
)

// readyPut queues t if it is ready and not queued yet, asking for a reschedule
// when it outranks the running task. Kernel context.
func (k *Kernel) readyPut(t *Task) {
	if t.state != TaskReady || t.qNode.Queued() {
		return
	}
	if err := k.ready.Put(&t.qNode, uint64(t.priority)); err != nil {
		k.fatal(err)
	}
	if cur := k.current.Load(); cur == nil || t.priority < cur.priority {
		k.mu.Lock()
		k.resched = true
		k.mu.Unlock()
	}
	k.trace(StatusReady, t.id, 0)
}

// reschedule is the dispatch entry point. It is called in kernel context by
// self, the task that owns the processor (nil for the boot goroutine), and
// returns once self is loaded again. It leaves the kernel in task state.
func (k *Kernel) reschedule(self *Task) {
	prev := k.current.Load()
	// the running task is never in the ready queue; a preempted one goes back
	// to the head of its bucket
	if prev != nil && prev.state == TaskReady && !prev.qNode.Queued() {
		if err := k.ready.PutHead(&prev.qNode, uint64(prev.priority)); err != nil {
			k.fatal(err)
		}
	}

	for {
		k.workQ.Drain(k.run)
		if !k.idle() {
			runtime.Goexit()
		}

		next := k.ready.Get().Value
		if next != prev {
			k.runHooks(prev, next)
			k.current.Store(next)
			prev = next
		}

		// an interrupt between the drain and here must not be lost
		k.mu.Lock()
		if !k.workQ.IsEmpty() {
			k.mu.Unlock()
			if err := k.ready.PutHead(&next.qNode, uint64(next.priority)); err != nil {
				k.fatal(err)
			}
			continue
		}
		park := self != nil && self != next && self.state&TaskDead == 0
		k.state = stateTask
		k.resched = false
		k.cond.Broadcast()
		k.mu.Unlock()

		k.trace(StatusDispatch, next.id, 0)
		k.loadContext(self, next, park)
		return
	}
}

// idle waits until the ready queue is not empty, running deferred work as it
// arrives. It reports false once the kernel is stopped.
func (k *Kernel) idle() bool {
	for k.ready.Empty() {
		k.mu.Lock()
		if k.workQ.IsEmpty() {
			k.idling = true
			if k.idleCh != nil {
				close(k.idleCh)
				k.idleCh = nil
			}
			k.cond.Broadcast()
			k.mu.Unlock()
			k.trace(StatusIdle, 0, 0)

			select {
			case <-k.wake:
			case <-k.stop:
				return false
			}
			k.mu.Lock()
			k.idling = false
		}
		k.mu.Unlock()
		k.workQ.Drain(k.run)
	}
	return !k.stopped()
}

// loadContext hands the processor to next and, if park is set, blocks self
// until it is loaded again.
func (k *Kernel) loadContext(self, next *Task, park bool) {
	if next == self {
		return
	}
	next.resume <- struct{}{}
	if !park {
		return
	}
	if !k.park(self) {
		runtime.Goexit()
	}
}

func (k *Kernel) park(t *Task) bool {
	select {
	case <-t.resume:
		return true
	case <-k.stop:
		return false
	}
}

func (k *Kernel) runHooks(prev, next *Task) {
	pid, nid := prev.ID(), next.ID()
	mask := next.swapIn
	if prev != nil {
		mask |= prev.swapOut
	}
	for i, h := range k.swapHooks {
		if mask&(1<<i) != 0 {
			h(pid, nid)
		}
	}
	for _, h := range k.switchHooks {
		h(pid, nid)
	}
}

// taskMain is the body of every task goroutine.
func (k *Kernel) taskMain(t *Task) {
	if !k.park(t) {
		return
	}
	k.runEntry(t)
	t.ctx.exitTask()
}

func (k *Kernel) runEntry(t *Task) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if pe, ok := r.(*PanicError); ok {
			panic(pe)
		}
		k.log.Error().
			Uint32("task", uint32(t.id)).
			Str("name", t.name).
			Interface("panic", r).
			Bytes("stack", debug.Stack()).
			Msg("task entry panicked")
	}()
	t.entry(&t.ctx)
}
