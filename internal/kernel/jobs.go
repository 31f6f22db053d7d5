// internal/kernel/jobs.go

package kernel

type jobOp uint8

const (
	opTick jobOp = iota + 1
	opReady
	opSemGive
	opSemFlush
	opWdStart
	opWdCancel
	opEventSend
)

// job is one kernel operation requested from interrupt context.
type job struct {
	op      jobOp
	task    *Task
	sem     *Semaphore
	wd      *Watchdog
	delay   int
	routine WdRoutine
	arg     any
	events  uint32
	queued  bool
}

type disposition uint8

const (
	applied disposition = iota
	deferred
)

// request applies j at once when no code holds the kernel, and otherwise
// appends it to the work queue for the holder to run before it leaves.
func (k *Kernel) request(j job) disposition {
	k.mu.Lock()
	if k.state == stateKernel {
		j.queued = true
		if err := k.workQ.AddLocked(j); err != nil {
			k.mu.Unlock()
			k.fatal(err)
		}
		if j.op == opWdStart {
			j.wd.deferStarts++
		}
		k.mu.Unlock()
		k.signalWake()
		k.trace(StatusDeferred, j.task.ID(), j.object())
		return deferred
	}
	k.state = stateKernel
	k.mu.Unlock()

	k.run(j)
	k.isrExit()
	return applied
}

// isrExit drains deferred work and returns the kernel to task state. The task
// that was interrupted is preempted at its next kernel call if resched is set.
func (k *Kernel) isrExit() {
	for {
		k.workQ.Drain(k.run)
		k.mu.Lock()
		if k.workQ.IsEmpty() {
			k.state = stateTask
			k.cond.Broadcast()
			k.mu.Unlock()
			return
		}
		k.mu.Unlock()
	}
}

// run executes j in kernel context. Errors have no caller to return to.
func (k *Kernel) run(j job) {
	switch j.op {
	case opTick:
		k.announce()
	case opReady:
		if j.task.state == TaskReady && !j.task.qNode.Queued() && j.task != k.current.Load() {
			k.readyPut(j.task)
		}
	case opSemGive:
		if err := k.semGive(j.sem); err != nil {
			k.log.Debug().Err(err).Uint32("sem", uint32(j.sem.id)).Msg("deferred give")
		}
	case opSemFlush:
		k.semFlush(j.sem)
	case opWdStart:
		k.wdStart(j.wd, j.delay, j.routine, j.arg, j.queued)
	case opWdCancel:
		k.wdCancel(j.wd)
	case opEventSend:
		if err := k.eventSend(j.task, j.events); err != nil {
			k.log.Debug().Err(err).Uint32("task", uint32(j.task.ID())).Msg("deferred event send")
		}
	}
}

func (j job) object() uint32 {
	switch {
	case j.sem != nil:
		return uint32(j.sem.id)
	case j.wd != nil:
		return uint32(j.wd.id)
	}
	return 0
}
