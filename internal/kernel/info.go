// internal/kernel/info.go

package kernel

import "fmt"

// TaskInfo describes a task.
type TaskInfo struct {
	ID       TaskID `json:"id"`
	Name     string `json:"name"`
	Priority int    `json:"priority"`
	State    string `json:"state"`
	PendOn   uint32 `json:"pend_on,omitempty"` // semaphore id while pended on one
	Events   uint32 `json:"events"`            // event register
}

// SemInfo describes a semaphore.
type SemInfo struct {
	ID        SemID    `json:"id"`
	Count     uint32   `json:"count"`
	Priority  bool     `json:"priority_queue"`
	Pended    []TaskID `json:"pended"`
	EventTask TaskID   `json:"event_task,omitempty"`
	EventMask uint32   `json:"event_mask,omitempty"`
}

// WdInfo describes a watchdog.
type WdInfo struct {
	ID             WdID   `json:"id"`
	Status         string `json:"status"`
	Expiry         uint64 `json:"expiry,omitempty"` // absolute tick while armed
	DeferredStarts int    `json:"deferred_starts"`
}

// Snapshot is a consistent view of the whole kernel.
type Snapshot struct {
	Tick       uint64     `json:"tick"`
	Current    TaskID     `json:"current"`
	Ready      []TaskID   `json:"ready"`
	Timers     int        `json:"timers"`
	WorkQueue  int        `json:"work_queue"`
	Tasks      []TaskInfo `json:"tasks"`
	Semaphores []SemInfo  `json:"semaphores"`
	Watchdogs  []WdInfo   `json:"watchdogs"`
}

// The accessors below wait for the kernel to be quiescent. They must not be
// called from interrupt context or from hooks.

// TaskInfo returns a description of the task.
func (k *Kernel) TaskInfo(id TaskID) (TaskInfo, error) {
	t, err := k.task(id)
	if err != nil {
		return TaskInfo{}, err
	}
	var info TaskInfo
	k.inspect(func() { info = taskInfo(t) })
	return info, nil
}

// SemInfo returns a description of the semaphore listing at most max waiters
// in wake order.
func (k *Kernel) SemInfo(id SemID, max int) (SemInfo, error) {
	s, err := k.semaphore(id)
	if err != nil {
		return SemInfo{}, err
	}
	var info SemInfo
	k.inspect(func() {
		if s.dead {
			err = fmt.Errorf("%w: semaphore %d", ErrInvalidID, id)
			return
		}
		info = semInfo(s, max)
	})
	return info, err
}

// WdInfo returns a description of the watchdog.
func (k *Kernel) WdInfo(id WdID) (WdInfo, error) {
	wd, err := k.watchdog(id)
	if err != nil {
		return WdInfo{}, err
	}
	var info WdInfo
	k.inspect(func() { info = wdInfo(wd) })
	return info, nil
}

// ReadyInfo returns up to max ready task ids in dispatch order. The running
// task is not included.
func (k *Kernel) ReadyInfo(max int) []TaskID {
	var ids []TaskID
	k.inspect(func() { ids = taskIDs(k.ready.Info(max)) })
	return ids
}

// Snapshot describes every live object in id order.
func (k *Kernel) Snapshot() Snapshot {
	var snap Snapshot
	k.inspect(func() {
		snap = Snapshot{
			Tick:      k.ticks.Load(),
			Current:   k.current.Load().ID(),
			Ready:     taskIDs(k.ready.Info(k.ready.Len())),
			Timers:    k.tickQ.Len(),
			WorkQueue: k.workQ.LenLocked(),
		}

		k.objMu.Lock()
		defer k.objMu.Unlock()
		it := k.objects.Iterator()
		for it.Next() {
			switch obj := it.Value().(type) {
			case *Task:
				snap.Tasks = append(snap.Tasks, taskInfo(obj))
			case *Semaphore:
				snap.Semaphores = append(snap.Semaphores, semInfo(obj, obj.pendQ.q.Len()))
			case *Watchdog:
				snap.Watchdogs = append(snap.Watchdogs, wdInfo(obj))
			}
		}
	})
	return snap
}

func taskInfo(t *Task) TaskInfo {
	info := TaskInfo{
		ID:       t.id,
		Name:     t.name,
		Priority: t.priority,
		State:    t.state.String(),
		Events:   t.events.received,
	}
	if t.pendQ != nil {
		info.PendOn = uint32(t.pendQ.sem)
	}
	return info
}

func semInfo(s *Semaphore, max int) SemInfo {
	info := SemInfo{
		ID:       s.id,
		Count:    s.count,
		Priority: !s.pendQ.fifo,
		Pended:   taskIDs(s.pendQ.q.Info(max)),
	}
	if s.ev.task != nil {
		info.EventTask = s.ev.task.id
		info.EventMask = s.ev.events
	}
	return info
}

func wdInfo(wd *Watchdog) WdInfo {
	info := WdInfo{
		ID:             wd.id,
		Status:         wd.status.String(),
		DeferredStarts: wd.deferStarts,
	}
	if wd.status == WdInQ {
		info.Expiry = wd.tickNode.Key()
	}
	return info
}

func taskIDs(ts []*Task) []TaskID {
	ids := make([]TaskID, 0, len(ts))
	for _, t := range ts {
		ids = append(ids, t.id)
	}
	return ids
}
