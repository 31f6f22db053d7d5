package kernel

import (
	"fmt"
	"strings"

	"rtcore/internal/queue"
)

// TaskID uniquely identifies a task in the kernel. Zero is never a valid task.
type TaskID uint32

// TaskState is a bit set; TaskReady is the empty set.
type TaskState uint8

const (
	TaskReady     TaskState = 0
	TaskPended    TaskState = 1 << 0
	TaskDelayed   TaskState = 1 << 1
	TaskSuspended TaskState = 1 << 2
	TaskDead      TaskState = 1 << 3
)

func (s TaskState) String() string {
	if s == TaskReady {
		return "READY"
	}
	var parts []string
	for _, f := range []struct {
		bit  TaskState
		name string
	}{
		{TaskPended, "PEND"},
		{TaskDelayed, "DELAY"},
		{TaskSuspended, "SUSPEND"},
		{TaskDead, "DEAD"},
	} {
		if s&f.bit != 0 {
			parts = append(parts, f.name)
		}
	}
	return strings.Join(parts, "+")
}

// eventState is the task's event register and, while pended in EventReceive,
// what it waits for.
type eventState struct {
	received uint32
	wanted   uint32
	all      bool
	got      uint32
}

// Task represents one schedulable thread of control.
// Fields below the entry are owned by kernel context.
type Task struct {
	id    TaskID
	name  string
	entry func(c *Context)

	priority int // 0 is the highest priority
	state    TaskState
	qNode    queue.Node[*Task] // ready queue or pend queue, never both
	tickNode queue.Node[timer] // tick queue while TaskDelayed
	pendQ    *pendQueue        // set while pended on a semaphore
	pendErr  error             // result of the last pend
	events   eventState
	swapIn   uint16 // swap hook masks
	swapOut  uint16

	resume chan struct{}
	ctx    Context
}

// newTask creates a task in the TaskReady state. It is not queued yet.
func newTask(id TaskID, name string, priority int, entry func(c *Context)) *Task {
	if name == "" {
		name = fmt.Sprintf("t%d", id)
	}
	t := &Task{
		id:       id,
		name:     name,
		entry:    entry,
		priority: priority,
		resume:   make(chan struct{}, 1),
	}
	t.qNode.Value = t
	t.tickNode.Value = t
	return t
}

// ID returns the task id, or 0 for a nil task.
func (t *Task) ID() TaskID {
	if t == nil {
		return 0
	}
	return t.id
}

// readyMember reports whether t sits in the ready queue.
func (t *Task) readyMember() bool {
	return t.state == TaskReady && t.pendQ == nil && t.qNode.Queued()
}

// expire is called from the tick queue when a delay or pend timeout elapses.
func (t *Task) expire(k *Kernel) {
	t.state &^= TaskDelayed
	if t.state&TaskPended != 0 {
		if t.pendQ != nil {
			t.pendQ.q.Remove(&t.qNode)
			t.pendQ = nil
		}
		t.events.wanted = 0
		t.state &^= TaskPended
		t.pendErr = ErrTimeout
		k.trace(StatusTimeout, t.id, 0)
	}
	k.readyPut(t)
}
