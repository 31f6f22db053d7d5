// internal/kernel/schedulerEvent.go

package kernel

import (
	"time"
)

// StatusKind represents the type of scheduler event
type StatusKind int

const (
	StatusIdle StatusKind = iota
	StatusReady
	StatusDispatch
	StatusPend
	StatusTimeout
	StatusFinish
	StatusDeferred
	StatusWdFire
	StatusTick
)

// StatusEvent is emitted on key scheduler actions
type StatusEvent struct {
	Time   time.Time
	Tick   uint64
	Kind   StatusKind
	TaskID TaskID
	Object uint32 // semaphore or watchdog id, when one is involved
}

func (sk StatusKind) String() string {
	switch sk {
	case StatusIdle:
		return "Idle"
	case StatusReady:
		return "Ready"
	case StatusDispatch:
		return "Dispatch"
	case StatusPend:
		return "Pend"
	case StatusTimeout:
		return "Timeout"
	case StatusFinish:
		return "Finish"
	case StatusDeferred:
		return "Deferred"
	case StatusWdFire:
		return "WdFire"
	case StatusTick:
		return "Tick"
	default:
		return "Unknown"
	}
}

// Tracer receives scheduler events. Implementations must be safe for concurrent use.
type Tracer interface {
	Trace(ev StatusEvent)
}

// TracerFunc adapts a function to Tracer.
type TracerFunc func(ev StatusEvent)

func (f TracerFunc) Trace(ev StatusEvent) { f(ev) }

// Tracers fans events out to several tracers in order.
func Tracers(ts ...Tracer) Tracer {
	return TracerFunc(func(ev StatusEvent) {
		for _, t := range ts {
			t.Trace(ev)
		}
	})
}

func (k *Kernel) trace(kind StatusKind, id TaskID, obj uint32) {
	if k.tracer == nil {
		return
	}
	k.tracer.Trace(StatusEvent{
		Time:   time.Now(),
		Tick:   k.ticks.Load(),
		Kind:   kind,
		TaskID: id,
		Object: obj,
	})
}
