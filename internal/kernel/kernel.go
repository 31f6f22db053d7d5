// internal/kernel/kernel.go

// Package kernel is a priority-preemptive real-time kernel core running tasks on
// goroutines. Exactly one task runs at a time; the kernel hands control between
// task goroutines explicitly. Interrupt-level callers never block: work they
// cannot apply while the kernel is busy is deferred to a job queue that the
// kernel drains before it returns to task level.
package kernel

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"
	"github.com/rs/zerolog"

	"rtcore/internal/queue"
	"rtcore/internal/workq"
)

type kernelState uint8

const (
	stateTask   kernelState = iota // no code is mutating kernel structures
	stateKernel                    // kernel structures are being mutated
)

// Kernel owns the ready queue, the tick queue, the deferred job queue and every
// task, semaphore and watchdog.
type Kernel struct {
	cfg     Config
	log     zerolog.Logger
	tracer  Tracer
	onPanic func(PanicInfo)

	// mu is the interrupt lock. It guards state, resched, idling, idleCh and
	// the work queue, and serialises the fast paths of task-level calls.
	mu      sync.Mutex
	cond    *sync.Cond // broadcast when state returns to stateTask or idling starts
	state   kernelState
	resched bool
	idling  bool
	idleCh  chan struct{}

	// owned by kernel context
	ready       *queue.BMap[*Task]
	tickQ       *queue.PriList[timer]
	workQ       *workq.Queue[job]
	switchHooks []SwitchHook
	swapHooks   []SwapHook

	ticks   atomic.Uint64
	current atomic.Pointer[Task]

	objMu   sync.Mutex
	objects *treemap.Map // uint32 -> *Task, *Semaphore, *Watchdog
	nextID  uint32

	started   atomic.Bool
	stopping  atomic.Bool
	panicked  atomic.Bool
	stop      chan struct{}
	stopOnce  sync.Once
	wake      chan struct{}
	panicOnce sync.Once
}

// New creates a kernel from cfg. It is in task state with no tasks until Spawn
// and Start are called.
func New(cfg Config, opts ...Option) (*Kernel, error) {
	o := options{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	ready, err := queue.NewBMap[*Task](cfg.PriorityLevels)
	if err != nil {
		return nil, fmt.Errorf("kernel: ready queue: %w", err)
	}

	k := &Kernel{
		cfg:     cfg,
		log:     o.log,
		tracer:  o.tracer,
		onPanic: o.onPanic,
		ready:   ready,
		tickQ:   queue.NewPriList[timer](),
		objects: treemap.NewWith(utils.UInt32Comparator),
		nextID:  1,
		stop:    make(chan struct{}),
		wake:    make(chan struct{}, 1),
	}
	k.cond = sync.NewCond(&k.mu)
	k.workQ, err = workq.New[job](cfg.WorkQueueSize, &k.mu, k.fatal)
	if err != nil {
		return nil, fmt.Errorf("kernel: work queue: %w", err)
	}
	return k, nil
}

// Start boots the dispatcher, which runs the highest priority ready task or
// idles until one is readied.
func (k *Kernel) Start() error {
	if !k.started.CompareAndSwap(false, true) {
		return ErrStarted
	}
	go func() {
		k.mu.Lock()
		for k.state != stateTask {
			if k.stopping.Load() {
				k.mu.Unlock()
				return
			}
			k.cond.Wait()
		}
		k.state = stateKernel
		k.mu.Unlock()
		k.reschedule(nil)
	}()
	return nil
}

// Stop releases every kernel goroutine. Parked and pended tasks never resume.
// The running task, if any, exits at its next kernel call.
func (k *Kernel) Stop() {
	k.stopOnce.Do(func() {
		k.mu.Lock()
		k.stopping.Store(true)
		close(k.stop)
		k.cond.Broadcast()
		k.mu.Unlock()
	})
}

// WaitIdle blocks until the kernel idles with no ready task and no deferred work.
func (k *Kernel) WaitIdle(ctx context.Context) error {
	k.mu.Lock()
	if k.idling && k.workQ.IsEmpty() {
		k.mu.Unlock()
		return nil
	}
	if k.idleCh == nil {
		k.idleCh = make(chan struct{})
	}
	ch := k.idleCh
	k.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ticks returns the tick count.
func (k *Kernel) Ticks() uint64 { return k.ticks.Load() }

// Current returns the task that owns the processor, 0 before the first dispatch.
func (k *Kernel) Current() TaskID { return k.current.Load().ID() }

// Config returns the configuration the kernel was built with.
func (k *Kernel) Config() Config { return k.cfg }

// Interrupt runs fn in interrupt context on the calling goroutine.
func (k *Kernel) Interrupt(fn func(c *Context)) {
	fn(&Context{k: k})
}

// Tick announces one clock interrupt.
func (k *Kernel) Tick() {
	k.request(job{op: opTick})
}

// Spawn creates a task and readies it. It may be called from any goroutine
// that is not a task; tasks use Context.Spawn.
func (k *Kernel) Spawn(name string, priority int, entry func(c *Context)) (TaskID, error) {
	return (&Context{k: k}).Spawn(name, priority, entry)
}

func (k *Kernel) stopped() bool { return k.stopping.Load() }

func (k *Kernel) signalWake() {
	select {
	case k.wake <- struct{}{}:
	default:
	}
}

// fatal reports an unrecoverable inconsistency and panics with *PanicError.
// The caller must not hold the interrupt lock. Once fatal has run, the kernel
// structures are frozen as they were and the introspection calls read them
// as they are, so the panic handler may take a Snapshot.
func (k *Kernel) fatal(err error) {
	info := PanicInfo{
		Err:   err,
		Tick:  k.ticks.Load(),
		Task:  k.current.Load().ID(),
		Stack: debug.Stack(),
	}
	k.log.Error().Err(err).Uint64("tick", info.Tick).Uint32("task", uint32(info.Task)).Msg("kernel panic")
	k.mu.Lock()
	k.panicked.Store(true)
	k.cond.Broadcast()
	k.mu.Unlock()
	k.panicOnce.Do(func() {
		if k.onPanic != nil {
			k.onPanic(info)
		}
	})
	panic(&PanicError{Info: info})
}

// inspect runs fn while no code mutates kernel structures. It must not be
// called from interrupt context or from hooks.
func (k *Kernel) inspect(fn func()) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for k.state != stateTask && !k.idling && !k.stopped() && !k.panicked.Load() {
		k.cond.Wait()
	}
	fn()
}

// object table

func (k *Kernel) register(obj func(id uint32) any) uint32 {
	k.objMu.Lock()
	defer k.objMu.Unlock()
	id := k.nextID
	k.nextID++
	k.objects.Put(id, obj(id))
	return id
}

func (k *Kernel) lookup(id uint32) any {
	k.objMu.Lock()
	defer k.objMu.Unlock()
	v, ok := k.objects.Get(id)
	if !ok {
		return nil
	}
	return v
}

func (k *Kernel) unregister(id uint32) {
	k.objMu.Lock()
	defer k.objMu.Unlock()
	k.objects.Remove(id)
}

func (k *Kernel) task(id TaskID) (*Task, error) {
	t, ok := k.lookup(uint32(id)).(*Task)
	if !ok {
		return nil, fmt.Errorf("%w: task %d", ErrInvalidID, id)
	}
	return t, nil
}

func (k *Kernel) semaphore(id SemID) (*Semaphore, error) {
	s, ok := k.lookup(uint32(id)).(*Semaphore)
	if !ok {
		return nil, fmt.Errorf("%w: semaphore %d", ErrInvalidID, id)
	}
	return s, nil
}

func (k *Kernel) watchdog(id WdID) (*Watchdog, error) {
	wd, ok := k.lookup(uint32(id)).(*Watchdog)
	if !ok {
		return nil, fmt.Errorf("%w: watchdog %d", ErrInvalidID, id)
	}
	return wd, nil
}
