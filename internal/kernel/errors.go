// internal/kernel/errors.go

package kernel

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidID is returned for a handle that does not name a live object of the expected class.
	ErrInvalidID = errors.New("kernel: invalid object id")
	// ErrTimeout is returned when a bounded wait expires.
	ErrTimeout = errors.New("kernel: timeout")
	// ErrDeleted is returned to a task whose semaphore was deleted while it was pended.
	ErrDeleted = errors.New("kernel: object deleted")
	// ErrUnavailable is returned by a NoWait take of an unavailable resource.
	ErrUnavailable = errors.New("kernel: object unavailable")
	// ErrNotISRCallable is returned when an operation that may block is called from interrupt context.
	ErrNotISRCallable = errors.New("kernel: not callable from interrupt context")
	// ErrInvalidPriority is returned for a priority outside the ready queue levels.
	ErrInvalidPriority = errors.New("kernel: invalid priority")
	// ErrInvalidArg is returned for malformed options, delays or event masks.
	ErrInvalidArg = errors.New("kernel: invalid argument")
	// ErrEventSend is returned by a give whose event notification failed, when the
	// semaphore was created with SemEventSendErrNotify.
	ErrEventSend = errors.New("kernel: event notification failed")
	// ErrAlreadyRegistered is returned when another task already holds a semaphore's event registration.
	ErrAlreadyRegistered = errors.New("kernel: events already registered")
	// ErrNotRegistered is returned when the caller does not hold the registration it tries to stop.
	ErrNotRegistered = errors.New("kernel: events not registered")
	// ErrStarted is returned by operations only allowed before Start.
	ErrStarted = errors.New("kernel: already started")
	// ErrHookTableFull is returned when no more hooks can be registered.
	ErrHookTableFull = errors.New("kernel: hook table full")
)

// PanicInfo describes a fatal kernel inconsistency.
type PanicInfo struct {
	Err   error
	Tick  uint64
	Task  TaskID
	Stack []byte
}

// PanicError is the value the kernel panics with.
type PanicError struct {
	Info PanicInfo
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("kernel panic at tick %d (task %d): %v", e.Info.Tick, e.Info.Task, e.Info.Err)
}

func (e *PanicError) Unwrap() error { return e.Info.Err }
