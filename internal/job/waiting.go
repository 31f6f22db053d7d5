// Package job holds task entry functions and watchdog routines for demo
// workloads: tasks that wait on semaphores or the clock, and interrupt-level
// producers that wake them.
package job

import (
	"errors"

	"rtcore/internal/kernel"
)

// Consumer returns a task entry that takes sem rounds times (forever when
// rounds <= 0), waiting up to timeout ticks each time. Every outcome is passed
// to report, which may be nil.
func Consumer(sem kernel.SemID, timeout, rounds int, report func(id kernel.TaskID, err error)) func(*kernel.Context) {
	return func(c *kernel.Context) {
		for i := 0; rounds <= 0 || i < rounds; i++ {
			err := c.SemTake(sem, timeout)
			if report != nil {
				report(c.TaskID(), err)
			}
			if err != nil && !errors.Is(err, kernel.ErrTimeout) {
				// deleted or invalid: nothing left to wait for
				return
			}
		}
	}
}

// Sleeper returns a task entry that delays ticks, rounds times (forever when
// rounds <= 0), reporting the tick it woke at.
func Sleeper(ticks, rounds int, report func(id kernel.TaskID, woke uint64)) func(*kernel.Context) {
	return func(c *kernel.Context) {
		for i := 0; rounds <= 0 || i < rounds; i++ {
			if err := c.Delay(ticks); err != nil {
				return
			}
			if report != nil {
				report(c.TaskID(), c.Kernel().Ticks())
			}
		}
	}
}

// Producer returns a watchdog routine that gives sem and re-arms wd to run
// again period ticks later. Arm it once with the returned routine to start it.
// It stops when a give or the re-arm fails, passing the error to stopped,
// which may be nil.
func Producer(wd kernel.WdID, sem kernel.SemID, period int, stopped func(err error)) kernel.WdRoutine {
	var routine kernel.WdRoutine
	routine = func(c *kernel.Context, _ any) {
		err := c.SemGive(sem)
		if err == nil {
			err = c.WdStart(wd, period, routine, nil)
		}
		if err != nil && stopped != nil {
			stopped(err)
		}
	}
	return routine
}
