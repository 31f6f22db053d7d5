package kernel

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSemTakeWokenByInterruptGive(t *testing.T) {
	k := newKernel(t)
	sem, err := k.SemCreate(SemQFIFO, 0)
	require.NoError(t, err)

	res := make(chan error, 1)
	taker, err := k.Spawn("taker", 10, func(c *Context) {
		res <- c.SemTake(sem, 100)
	})
	require.NoError(t, err)
	require.NoError(t, k.Start())
	waitIdle(t, k)

	info, err := k.SemInfo(sem, 8)
	require.NoError(t, err)
	assert.Equal(t, []TaskID{taker}, info.Pended)
	ti, err := k.TaskInfo(taker)
	require.NoError(t, err)
	assert.Equal(t, "PEND+DELAY", ti.State)
	assert.Equal(t, uint32(sem), ti.PendOn)

	tick(t, k, 50)
	k.Interrupt(func(c *Context) { assert.NoError(t, c.SemGive(sem)) })

	require.NoError(t, recv(t, res))
	waitIdle(t, k)
	info, err = k.SemInfo(sem, 8)
	require.NoError(t, err)
	assert.Zero(t, info.Count, "the give was a handoff")
	assert.Empty(t, info.Pended)
	assert.Zero(t, k.Snapshot().Timers, "the timeout was cancelled")
}

func TestSemTakeTimesOut(t *testing.T) {
	k := newKernel(t)
	sem, err := k.SemCreate(SemQFIFO, 0)
	require.NoError(t, err)

	res := make(chan error, 1)
	_, err = k.Spawn("taker", 10, func(c *Context) {
		res <- c.SemTake(sem, 5)
	})
	require.NoError(t, err)
	require.NoError(t, k.Start())
	waitIdle(t, k)

	tick(t, k, 4)
	select {
	case err := <-res:
		t.Fatalf("returned early: %v", err)
	default:
	}
	tick(t, k, 1)
	require.ErrorIs(t, recv(t, res), ErrTimeout)

	info, err := k.SemInfo(sem, 8)
	require.NoError(t, err)
	assert.Empty(t, info.Pended)
}

func TestSemFastPathAndNoWait(t *testing.T) {
	k := newKernel(t)
	sem, err := k.SemCreate(SemQPriority, 2)
	require.NoError(t, err)

	res := make(chan []error, 1)
	_, err = k.Spawn("t", 10, func(c *Context) {
		res <- []error{
			c.SemTake(sem, NoWait),
			c.SemTake(sem, WaitForever),
			c.SemTake(sem, NoWait),
			c.SemGive(sem),
			c.SemTake(sem, NoWait),
			c.SemTake(sem, -2),
		}
	})
	require.NoError(t, err)
	require.NoError(t, k.Start())

	errs := recv(t, res)
	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])
	assert.ErrorIs(t, errs[2], ErrUnavailable)
	assert.NoError(t, errs[3])
	assert.NoError(t, errs[4])
	assert.ErrorIs(t, errs[5], ErrInvalidArg)
}

func TestSemGiveAtMaximumCountFails(t *testing.T) {
	k := newKernel(t)
	sem, err := k.SemCreate(SemQFIFO, math.MaxUint32)
	require.NoError(t, err)

	res := make(chan []error, 1)
	_, err = k.Spawn("t", 10, func(c *Context) {
		res <- []error{
			c.SemGive(sem),
			c.SemTake(sem, NoWait),
			c.SemGive(sem),
		}
	})
	require.NoError(t, err)
	require.NoError(t, k.Start())

	errs := recv(t, res)
	assert.ErrorIs(t, errs[0], ErrInvalidArg)
	assert.NoError(t, errs[1])
	assert.NoError(t, errs[2])
	waitIdle(t, k)

	// an interrupt-level give at the maximum is dropped, not wrapped to zero
	k.Interrupt(func(c *Context) { assert.NoError(t, c.SemGive(sem)) })
	waitIdle(t, k)
	info, err := k.SemInfo(sem, 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(math.MaxUint32), info.Count)
}

func TestSemWakeOrder(t *testing.T) {
	for _, tc := range []struct {
		name string
		opts SemOptions
		want []string
	}{
		{"fifo", SemQFIFO, []string{"p30", "p10", "p20", "p10b"}},
		{"priority", SemQPriority, []string{"p10", "p10b", "p20", "p30"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			k := newKernel(t)
			sem, err := k.SemCreate(tc.opts, 0)
			require.NoError(t, err)

			var tr trail
			for _, w := range []struct {
				name string
				prio int
			}{{"p30", 30}, {"p10", 10}, {"p20", 20}, {"p10b", 10}} {
				w := w
				// spawn one by one so the pend order is the spawn order
				_, err := k.Spawn(w.name, w.prio, func(c *Context) {
					assert.NoError(t, c.SemTake(sem, WaitForever))
					tr.add("%s", w.name)
				})
				require.NoError(t, err)
				if !k.started.Load() {
					require.NoError(t, k.Start())
				}
				waitIdle(t, k)
			}

			// one give at a time: each handoff readies exactly one waiter
			for i := 0; i < 4; i++ {
				k.Interrupt(func(c *Context) { assert.NoError(t, c.SemGive(sem)) })
				waitIdle(t, k)
			}
			assert.Equal(t, tc.want, tr.get())
		})
	}
}

func TestSetPriorityResortsPendQueue(t *testing.T) {
	k := newKernel(t)
	sem, err := k.SemCreate(SemQPriority, 0)
	require.NoError(t, err)

	var tr trail
	ids := make(map[string]TaskID)
	for _, w := range []struct {
		name string
		prio int
	}{{"a", 10}, {"b", 20}, {"c", 30}} {
		w := w
		id, err := k.Spawn(w.name, w.prio, func(c *Context) {
			assert.NoError(t, c.SemTake(sem, WaitForever))
			tr.add("%s", w.name)
		})
		require.NoError(t, err)
		ids[w.name] = id
	}
	require.NoError(t, k.Start())
	waitIdle(t, k)

	info, err := k.SemInfo(sem, 8)
	require.NoError(t, err)
	assert.Equal(t, []TaskID{ids["a"], ids["b"], ids["c"]}, info.Pended)

	_, err = k.Spawn("boost", 5, func(c *Context) {
		assert.NoError(t, c.SetPriority(ids["c"], 1))
	})
	require.NoError(t, err)
	waitIdle(t, k)

	info, err = k.SemInfo(sem, 8)
	require.NoError(t, err)
	assert.Equal(t, []TaskID{ids["c"], ids["a"], ids["b"]}, info.Pended)
	ti, err := k.TaskInfo(ids["c"])
	require.NoError(t, err)
	assert.Equal(t, 1, ti.Priority)

	for i := 0; i < 3; i++ {
		k.Interrupt(func(c *Context) { assert.NoError(t, c.SemGive(sem)) })
		waitIdle(t, k)
	}
	assert.Equal(t, []string{"c", "a", "b"}, tr.get())
}

func TestSemFlush(t *testing.T) {
	k := newKernel(t)
	sem, err := k.SemCreate(SemQPriority, 0)
	require.NoError(t, err)

	var tr trail
	for _, name := range []string{"a", "b", "c"} {
		name := name
		_, err := k.Spawn(name, 10, func(c *Context) {
			assert.NoError(t, c.SemTake(sem, WaitForever))
			tr.add("%s", name)
		})
		require.NoError(t, err)
	}
	require.NoError(t, k.Start())
	waitIdle(t, k)

	k.Interrupt(func(c *Context) { assert.NoError(t, c.SemFlush(sem)) })
	waitIdle(t, k)
	assert.Equal(t, []string{"a", "b", "c"}, tr.get())

	info, err := k.SemInfo(sem, 8)
	require.NoError(t, err)
	assert.Zero(t, info.Count)
}

func TestSemDeleteWakesWaiters(t *testing.T) {
	k := newKernel(t)
	sem, err := k.SemCreate(SemQFIFO, 0)
	require.NoError(t, err)

	res := make(chan error, 2)
	for _, name := range []string{"w1", "w2"} {
		_, err := k.Spawn(name, 10, func(c *Context) {
			res <- c.SemTake(sem, WaitForever)
		})
		require.NoError(t, err)
	}
	del := make(chan error, 2)
	_, err = k.Spawn("deleter", 20, func(c *Context) {
		del <- c.SemDelete(sem)
		del <- c.SemDelete(sem)
	})
	require.NoError(t, err)
	require.NoError(t, k.Start())

	require.ErrorIs(t, recv(t, res), ErrDeleted)
	require.ErrorIs(t, recv(t, res), ErrDeleted)
	require.NoError(t, recv(t, del))
	require.ErrorIs(t, recv(t, del), ErrInvalidID)

	_, err = k.SemInfo(sem, 1)
	require.ErrorIs(t, err, ErrInvalidID)
	k.Interrupt(func(c *Context) {
		assert.ErrorIs(t, c.SemDelete(sem), ErrNotISRCallable)
		assert.ErrorIs(t, c.SemGive(sem), ErrInvalidID)
	})
}

func TestSemGiveRacingTakeLosesNothing(t *testing.T) {
	const rounds = 200
	k := newKernel(t)
	sem, err := k.SemCreate(SemQFIFO, 0)
	require.NoError(t, err)

	done := make(chan int, 1)
	_, err = k.Spawn("taker", 10, func(c *Context) {
		n := 0
		for i := 0; i < rounds; i++ {
			if assert.NoError(t, c.SemTake(sem, WaitForever)) {
				n++
			}
		}
		done <- n
	})
	require.NoError(t, err)
	require.NoError(t, k.Start())

	var wg sync.WaitGroup
	wg.Add(2)
	for g := 0; g < 2; g++ {
		go func() {
			defer wg.Done()
			for i := 0; i < rounds/2; i++ {
				k.Interrupt(func(c *Context) { c.SemGive(sem) })
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, rounds, recv(t, done))
	waitIdle(t, k)
	info, err := k.SemInfo(sem, 8)
	require.NoError(t, err)
	assert.Zero(t, info.Count)
	assert.Empty(t, info.Pended)
}

func TestSemEventNotification(t *testing.T) {
	k := newKernel(t)
	sem, err := k.SemCreate(SemQFIFO, 0)
	require.NoError(t, err)

	got := make(chan uint32, 2)
	reg := make(chan error, 1)
	r, err := k.Spawn("receiver", 10, func(c *Context) {
		reg <- c.SemEvStart(sem, 0x4, EventsSendOnce)
		ev, err := c.EventReceive(0x4, EventsWaitAny, WaitForever)
		assert.NoError(t, err)
		got <- ev
		ev, err = c.EventReceive(0x4, EventsWaitAny, NoWait)
		assert.ErrorIs(t, err, ErrUnavailable)
		got <- ev
	})
	require.NoError(t, err)
	require.NoError(t, k.Start())
	require.NoError(t, recv(t, reg))
	waitIdle(t, k)

	info, err := k.SemInfo(sem, 1)
	require.NoError(t, err)
	assert.Equal(t, r, info.EventTask)

	k.Interrupt(func(c *Context) { c.SemGive(sem) })
	assert.Equal(t, uint32(0x4), recv(t, got))
	assert.Zero(t, recv(t, got), "the register was consumed")
	waitIdle(t, k)

	// send-once: the second give only counts
	k.Interrupt(func(c *Context) { c.SemGive(sem) })
	waitIdle(t, k)

	info, err = k.SemInfo(sem, 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), info.Count)
	assert.Zero(t, info.EventTask)
}

func TestSemEventSendIfFree(t *testing.T) {
	k := newKernel(t)
	sem, err := k.SemCreate(SemQFIFO, 1)
	require.NoError(t, err)

	got := make(chan uint32, 1)
	_, err = k.Spawn("receiver", 10, func(c *Context) {
		assert.NoError(t, c.SemEvStart(sem, 0x1, EventsSendIfFree))
		ev, err := c.EventReceive(0x1, EventsWaitAll, NoWait)
		assert.NoError(t, err)
		assert.NoError(t, c.SemEvStop(sem))
		assert.ErrorIs(t, c.SemEvStop(sem), ErrNotRegistered)
		got <- ev
	})
	require.NoError(t, err)
	require.NoError(t, k.Start())
	assert.Equal(t, uint32(0x1), recv(t, got))
}

func TestSemEventRegistrationIsExclusive(t *testing.T) {
	k := newKernel(t)
	sem, err := k.SemCreate(SemQFIFO, 0)
	require.NoError(t, err)

	res := make(chan error, 2)
	for _, name := range []string{"first", "second"} {
		_, err := k.Spawn(name, 10, func(c *Context) {
			res <- c.SemEvStart(sem, 0x1, 0)
		})
		require.NoError(t, err)
	}
	require.NoError(t, k.Start())
	require.NoError(t, recv(t, res))
	require.ErrorIs(t, recv(t, res), ErrAlreadyRegistered)
}

func TestSemEventSendFailure(t *testing.T) {
	for _, tc := range []struct {
		name string
		opts SemOptions
		want error
	}{
		{"warn", SemQFIFO, nil},
		{"notify", SemQFIFO | SemEventSendErrNotify, ErrEventSend},
	} {
		t.Run(tc.name, func(t *testing.T) {
			k := newKernel(t)
			sem, err := k.SemCreate(tc.opts, 0)
			require.NoError(t, err)

			// the registered task exits before the give
			_, err = k.Spawn("gone", 10, func(c *Context) {
				assert.NoError(t, c.SemEvStart(sem, 0x1, 0))
			})
			require.NoError(t, err)
			res := make(chan error, 1)
			_, err = k.Spawn("giver", 20, func(c *Context) {
				res <- c.SemGive(sem)
			})
			require.NoError(t, err)
			require.NoError(t, k.Start())

			err = recv(t, res)
			if tc.want == nil {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, tc.want)
				require.ErrorIs(t, err, ErrInvalidID)
			}
			waitIdle(t, k)
			info, err := k.SemInfo(sem, 1)
			require.NoError(t, err)
			assert.Equal(t, uint32(1), info.Count)
			assert.Zero(t, info.EventTask, "a failed registration is dropped")
		})
	}
}
