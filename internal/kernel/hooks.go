// internal/kernel/hooks.go

package kernel

import "fmt"

// MaxSwapHooks is the number of swap hooks a kernel accepts.
const MaxSwapHooks = 16

// SwitchHook runs on every context switch, before next is loaded. prev is 0
// on the first dispatch. Hooks must not block or call the kernel.
type SwitchHook func(prev, next TaskID)

// SwapHook is a switch hook that only runs for tasks attached to it.
type SwapHook func(prev, next TaskID)

// AddSwitchHook registers a hook run on every switch, in registration order.
func (k *Kernel) AddSwitchHook(h SwitchHook) error {
	if k.started.Load() {
		return ErrStarted
	}
	k.switchHooks = append(k.switchHooks, h)
	return nil
}

// AddSwapHook registers a swap hook and returns its index for AttachSwapHook.
func (k *Kernel) AddSwapHook(h SwapHook) (int, error) {
	if k.started.Load() {
		return 0, ErrStarted
	}
	if len(k.swapHooks) == MaxSwapHooks {
		return 0, ErrHookTableFull
	}
	k.swapHooks = append(k.swapHooks, h)
	return len(k.swapHooks) - 1, nil
}

// AttachSwapHook makes hook run when task is switched in, out or both.
func (k *Kernel) AttachSwapHook(hook int, id TaskID, in, out bool) error {
	if k.started.Load() {
		return ErrStarted
	}
	if hook < 0 || hook >= len(k.swapHooks) {
		return fmt.Errorf("%w: swap hook %d", ErrInvalidArg, hook)
	}
	t, err := k.task(id)
	if err != nil {
		return err
	}
	if in {
		t.swapIn |= 1 << hook
	}
	if out {
		t.swapOut |= 1 << hook
	}
	return nil
}
