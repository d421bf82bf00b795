// hook.go implements the process-wide uncaught panic hook slot.

package bugsnag

import (
	"sync"
)

// Hook is an exception hook. Hooks are compared by pointer identity, so a
// saved hook can be restored exactly.
type Hook struct {
	fn func(ExcInfo)
}

// NewHook wraps fn as a Hook.
func NewHook(fn func(ExcInfo)) *Hook {
	return &Hook{fn: fn}
}

// Invoke calls the hook. A nil hook does nothing.
func (h *Hook) Invoke(info ExcInfo) {
	if h == nil || h.fn == nil {
		return
	}
	h.fn(info)
}

// invokeIsolated calls the hook, recovering and logging any panic it raises.
func (h *Hook) invokeIsolated(info ExcInfo) {
	defer func() {
		if r := recover(); r != nil {
			defaultLogger.WithField("panic", r).Error("exception hook panicked")
		}
	}()
	h.Invoke(info)
}

// HookSlot holds the single hook invoked for uncaught panics.
// Install and uninstall are intended for process startup and shutdown.
type HookSlot struct {
	mu      sync.Mutex
	current *Hook
}

// NewHookSlot creates an empty slot, independent of the process-wide one.
func NewHookSlot() *HookSlot {
	return &HookSlot{}
}

var systemHooks = NewHookSlot()

// SystemHooks returns the process-wide slot used by HandleUncaught and Go.
func SystemHooks() *HookSlot {
	return systemHooks
}

// Current returns the installed hook, or nil.
func (s *HookSlot) Current() *Hook {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Set installs h and returns the hook it replaced.
func (s *HookSlot) Set(h *Hook) (prev *Hook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev = s.current
	s.current = h
	return prev
}

// Dispatch invokes the current hook, isolating any panic it raises.
func (s *HookSlot) Dispatch(info ExcInfo) {
	s.Current().invokeIsolated(info)
}

// Guard dispatches an uncaught panic to the slot's hook and then re-panics
// with the same value. Use it directly in a defer statement:
//
//	defer slot.Guard()
func (s *HookSlot) Guard() {
	if r := recover(); r != nil {
		s.Dispatch(newPanicInfo(r))
		panic(r)
	}
}

// HandleUncaught is Guard for the process-wide slot. Defer it at the top of
// main and of every goroutine whose panics should be reported:
//
//	defer bugsnag.HandleUncaught()
func HandleUncaught() {
	if r := recover(); r != nil {
		systemHooks.Dispatch(newPanicInfo(r))
		panic(r)
	}
}

// Go runs fn in a new goroutine guarded by HandleUncaught.
func Go(fn func()) {
	go func() {
		defer HandleUncaught()
		fn()
	}()
}
