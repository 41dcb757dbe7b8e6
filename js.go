// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package deferloop

// SetTimeoutFunc is a callback function for [JS.SetTimeout], [JS.SetInterval]
// and [JS.SetImmediate].
type SetTimeoutFunc func()

// MicrotaskFunc is a callback function for [JS.NextTick], [JS.Then] and
// [JS.QueueMicrotask].
type MicrotaskFunc func()

// JS maps the scheduling vocabulary of a JavaScript host onto the tiers of a
// [Scheduler]:
//
//   - [JS.NextTick]: Tier-A (process.nextTick)
//   - [JS.Then], [JS.QueueMicrotask], [JS.Await]: Tier-B
//   - [JS.SetTimeout], [JS.SetInterval]: the timer tier
//   - [JS.SetImmediate]: the check tier
//
// Nil functions are ignored. Negative delays are treated as 0, as a host
// would, rather than rejected.
type JS struct {
	s *Scheduler
}

// NewJS creates a new [JS] adapter for s.
//
// Example:
//
//	err := s.Run(ctx, func(s *deferloop.Scheduler) error {
//	    js := deferloop.NewJS(s)
//	    js.SetImmediate(func() { console.Log("setImmediate") })
//	    js.NextTick(func() { console.Log("nextTick") })
//	    return nil
//	})
func NewJS(s *Scheduler) *JS {
	return &JS{s: s}
}

// Scheduler returns the underlying [Scheduler].
func (js *JS) Scheduler() *Scheduler {
	return js.s
}

// NextTick schedules fn ahead of every other deferred callback.
func (js *JS) NextTick(fn MicrotaskFunc) {
	if fn == nil {
		return
	}
	_ = js.s.Enqueue(TierA, wrap(fn))
}

// QueueMicrotask schedules fn as a standard microtask.
func (js *JS) QueueMicrotask(fn MicrotaskFunc) {
	if fn == nil {
		return
	}
	_ = js.s.Enqueue(TierB, wrap(fn))
}

// Then schedules fn as the continuation of an already-resolved promise, i.e.
// Promise.resolve().then(fn). It shares Tier-B, and its FIFO order, with
// QueueMicrotask.
func (js *JS) Then(fn MicrotaskFunc) {
	js.QueueMicrotask(fn)
}

// Await models an async function that awaits an already-settled value:
// before runs synchronously, and after is queued as the continuation.
func (js *JS) Await(before, after MicrotaskFunc) {
	if before != nil {
		before()
	}
	js.QueueMicrotask(after)
}

// SetTimeout schedules fn to run once in the timer phase, ordered by delay
// then by enrollment. It returns 0 if fn is nil.
func (js *JS) SetTimeout(fn SetTimeoutFunc, delay int) TimerHandle {
	return js.enroll(fn, delay, false)
}

// SetInterval schedules fn to run in the timer phase of every pass, until
// [JS.ClearInterval] is called, including from within fn. It returns 0 if fn
// is nil.
func (js *JS) SetInterval(fn SetTimeoutFunc, delay int) TimerHandle {
	return js.enroll(fn, delay, true)
}

func (js *JS) enroll(fn SetTimeoutFunc, delay int, repeating bool) TimerHandle {
	if fn == nil {
		return 0
	}
	if delay < 0 {
		delay = 0
	}
	// the only failure modes (nil callback, negative delay) are excluded above
	h, _ := js.s.EnqueueTimer(wrap(fn), int64(delay), repeating)
	return h
}

// ClearTimeout cancels a timeout. It is safe to call multiple times, and
// with handles that already fired.
func (js *JS) ClearTimeout(h TimerHandle) {
	js.s.Cancel(h)
}

// ClearInterval cancels an interval, including from within its own callback.
func (js *JS) ClearInterval(h TimerHandle) {
	js.s.Cancel(h)
}

// SetImmediate schedules fn for the check phase of the next pass that
// reaches it.
func (js *JS) SetImmediate(fn SetTimeoutFunc) {
	if fn == nil {
		return
	}
	_ = js.s.Enqueue(TierCheck, wrap(fn))
}

// wrap adapts a host-style callback, which cannot fail except by panicking.
func wrap[F ~func()](fn F) Callback {
	return func() error {
		fn()
		return nil
	}
}
