// Package deferloop provides a deterministic, single-threaded model of a
// JavaScript-style host's deferred callback ordering: process.nextTick,
// promise continuations and queueMicrotask, setTimeout/setInterval, and
// setImmediate.
//
// # Architecture
//
// A [Scheduler] owns four FIFO tiers:
//
//  1. [TierA]: immediate microtasks (nextTick). Always drained to exhaustion
//     before control returns to any lower tier.
//  2. [TierB]: standard microtasks (promise continuations, queueMicrotask).
//  3. [TierTimer]: timer entries, ordered by (delay, enrollment order).
//     Repeating entries re-enroll after firing unless cancelled.
//  4. [TierCheck]: runs after the timer callbacks of a pass.
//
// Delays are logical priorities, not durations. Nothing in this package reads
// a clock or starts a goroutine, so the same sequence of enqueue calls always
// produces the same execution order.
//
// The [JS] adapter exposes the familiar host vocabulary on top of the tiers
// ([JS.NextTick], [JS.Then], [JS.QueueMicrotask], [JS.SetTimeout],
// [JS.SetInterval], [JS.SetImmediate]), and [Console] records the observable
// output of a program.
//
// # Execution Model
//
// [Scheduler.RunSynchronous] executes a [Program]. Scheduling calls made by
// the program only enqueue. [Scheduler.Drain] then performs one pass:
//
//  1. Tier-A to exhaustion.
//  2. Tier-B to exhaustion, with Tier-A drained again after each Tier-B
//     callback.
//  3. Every timer enrolled when the phase starts, in (delay, enrollment)
//     order, with Tier-A drained after each one. Timers enrolled during this
//     phase, including re-enrolled intervals, wait for the next pass.
//  4. Every check callback queued when the phase starts. Work queued during
//     this phase waits for the next pass.
//
// [Scheduler.Run] combines the two and keeps draining until no work remains.
//
// # Usage
//
//	s, err := deferloop.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	var console deferloop.Console
//	err = s.Run(context.Background(), func(s *deferloop.Scheduler) error {
//	    js := deferloop.NewJS(s)
//	    js.SetTimeout(func() { console.Log("timeout") }, 0)
//	    js.Then(func() { console.Log("promise-then") })
//	    js.NextTick(func() { console.Log("nextTick") })
//	    return nil
//	})
//
// # Error Types
//
//   - [InvalidDelayError]: negative timer delay, matches [ErrInvalidDelay]
//   - [CallbackError]: a callback returned an error or panicked, delivered to
//     the handler configured by [WithErrorHandler]
//   - [PanicError]: wraps recovered panic values
package deferloop
