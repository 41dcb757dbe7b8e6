// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package deferloop

import (
	"context"

	"github.com/google/uuid"
	"github.com/joeycumines/logiface"
)

// Callback is a unit of deferred work. A non-nil error, or a panic, is
// reported as a [CallbackError] and does not stop the drain.
type Callback func() error

// Program is the synchronous body of a run, see [Scheduler.RunSynchronous].
// It receives the scheduler it runs on, rather than finding it through
// package state.
type Program func(s *Scheduler) error

// Bind returns a Callback that passes state to fn. Use it to hand a callback
// the state it mutates explicitly, at registration time.
func Bind[S any](state S, fn func(S) error) Callback {
	return func() error {
		return fn(state)
	}
}

// Scheduler is a deterministic single-threaded deferred-callback scheduler.
//
// A Scheduler holds the state of one simulated program run: the four tier
// queues and the enrollment counter. [Scheduler.Reset] discards it.
//
// Thread Safety: a Scheduler is NOT safe for concurrent use. Callbacks always
// run on the goroutine that called Drain or Run, and may call the scheduling
// methods directly.
type Scheduler struct {
	// Prevent copying
	_ [0]func()

	opts       *schedulerOptions
	baseLogger *logiface.Logger[logiface.Event]
	logger     *logiface.Logger[logiface.Event]
	metrics    *metrics

	tierA  taskQueue
	tierB  taskQueue
	check  taskQueue
	timers timerQueue

	runID      string
	seq        uint64
	nextHandle uint64
	passes     int
	executed   int // callbacks run by the current Drain, for the budget

	phase Phase
	busy  bool
}

// New creates a Scheduler with a fresh run.
func New(opts ...Option) (*Scheduler, error) {
	options, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	s := &Scheduler{
		opts:       options,
		baseLogger: options.logger,
	}
	if options.metricsEnabled {
		s.metrics = &metrics{}
	}
	s.reset()

	return s, nil
}

// Reset discards all queued work, counters and metrics, and starts a new run
// with a new run ID. It returns [ErrReentrant] if called from within a
// program or callback.
func (s *Scheduler) Reset() error {
	if s.busy {
		return ErrReentrant
	}
	s.reset()
	return nil
}

func (s *Scheduler) reset() {
	s.tierA.Clear()
	s.tierB.Clear()
	s.check.Clear()
	s.timers.clear()
	s.seq = 0
	s.nextHandle = 0
	s.passes = 0
	s.executed = 0
	s.phase = PhaseIdle
	s.metrics.reset()
	s.runID = uuid.NewString()
	s.logger = runLogger(s.baseLogger, s.runID)
}

// RunID identifies the current run in log output.
func (s *Scheduler) RunID() string {
	return s.runID
}

// Phase returns what the scheduler is currently executing.
func (s *Scheduler) Phase() Phase {
	return s.phase
}

// Passes returns the number of Drain calls made in the current run.
func (s *Scheduler) Passes() int {
	return s.passes
}

// Metrics returns a copy of the execution counters. It returns the zero value
// unless the scheduler was created with WithMetrics(true).
func (s *Scheduler) Metrics() Metrics {
	return s.metrics.snapshot()
}

// Len returns the number of callbacks queued in tier. For [TierTimer] it is
// the number of enrolled timers not taken by a pass in progress.
func (s *Scheduler) Len(tier Tier) int {
	switch tier {
	case TierA:
		return s.tierA.Len()
	case TierB:
		return s.tierB.Len()
	case TierTimer:
		return s.timers.Len()
	case TierCheck:
		return s.check.Len()
	default:
		return 0
	}
}

// Pending reports whether any tier holds work that a Drain would run,
// including repeating timers.
func (s *Scheduler) Pending() bool {
	return s.tierA.Len() > 0 ||
		s.tierB.Len() > 0 ||
		s.check.Len() > 0 ||
		s.timers.pending() > 0
}

func (s *Scheduler) nextSeq() uint64 {
	s.seq++
	return s.seq
}

// Enqueue appends cb to the tail of tier. [TierTimer] enrolls a one-shot
// timer with zero delay, use [Scheduler.EnqueueTimer] for anything else.
func (s *Scheduler) Enqueue(tier Tier, cb Callback) error {
	if cb == nil {
		return ErrNilCallback
	}

	var q *taskQueue
	switch tier {
	case TierA:
		q = &s.tierA
	case TierB:
		q = &s.tierB
	case TierCheck:
		q = &s.check
	case TierTimer:
		_, err := s.EnqueueTimer(cb, 0, false)
		return err
	default:
		return ErrUnknownTier
	}

	t := task{cb: cb, seq: s.nextSeq()}
	q.Push(t)
	s.metrics.enqueued(tier)
	s.logEnqueue(tier, t.seq)

	return nil
}

// EnqueueTimer enrolls cb in the timer tier. Timers run in order of delay,
// then enrollment. A repeating timer is enrolled again after each firing,
// until cancelled.
//
// A negative delay fails with an [*InvalidDelayError], which matches
// [ErrInvalidDelay].
func (s *Scheduler) EnqueueTimer(cb Callback, delay int64, repeating bool) (TimerHandle, error) {
	if cb == nil {
		return 0, ErrNilCallback
	}
	if delay < 0 {
		return 0, &InvalidDelayError{Delay: delay}
	}

	s.nextHandle++
	e := &timerEntry{
		cb:        cb,
		delay:     delay,
		seq:       s.nextSeq(),
		handle:    TimerHandle(s.nextHandle),
		index:     -1,
		repeating: repeating,
	}
	s.timers.enroll(e)
	s.metrics.enqueued(TierTimer)
	s.logEnroll(e)

	return e.handle, nil
}

// Cancel removes the timer identified by h, if it has not fired. Cancelling a
// repeating timer from within its own callback stops it re-enrolling.
// Unknown, fired and already cancelled handles are ignored.
func (s *Scheduler) Cancel(h TimerHandle) {
	e, ok := s.timers.cancel(h)
	if !ok {
		return
	}
	s.metrics.cancelled()
	s.logger.Debug().
		Uint64(`handle`, uint64(h)).
		Uint64(`seq`, e.seq).
		Log(`timer cancelled`)
}

// RunSynchronous executes program to completion. Scheduling calls it makes
// are queued and do not run until Drain. The program's error, or a
// [PanicError] if it panicked, is returned.
func (s *Scheduler) RunSynchronous(program Program) error {
	if s.busy {
		return ErrReentrant
	}
	if program == nil {
		return nil
	}

	s.busy = true
	s.phase = PhaseSynchronous
	defer func() {
		s.busy = false
		s.phase = PhaseIdle
	}()

	return safeCall(func() error { return program(s) })
}

// Drain performs one pass: Tier-A, then Tier-B (with Tier-A preempting after
// each callback), then every timer enrolled as the timer phase starts, then
// every check callback queued as the check phase starts.
//
// Callback failures never stop a pass. Drain returns [ErrReentrant] if called
// from within a callback, and [ErrDrainBudgetExceeded] if the pass was cut
// short by [WithDrainBudget], in which case the work not run stays queued in
// its original order.
func (s *Scheduler) Drain() error {
	if s.busy {
		return ErrReentrant
	}

	s.busy = true
	s.executed = 0
	defer func() {
		s.busy = false
		s.phase = PhaseIdle
	}()

	err := s.drainPass()
	s.passes++
	s.metrics.pass()
	s.logPass(s.executed, err)

	return err
}

func (s *Scheduler) drainPass() error {
	if err := s.drainTierA(); err != nil {
		return err
	}
	if err := s.drainTierB(); err != nil {
		return err
	}
	if err := s.runTimers(); err != nil {
		return err
	}
	return s.runCheck()
}

// Run resets the scheduler, runs program, then drains until no work is
// pending. It stops early with ctx.Err() once ctx is done (checked between
// passes), with [ErrPassLimit] if [WithMaxPasses] passes did not empty the
// tiers, or with the first error returned by RunSynchronous or Drain.
func (s *Scheduler) Run(ctx context.Context, program Program) error {
	if err := s.Reset(); err != nil {
		return err
	}
	if err := s.RunSynchronous(program); err != nil {
		return err
	}
	for s.Pending() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.opts.maxPasses > 0 && s.passes >= s.opts.maxPasses {
			return ErrPassLimit
		}
		if err := s.Drain(); err != nil {
			return err
		}
	}
	return nil
}

// spend charges one callback against the drain budget.
func (s *Scheduler) spend() error {
	if s.opts.drainBudget > 0 && s.executed >= s.opts.drainBudget {
		return ErrDrainBudgetExceeded
	}
	s.executed++
	return nil
}

// drainTierA runs Tier-A until it is empty, including anything Tier-A
// callbacks enqueue into Tier-A.
func (s *Scheduler) drainTierA() error {
	if s.tierA.Len() == 0 {
		return nil
	}

	prev := s.phase
	s.phase = PhaseTierA
	defer func() { s.phase = prev }()

	for s.tierA.Len() > 0 {
		if err := s.spend(); err != nil {
			return err
		}
		t, _ := s.tierA.Pop()
		s.execute(TierA, t.seq, 0, t.cb)
	}
	return nil
}

// drainTierB runs Tier-B until it is empty, draining Tier-A after each one.
func (s *Scheduler) drainTierB() error {
	s.phase = PhaseTierB
	for s.tierB.Len() > 0 {
		if err := s.spend(); err != nil {
			return err
		}
		t, _ := s.tierB.Pop()
		s.execute(TierB, t.seq, 0, t.cb)
		if err := s.drainTierA(); err != nil {
			return err
		}
	}
	return nil
}

// runTimers runs the timers enrolled as the phase starts, in (delay, seq)
// order, draining Tier-A after each one.
func (s *Scheduler) runTimers() error {
	s.phase = PhaseTimers
	entries := s.timers.snapshot()
	for i, e := range entries {
		if e.cancelled {
			continue
		}
		if err := s.spend(); err != nil {
			s.restoreTimers(entries[i:])
			return err
		}

		if !e.repeating {
			s.timers.release(e)
		}
		s.execute(TierTimer, e.seq, e.handle, e.cb)

		if e.repeating && !e.cancelled {
			// tail of its delay class, picked up by the next pass
			e.seq = s.nextSeq()
			s.timers.enroll(e)
			s.metrics.reenrolled()
			s.logger.Debug().
				Uint64(`handle`, uint64(e.handle)).
				Uint64(`seq`, e.seq).
				Int64(`delay`, e.delay).
				Log(`timer re-enrolled`)
		}

		if err := s.drainTierA(); err != nil {
			s.restoreTimers(entries[i+1:])
			return err
		}
	}
	return nil
}

// restoreTimers puts back snapshotted entries a pass did not get to. Their
// seq is unchanged, so they keep their place.
func (s *Scheduler) restoreTimers(entries []*timerEntry) {
	for _, e := range entries {
		if !e.cancelled {
			s.timers.enroll(e)
		}
	}
}

// runCheck runs the check callbacks queued as the phase starts. Work queued
// by them, in any tier, waits for the next pass.
func (s *Scheduler) runCheck() error {
	s.phase = PhaseCheck
	batch := s.check.Detach()
	for batch.Len() > 0 {
		if err := s.spend(); err != nil {
			s.restoreCheck(&batch)
			return err
		}
		t, _ := batch.Pop()
		s.execute(TierCheck, t.seq, 0, t.cb)
	}
	return nil
}

// restoreCheck puts the unrun remainder of a check batch back, ahead of
// anything queued since the batch was taken.
func (s *Scheduler) restoreCheck(batch *taskQueue) {
	newer := s.check.Detach()
	s.check = batch.Detach()
	for newer.Len() > 0 {
		t, _ := newer.Pop()
		s.check.Push(t)
	}
}

// execute runs one dequeued callback, reporting any failure.
func (s *Scheduler) execute(tier Tier, seq uint64, handle TimerHandle, cb Callback) {
	s.logExecute(tier, seq)

	err := safeCall(cb)
	s.metrics.executed(tier, err != nil)
	if err == nil {
		return
	}

	cbErr := &CallbackError{
		Err:    err,
		Tier:   tier,
		Seq:    seq,
		Handle: handle,
	}
	s.logCallbackError(cbErr)
	if s.opts.errorHandler != nil {
		s.opts.errorHandler(cbErr)
	}
}

// safeCall calls fn, converting a panic into a PanicError.
func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = PanicError{Value: r}
		}
	}()
	return fn()
}
