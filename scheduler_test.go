// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package deferloop

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder is the shared output sink for ordering tests.
type recorder struct {
	order []string
}

func (r *recorder) cb(name string) Callback {
	return Bind(r, func(r *recorder) error {
		r.order = append(r.order, name)
		return nil
	})
}

func newTestScheduler(t *testing.T, opts ...Option) *Scheduler {
	t.Helper()
	s, err := New(opts...)
	require.NoError(t, err)
	return s
}

func TestScheduler_TierOrderAfterSynchronousPhase(t *testing.T) {
	s := newTestScheduler(t)
	r := &recorder{}

	require.NoError(t, s.RunSynchronous(func(s *Scheduler) error {
		require.NoError(t, s.Enqueue(TierCheck, r.cb("check-1")))
		_, err := s.EnqueueTimer(r.cb("timer-1"), 3, false)
		require.NoError(t, err)
		require.NoError(t, s.Enqueue(TierB, r.cb("b-1")))
		require.NoError(t, s.Enqueue(TierA, r.cb("a-1")))
		require.NoError(t, s.Enqueue(TierCheck, r.cb("check-2")))
		_, err = s.EnqueueTimer(r.cb("timer-2"), 0, false)
		require.NoError(t, err)
		require.NoError(t, s.Enqueue(TierB, r.cb("b-2")))
		require.NoError(t, s.Enqueue(TierA, r.cb("a-2")))
		r.order = append(r.order, "sync")
		return nil
	}))

	assert.Equal(t, []string{"sync"}, r.order, "nothing may run during the synchronous phase")

	require.NoError(t, s.Drain())
	assert.Equal(t, []string{
		"sync",
		"a-1", "a-2",
		"b-1", "b-2",
		"timer-2", "timer-1",
		"check-1", "check-2",
	}, r.order)
	assert.False(t, s.Pending())
	assert.Equal(t, PhaseIdle, s.Phase())
}

func TestScheduler_TierAPreemptsTierB(t *testing.T) {
	s := newTestScheduler(t)
	r := &recorder{}

	require.NoError(t, s.Enqueue(TierA, r.cb("cb1")))
	require.NoError(t, s.Enqueue(TierB, func() error {
		r.order = append(r.order, "cb2")
		return s.Enqueue(TierA, r.cb("cb3"))
	}))
	require.NoError(t, s.Enqueue(TierB, r.cb("cb4")))

	require.NoError(t, s.Drain())
	assert.Equal(t, []string{"cb1", "cb2", "cb3", "cb4"}, r.order)
}

func TestScheduler_TierARecursionDrainedToExhaustion(t *testing.T) {
	s := newTestScheduler(t)
	r := &recorder{}

	var depth int
	var next Callback
	next = func() error {
		depth++
		r.order = append(r.order, fmt.Sprintf("a-%d", depth))
		if depth < 3 {
			return s.Enqueue(TierA, next)
		}
		return nil
	}
	require.NoError(t, s.Enqueue(TierB, r.cb("b")))
	require.NoError(t, s.Enqueue(TierA, next))

	require.NoError(t, s.Drain())
	assert.Equal(t, []string{"a-1", "a-2", "a-3", "b"}, r.order)
}

func TestScheduler_TierBEnqueuedWhileDrainingRunsSamePass(t *testing.T) {
	s := newTestScheduler(t)
	r := &recorder{}

	require.NoError(t, s.Enqueue(TierB, func() error {
		r.order = append(r.order, "b-1")
		return s.Enqueue(TierB, r.cb("b-2"))
	}))
	_, err := s.EnqueueTimer(r.cb("timer"), 0, false)
	require.NoError(t, err)

	require.NoError(t, s.Drain())
	assert.Equal(t, []string{"b-1", "b-2", "timer"}, r.order)
}

func TestScheduler_TimerDelayIsPrimaryKey(t *testing.T) {
	s := newTestScheduler(t)
	r := &recorder{}

	_, err := s.EnqueueTimer(r.cb("t5"), 5, false)
	require.NoError(t, err)
	_, err = s.EnqueueTimer(r.cb("t1"), 0, false)
	require.NoError(t, err)
	_, err = s.EnqueueTimer(r.cb("t2"), 0, false)
	require.NoError(t, err)

	require.NoError(t, s.Drain())
	assert.Equal(t, []string{"t1", "t2", "t5"}, r.order)
}

func TestScheduler_TimerEnrolledDuringTimerPassWaits(t *testing.T) {
	s := newTestScheduler(t)
	r := &recorder{}

	_, err := s.EnqueueTimer(func() error {
		r.order = append(r.order, "outer")
		_, err := s.EnqueueTimer(r.cb("inner"), 0, false)
		return err
	}, 0, false)
	require.NoError(t, err)
	require.NoError(t, s.Enqueue(TierCheck, r.cb("check")))

	require.NoError(t, s.Drain())
	assert.Equal(t, []string{"outer", "check"}, r.order)
	assert.True(t, s.Pending())
	assert.Equal(t, 1, s.Len(TierTimer))

	require.NoError(t, s.Drain())
	assert.Equal(t, []string{"outer", "check", "inner"}, r.order)
	assert.False(t, s.Pending())
}

func TestScheduler_TimerEnrolledDuringTierBRunsSamePass(t *testing.T) {
	s := newTestScheduler(t)
	r := &recorder{}

	_, err := s.EnqueueTimer(r.cb("existing"), 0, false)
	require.NoError(t, err)
	require.NoError(t, s.Enqueue(TierB, func() error {
		_, err := s.EnqueueTimer(r.cb("from-microtask"), 0, false)
		return err
	}))

	require.NoError(t, s.Drain())
	assert.Equal(t, []string{"existing", "from-microtask"}, r.order)
}

func TestScheduler_TierAAfterEachTimer(t *testing.T) {
	s := newTestScheduler(t)
	r := &recorder{}

	_, err := s.EnqueueTimer(func() error {
		r.order = append(r.order, "t1")
		if err := s.Enqueue(TierB, r.cb("b-deferred")); err != nil {
			return err
		}
		return s.Enqueue(TierA, r.cb("a-after-t1"))
	}, 0, false)
	require.NoError(t, err)
	_, err = s.EnqueueTimer(r.cb("t2"), 0, false)
	require.NoError(t, err)

	require.NoError(t, s.Drain())
	assert.Equal(t, []string{"t1", "a-after-t1", "t2"}, r.order)
	assert.Equal(t, 1, s.Len(TierB))

	require.NoError(t, s.Drain())
	assert.Equal(t, []string{"t1", "a-after-t1", "t2", "b-deferred"}, r.order)
}

func TestScheduler_CheckPhaseHasNoPreemption(t *testing.T) {
	s := newTestScheduler(t)
	r := &recorder{}

	require.NoError(t, s.Enqueue(TierCheck, func() error {
		r.order = append(r.order, "check-1")
		if err := s.Enqueue(TierA, r.cb("a")); err != nil {
			return err
		}
		if err := s.Enqueue(TierB, r.cb("b")); err != nil {
			return err
		}
		return s.Enqueue(TierCheck, r.cb("check-3"))
	}))
	require.NoError(t, s.Enqueue(TierCheck, r.cb("check-2")))

	require.NoError(t, s.Drain())
	assert.Equal(t, []string{"check-1", "check-2"}, r.order)

	require.NoError(t, s.Drain())
	assert.Equal(t, []string{"check-1", "check-2", "a", "b", "check-3"}, r.order)
}

func TestScheduler_IntervalReenrollsEachPass(t *testing.T) {
	s := newTestScheduler(t, WithMetrics(true))
	r := &recorder{}

	h, err := s.EnqueueTimer(r.cb("tick"), 0, true)
	require.NoError(t, err)
	_, err = s.EnqueueTimer(r.cb("once"), 0, false)
	require.NoError(t, err)

	require.NoError(t, s.Drain())
	assert.Equal(t, []string{"tick", "once"}, r.order)

	// re-enrolled at the tail of its delay class, behind the newer timer
	_, err = s.EnqueueTimer(r.cb("later"), 0, false)
	require.NoError(t, err)
	require.NoError(t, s.Drain())
	assert.Equal(t, []string{"tick", "once", "tick", "later"}, r.order)

	s.Cancel(h)
	require.NoError(t, s.Drain())
	assert.Equal(t, []string{"tick", "once", "tick", "later"}, r.order)
	assert.False(t, s.Pending())

	m := s.Metrics()
	assert.Equal(t, uint64(2), m.Reenrolled)
	assert.Equal(t, uint64(1), m.Cancelled)
}

func TestScheduler_IntervalCancelledInOwnCallback(t *testing.T) {
	s := newTestScheduler(t)
	var fired int

	var h TimerHandle
	h, err := s.EnqueueTimer(func() error {
		fired++
		s.Cancel(h)
		return nil
	}, 0, true)
	require.NoError(t, err)

	require.NoError(t, s.Drain())
	assert.Equal(t, 1, fired)
	assert.False(t, s.Pending())

	require.NoError(t, s.Drain())
	assert.Equal(t, 1, fired, "a self-cancelled interval must not fire again")
}

func TestScheduler_CancelBeforeFiring(t *testing.T) {
	s := newTestScheduler(t)
	r := &recorder{}

	h1, err := s.EnqueueTimer(r.cb("t1"), 0, false)
	require.NoError(t, err)
	h2, err := s.EnqueueTimer(r.cb("t2"), 1, false)
	require.NoError(t, err)

	s.Cancel(h1)
	assert.Equal(t, 1, s.Len(TierTimer))

	require.NoError(t, s.Drain())
	assert.Equal(t, []string{"t2"}, r.order)

	// already fired, already cancelled, never issued
	s.Cancel(h2)
	s.Cancel(h1)
	s.Cancel(0)
	s.Cancel(9999)
}

func TestScheduler_CancelLaterTimerFromEarlierTimerInSamePass(t *testing.T) {
	s := newTestScheduler(t)
	r := &recorder{}

	var victim TimerHandle
	_, err := s.EnqueueTimer(func() error {
		r.order = append(r.order, "first")
		s.Cancel(victim)
		return nil
	}, 0, false)
	require.NoError(t, err)
	victim, err = s.EnqueueTimer(r.cb("victim"), 0, false)
	require.NoError(t, err)
	_, err = s.EnqueueTimer(r.cb("last"), 0, false)
	require.NoError(t, err)

	require.NoError(t, s.Drain())
	assert.Equal(t, []string{"first", "last"}, r.order)
}

func TestScheduler_OneShotCancelInOwnCallbackIsNoop(t *testing.T) {
	s := newTestScheduler(t, WithMetrics(true))
	var h TimerHandle
	h, err := s.EnqueueTimer(func() error {
		s.Cancel(h)
		return nil
	}, 0, false)
	require.NoError(t, err)

	require.NoError(t, s.Drain())
	assert.Equal(t, uint64(0), s.Metrics().Cancelled)
}

func TestScheduler_CallbackErrorDoesNotStopDrain(t *testing.T) {
	var reported []*CallbackError
	s := newTestScheduler(t, WithErrorHandler(func(err *CallbackError) {
		reported = append(reported, err)
	}))
	r := &recorder{}
	boom := errors.New("boom")

	require.NoError(t, s.Enqueue(TierB, r.cb("b-1")))
	require.NoError(t, s.Enqueue(TierB, func() error {
		r.order = append(r.order, "b-fail")
		return boom
	}))
	require.NoError(t, s.Enqueue(TierB, r.cb("b-2")))
	_, err := s.EnqueueTimer(r.cb("timer"), 0, false)
	require.NoError(t, err)
	require.NoError(t, s.Enqueue(TierCheck, r.cb("check")))

	require.NoError(t, s.Drain())
	assert.Equal(t, []string{"b-1", "b-fail", "b-2", "timer", "check"}, r.order)

	require.Len(t, reported, 1)
	assert.ErrorIs(t, reported[0], boom)
	assert.Equal(t, TierB, reported[0].Tier)
	assert.Equal(t, uint64(2), reported[0].Seq)
	assert.Zero(t, reported[0].Handle)
}

func TestScheduler_PanickingCallbackIsRecovered(t *testing.T) {
	var reported []*CallbackError
	s := newTestScheduler(t, WithErrorHandler(func(err *CallbackError) {
		reported = append(reported, err)
	}))
	r := &recorder{}

	h, err := s.EnqueueTimer(func() error {
		panic("timer exploded")
	}, 0, true)
	require.NoError(t, err)
	require.NoError(t, s.Enqueue(TierCheck, r.cb("check")))

	require.NoError(t, s.Drain())
	assert.Equal(t, []string{"check"}, r.order)

	require.Len(t, reported, 1)
	var pe PanicError
	require.ErrorAs(t, reported[0], &pe)
	assert.Equal(t, "timer exploded", pe.Value)
	assert.Equal(t, TierTimer, reported[0].Tier)
	assert.Equal(t, h, reported[0].Handle)

	// a failing interval still re-enrolls
	assert.Equal(t, 1, s.Len(TierTimer))
}

func TestScheduler_RemovedBeforeRun(t *testing.T) {
	s := newTestScheduler(t)
	var lens []int

	require.NoError(t, s.Enqueue(TierB, func() error {
		lens = append(lens, s.Len(TierB))
		return nil
	}))
	require.NoError(t, s.Enqueue(TierCheck, func() error {
		lens = append(lens, s.Len(TierCheck))
		return nil
	}))
	_, err := s.EnqueueTimer(func() error {
		lens = append(lens, s.Len(TierTimer))
		return nil
	}, 0, true)
	require.NoError(t, err)

	require.NoError(t, s.Drain())
	assert.Equal(t, []int{0, 0, 0}, lens)
}

func TestScheduler_InvalidDelay(t *testing.T) {
	s := newTestScheduler(t)

	h, err := s.EnqueueTimer(func() error { return nil }, -1, false)
	assert.Zero(t, h)
	require.ErrorIs(t, err, ErrInvalidDelay)

	var ide *InvalidDelayError
	require.ErrorAs(t, err, &ide)
	assert.Equal(t, int64(-1), ide.Delay)
	assert.False(t, s.Pending())
}

func TestScheduler_EnqueueValidation(t *testing.T) {
	s := newTestScheduler(t)

	assert.ErrorIs(t, s.Enqueue(TierA, nil), ErrNilCallback)
	assert.ErrorIs(t, s.Enqueue(Tier(42), func() error { return nil }), ErrUnknownTier)
	_, err := s.EnqueueTimer(nil, 0, false)
	assert.ErrorIs(t, err, ErrNilCallback)
	assert.Equal(t, 0, s.Len(Tier(42)))
	assert.False(t, s.Pending())
}

func TestScheduler_EnqueueTimerTier(t *testing.T) {
	s := newTestScheduler(t)
	r := &recorder{}

	_, err := s.EnqueueTimer(r.cb("delayed"), 1, false)
	require.NoError(t, err)
	require.NoError(t, s.Enqueue(TierTimer, r.cb("zero")))
	assert.Equal(t, 2, s.Len(TierTimer))

	require.NoError(t, s.Drain())
	assert.Equal(t, []string{"zero", "delayed"}, r.order)
}

func TestScheduler_Reentrancy(t *testing.T) {
	s := newTestScheduler(t)
	var errs []error

	require.NoError(t, s.Enqueue(TierB, func() error {
		errs = append(errs, s.Drain())
		errs = append(errs, s.RunSynchronous(func(*Scheduler) error { return nil }))
		errs = append(errs, s.Run(context.Background(), nil))
		errs = append(errs, s.Reset())
		return nil
	}))
	require.NoError(t, s.Drain())

	require.Len(t, errs, 4)
	for _, err := range errs {
		assert.ErrorIs(t, err, ErrReentrant)
	}

	err := s.RunSynchronous(func(s *Scheduler) error {
		return s.Drain()
	})
	assert.ErrorIs(t, err, ErrReentrant)
}

func TestScheduler_RunSynchronousErrors(t *testing.T) {
	s := newTestScheduler(t)
	boom := errors.New("boom")

	assert.NoError(t, s.RunSynchronous(nil))
	assert.ErrorIs(t, s.RunSynchronous(func(*Scheduler) error { return boom }), boom)

	err := s.RunSynchronous(func(*Scheduler) error { panic(boom) })
	var pe PanicError
	require.ErrorAs(t, err, &pe)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, PhaseIdle, s.Phase())
}

func TestScheduler_PhaseDuringExecution(t *testing.T) {
	s := newTestScheduler(t)
	var phases []Phase

	record := func() error {
		phases = append(phases, s.Phase())
		return nil
	}

	require.NoError(t, s.RunSynchronous(func(s *Scheduler) error {
		phases = append(phases, s.Phase())
		require.NoError(t, s.Enqueue(TierA, record))
		require.NoError(t, s.Enqueue(TierB, func() error {
			phases = append(phases, s.Phase())
			return s.Enqueue(TierA, record)
		}))
		_, err := s.EnqueueTimer(record, 0, false)
		require.NoError(t, err)
		return s.Enqueue(TierCheck, record)
	}))
	require.NoError(t, s.Drain())

	assert.Equal(t, []Phase{
		PhaseSynchronous,
		PhaseTierA,
		PhaseTierB,
		PhaseTierA,
		PhaseTimers,
		PhaseCheck,
	}, phases)
}

func TestScheduler_DrainBudget(t *testing.T) {
	s := newTestScheduler(t, WithDrainBudget(3))
	r := &recorder{}

	require.NoError(t, s.Enqueue(TierB, r.cb("b")))
	_, err := s.EnqueueTimer(r.cb("t1"), 0, false)
	require.NoError(t, err)
	_, err = s.EnqueueTimer(r.cb("t2"), 0, false)
	require.NoError(t, err)
	_, err = s.EnqueueTimer(r.cb("t3"), 0, false)
	require.NoError(t, err)
	require.NoError(t, s.Enqueue(TierCheck, r.cb("c1")))
	require.NoError(t, s.Enqueue(TierCheck, r.cb("c2")))

	require.ErrorIs(t, s.Drain(), ErrDrainBudgetExceeded)
	assert.Equal(t, []string{"b", "t1", "t2"}, r.order)
	assert.Equal(t, 1, s.Len(TierTimer))
	assert.Equal(t, 2, s.Len(TierCheck))

	// a timer enrolled between passes sorts behind the restored one
	_, err = s.EnqueueTimer(r.cb("t4"), 0, false)
	require.NoError(t, err)

	require.ErrorIs(t, s.Drain(), ErrDrainBudgetExceeded)
	assert.Equal(t, []string{"b", "t1", "t2", "t3", "t4", "c1"}, r.order)

	require.NoError(t, s.Enqueue(TierCheck, r.cb("c3")))
	require.NoError(t, s.Drain())
	assert.Equal(t, []string{"b", "t1", "t2", "t3", "t4", "c1", "c2", "c3"}, r.order)
}

func TestScheduler_DrainBudgetStopsTierARecursion(t *testing.T) {
	s := newTestScheduler(t, WithDrainBudget(100))
	var n int
	var forever Callback
	forever = func() error {
		n++
		return s.Enqueue(TierA, forever)
	}
	require.NoError(t, s.Enqueue(TierA, forever))

	require.ErrorIs(t, s.Drain(), ErrDrainBudgetExceeded)
	assert.Equal(t, 100, n)
	assert.True(t, s.Pending())
}

func TestScheduler_Run(t *testing.T) {
	s := newTestScheduler(t)
	r := &recorder{}

	err := s.Run(context.Background(), func(s *Scheduler) error {
		_, err := s.EnqueueTimer(func() error {
			r.order = append(r.order, "outer")
			_, err := s.EnqueueTimer(r.cb("inner"), 0, false)
			return err
		}, 0, false)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner"}, r.order)
	assert.Equal(t, 2, s.Passes())
	assert.False(t, s.Pending())
}

func TestScheduler_RunPassLimit(t *testing.T) {
	s := newTestScheduler(t, WithMaxPasses(5))
	var ticks int

	err := s.Run(context.Background(), func(s *Scheduler) error {
		_, err := s.EnqueueTimer(func() error {
			ticks++
			return nil
		}, 0, true)
		return err
	})
	require.ErrorIs(t, err, ErrPassLimit)
	assert.Equal(t, 5, ticks)
	assert.Equal(t, 5, s.Passes())
}

func TestScheduler_RunContextCancelled(t *testing.T) {
	s := newTestScheduler(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var ticks int

	err := s.Run(ctx, func(s *Scheduler) error {
		_, err := s.EnqueueTimer(func() error {
			ticks++
			if ticks == 3 {
				cancel()
			}
			return nil
		}, 0, true)
		return err
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, ticks)
}

func TestScheduler_RunProgramError(t *testing.T) {
	s := newTestScheduler(t)
	boom := errors.New("boom")
	var ran bool

	err := s.Run(context.Background(), func(s *Scheduler) error {
		require.NoError(t, s.Enqueue(TierA, func() error {
			ran = true
			return nil
		}))
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.False(t, ran)
}

func TestScheduler_ResetStartsNewRun(t *testing.T) {
	s := newTestScheduler(t, WithMetrics(true))
	first := s.RunID()
	require.NotEmpty(t, first)

	require.NoError(t, s.Enqueue(TierA, func() error { return nil }))
	h1, err := s.EnqueueTimer(func() error { return nil }, 0, true)
	require.NoError(t, err)
	require.NoError(t, s.Drain())

	require.NoError(t, s.Reset())
	assert.NotEqual(t, first, s.RunID())
	assert.False(t, s.Pending())
	assert.Zero(t, s.Passes())
	assert.Equal(t, Metrics{}, s.Metrics())

	h2, err := s.EnqueueTimer(func() error { return nil }, 0, false)
	require.NoError(t, err)
	assert.Equal(t, h1, h2, "handles restart with the run")
}

func TestScheduler_Deterministic(t *testing.T) {
	program := func(r *recorder) Program {
		return func(s *Scheduler) error {
			for i := 0; i < 20; i++ {
				name := fmt.Sprintf("cb-%d", i)
				var err error
				switch i % 4 {
				case 0:
					err = s.Enqueue(TierCheck, r.cb(name))
				case 1:
					_, err = s.EnqueueTimer(r.cb(name), int64(i%3), false)
				case 2:
					err = s.Enqueue(TierB, r.cb(name))
				case 3:
					err = s.Enqueue(TierA, r.cb(name))
				}
				if err != nil {
					return err
				}
			}
			return nil
		}
	}

	var runs [][]string
	for i := 0; i < 3; i++ {
		s := newTestScheduler(t)
		r := &recorder{}
		require.NoError(t, s.Run(context.Background(), program(r)))
		runs = append(runs, r.order)
	}
	require.Len(t, runs[0], 20)
	assert.Equal(t, runs[0], runs[1])
	assert.Equal(t, runs[0], runs[2])
}

func TestBind(t *testing.T) {
	type counter struct{ n int }
	c := &counter{}
	cb := Bind(c, func(c *counter) error {
		c.n++
		return nil
	})
	require.NoError(t, cb())
	require.NoError(t, cb())
	assert.Equal(t, 2, c.n)
}
