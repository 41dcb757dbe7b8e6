// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package deferloop

import (
	"errors"
	"fmt"
)

// Standard errors.
var (
	// ErrInvalidDelay is matched (via [errors.Is]) by the [InvalidDelayError]
	// returned when a timer is enrolled with a negative delay.
	ErrInvalidDelay = errors.New("deferloop: invalid delay")

	// ErrNilCallback is returned when a nil [Callback] is enqueued.
	ErrNilCallback = errors.New("deferloop: nil callback")

	// ErrUnknownTier is returned when a [Tier] value is not one of the four tiers.
	ErrUnknownTier = errors.New("deferloop: unknown tier")

	// ErrReentrant is returned when RunSynchronous, Drain or Run is called
	// from within a program or callback that the same scheduler is executing.
	ErrReentrant = errors.New("deferloop: cannot run or drain from within the scheduler")

	// ErrDrainBudgetExceeded is returned by Drain when the number of callbacks
	// executed in one pass reaches the limit set by [WithDrainBudget].
	ErrDrainBudgetExceeded = errors.New("deferloop: drain budget exceeded")

	// ErrPassLimit is returned by Run when work is still pending after the
	// number of passes set by [WithMaxPasses].
	ErrPassLimit = errors.New("deferloop: pass limit reached with work pending")
)

// InvalidDelayError reports a timer enrollment with a negative delay.
type InvalidDelayError struct {
	Delay int64
}

// Error implements the error interface.
func (e *InvalidDelayError) Error() string {
	return fmt.Sprintf("deferloop: invalid delay %d: must be non-negative", e.Delay)
}

// Is reports true for [ErrInvalidDelay], and for any *InvalidDelayError.
func (e *InvalidDelayError) Is(target error) bool {
	if target == ErrInvalidDelay {
		return true
	}
	var other *InvalidDelayError
	return errors.As(target, &other)
}

// PanicError wraps a value recovered from a panicking callback or program.
type PanicError struct {
	Value any
}

func (e PanicError) Error() string {
	return fmt.Sprintf("deferloop: callback panicked: %v", e.Value)
}

// Unwrap returns the panic value if it is an error, otherwise nil.
// This enables use with [errors.Is] and [errors.As] for error matching
// through the cause chain.
func (e PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// CallbackError describes a failure of a single dequeued callback. The drain
// that ran it always continues.
type CallbackError struct {
	// Err is the returned error, or a [PanicError].
	Err error

	// Tier the callback was dequeued from.
	Tier Tier

	// Seq is the enrollment sequence number of the callback.
	Seq uint64

	// Handle is set for timer callbacks, and zero otherwise.
	Handle TimerHandle
}

// Error implements the error interface.
func (e *CallbackError) Error() string {
	if e.Handle != 0 {
		return fmt.Sprintf("deferloop: %s callback (seq %d, handle %d) failed: %v", e.Tier, e.Seq, e.Handle, e.Err)
	}
	return fmt.Sprintf("deferloop: %s callback (seq %d) failed: %v", e.Tier, e.Seq, e.Err)
}

// Unwrap returns the underlying cause for use with [errors.Is] and [errors.As].
func (e *CallbackError) Unwrap() error {
	return e.Err
}
