// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package deferloop

import (
	"fmt"

	"github.com/joeycumines/logiface"
)

// schedulerOptions holds configuration options for Scheduler creation.
type schedulerOptions struct {
	logger         *logiface.Logger[logiface.Event]
	errorHandler   ErrorHandler
	drainBudget    int
	maxPasses      int
	metricsEnabled bool
}

// ErrorHandler receives every [CallbackError], exactly once, on the
// scheduler's calling goroutine.
type ErrorHandler func(err *CallbackError)

// Option configures a Scheduler instance.
type Option interface {
	applyScheduler(*schedulerOptions) error
}

// optionImpl implements Option.
type optionImpl struct {
	applySchedulerFunc func(*schedulerOptions) error
}

func (o *optionImpl) applyScheduler(opts *schedulerOptions) error {
	return o.applySchedulerFunc(opts)
}

// WithLogger sets the structured logger. A nil logger disables logging.
// See also [NewLogger].
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *schedulerOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithErrorHandler sets the sink for callback failures. Failures are logged
// regardless of whether a handler is set.
func WithErrorHandler(handler ErrorHandler) Option {
	return &optionImpl{func(opts *schedulerOptions) error {
		opts.errorHandler = handler
		return nil
	}}
}

// WithDrainBudget limits the number of callbacks a single Drain may execute.
// Zero (the default) means unlimited. Negative values are rejected.
func WithDrainBudget(n int) Option {
	return &optionImpl{func(opts *schedulerOptions) error {
		if n < 0 {
			return fmt.Errorf("deferloop: drain budget must be non-negative, got %d", n)
		}
		opts.drainBudget = n
		return nil
	}}
}

// WithMaxPasses limits the number of Drain passes performed by Run.
// Zero (the default) means unlimited, in which case a never-cleared interval
// keeps Run going until its context is done. Negative values are rejected.
func WithMaxPasses(n int) Option {
	return &optionImpl{func(opts *schedulerOptions) error {
		if n < 0 {
			return fmt.Errorf("deferloop: max passes must be non-negative, got %d", n)
		}
		opts.maxPasses = n
		return nil
	}}
}

// WithMetrics enables execution counters, accessible via Scheduler.Metrics.
func WithMetrics(enabled bool) Option {
	return &optionImpl{func(opts *schedulerOptions) error {
		opts.metricsEnabled = enabled
		return nil
	}}
}

// resolveOptions applies Option instances to schedulerOptions.
func resolveOptions(opts []Option) (*schedulerOptions, error) {
	cfg := &schedulerOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyScheduler(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
