// logging.go - structured logging for the scheduler
//
// The scheduler logs through a logiface logger configured per instance with
// WithLogger. A nil logger (the default) disables logging entirely, since
// logiface builders are nil-safe.
//
// Levels used:
//   - trace: every enqueue / enrollment
//   - debug: every callback execution, timer re-enrollment, cancellation
//   - info:  pass summaries
//   - err:   callback failures

package deferloop

import (
	"fmt"
	"io"
	"strings"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// NewLogger returns a JSON logger (one object per line) writing to w, with
// the given minimum level, suitable for [WithLogger].
func NewLogger(w io.Writer, level logiface.Level) *logiface.Logger[logiface.Event] {
	return stumpy.L.New(
		stumpy.L.WithStumpy(
			stumpy.WithWriter(w),
			stumpy.WithTimeField(`time`),
		),
		stumpy.L.WithLevel(level),
	).Logger()
}

// ParseLevel converts a level keyword to a logiface.Level. It accepts the
// syslog keywords produced by logiface.Level.String, plus the common aliases
// "error", "warn", "panic" and "none".
func ParseLevel(s string) (logiface.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "disabled", "none", "off":
		return logiface.LevelDisabled, nil
	case "emerg", "emergency", "panic":
		return logiface.LevelEmergency, nil
	case "alert":
		return logiface.LevelAlert, nil
	case "crit", "critical":
		return logiface.LevelCritical, nil
	case "err", "error":
		return logiface.LevelError, nil
	case "warning", "warn":
		return logiface.LevelWarning, nil
	case "notice":
		return logiface.LevelNotice, nil
	case "info", "informational":
		return logiface.LevelInformational, nil
	case "debug":
		return logiface.LevelDebug, nil
	case "trace":
		return logiface.LevelTrace, nil
	default:
		return logiface.LevelDisabled, fmt.Errorf("deferloop: unknown log level %q", s)
	}
}

// runLogger scopes base to a single run, adding the run field.
func runLogger(base *logiface.Logger[logiface.Event], runID string) *logiface.Logger[logiface.Event] {
	if base == nil {
		return nil
	}
	return base.Clone().Str(`run`, runID).Logger()
}

func (s *Scheduler) logEnqueue(tier Tier, seq uint64) {
	s.logger.Trace().
		Str(`tier`, tier.String()).
		Uint64(`seq`, seq).
		Log(`enqueued`)
}

func (s *Scheduler) logEnroll(e *timerEntry) {
	s.logger.Trace().
		Str(`tier`, TierTimer.String()).
		Uint64(`seq`, e.seq).
		Uint64(`handle`, uint64(e.handle)).
		Int64(`delay`, e.delay).
		Bool(`repeating`, e.repeating).
		Log(`timer enrolled`)
}

func (s *Scheduler) logExecute(tier Tier, seq uint64) {
	s.logger.Debug().
		Str(`tier`, tier.String()).
		Uint64(`seq`, seq).
		Log(`executing callback`)
}

func (s *Scheduler) logCallbackError(err *CallbackError) {
	s.logger.Err().
		Str(`tier`, err.Tier.String()).
		Uint64(`seq`, err.Seq).
		Uint64(`handle`, uint64(err.Handle)).
		Err(err.Err).
		Log(`callback failed`)
}

func (s *Scheduler) logPass(executed int, err error) {
	b := s.logger.Info().
		Int(`pass`, s.passes).
		Int(`executed`, executed).
		Bool(`pending`, s.Pending())
	if err != nil {
		b = b.Err(err)
	}
	b.Log(`drain pass complete`)
}
