package deferloop

import (
	"fmt"
	"strings"
)

// Tier identifies one of the four ordered callback queues.
type Tier uint8

const (
	// TierA holds immediate microtasks (process.nextTick). It preempts every
	// other tier except during the check phase.
	TierA Tier = iota
	// TierB holds standard microtasks (promise continuations, queueMicrotask).
	TierB
	// TierTimer holds timer entries, ordered by (delay, enrollment order).
	TierTimer
	// TierCheck holds callbacks that run after the timer phase (setImmediate).
	TierCheck

	numTiers = 4
)

// String returns the tier name accepted by [ParseTier].
func (t Tier) String() string {
	switch t {
	case TierA:
		return "tier-a"
	case TierB:
		return "tier-b"
	case TierTimer:
		return "timer"
	case TierCheck:
		return "check"
	default:
		return fmt.Sprintf("tier(%d)", uint8(t))
	}
}

// ParseTier converts a tier name, as returned by [Tier.String], back to a Tier.
// Matching is case-insensitive.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tier-a":
		return TierA, nil
	case "tier-b":
		return TierB, nil
	case "timer":
		return TierTimer, nil
	case "check":
		return TierCheck, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownTier, s)
	}
}

// Phase is what the scheduler is currently executing.
//
//	PhaseIdle → PhaseSynchronous → PhaseIdle        [RunSynchronous]
//	PhaseIdle → PhaseTierA → PhaseTierB → PhaseTimers → PhaseCheck → PhaseIdle  [Drain]
//
// PhaseTierA is re-entered from PhaseTierB and PhaseTimers whenever Tier-A
// preempts, and the phase reverts once Tier-A is empty.
type Phase uint8

const (
	// PhaseIdle indicates nothing is executing.
	PhaseIdle Phase = iota
	// PhaseSynchronous indicates a Program is executing.
	PhaseSynchronous
	// PhaseTierA indicates Tier-A is being drained.
	PhaseTierA
	// PhaseTierB indicates Tier-B is being drained.
	PhaseTierB
	// PhaseTimers indicates the timer snapshot of a pass is executing.
	PhaseTimers
	// PhaseCheck indicates the check snapshot of a pass is executing.
	PhaseCheck
)

// String returns a human-readable representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "Idle"
	case PhaseSynchronous:
		return "Synchronous"
	case PhaseTierA:
		return "TierA"
	case PhaseTierB:
		return "TierB"
	case PhaseTimers:
		return "Timers"
	case PhaseCheck:
		return "Check"
	default:
		return "Unknown"
	}
}
