package deferloop

// Metrics holds execution counters for a Scheduler, see [WithMetrics] and
// [Scheduler.Metrics]. Counters are reset by [Scheduler.Reset].
//
// Example:
//
//	s, _ := New(WithMetrics(true))
//	_ = s.Run(ctx, program)
//	m := s.Metrics()
//	fmt.Printf("timers: %d, failed: %d\n",
//		m.Executed[TierTimer], m.TotalFailed())
type Metrics struct {
	// Executed counts callbacks run, per tier, including failed ones.
	Executed [numTiers]uint64
	// Failed counts callbacks that returned an error or panicked, per tier.
	Failed [numTiers]uint64
	// Enqueued counts callbacks accepted, per tier. Re-enrolled intervals are
	// counted in Reenrolled, not here.
	Enqueued [numTiers]uint64
	// Reenrolled counts repeating timers enrolled again after firing.
	Reenrolled uint64
	// Cancelled counts timers removed by Cancel before firing again.
	Cancelled uint64
	// Passes counts completed or aborted Drain calls.
	Passes uint64
}

// TotalExecuted returns the sum of Executed across tiers.
func (m Metrics) TotalExecuted() (n uint64) {
	for _, v := range m.Executed {
		n += v
	}
	return
}

// TotalFailed returns the sum of Failed across tiers.
func (m Metrics) TotalFailed() (n uint64) {
	for _, v := range m.Failed {
		n += v
	}
	return
}

// metrics is the recording side of Metrics. A nil *metrics records nothing.
type metrics struct {
	m Metrics
}

func (x *metrics) enqueued(t Tier) {
	if x != nil {
		x.m.Enqueued[t]++
	}
}

func (x *metrics) executed(t Tier, failed bool) {
	if x != nil {
		x.m.Executed[t]++
		if failed {
			x.m.Failed[t]++
		}
	}
}

func (x *metrics) reenrolled() {
	if x != nil {
		x.m.Reenrolled++
	}
}

func (x *metrics) cancelled() {
	if x != nil {
		x.m.Cancelled++
	}
}

func (x *metrics) pass() {
	if x != nil {
		x.m.Passes++
	}
}

func (x *metrics) snapshot() Metrics {
	if x == nil {
		return Metrics{}
	}
	return x.m
}

func (x *metrics) reset() {
	if x != nil {
		x.m = Metrics{}
	}
}
