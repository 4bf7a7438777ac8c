package engine

import "github.com/rs/zerolog"

// Config carries the tunable knobs of an engine instance. The zero value of
// any field falls back to its DefaultConfig value at construction.
type Config struct {
	// SegmentSetCap bounds the per-location antichain of unordered
	// segments. When an access would exceed the cap, the retained element
	// with the smallest segment identity is evicted. The cap trades
	// precision and memory, never soundness.
	SegmentSetCap int

	// ReportFollowOnRaces re-reports races at a location whose first race
	// was already reported (trace bit set). Off by default: a further
	// unordered access there is still the same known hazard.
	ReportFollowOnRaces bool

	// CrossCheckHB verifies every happens-before answer against graph
	// reachability. Expensive; for tests and debugging only.
	CrossCheckHB bool

	// Reporter receives races, lock usage errors and order violations.
	Reporter Reporter

	// Logger receives debug-level event tracing. Nil disables logging.
	Logger *zerolog.Logger
}

// DefaultConfig returns the production defaults: a segment-set cap of 20, no
// follow-on race reports, no cross-checking, a fresh Collector sink, and no
// logging.
func DefaultConfig() Config {
	return Config{
		SegmentSetCap: 20,
		Reporter:      &Collector{},
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.SegmentSetCap <= 0 {
		c.SegmentSetCap = def.SegmentSetCap
	}
	if c.Reporter == nil {
		c.Reporter = def.Reporter
	}
	return c
}
