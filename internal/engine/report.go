package engine

import (
	"github.com/runt18/data-race-test-sub000/internal/hb"
	"github.com/runt18/data-race-test-sub000/internal/locks"
)

// RaceReport describes one detected data race: the access that completed an
// unprotected, unordered access pair.
type RaceReport struct {
	Thr     hb.ThreadID
	Addr    uint64
	Size    int
	IsWrite bool
	Ctx     uint64

	// CurSeg is the accessing thread's segment; PrevSegs are the recorded
	// segments found unordered against it.
	CurSeg   hb.SegmentID
	PrevSegs []hb.SegmentID

	// LastProtection names the locks that most recently protected every
	// recorded access to this address before the discipline broke, if the
	// engine observed the lockset shrink. Empty when protection was never
	// established.
	LastProtection []locks.LockID
}

// LockErrorReport describes one illegal client lock operation.
type LockErrorReport struct {
	Thr  hb.ThreadID
	Addr uint64
	Lock locks.LockID // zero when the address was never a known lock
	Err  locks.UsageError
	Ctx  uint64
}

// OrderViolationReport describes a lock acquisition that contradicts a
// previously observed acquisition order.
type OrderViolationReport struct {
	Thr hb.ThreadID

	// Acquired is the lock being acquired now, at AcquireCtx, while Held
	// was already held (acquired at HeldCtx).
	Acquired   locks.LockID
	Held       locks.LockID
	AcquireCtx uint64
	HeldCtx    uint64

	// PrevAcquiredCtx/PrevHeldCtx are the contexts that first established
	// the opposite order (Acquired held while Held was acquired). Zero when
	// the opposite order is only transitively implied.
	PrevAcquiredCtx uint64
	PrevHeldCtx     uint64
}

// Reporter is the sink for analysis products. The engine performs no
// formatting or I/O of its own; a presentation layer renders these.
//
// Race returns whether the report was accepted: a false return (e.g. the
// race matched a user "expected/benign" annotation) suppresses the location
// instead of re-arming tracking on it.
type Reporter interface {
	Race(RaceReport) bool
	LockError(LockErrorReport)
	OrderViolation(OrderViolationReport)
}

// Collector is a Reporter that accumulates every report. It accepts all
// races. Used as the default sink and throughout the tests.
type Collector struct {
	Races           []RaceReport
	LockErrors      []LockErrorReport
	OrderViolations []OrderViolationReport
}

// Race implements Reporter.
func (c *Collector) Race(r RaceReport) bool {
	c.Races = append(c.Races, r)
	return true
}

// LockError implements Reporter.
func (c *Collector) LockError(r LockErrorReport) {
	c.LockErrors = append(c.LockErrors, r)
}

// OrderViolation implements Reporter.
func (c *Collector) OrderViolation(r OrderViolationReport) {
	c.OrderViolations = append(c.OrderViolations, r)
}
