package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runt18/data-race-test-sub000/internal/hb"
	"github.com/runt18/data-race-test-sub000/internal/locks"
)

func newTestEngine(t *testing.T, mut func(*Config)) (*Engine, *Collector) {
	t.Helper()
	rep := &Collector{}
	cfg := DefaultConfig()
	cfg.Reporter = rep
	cfg.CrossCheckHB = true
	if mut != nil {
		mut(&cfg)
	}
	return New(cfg), rep
}

const (
	addrX = uint64(0x1000)
	lockL = uint64(0x2000)
	lockM = uint64(0x2040)
)

func TestCanonicalRaceWriteWrite(t *testing.T) {
	e, rep := newTestEngine(t, nil)
	e.OnThreadCreate(RootThread, 2)

	e.OnWrite(RootThread, addrX, 4)
	require.Empty(t, rep.Races, "single-thread write raced")

	e.OnWrite(2, addrX, 4)
	require.Len(t, rep.Races, 1)
	r := rep.Races[0]
	assert.Equal(t, hb.ThreadID(2), r.Thr)
	assert.Equal(t, addrX, r.Addr)
	assert.Equal(t, 4, r.Size)
	assert.True(t, r.IsWrite)

	// Same hazard again: trace-bit suppressed, not re-reported.
	e.OnWrite(2, addrX, 4)
	assert.Len(t, rep.Races, 1)
}

func TestCanonicalRaceOrderInsensitive(t *testing.T) {
	e, rep := newTestEngine(t, nil)
	e.OnThreadCreate(RootThread, 2)

	// Child first, parent second: still exactly one report.
	e.OnWrite(2, addrX, 4)
	e.OnWrite(RootThread, addrX, 4)
	assert.Len(t, rep.Races, 1)
}

func TestCanonicalRaceWriteRead(t *testing.T) {
	e, rep := newTestEngine(t, nil)
	e.OnThreadCreate(RootThread, 2)

	e.OnWrite(RootThread, addrX, 4)
	e.OnRead(2, addrX, 4)
	require.Len(t, rep.Races, 1)
	assert.False(t, rep.Races[0].IsWrite)
}

// Three-thread scenario: after the first reported race the
// location keeps its trace bit, so a still-unordered third thread does not
// re-report by default but does when follow-on reporting is enabled.
func TestThirdThreadFollowOnPolicy(t *testing.T) {
	run := func(followOn bool) int {
		e, rep := newTestEngine(t, func(c *Config) { c.ReportFollowOnRaces = followOn })
		e.OnThreadCreate(RootThread, 2)
		e.OnThreadCreate(RootThread, 3)
		e.OnWrite(RootThread, addrX, 4)
		e.OnWrite(2, addrX, 4)
		e.OnWrite(3, addrX, 4)
		return len(rep.Races)
	}
	assert.Equal(t, 1, run(false), "default skips the known hazard")
	assert.Equal(t, 2, run(true), "follow-on mode re-reports")
}

func TestDisciplinedAccessNoFalsePositive(t *testing.T) {
	e, rep := newTestEngine(t, nil)
	threads := []hb.ThreadID{RootThread, 2, 3, 4, 5}
	for _, thr := range threads[1:] {
		e.OnThreadCreate(RootThread, thr)
	}
	for round := 0; round < 3; round++ {
		for _, thr := range threads {
			e.OnLockAcquire(thr, lockL, locks.NonRecursive, true)
			e.OnWrite(thr, addrX, 8)
			e.OnRead(thr, addrX, 8)
			e.OnLockRelease(thr, lockL)
		}
	}
	assert.Empty(t, rep.Races)
	assert.Empty(t, rep.LockErrors)
}

func TestLocksetResetUnderFullOrdering(t *testing.T) {
	e, rep := newTestEngine(t, nil)
	// Root writes under a lock, joins nothing; later writes lock-free are
	// same-thread ordered, so the lockset resets to empty without a race.
	e.OnLockAcquire(RootThread, lockL, locks.NonRecursive, true)
	e.OnWrite(RootThread, addrX, 4)
	e.OnLockRelease(RootThread, lockL)
	e.OnWrite(RootThread, addrX, 4)
	assert.Empty(t, rep.Races)
}

func TestJoinOrdersAccesses(t *testing.T) {
	e, rep := newTestEngine(t, nil)
	e.OnThreadCreate(RootThread, 2)
	e.OnWrite(2, addrX, 4)
	e.OnThreadExit(2)
	e.OnThreadJoinComplete(RootThread, 2)
	e.OnWrite(RootThread, addrX, 4)
	assert.Empty(t, rep.Races)
}

func TestCVSignalWaitOrders(t *testing.T) {
	e, rep := newTestEngine(t, nil)
	e.OnThreadCreate(RootThread, 2)
	cv := uint64(0x3000)
	addrZ := uint64(0x1200)

	e.OnWrite(RootThread, addrX, 4)
	e.OnWrite(RootThread, addrZ, 4)
	e.OnCVSignal(RootThread, cv)
	e.OnCVWaitComplete(2, cv)
	e.OnWrite(2, addrX, 4)
	assert.Empty(t, rep.Races)

	// Last signal wins: a later waiter still joins on it and sees the
	// writes that preceded it.
	e.OnThreadCreate(RootThread, 3)
	e.OnCVWaitComplete(3, cv)
	e.OnRead(3, addrZ, 4)
	assert.Empty(t, rep.Races)
}

func TestSemPostWaitFIFO(t *testing.T) {
	e, rep := newTestEngine(t, nil)
	e.OnThreadCreate(RootThread, 2)
	sem := uint64(0x3100)

	e.OnWrite(RootThread, addrX, 4)
	e.OnSemPost(RootThread, sem)
	e.OnSemWaitComplete(2, sem)
	e.OnWrite(2, addrX, 4)
	assert.Empty(t, rep.Races)

	// The queue is drained: a second wait consumes no stale donor, and an
	// unordered write then races.
	e.OnThreadCreate(RootThread, 3)
	e.OnSemWaitComplete(3, sem)
	e.OnWrite(3, addrX, 4)
	assert.Len(t, rep.Races, 1)
}

func TestAtomicSuppression(t *testing.T) {
	e, rep := newTestEngine(t, nil)
	e.OnThreadCreate(RootThread, 2)

	// First touch under the bus lock: never tracked.
	e.OnAtomicBegin(RootThread)
	e.OnWrite(RootThread, addrX, 4)
	e.OnAtomicEnd(RootThread)
	e.OnWrite(2, addrX, 4)
	assert.Empty(t, rep.Races)

	// A pure-read location hit by an atomic access is dropped too.
	addrY := uint64(0x1100)
	e.OnRead(RootThread, addrY, 4)
	e.OnAtomicBegin(2)
	e.OnWrite(2, addrY, 4)
	e.OnAtomicEnd(2)
	e.OnWrite(RootThread, addrY, 4)
	assert.Empty(t, rep.Races)
	assert.Empty(t, rep.LockErrors)
}

func TestIgnoreReadsAnnotation(t *testing.T) {
	e, rep := newTestEngine(t, nil)
	e.OnThreadCreate(RootThread, 2)
	e.OnWrite(RootThread, addrX, 4)

	e.SetIgnoreReads(2, true)
	e.OnRead(2, addrX, 4)
	assert.Empty(t, rep.Races, "ignored read must not race")

	e.SetIgnoreReads(2, false)
	e.OnRead(2, addrX, 4)
	assert.Len(t, rep.Races, 1)
}

func TestRangeNewResetsTracking(t *testing.T) {
	e, rep := newTestEngine(t, nil)
	e.OnThreadCreate(RootThread, 2)
	e.OnWrite(RootThread, addrX, 4)
	// The allocator reuses the memory: a fresh allocation is a fresh state,
	// so the unordered second writer is the sole first toucher.
	e.OnRangeNew(RootThread, addrX, 64)
	e.OnWrite(2, addrX, 4)
	assert.Empty(t, rep.Races)
}

func TestRangeInaccessibleSilences(t *testing.T) {
	e, rep := newTestEngine(t, nil)
	e.OnThreadCreate(RootThread, 2)
	e.OnWrite(RootThread, addrX, 4)
	e.OnRangeInaccessible(RootThread, addrX&^63, 64)
	e.OnWrite(2, addrX, 4)
	e.OnRead(RootThread, addrX, 4)
	assert.Empty(t, rep.Races)
}

func TestFreedHeldLock(t *testing.T) {
	e, rep := newTestEngine(t, nil)
	e.OnLockAcquire(RootThread, lockL, locks.NonRecursive, true)
	e.OnRangeInaccessible(RootThread, lockL&^63, 128)

	require.Len(t, rep.LockErrors, 1)
	assert.Equal(t, locks.ErrFreedHeldLock, rep.LockErrors[0].Err)
	assert.Equal(t, lockL, rep.LockErrors[0].Addr)

	// The lock left its holder's lockset: releasing it now is an error.
	e.OnLockRelease(RootThread, lockL)
	require.Len(t, rep.LockErrors, 2)
	assert.Equal(t, locks.ErrUnlockUnheld, rep.LockErrors[1].Err)
}

func TestLockUsageErrors(t *testing.T) {
	e, rep := newTestEngine(t, nil)

	e.OnLockRelease(RootThread, 0x9999)
	require.Len(t, rep.LockErrors, 1)
	assert.Equal(t, locks.ErrUnlockUnknown, rep.LockErrors[0].Err)

	e.OnLockAcquire(RootThread, lockL, locks.NonRecursive, true)
	e.OnLockAcquire(RootThread, lockL, locks.NonRecursive, true)
	require.Len(t, rep.LockErrors, 2)
	assert.Equal(t, locks.ErrRelockNonRecursive, rep.LockErrors[1].Err)

	// Mismatched API use for the same address.
	e.OnThreadCreate(RootThread, 2)
	e.OnLockAcquire(2, lockL, locks.ReadWrite, false)
	var kinds []locks.UsageError
	for _, le := range rep.LockErrors[2:] {
		kinds = append(kinds, le.Err)
	}
	assert.Contains(t, kinds, locks.ErrKindMismatch)

	e.OnLockRelease(RootThread, lockL)
	e.OnLockDestroy(RootThread, lockL)
	before := len(rep.LockErrors)
	e.OnLockAcquire(RootThread, lockM, locks.NonRecursive, true)
	e.OnLockDestroy(2, lockM)
	require.Len(t, rep.LockErrors, before+1)
	assert.Equal(t, locks.ErrDestroyHeld, rep.LockErrors[before].Err)
}

func TestLockOrderViolation(t *testing.T) {
	e, rep := newTestEngine(t, nil)

	e.SetThreadPC(RootThread, 0x100)
	e.OnLockAcquire(RootThread, lockL, locks.NonRecursive, true)
	e.SetThreadPC(RootThread, 0x200)
	e.OnLockAcquire(RootThread, lockM, locks.NonRecursive, true)
	e.OnLockRelease(RootThread, lockM)
	e.OnLockRelease(RootThread, lockL)
	assert.Empty(t, rep.OrderViolations)

	// The opposite order contradicts the recorded L -> M edge.
	e.SetThreadPC(RootThread, 0x300)
	e.OnLockAcquire(RootThread, lockM, locks.NonRecursive, true)
	e.SetThreadPC(RootThread, 0x400)
	e.OnLockAcquire(RootThread, lockL, locks.NonRecursive, true)

	require.Len(t, rep.OrderViolations, 1)
	v := rep.OrderViolations[0]
	assert.Equal(t, RootThread, v.Thr)
	assert.Equal(t, uint64(0x400), v.AcquireCtx)
	assert.Equal(t, uint64(0x300), v.HeldCtx)
	assert.Equal(t, uint64(0x100), v.PrevAcquiredCtx)
	assert.Equal(t, uint64(0x200), v.PrevHeldCtx)
}

func TestLastProtectionDiagnostic(t *testing.T) {
	e, rep := newTestEngine(t, nil)
	e.OnThreadCreate(RootThread, 2)
	e.OnThreadCreate(RootThread, 3)

	e.OnLockAcquire(RootThread, lockL, locks.NonRecursive, true)
	e.OnWrite(RootThread, addrX, 4)
	e.OnLockRelease(RootThread, lockL)

	e.OnLockAcquire(2, lockL, locks.NonRecursive, true)
	e.OnWrite(2, addrX, 4)
	e.OnLockRelease(2, lockL)
	require.Empty(t, rep.Races, "consistent lock discipline raced")

	// Thread 3 breaks the discipline; the report names the lost lock.
	e.OnWrite(3, addrX, 4)
	require.Len(t, rep.Races, 1)
	lkID, ok := e.lockMgr.Lookup(lockL)
	require.True(t, ok)
	assert.Equal(t, []locks.LockID{lkID}, rep.Races[0].LastProtection)
}

func TestSegmentSetCapEviction(t *testing.T) {
	e, rep := newTestEngine(t, func(c *Config) { c.SegmentSetCap = 4 })
	for thr := hb.ThreadID(2); thr <= 10; thr++ {
		e.OnThreadCreate(RootThread, thr)
	}
	// Many mutually unordered readers of a never-written location: the
	// antichain grows to the cap and evicts without ever racing.
	for thr := hb.ThreadID(2); thr <= 10; thr++ {
		e.OnRead(thr, addrX, 8)
	}
	assert.Empty(t, rep.Races)
}

func TestSegmentRefreshKeepsOrdering(t *testing.T) {
	e, rep := newTestEngine(t, nil)
	e.OnWrite(RootThread, addrX, 4)
	e.OnSegmentRefresh(RootThread)
	e.OnWrite(RootThread, addrX, 4)
	assert.Empty(t, rep.Races)
}

func TestSuppressedRaceGoesSilent(t *testing.T) {
	e, _ := newTestEngine(t, func(c *Config) { c.Reporter = rejectingReporter{} })
	e.OnThreadCreate(RootThread, 2)
	e.OnWrite(RootThread, addrX, 4)
	e.OnWrite(2, addrX, 4)
	// The sink refused the report: the location is dropped, later accesses
	// stay silent, and the engine counts nothing.
	e.OnWrite(RootThread, addrX, 4)
	assert.Zero(t, e.Stats().Races)
}

// rejectingReporter refuses every race, as a benign-annotation matcher would.
type rejectingReporter struct{}

func (rejectingReporter) Race(RaceReport) bool                { return false }
func (rejectingReporter) LockError(LockErrorReport)           {}
func (rejectingReporter) OrderViolation(OrderViolationReport) {}

func TestStatsSnapshot(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	e.OnThreadCreate(RootThread, 2)
	e.OnWrite(RootThread, addrX, 4)
	e.OnWrite(2, addrX, 4)
	e.OnLockAcquire(RootThread, lockL, locks.NonRecursive, true)

	st := e.Stats()
	assert.Equal(t, uint64(2), st.Threads)
	assert.Equal(t, uint64(2), st.Writes)
	assert.Equal(t, uint64(1), st.Races)
	assert.GreaterOrEqual(t, st.Segments, uint64(3))
	assert.Equal(t, 2, st.Locks, "client lock plus the bus lock")
	assert.NotZero(t, st.Shadow.CacheMisses)
}

func BenchmarkOnWriteHot(b *testing.B) {
	e := New(DefaultConfig())
	for i := 0; i < b.N; i++ {
		e.OnWrite(RootThread, addrX+uint64(i%8192)*8, 8)
	}
}
