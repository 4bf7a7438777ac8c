package engine

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/runt18/data-race-test-sub000/internal/hb"
	"github.com/runt18/data-race-test-sub000/internal/laog"
	"github.com/runt18/data-race-test-sub000/internal/locks"
	"github.com/runt18/data-race-test-sub000/internal/shmem"
	"github.com/runt18/data-race-test-sub000/internal/sval"
)

// RootThread is the identity of the thread that exists at engine start.
const RootThread hb.ThreadID = 1

// busLockAddr is the pseudo-address of the engine-internal bus lock held
// across atomic-prefixed instructions. Chosen so no client range operation
// can plausibly cover it.
const busLockAddr = ^uint64(0)

// Stats is a snapshot of the engine's counters.
type Stats struct {
	Threads  uint64
	Segments uint64
	Reads    uint64
	Writes   uint64

	Races           uint64
	LockErrors      uint64
	OrderViolations uint64

	Locks       int
	LockSets    int
	SegmentSets int

	Shadow shmem.StoreStats
}

// Engine is one analysis instance. All process-wide tables of the analysis
// (shadow memory, segment arena, lock map, order graph, universes) are
// fields here, so multiple engines can coexist in one process and the
// single-threaded contract is enforceable per instance.
type Engine struct {
	cfg Config
	log zerolog.Logger
	rep Reporter

	segs     *hb.SegmentStore
	segSets  *hb.SegSetU
	lockMgr  *locks.Manager
	lockSets *locks.LockSetU
	shadow   *shmem.Store
	order    *laog.Graph

	threads map[hb.ThreadID]*Thread

	// busLock is write-held by a thread between OnAtomicBegin and
	// OnAtomicEnd. Exempt from the order graph.
	busLock locks.LockID

	// cvDonors holds the latest signal's donor segment per condition
	// variable (last writer wins); semDonors a FIFO donor queue per
	// semaphore.
	cvDonors  map[uint64]hb.SegmentID
	semDonors map[uint64][]hb.SegmentID

	// exitSegs remembers each exited thread's final segment until a join
	// consumes it.
	exitSegs map[hb.ThreadID]hb.SegmentID

	// lastDropped remembers, per access base address, the locks most
	// recently dropped by a lockset intersection there, for race-report
	// diagnostics.
	lastDropped map[uint64][]locks.LockID

	// scratch buffers for the per-access segment-set update.
	ssElems []hb.SegmentID
	ssKept  []hb.SegmentID

	stats Stats
}

// New returns an engine with a live root thread. The root thread's first
// segment exists immediately; events may refer to RootThread without a
// preceding OnThreadCreate.
func New(cfg Config) *Engine {
	cfg = cfg.withDefaults()
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}
	e := &Engine{
		cfg:         cfg,
		log:         log,
		rep:         cfg.Reporter,
		segs:        hb.NewSegmentStore(),
		segSets:     hb.NewSegSetU(),
		lockMgr:     locks.NewManager(),
		lockSets:    locks.NewLockSetU(),
		shadow:      shmem.NewStore(sval.New),
		order:       laog.New(),
		threads:     make(map[hb.ThreadID]*Thread),
		cvDonors:    make(map[uint64]hb.SegmentID),
		semDonors:   make(map[uint64][]hb.SegmentID),
		exitSegs:    make(map[hb.ThreadID]hb.SegmentID),
		lastDropped: make(map[uint64][]locks.LockID),
	}
	e.segs.SetCrossCheck(cfg.CrossCheckHB)

	bus, _ := e.lockMgr.GetOrCreate(busLockAddr, locks.NonRecursive, 0)
	e.busLock = bus.ID

	root := e.newThread(RootThread)
	e.advance(root, hb.NoSegment, hb.Tick(RootThread, hb.NewVTS()))
	return e
}

// newThread registers a thread record. Reusing a live identity is a host
// bug: identities are monotonic and never recycled.
func (e *Engine) newThread(id hb.ThreadID) *Thread {
	if _, ok := e.threads[id]; ok {
		fatalf("thread identity %d reused", id)
	}
	t := &Thread{ID: id}
	e.threads[id] = t
	e.stats.Threads++
	return t
}

// advance starts a fresh segment for t, depending on t's current segment
// and optionally a cross-thread donor.
func (e *Engine) advance(t *Thread, other hb.SegmentID, vts *hb.VTS) {
	t.CurSeg = e.segs.New(t.ID, t.CurSeg, other, vts)
	e.stats.Segments++
}

// curVTS returns the timestamp of t's current segment.
func (e *Engine) curVTS(t *Thread) *hb.VTS {
	return e.segs.Get(t.CurSeg).VTS
}

// Stats returns a snapshot of the engine's counters.
func (e *Engine) Stats() Stats {
	s := e.stats
	s.Locks = e.lockMgr.Count()
	s.LockSets = e.lockSets.Count()
	s.SegmentSets = e.segSets.Count()
	s.Shadow = e.shadow.Stats()
	return s
}

func fatalf(format string, args ...any) {
	panic("engine: internal invariant violated: " + fmt.Sprintf(format, args...))
}
