package engine

import (
	"github.com/runt18/data-race-test-sub000/internal/hb"
	"github.com/runt18/data-race-test-sub000/internal/locks"
)

// Thread is the engine's record of one analyzed application thread. Records
// are never deleted: locksets and shadow values may reference a thread's
// segments indefinitely. Exit only marks the record.
type Thread struct {
	ID hb.ThreadID

	// CurSeg is the segment the thread is currently writing into.
	CurSeg hb.SegmentID

	// LocksetA holds every lock the thread currently holds; LocksetW the
	// subset held in write mode.
	LocksetA locks.LockSetID
	LocksetW locks.LockSetID

	// IgnoreReads short-circuits the thread's read accesses to a no-op.
	// Set and cleared only by explicit user annotation.
	IgnoreReads bool

	// PC is the host-maintained program-counter context, attached to lock
	// records and reports for diagnostics.
	PC uint64

	exited bool
}

func (e *Engine) thread(id hb.ThreadID) *Thread {
	t, ok := e.threads[id]
	if !ok {
		fatalf("event for unknown thread %d", id)
	}
	return t
}

// SetThreadPC updates the thread's current program-counter context.
func (e *Engine) SetThreadPC(thread hb.ThreadID, pc uint64) {
	e.thread(thread).PC = pc
}

// SetIgnoreReads sets or clears the thread's ignore-reads annotation.
func (e *Engine) SetIgnoreReads(thread hb.ThreadID, on bool) {
	e.thread(thread).IgnoreReads = on
}
