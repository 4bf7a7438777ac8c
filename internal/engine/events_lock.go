package engine

import (
	"github.com/runt18/data-race-test-sub000/internal/hb"
	"github.com/runt18/data-race-test-sub000/internal/laog"
	"github.com/runt18/data-race-test-sub000/internal/locks"
)

func (e *Engine) reportLockError(t *Thread, addr uint64, lk locks.LockID, err locks.UsageError) {
	e.stats.LockErrors++
	e.rep.LockError(LockErrorReport{
		Thr:  t.ID,
		Addr: addr,
		Lock: lk,
		Err:  err,
		Ctx:  t.PC,
	})
	e.log.Debug().
		Uint32("thread", uint32(t.ID)).
		Uint64("addr", addr).
		Str("error", err.String()).
		Msg("lock usage error")
}

// OnLockAcquire processes a successful client lock acquisition: legality
// check, acquisition-order check, then lockset update. An illegal call is
// reported and leaves all state unchanged.
func (e *Engine) OnLockAcquire(thread hb.ThreadID, lockAddr uint64, kind locks.Kind, isWrite bool) {
	t := e.thread(thread)
	lk, created := e.lockMgr.GetOrCreate(lockAddr, kind, t.PC)
	if created {
		e.shadow.MarkHasLocks(lockAddr)
	}
	if lk.Destroyed {
		// The client allocator reused a retired lock's address; the record
		// restarts with the new use's kind.
		lk.Destroyed = false
		lk.Kind = kind
		lk.AppearedAt = t.PC
	} else if !created && lk.Kind != kind {
		e.reportLockError(t, lockAddr, lk.ID, locks.ErrKindMismatch)
	}

	alreadyHeld := lk.HeldBy(thread)
	var uerr locks.UsageError
	if isWrite {
		uerr = lk.AcquireWrite(thread)
	} else {
		uerr = lk.AcquireRead(thread)
	}
	if uerr != locks.NoError {
		e.reportLockError(t, lockAddr, lk.ID, uerr)
		return
	}
	lk.AcquiredAt = t.PC

	// Re-acquisitions add no ordering information; first acquisitions are
	// checked against the order graph before their edges go in.
	if !alreadyHeld {
		e.checkAcquireOrder(t, lk)
	}

	t.LocksetA = e.lockSets.Add(t.LocksetA, lk.ID)
	if isWrite {
		t.LocksetW = e.lockSets.Add(t.LocksetW, lk.ID)
	}
}

// checkAcquireOrder runs the pre-acquisition inversion check for lk against
// every lock t already holds, then records the new ordering edges. The check
// runs first: after insertion it would trivially find the edge it just
// added. The bus lock never participates.
func (e *Engine) checkAcquireOrder(t *Thread, lk *locks.Lock) {
	held := e.lockSets.Elems(t.LocksetA)
	n := 0
	for _, h := range held {
		if h != e.busLock {
			held[n] = h
			n++
		}
	}
	held = held[:n]
	if len(held) == 0 {
		return
	}

	if hit, found := e.order.PathExists(lk.ID, held); found {
		var prev laog.Edge
		prev, _ = e.order.FindEdge(lk.ID, hit)
		e.stats.OrderViolations++
		e.rep.OrderViolation(OrderViolationReport{
			Thr:             t.ID,
			Acquired:        lk.ID,
			Held:            hit,
			AcquireCtx:      t.PC,
			HeldCtx:         e.lockMgr.Get(hit).AcquiredAt,
			PrevAcquiredCtx: prev.SrcCtx,
			PrevHeldCtx:     prev.DstCtx,
		})
		e.log.Debug().
			Uint32("thread", uint32(t.ID)).
			Uint32("acquired", uint32(lk.ID)).
			Uint32("held", uint32(hit)).
			Msg("lock order violation")
	}

	// The edges go in regardless: future violations are tracked against
	// the fuller picture.
	for _, h := range held {
		e.order.AddEdge(h, lk.ID, e.lockMgr.Get(h).AcquiredAt, t.PC)
	}
}

// OnLockRelease processes a client unlock. Releasing an unknown address, an
// unheld lock, or a lock held by someone else is reported and ignored.
func (e *Engine) OnLockRelease(thread hb.ThreadID, lockAddr uint64) {
	t := e.thread(thread)
	id, ok := e.lockMgr.Lookup(lockAddr)
	if !ok {
		e.reportLockError(t, lockAddr, 0, locks.ErrUnlockUnknown)
		return
	}
	lk := e.lockMgr.Get(id)
	if uerr := lk.Release(thread); uerr != locks.NoError {
		e.reportLockError(t, lockAddr, id, uerr)
		return
	}
	if !lk.HeldBy(thread) {
		t.LocksetA = e.lockSets.Del(t.LocksetA, id)
		t.LocksetW = e.lockSets.Del(t.LocksetW, id)
	}
}

// OnLockDestroy retires the lock at lockAddr. Destroying a held lock is
// reported; the holders lose it from their locksets either way. The order
// graph splices the lock out so transitively implied orderings survive.
func (e *Engine) OnLockDestroy(thread hb.ThreadID, lockAddr uint64) {
	t := e.thread(thread)
	id, ok := e.lockMgr.Lookup(lockAddr)
	if !ok {
		return
	}
	lk := e.lockMgr.Get(id)
	if lk.Destroyed {
		return
	}
	if lk.IsHeld() {
		e.reportLockError(t, lockAddr, id, locks.ErrDestroyHeld)
		for _, thr := range lk.Holders() {
			holder := e.thread(thr)
			holder.LocksetA = e.lockSets.Del(holder.LocksetA, id)
			holder.LocksetW = e.lockSets.Del(holder.LocksetW, id)
		}
		lk.ClearHolders()
	}
	lk.Destroyed = true
	e.order.RemoveLock(id)
}

// OnAtomicBegin acquires the engine-internal bus lock for thread: the
// modeled processor holds it for the span of one atomic-prefixed
// instruction. It joins the thread's locksets (so two atomic accesses share
// a protecting lock) but never the order graph.
func (e *Engine) OnAtomicBegin(thread hb.ThreadID) {
	t := e.thread(thread)
	lk := e.lockMgr.Get(e.busLock)
	if uerr := lk.AcquireWrite(thread); uerr != locks.NoError {
		e.reportLockError(t, busLockAddr, e.busLock, uerr)
		return
	}
	t.LocksetA = e.lockSets.Add(t.LocksetA, e.busLock)
	t.LocksetW = e.lockSets.Add(t.LocksetW, e.busLock)
}

// OnAtomicEnd releases the bus lock.
func (e *Engine) OnAtomicEnd(thread hb.ThreadID) {
	t := e.thread(thread)
	lk := e.lockMgr.Get(e.busLock)
	if uerr := lk.Release(thread); uerr != locks.NoError {
		e.reportLockError(t, busLockAddr, e.busLock, uerr)
		return
	}
	t.LocksetA = e.lockSets.Del(t.LocksetA, e.busLock)
	t.LocksetW = e.lockSets.Del(t.LocksetW, e.busLock)
}
