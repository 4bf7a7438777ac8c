package engine

import (
	"github.com/runt18/data-race-test-sub000/internal/hb"
	"github.com/runt18/data-race-test-sub000/internal/locks"
	"github.com/runt18/data-race-test-sub000/internal/sval"
)

// OnRead processes a read of size bytes at addr by thread.
func (e *Engine) OnRead(thread hb.ThreadID, addr uint64, size int) {
	t := e.thread(thread)
	if t.IgnoreReads {
		return
	}
	e.stats.Reads++
	e.shadow.Apply(addr, uint64(size), func(old sval.SVal) sval.SVal {
		return e.step(false, t, addr, size, old)
	})
}

// OnWrite processes a write of size bytes at addr by thread.
func (e *Engine) OnWrite(thread hb.ThreadID, addr uint64, size int) {
	t := e.thread(thread)
	e.stats.Writes++
	e.shadow.Apply(addr, uint64(size), func(old sval.SVal) sval.SVal {
		return e.step(true, t, addr, size, old)
	})
}

// OnRangeNew marks [addr, addr+size) as freshly allocated, never-accessed
// memory.
func (e *Engine) OnRangeNew(thread hb.ThreadID, addr uint64, size uint64) {
	e.thread(thread)
	e.shadow.SetRange(addr, size, sval.New)
}

// OnRangeInaccessible marks [addr, addr+size) as freed or unmapped. Any live
// lock record inside the range is retired: a still-held one is a usage
// error, its holders lose it from their locksets, and its order-graph edges
// are spliced out rather than dropped.
func (e *Engine) OnRangeInaccessible(thread hb.ThreadID, addr uint64, size uint64) {
	t := e.thread(thread)
	if e.shadow.RangeHasLocks(addr, size) {
		var removed []locks.LockID
		e.lockMgr.Range(addr, addr+size, func(lk *locks.Lock) bool {
			if lk.Destroyed {
				return true
			}
			if lk.IsHeld() {
				e.reportLockError(t, lk.Addr, lk.ID, locks.ErrFreedHeldLock)
				for _, thr := range lk.Holders() {
					holder := e.thread(thr)
					holder.LocksetA = e.lockSets.Del(holder.LocksetA, lk.ID)
					holder.LocksetW = e.lockSets.Del(holder.LocksetW, lk.ID)
				}
				lk.ClearHolders()
			}
			lk.Destroyed = true
			removed = append(removed, lk.ID)
			return true
		})
		for _, id := range removed {
			e.order.RemoveLock(id)
		}
	}
	e.shadow.SetRange(addr, size, sval.Ignore)
}
