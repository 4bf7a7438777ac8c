package engine

import (
	"github.com/runt18/data-race-test-sub000/internal/hb"
	"github.com/runt18/data-race-test-sub000/internal/locks"
	"github.com/runt18/data-race-test-sub000/internal/sval"
)

// accessLockset returns the lockset that protects this access: for a write
// only write-held locks count, for a read any held lock does.
func (e *Engine) accessLockset(t *Thread, isWrite bool) locks.LockSetID {
	if isWrite {
		return t.LocksetW
	}
	return t.LocksetA
}

// step is the per-access state transition. It maps the location's old shadow
// value to its new one and reports a race when the access completes an
// unordered, unprotected pair. addr and size only feed diagnostics; the
// decision depends solely on old value, accessing thread and access kind.
func (e *Engine) step(isWrite bool, t *Thread, addr uint64, size int, old sval.SVal) sval.SVal {
	cur := t.CurSeg
	curLS := e.accessLockset(t, isWrite)
	inAtomic := e.lockSets.Contains(t.LocksetA, e.busLock)

	switch {
	case old.IsIgnore():
		return old
	case old.IsNew():
		// Atomic-prefixed first touch: lock-free idioms the engine cannot
		// model; track nothing rather than risk a false positive.
		if inAtomic {
			return sval.Ignore
		}
		return sval.Encode(isWrite, hb.Singleton(cur), curLS, false)
	}

	wasMod, oldSS, oldLS, trace := old.Decode()
	if inAtomic && !wasMod {
		return sval.Ignore
	}

	// Segment-set update. hbAll means every recorded segment is ordered
	// before the current access, licensing a full lockset reset.
	var (
		newSS hb.SegSetID
		hbAll bool
	)
	if e.segSets.IsSingleton(oldSS) {
		s := e.segSets.SingletonSeg(oldSS)
		if s == cur || e.segs.Get(s).Thr == t.ID || e.segs.HappensBefore(s, cur) {
			newSS = hb.Singleton(cur)
			hbAll = true
		} else {
			newSS = e.segSets.Intern(append(append(e.ssKept[:0], cur), s))
		}
	} else {
		e.ssElems = e.segSets.Elems(e.ssElems[:0], oldSS)
		kept := e.ssKept[:0]
		for _, s := range e.ssElems {
			if e.segs.Get(s).Thr == t.ID || e.segs.HappensBefore(s, cur) {
				continue
			}
			kept = append(kept, s)
		}
		if len(kept) == 0 {
			newSS = hb.Singleton(cur)
			hbAll = true
		} else {
			// Cap the antichain: evict lowest identities first. Element
			// order from the universe is increasing, so the oldest
			// segments sit at the front.
			if len(kept)+1 > e.cfg.SegmentSetCap {
				kept = kept[len(kept)+1-e.cfg.SegmentSetCap:]
			}
			kept = append(kept, cur)
			newSS = e.segSets.Intern(kept)
		}
		e.ssKept = kept[:0]
	}

	// Lockset update.
	newLS := curLS
	if !hbAll {
		newLS = e.lockSets.Intersect(oldLS, curLS)
		if newLS != oldLS && !e.lockSets.IsEmpty(oldLS) {
			e.lastDropped[addr] = e.lockSets.Minus(oldLS, newLS)
		}
	}

	newMod := isWrite || (wasMod && !hbAll)

	raced := newMod && !e.segSets.IsSingleton(newSS) && e.lockSets.IsEmpty(newLS)
	if !raced {
		return sval.Encode(newMod, newSS, newLS, trace)
	}

	if trace && !e.cfg.ReportFollowOnRaces {
		// A race was already reported here; this is the same known hazard.
		return sval.Ignore
	}

	rep := RaceReport{
		Thr:            t.ID,
		Addr:           addr,
		Size:           size,
		IsWrite:        isWrite,
		Ctx:            t.PC,
		CurSeg:         cur,
		PrevSegs:       e.segSets.Elems(nil, oldSS),
		LastProtection: e.lastDropped[addr],
	}
	delete(e.lastDropped, addr)
	if !e.rep.Race(rep) {
		// Suppressed (expected/benign); stop tracking the location.
		return sval.Ignore
	}
	e.stats.Races++
	e.log.Debug().
		Uint32("thread", uint32(t.ID)).
		Uint64("addr", addr).
		Bool("write", isWrite).
		Msg("data race")

	// Fresh tracking state with the trace bit armed: a second race here is
	// suppressed rather than re-reported on every access.
	return sval.Encode(isWrite, hb.Singleton(cur), curLS, true)
}
