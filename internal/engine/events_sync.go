package engine

import "github.com/runt18/data-race-test-sub000/internal/hb"

// OnThreadCreate registers child as a new thread whose first segment depends
// on parent's current segment. The parent also starts a fresh segment, so
// its later work is not spuriously ordered before the child's start.
func (e *Engine) OnThreadCreate(parent, child hb.ThreadID) {
	p := e.thread(parent)
	donor := p.CurSeg
	donorVTS := e.curVTS(p)

	c := e.newThread(child)
	c.CurSeg = e.segs.New(child, hb.NoSegment, donor, hb.Tick(child, donorVTS))
	e.stats.Segments++

	e.advance(p, hb.NoSegment, hb.Tick(parent, donorVTS))
}

// OnThreadExit marks thread as exited and freezes its final segment for a
// later join. The record stays; only new events for the identity are a host
// error.
func (e *Engine) OnThreadExit(thread hb.ThreadID) {
	t := e.thread(thread)
	t.exited = true
	e.exitSegs[thread] = t.CurSeg
}

// OnThreadJoinComplete orders everything quitter did before stayer's
// subsequent accesses: stayer's new segment joins on quitter's final
// segment.
func (e *Engine) OnThreadJoinComplete(stayer, quitter hb.ThreadID) {
	s := e.thread(stayer)
	q := e.thread(quitter)
	donor, ok := e.exitSegs[quitter]
	if !ok {
		// Join observed before the exit event; use the quitter's current
		// segment, which is the latest work the join can order.
		donor = q.CurSeg
	}
	e.advance(s, donor, hb.Join(stayer, e.curVTS(s), e.segs.Get(donor).VTS))
}

// OnCVSignal records thread's current segment as the condition variable's
// donor (last signal wins) and starts a fresh segment for the signaller.
func (e *Engine) OnCVSignal(thread hb.ThreadID, cvAddr uint64) {
	t := e.thread(thread)
	e.cvDonors[cvAddr] = t.CurSeg
	e.advance(t, hb.NoSegment, hb.Tick(thread, e.curVTS(t)))
}

// OnCVWaitComplete orders the latest signal's donor segment before the
// waiter's new segment. A wait with no recorded signal (spurious wakeup,
// or signal predating the analysis) still starts a fresh segment.
func (e *Engine) OnCVWaitComplete(thread hb.ThreadID, cvAddr uint64) {
	t := e.thread(thread)
	if donor, ok := e.cvDonors[cvAddr]; ok {
		e.advance(t, donor, hb.Join(thread, e.curVTS(t), e.segs.Get(donor).VTS))
		return
	}
	e.advance(t, hb.NoSegment, hb.Tick(thread, e.curVTS(t)))
}

// OnSemPost enqueues thread's current segment on the semaphore's FIFO donor
// queue and starts a fresh segment for the poster.
func (e *Engine) OnSemPost(thread hb.ThreadID, semAddr uint64) {
	t := e.thread(thread)
	e.semDonors[semAddr] = append(e.semDonors[semAddr], t.CurSeg)
	e.advance(t, hb.NoSegment, hb.Tick(thread, e.curVTS(t)))
}

// OnSemWaitComplete pops the oldest donor from the semaphore's queue and
// joins on it. An empty queue (initial semaphore value consumed) still
// starts a fresh segment.
func (e *Engine) OnSemWaitComplete(thread hb.ThreadID, semAddr uint64) {
	t := e.thread(thread)
	if q := e.semDonors[semAddr]; len(q) > 0 {
		donor := q[0]
		e.semDonors[semAddr] = q[1:]
		e.advance(t, donor, hb.Join(thread, e.curVTS(t), e.segs.Get(donor).VTS))
		return
	}
	e.advance(t, hb.NoSegment, hb.Tick(thread, e.curVTS(t)))
}

// OnSegmentRefresh starts a fresh segment for thread with no cross-thread
// dependency. Hosts use it to bound segment length.
func (e *Engine) OnSegmentRefresh(thread hb.ThreadID) {
	t := e.thread(thread)
	e.advance(t, hb.NoSegment, hb.Tick(thread, e.curVTS(t)))
}
