package hb

import "github.com/bits-and-blooms/bitset"

// SegmentID is a dense, stable index into the segment arena. IDs start at 1;
// NoSegment (zero) means "no predecessor". Segments are never recycled, so an
// ID, once handed out, is valid for the lifetime of the engine.
type SegmentID uint32

// NoSegment is the absent-segment sentinel used for missing Prev/Other links.
const NoSegment SegmentID = 0

// maxSegmentID bounds the identity space so a SegmentID always fits the
// inline singleton encoding of SegSetID (29 bits).
const maxSegmentID = 1<<29 - 1

// Segment is one thread's instruction stream between two synchronization
// events. The VTS is fixed at creation and must dominate both predecessors'
// timestamps component-wise.
type Segment struct {
	Thr   ThreadID
	Prev  SegmentID
	Other SegmentID
	VTS   *VTS
}

const (
	hbCacheBits = 14
	hbCacheSize = 1 << hbCacheBits
)

// hbCacheEnt memoizes one happens-before answer for an ordered segment pair.
// The zero value is an empty slot: segment id 0 is never queried.
type hbCacheEnt struct {
	a, b SegmentID
	res  bool
}

// SegmentStore is the append-only table of segments plus the memoized
// happens-before predicate over them.
//
// Memoization is safe without invalidation because segment timestamps are
// immutable: an answer computed once stays correct forever. The cache is
// direct-mapped; a collision merely recomputes.
type SegmentStore struct {
	segs    []Segment
	hbCache [hbCacheSize]hbCacheEnt

	// crossCheck enables the graph-reachability fallback on every
	// happens-before query as a correctness cross-check. Off by default;
	// it exists for tests and debugging, not production use.
	crossCheck bool

	// visited is the pooled marker set for the reachability search.
	visited *bitset.BitSet
}

// NewSegmentStore returns an empty store. Slot 0 of the arena is reserved so
// that NoSegment never aliases a real segment.
func NewSegmentStore() *SegmentStore {
	return &SegmentStore{
		segs:    make([]Segment, 1, 1024),
		visited: bitset.New(1024),
	}
}

// SetCrossCheck toggles the DFS cross-check of every happens-before answer.
func (st *SegmentStore) SetCrossCheck(on bool) {
	st.crossCheck = on
}

// New appends a segment and returns its identity. prev is the thread's own
// preceding segment (NoSegment only for a thread's very first segment), other
// an optional cross-thread predecessor. The supplied timestamp must dominate
// both predecessors; a violation is fatal since it would corrupt every later
// happens-before answer.
func (st *SegmentStore) New(thr ThreadID, prev, other SegmentID, vts *VTS) SegmentID {
	if vts == nil {
		fatalf("segment for thread %d created without a vector timestamp", thr)
	}
	if len(st.segs) > maxSegmentID {
		fatalf("segment identity space exhausted (%d segments)", len(st.segs))
	}
	if prev != NoSegment && !LEQ(st.Get(prev).VTS, vts) {
		fatalf("segment VTS %v does not dominate prev %d's %v", vts, prev, st.Get(prev).VTS)
	}
	if other != NoSegment && !LEQ(st.Get(other).VTS, vts) {
		fatalf("segment VTS %v does not dominate other %d's %v", vts, other, st.Get(other).VTS)
	}
	id := SegmentID(len(st.segs))
	st.segs = append(st.segs, Segment{Thr: thr, Prev: prev, Other: other, VTS: vts})
	return id
}

// Get returns the segment record for id. The pointer stays valid across later
// allocations in the sense that the record contents are immutable; callers
// must not retain it across New calls.
func (st *SegmentStore) Get(id SegmentID) *Segment {
	if id == NoSegment || int(id) >= len(st.segs) {
		fatalf("segment id %d out of range (have %d)", id, len(st.segs)-1)
	}
	return &st.segs[id]
}

// Count returns the number of live segments.
func (st *SegmentStore) Count() int {
	return len(st.segs) - 1
}

// HappensBefore reports whether a happens-before b, i.e. a's timestamp is <=
// b's in the partial order. Reflexive: HappensBefore(s, s) is true.
//
// This is on the hot path of every shadow-memory state transition, hence the
// direct-mapped memo table in front of the VTS comparison.
func (st *SegmentStore) HappensBefore(a, b SegmentID) bool {
	if a == b {
		return true
	}
	idx := (uint64(a)*0x9e3779b1 ^ uint64(b)*0x85ebca77) & (hbCacheSize - 1)
	ent := &st.hbCache[idx]
	if ent.a == a && ent.b == b {
		if st.crossCheck {
			st.checkAgainstGraph(a, b, ent.res)
		}
		return ent.res
	}
	res := LEQ(st.Get(a).VTS, st.Get(b).VTS)
	*ent = hbCacheEnt{a: a, b: b, res: res}
	if st.crossCheck {
		st.checkAgainstGraph(a, b, res)
	}
	return res
}

// ReachableThroughEdges reports whether a is reachable from b by following
// Prev/Other predecessor links backwards. This is the slow, structural
// definition of happens-before; it must agree with the VTS comparison.
func (st *SegmentStore) ReachableThroughEdges(a, b SegmentID) bool {
	if a == b {
		return true
	}
	if uint(len(st.segs)) > st.visited.Len() {
		st.visited = bitset.New(uint(len(st.segs)) * 2)
	}
	st.visited.ClearAll()
	work := []SegmentID{b}
	for len(work) > 0 {
		cur := work[len(work)-1]
		work = work[:len(work)-1]
		if cur == NoSegment || st.visited.Test(uint(cur)) {
			continue
		}
		st.visited.Set(uint(cur))
		if cur == a {
			return true
		}
		seg := st.Get(cur)
		work = append(work, seg.Prev, seg.Other)
	}
	return false
}

// checkAgainstGraph fatals if the VTS answer disagrees with edge
// reachability. Timestamps are derived from the very edges the search walks,
// so any disagreement means the store is corrupt.
func (st *SegmentStore) checkAgainstGraph(a, b SegmentID, vtsSaysYes bool) {
	if st.ReachableThroughEdges(a, b) != vtsSaysYes {
		fatalf("happens-before disagreement for (%d,%d): VTS says %v, edge graph says %v",
			a, b, vtsSaysYes, !vtsSaysYes)
	}
}
