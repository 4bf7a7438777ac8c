package hb

import (
	"fmt"
	"sort"
	"strings"
)

// ThreadID identifies one analyzed application thread. Identities are
// monotonically increasing and never recycled, even when the OS-level thread
// id they were bound to is reused.
type ThreadID uint32

// ScalarTS is one component of a vector timestamp: the logical clock of a
// single thread. Tyme is never zero in a stored VTS; an absent component
// reads as zero.
type ScalarTS struct {
	Thr  ThreadID
	Tyme uint64
}

// VTS is a sparse vector timestamp: an ordered sequence of (thread, counter)
// pairs, strictly increasing by thread identity.
//
// VTS values are immutable once attached to a segment. All operations return
// fresh timestamps rather than mutating in place.
type VTS struct {
	ts []ScalarTS
}

// Ordering is the result of comparing two vector timestamps under the
// component-wise partial order.
type Ordering int

const (
	// OrdEqual means the two timestamps are identical.
	OrdEqual Ordering = iota
	// OrdBefore means the left timestamp is strictly less than the right.
	OrdBefore
	// OrdAfter means the left timestamp is strictly greater than the right.
	OrdAfter
	// OrdUnordered means neither timestamp dominates the other.
	OrdUnordered
)

// String returns a short name for the ordering, for diagnostics.
func (o Ordering) String() string {
	switch o {
	case OrdEqual:
		return "equal"
	case OrdBefore:
		return "before"
	case OrdAfter:
		return "after"
	case OrdUnordered:
		return "unordered"
	default:
		return "invalid"
	}
}

// NewVTS returns the empty timestamp (all components zero).
func NewVTS() *VTS {
	return &VTS{}
}

// checkWellFormed panics if the timestamp violates its representation
// invariants: strictly increasing thread identities, no zero counters.
// A malformed VTS is an engine bug, not a client error.
func (v *VTS) checkWellFormed() {
	for i, s := range v.ts {
		if s.Tyme == 0 {
			fatalf("VTS has zero counter for thread %d", s.Thr)
		}
		if i > 0 && v.ts[i-1].Thr >= s.Thr {
			fatalf("VTS components not strictly increasing at index %d", i)
		}
	}
}

// Get returns the counter for thr, or zero if the component is absent.
func (v *VTS) Get(thr ThreadID) uint64 {
	i := sort.Search(len(v.ts), func(i int) bool { return v.ts[i].Thr >= thr })
	if i < len(v.ts) && v.ts[i].Thr == thr {
		return v.ts[i].Tyme
	}
	return 0
}

// Size returns the number of non-zero components.
func (v *VTS) Size() int {
	return len(v.ts)
}

// Tick returns a copy of v with me's own component incremented by one,
// inserting a fresh component of 1 if absent. The strictly-increasing
// component ordering is preserved.
func Tick(me ThreadID, v *VTS) *VTS {
	out := &VTS{ts: make([]ScalarTS, 0, len(v.ts)+1)}
	inserted := false
	for _, s := range v.ts {
		switch {
		case s.Thr == me:
			out.ts = append(out.ts, ScalarTS{Thr: me, Tyme: s.Tyme + 1})
			inserted = true
		case s.Thr > me && !inserted:
			out.ts = append(out.ts, ScalarTS{Thr: me, Tyme: 1})
			out.ts = append(out.ts, s)
			inserted = true
		default:
			out.ts = append(out.ts, s)
		}
	}
	if !inserted {
		out.ts = append(out.ts, ScalarTS{Thr: me, Tyme: 1})
	}
	out.checkWellFormed()
	return out
}

// Join returns the component-wise maximum of a and b with me's own component
// then incremented exactly once. It is used whenever a new segment depends on
// two predecessors: thread join, condition-variable wait, semaphore wait.
func Join(me ThreadID, a, b *VTS) *VTS {
	max := &VTS{ts: make([]ScalarTS, 0, len(a.ts)+len(b.ts))}
	i, j := 0, 0
	for i < len(a.ts) || j < len(b.ts) {
		switch {
		case j >= len(b.ts) || (i < len(a.ts) && a.ts[i].Thr < b.ts[j].Thr):
			max.ts = append(max.ts, a.ts[i])
			i++
		case i >= len(a.ts) || b.ts[j].Thr < a.ts[i].Thr:
			max.ts = append(max.ts, b.ts[j])
			j++
		default: // same thread in both
			t := a.ts[i].Tyme
			if b.ts[j].Tyme > t {
				t = b.ts[j].Tyme
			}
			max.ts = append(max.ts, ScalarTS{Thr: a.ts[i].Thr, Tyme: t})
			i++
			j++
		}
	}
	return Tick(me, max)
}

// Cmp compares two timestamps under the standard component-wise partial
// order. An absent component counts as zero.
func Cmp(a, b *VTS) Ordering {
	someLess, someGreater := false, false
	i, j := 0, 0
	for i < len(a.ts) || j < len(b.ts) {
		switch {
		case j >= len(b.ts) || (i < len(a.ts) && a.ts[i].Thr < b.ts[j].Thr):
			// Component present only in a: a[thr] > 0 == b[thr].
			someGreater = true
			i++
		case i >= len(a.ts) || b.ts[j].Thr < a.ts[i].Thr:
			someLess = true
			j++
		default:
			if a.ts[i].Tyme < b.ts[j].Tyme {
				someLess = true
			} else if a.ts[i].Tyme > b.ts[j].Tyme {
				someGreater = true
			}
			i++
			j++
		}
		if someLess && someGreater {
			return OrdUnordered
		}
	}
	switch {
	case someLess:
		return OrdBefore
	case someGreater:
		return OrdAfter
	default:
		return OrdEqual
	}
}

// LEQ reports whether a <= b in the partial order. This is the reading under
// which happens-before is reflexive.
func LEQ(a, b *VTS) bool {
	ord := Cmp(a, b)
	return ord == OrdEqual || ord == OrdBefore
}

// String returns a debug representation, e.g. "{1:3, 4:1}". Only used for
// diagnostics, never on the hot path.
func (v *VTS) String() string {
	if len(v.ts) == 0 {
		return "{}"
	}
	var b strings.Builder
	b.WriteByte('{')
	for i, s := range v.ts {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%d:%d", s.Thr, s.Tyme)
	}
	b.WriteByte('}')
	return b.String()
}

// fatalf reports an internal invariant violation. These indicate a bug in the
// engine itself and must not be tolerated: continuing risks reporting false
// races or missing true ones.
func fatalf(format string, args ...any) {
	panic("hb: internal invariant violated: " + fmt.Sprintf(format, args...))
}
