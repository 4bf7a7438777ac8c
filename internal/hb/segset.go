package hb

import (
	"encoding/binary"
	"sort"
)

// SegSetID names a segment set in the universe. The encoding keeps the common
// singleton case allocation-free:
//
//   - bit 29 set: the low 29 bits are a SegmentID (inline singleton)
//   - bit 29 clear: index into the interned multi-element set table
//
// The whole value fits the 30-bit field the shadow-value codec reserves for
// it. ID 0 with the singleton bit clear is never issued.
type SegSetID uint32

const (
	segSetSingletonBit SegSetID = 1 << 29
	segSetFieldMax              = 1<<30 - 1
)

// SegSetU is the segment-set universe: it interns multi-element sets so that
// equal sets share one identity and set equality is an integer compare.
//
// Interned sets are stored sorted by segment identity. The engine guarantees
// the antichain property (no element happens-before another) before
// interning; the universe only guarantees canonical representation.
type SegSetU struct {
	sets  [][]SegmentID
	index map[string]SegSetID
}

// NewSegSetU returns an empty universe. Table slot 0 is reserved so a zero
// SegSetID never names a live set.
func NewSegSetU() *SegSetU {
	return &SegSetU{
		sets:  make([][]SegmentID, 1),
		index: make(map[string]SegSetID),
	}
}

// Singleton returns the inline identity for the one-element set {seg}.
func Singleton(seg SegmentID) SegSetID {
	if seg == NoSegment || seg > maxSegmentID {
		fatalf("singleton of invalid segment id %d", seg)
	}
	return segSetSingletonBit | SegSetID(seg)
}

// IsSingleton reports whether ss uses the inline singleton encoding.
func (u *SegSetU) IsSingleton(ss SegSetID) bool {
	return ss&segSetSingletonBit != 0
}

// SingletonSeg returns the sole element of an inline singleton.
func (u *SegSetU) SingletonSeg(ss SegSetID) SegmentID {
	if ss&segSetSingletonBit == 0 {
		fatalf("SingletonSeg on non-singleton set %d", ss)
	}
	return SegmentID(ss &^ segSetSingletonBit)
}

// Intern canonicalizes elems (sorted, deduplicated) and returns its identity.
// A one-element result uses the inline encoding; larger sets are interned.
// The input slice is not retained.
func (u *SegSetU) Intern(elems []SegmentID) SegSetID {
	if len(elems) == 0 {
		fatalf("interning an empty segment set")
	}
	sorted := make([]SegmentID, len(elems))
	copy(sorted, elems)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	n := 1
	for i := 1; i < len(sorted); i++ {
		if sorted[i] != sorted[i-1] {
			sorted[n] = sorted[i]
			n++
		}
	}
	sorted = sorted[:n]
	if n == 1 {
		return Singleton(sorted[0])
	}
	key := segSetKey(sorted)
	if id, ok := u.index[key]; ok {
		return id
	}
	id := SegSetID(len(u.sets))
	if id >= segSetSingletonBit {
		fatalf("segment-set universe exhausted (%d sets)", len(u.sets))
	}
	u.sets = append(u.sets, sorted)
	u.index[key] = id
	return id
}

// Elems appends the elements of ss to dst and returns the result, avoiding an
// allocation when dst has capacity. Elements are in increasing identity order.
func (u *SegSetU) Elems(dst []SegmentID, ss SegSetID) []SegmentID {
	if ss&segSetSingletonBit != 0 {
		return append(dst, SegmentID(ss&^segSetSingletonBit))
	}
	if ss == 0 || int(ss) >= len(u.sets) {
		fatalf("segment-set id %d out of range (have %d)", ss, len(u.sets)-1)
	}
	return append(dst, u.sets[ss]...)
}

// Size returns the cardinality of ss.
func (u *SegSetU) Size(ss SegSetID) int {
	if ss&segSetSingletonBit != 0 {
		return 1
	}
	if ss == 0 || int(ss) >= len(u.sets) {
		fatalf("segment-set id %d out of range (have %d)", ss, len(u.sets)-1)
	}
	return len(u.sets[ss])
}

// Count returns the number of interned multi-element sets, for statistics.
func (u *SegSetU) Count() int {
	return len(u.sets) - 1
}

func segSetKey(sorted []SegmentID) string {
	buf := make([]byte, 4*len(sorted))
	for i, s := range sorted {
		binary.LittleEndian.PutUint32(buf[4*i:], uint32(s))
	}
	return string(buf)
}
