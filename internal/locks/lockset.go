package locks

import (
	"encoding/binary"

	"github.com/bits-and-blooms/bitset"
)

// LockSetID names an interned lockset. ID 0 is the empty set. The value
// always fits the 30-bit field the shadow-value codec reserves for it.
type LockSetID uint32

const lockSetFieldMax = 1<<30 - 1

// LockSetU is the lockset universe. Sets are bitsets over lock identities,
// interned so that equality is an integer compare, subset/membership are
// cheap, and the hot per-access intersection is memoized by identity pair.
type LockSetU struct {
	sets  []*bitset.BitSet
	index map[string]LockSetID

	// interCache memoizes Intersect results, keyed by the packed ordered
	// pair of operand ids. Intersection is commutative so the pair is
	// normalized before packing.
	interCache map[uint64]LockSetID
}

// NewLockSetU returns a universe containing only the empty set (id 0).
func NewLockSetU() *LockSetU {
	u := &LockSetU{
		sets:       []*bitset.BitSet{bitset.New(64)},
		index:      make(map[string]LockSetID),
		interCache: make(map[uint64]LockSetID),
	}
	u.index[lockSetKey(u.sets[0])] = 0
	return u
}

// EmptySet returns the identity of the empty lockset.
func (u *LockSetU) EmptySet() LockSetID { return 0 }

// IsEmpty reports whether ls is the empty set.
func (u *LockSetU) IsEmpty(ls LockSetID) bool { return ls == 0 }

func (u *LockSetU) get(ls LockSetID) *bitset.BitSet {
	if int(ls) >= len(u.sets) {
		fatalf("lockset id %d out of range (have %d)", ls, len(u.sets)-1)
	}
	return u.sets[ls]
}

// intern canonicalizes b and returns its identity. b is owned by the
// universe after the call.
func (u *LockSetU) intern(b *bitset.BitSet) LockSetID {
	if b.Count() == 0 {
		return 0
	}
	key := lockSetKey(b)
	if id, ok := u.index[key]; ok {
		return id
	}
	id := LockSetID(len(u.sets))
	if id > lockSetFieldMax {
		fatalf("lockset universe exhausted (%d sets)", len(u.sets))
	}
	u.sets = append(u.sets, b)
	u.index[key] = id
	return id
}

// Add returns the identity of ls ∪ {lk}.
func (u *LockSetU) Add(ls LockSetID, lk LockID) LockSetID {
	cur := u.get(ls)
	if cur.Test(uint(lk)) {
		return ls
	}
	return u.intern(cur.Clone().Set(uint(lk)))
}

// Del returns the identity of ls \ {lk}.
func (u *LockSetU) Del(ls LockSetID, lk LockID) LockSetID {
	cur := u.get(ls)
	if !cur.Test(uint(lk)) {
		return ls
	}
	return u.intern(cur.Clone().Clear(uint(lk)))
}

// Contains reports whether lk ∈ ls.
func (u *LockSetU) Contains(ls LockSetID, lk LockID) bool {
	return u.get(ls).Test(uint(lk))
}

// Intersect returns the identity of a ∩ b. This runs on every access whose
// segment set is not fully ordered, hence the memo table.
func (u *LockSetU) Intersect(a, b LockSetID) LockSetID {
	if a == b {
		return a
	}
	if a == 0 || b == 0 {
		return 0
	}
	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}
	key := uint64(lo)<<32 | uint64(hi)
	if id, ok := u.interCache[key]; ok {
		return id
	}
	id := u.intern(u.get(a).Intersection(u.get(b)))
	u.interCache[key] = id
	return id
}

// Size returns the cardinality of ls.
func (u *LockSetU) Size(ls LockSetID) int {
	return int(u.get(ls).Count())
}

// Elems returns the lock identities in ls in increasing order.
func (u *LockSetU) Elems(ls LockSetID) []LockID {
	b := u.get(ls)
	out := make([]LockID, 0, b.Count())
	for i, ok := b.NextSet(0); ok; i, ok = b.NextSet(i + 1) {
		out = append(out, LockID(i))
	}
	return out
}

// Minus returns the elements of a that are not in b, in increasing order.
// Used to name the locks dropped by an intersection for diagnostics.
func (u *LockSetU) Minus(a, b LockSetID) []LockID {
	ba, bb := u.get(a), u.get(b)
	out := make([]LockID, 0, 4)
	for i, ok := ba.NextSet(0); ok; i, ok = ba.NextSet(i + 1) {
		if !bb.Test(i) {
			out = append(out, LockID(i))
		}
	}
	return out
}

// Count returns the number of distinct interned sets, for statistics.
func (u *LockSetU) Count() int {
	return len(u.sets)
}

// lockSetKey serializes the set elements into a canonical interning key.
// Element lists are short; this is off the per-access hot path (the hot path
// hits the intersection memo instead).
func lockSetKey(b *bitset.BitSet) string {
	buf := make([]byte, 0, 4*b.Count())
	var word [4]byte
	for i, ok := b.NextSet(0); ok; i, ok = b.NextSet(i + 1) {
		binary.LittleEndian.PutUint32(word[:], uint32(i))
		buf = append(buf, word[:]...)
	}
	return string(buf)
}
