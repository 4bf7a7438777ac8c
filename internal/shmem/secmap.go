package shmem

import "github.com/runt18/data-race-test-sub000/internal/sval"

const (
	// LineSize is the guest-byte span of one shadow line.
	LineSize = 64
	lineBits = 6

	// SecMapSize is the guest-byte span of one second-level map.
	SecMapSize     = 8192
	LinesPerSecMap = SecMapSize / LineSize
)

// lineZ is the compressed resting representation of one line: a 4-entry
// value dictionary plus a 2-bit dictionary index per byte. dict[0] holding
// the reserved all-zero word escapes to the full representation, with
// dict[1] carrying the overflow-pool index.
type lineZ struct {
	dict [4]sval.SVal
	ix2s [LineSize / 4]uint8
}

func (z *lineZ) ix(byteNo int) int {
	return int(z.ix2s[byteNo/4]>>uint((byteNo%4)*2)) & 3
}

func (z *lineZ) setIx(byteNo, ix int) {
	shift := uint((byteNo % 4) * 2)
	z.ix2s[byteNo/4] = z.ix2s[byteNo/4]&^(3<<shift) | uint8(ix)<<shift
}

// lineF is one full-representation line in a SecMap's overflow pool.
type lineF struct {
	inUse bool
	vals  [LineSize]sval.SVal
}

// SecMap holds the resting shadow state of one aligned 8 KiB guest region.
type SecMap struct {
	base uint64

	// hasLocks is a sticky hint: some address in the region was once bound
	// to a lock record. Never cleared, so range scans for locks can skip
	// regions that never saw one.
	hasLocks bool

	linesZ [LinesPerSecMap]lineZ
	linesF []lineF
}

// newSecMap returns a region whose every line reads as def.
func newSecMap(base uint64, def sval.SVal) *SecMap {
	sm := &SecMap{base: base}
	for i := range sm.linesZ {
		sm.linesZ[i].dict[0] = def
	}
	return sm
}

// allocF claims a free overflow-pool slot, doubling the pool on exhaustion.
func (sm *SecMap) allocF() int {
	for i := range sm.linesF {
		if !sm.linesF[i].inUse {
			sm.linesF[i].inUse = true
			return i
		}
	}
	n := len(sm.linesF)
	grown := 2 * n
	if grown == 0 {
		grown = 1
	}
	pool := make([]lineF, grown)
	copy(pool, sm.linesF)
	sm.linesF = pool
	sm.linesF[n].inUse = true
	return n
}

// releaseF returns a previously claimed pool slot.
func (sm *SecMap) releaseF(ix int) {
	if ix < 0 || ix >= len(sm.linesF) || !sm.linesF[ix].inUse {
		fatalf("secmap %#x: releasing bad full-line slot %d", sm.base, ix)
	}
	sm.linesF[ix].inUse = false
}

// storeLine compresses the 64 per-byte values into line zno, replacing
// whatever representation the line had. Returns whether the dictionary form
// was achievable.
func (sm *SecMap) storeLine(zno int, vals *[LineSize]sval.SVal) bool {
	z := &sm.linesZ[zno]
	if z.dict[0] == 0 {
		sm.releaseF(int(z.dict[1]))
	}

	var dict [4]sval.SVal
	n := 0
	fits := true
scan:
	for b := 0; b < LineSize; b++ {
		v := vals[b]
		if !v.Valid() {
			fatalf("secmap %#x line %d: storing invalid shadow value %#x at byte %d",
				sm.base, zno, uint64(v), b)
		}
		for i := 0; i < n; i++ {
			if dict[i] == v {
				continue scan
			}
		}
		if n == 4 {
			fits = false
			break
		}
		dict[n] = v
		n++
	}

	if !fits {
		fIx := sm.allocF()
		sm.linesF[fIx].vals = *vals
		z.dict = [4]sval.SVal{0, sval.SVal(fIx), 0, 0}
		z.ix2s = [LineSize / 4]uint8{}
		return false
	}
	z.dict = dict
	for b := 0; b < LineSize; b++ {
		for i := 0; i < n; i++ {
			if dict[i] == vals[b] {
				z.setIx(b, i)
				break
			}
		}
	}
	return true
}

// storeUniform makes line zno read entirely as v without materializing the
// 64 values.
func (sm *SecMap) storeUniform(zno int, v sval.SVal) {
	if !v.Valid() {
		fatalf("secmap %#x line %d: storing invalid uniform value %#x", sm.base, zno, uint64(v))
	}
	z := &sm.linesZ[zno]
	if z.dict[0] == 0 {
		sm.releaseF(int(z.dict[1]))
	}
	z.dict = [4]sval.SVal{v, 0, 0, 0}
	z.ix2s = [LineSize / 4]uint8{}
}

// loadLine expands line zno into 64 per-byte values.
func (sm *SecMap) loadLine(zno int, out *[LineSize]sval.SVal) {
	z := &sm.linesZ[zno]
	if z.dict[0] == 0 {
		fIx := int(z.dict[1])
		if fIx < 0 || fIx >= len(sm.linesF) || !sm.linesF[fIx].inUse {
			fatalf("secmap %#x line %d: dangling full-line slot %d", sm.base, zno, fIx)
		}
		*out = sm.linesF[fIx].vals
		return
	}
	for b := 0; b < LineSize; b++ {
		v := z.dict[z.ix(b)]
		if v == 0 {
			fatalf("secmap %#x line %d: live index %d reaches reserved zero slot", sm.base, zno, z.ix(b))
		}
		out[b] = v
	}
}

// isCompressed reports whether line zno rests in dictionary form.
func (sm *SecMap) isCompressed(zno int) bool {
	return sm.linesZ[zno].dict[0] != 0
}
