// Package sval implements the bit-packed shadow-value codec.
//
// A shadow value is the analysis state of one guest byte (stored per tree
// node in the compressed store, covering up to 8 bytes). It packs the whole
// state into a single 64-bit word so that shadow memory stays one word per
// byte and encode/decode are O(1) on the per-access hot path:
//
//	bits 62-63  tag: 01 = New, 10 = Ignore, 11 = Owned (00 is invalid)
//	bit  61     Owned: modified (written at least once since last ordering)
//	bit  60     Owned: trace (a race was already reported here)
//	bits 30-59  Owned: segment-set id
//	bits  0-29  Owned: lockset id
//
// The all-zero word is never a valid shadow value; the compressed storage
// format reserves it as an escape marker, and reaching it through a live
// index is an internal-consistency fault.
package sval

import (
	"fmt"

	"github.com/runt18/data-race-test-sub000/internal/hb"
	"github.com/runt18/data-race-test-sub000/internal/locks"
)

// SVal is one packed shadow value. Construct only through New, Ignore, or
// Encode; an arbitrary bit pattern is not a valid SVal.
type SVal uint64

const (
	tagShift = 62
	tagNew   = 1
	tagIgn   = 2
	tagOwned = 3

	modifiedBit SVal = 1 << 61
	traceBit    SVal = 1 << 60

	fieldBits   = 30
	fieldMask   = 1<<fieldBits - 1
	segSetShift = fieldBits
	ownedHeader = SVal(tagOwned) << tagShift
)

// New is the shadow value of memory that has never been accessed.
const New SVal = tagNew << tagShift

// Ignore is the shadow value of memory excluded from further tracking:
// either a race was already reported here, or the range was made
// inaccessible (freed, unmapped).
const Ignore SVal = tagIgn << tagShift

// Encode packs an Owned state. The segment-set and lockset identities must
// fit their 30-bit fields; the universes guarantee that by construction, so
// overflow here is fatal.
func Encode(modified bool, ss hb.SegSetID, ls locks.LockSetID, trace bool) SVal {
	if uint32(ss) > fieldMask {
		fatalf("segment-set id %d exceeds field width", ss)
	}
	if uint32(ls) > fieldMask {
		fatalf("lockset id %d exceeds field width", ls)
	}
	v := ownedHeader | SVal(ss)<<segSetShift | SVal(ls)
	if modified {
		v |= modifiedBit
	}
	if trace {
		v |= traceBit
	}
	return v
}

// Decode unpacks an Owned value. Decoding a sentinel or an invalid word is
// fatal: it means a corrupt value escaped the storage layer.
func (v SVal) Decode() (modified bool, ss hb.SegSetID, ls locks.LockSetID, trace bool) {
	if !v.IsOwned() {
		fatalf("decoding non-owned shadow value %#x", uint64(v))
	}
	return v&modifiedBit != 0,
		hb.SegSetID(v >> segSetShift & fieldMask),
		locks.LockSetID(v & fieldMask),
		v&traceBit != 0
}

// IsNew reports the never-accessed sentinel.
func (v SVal) IsNew() bool { return v>>tagShift == tagNew }

// IsIgnore reports the suppressed sentinel.
func (v SVal) IsIgnore() bool { return v>>tagShift == tagIgn }

// IsOwned reports an encoded Owned state.
func (v SVal) IsOwned() bool { return v>>tagShift == tagOwned }

// IsModified reports the Owned modified bit; false for sentinels.
func (v SVal) IsModified() bool { return v.IsOwned() && v&modifiedBit != 0 }

// Trace reports the Owned "race already reported here" bit.
func (v SVal) Trace() bool { return v.IsOwned() && v&traceBit != 0 }

// Valid reports whether v carries any legal tag. The zero word is invalid by
// design.
func (v SVal) Valid() bool { return v>>tagShift != 0 }

// String returns a debug rendering, e.g. "Owned{M ss=2 ls=1}".
func (v SVal) String() string {
	switch v >> tagShift {
	case tagNew:
		return "New"
	case tagIgn:
		return "Ignore"
	case tagOwned:
		mod, ss, ls, trace := v.Decode()
		m := "R"
		if mod {
			m = "M"
		}
		t := ""
		if trace {
			t = " trace"
		}
		return fmt.Sprintf("Owned{%s ss=%d ls=%d%s}", m, ss, ls, t)
	default:
		return fmt.Sprintf("Invalid(%#x)", uint64(v))
	}
}

func fatalf(format string, args ...any) {
	panic("sval: internal invariant violated: " + fmt.Sprintf(format, args...))
}
