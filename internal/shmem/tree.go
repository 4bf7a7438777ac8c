package shmem

import (
	"github.com/runt18/data-race-test-sub000/internal/sval"
)

// A tree covers one aligned 8-byte group of a cache line. Its 16-bit
// descriptor records which nodes currently hold valid shadow values, one bit
// per node:
//
//	bit  14      the single 64-bit node
//	bits 12-13   the two 32-bit nodes
//	bits  8-11   the four 16-bit nodes
//	bits  0-7    the eight 8-bit leaves
//
// Valid nodes tile the 8 bytes exactly: every byte is covered by exactly one
// valid node. A node's value lives in the shadow slot of its lowest byte;
// slots under wider nodes hold stale data and are never read.

const (
	descr64  uint16 = 1 << 14
	descrAll uint16 = 0x00ff // eight 8-bit leaves
)

// nodeBit returns the descriptor bit for the node of width w at byte offset
// off within its tree. off must be w-aligned.
func nodeBit(off, w int) uint16 {
	switch w {
	case 8:
		return descr64
	case 4:
		return 1 << (12 + off/4)
	case 2:
		return 1 << (8 + off/2)
	case 1:
		return 1 << off
	}
	fatalf("bad node width %d", w)
	return 0
}

// coveringNode returns the offset and width of the valid node containing
// byte off. A descriptor that covers no node at some byte is corrupt.
func coveringNode(d uint16, off int) (int, int) {
	for w := 8; w >= 1; w >>= 1 {
		o := off &^ (w - 1)
		if d&nodeBit(o, w) != 0 {
			return o, w
		}
	}
	fatalf("descriptor %#04x covers no node at byte %d", d, off)
	return 0, 0
}

// pulldown splits wider nodes until the node (off, w) is valid, copying each
// split node's value into both halves. The caller has established that the
// covering node is strictly wider than w.
func pulldown(d uint16, sv []sval.SVal, off, w int) uint16 {
	for d&nodeBit(off, w) == 0 {
		o, cw := coveringNode(d, off)
		if cw <= w {
			fatalf("pulldown at (%d,%d) met finer node (%d,%d)", off, w, o, cw)
		}
		half := cw / 2
		d &^= nodeBit(o, cw)
		d |= nodeBit(o, half) | nodeBit(o+half, half)
		sv[o+half] = sv[o]
	}
	return d
}

// forceNode discards all nodes inside [off, off+w) and makes (off, w) the
// single valid node over that range. Only legal when no valid node extends
// beyond the range, which holds whenever the covering node of off is not
// wider than w.
func forceNode(d uint16, off, w int) uint16 {
	for w2 := w; w2 >= 1; w2 >>= 1 {
		for o := off; o < off+w; o += w2 {
			d &^= nodeBit(o, w2)
		}
	}
	return d | nodeBit(off, w)
}

// readTree returns the shadow value governing the w bytes at off, adjusting
// the tree to width w first. A wider covering value is pulled down; finer
// values coalesce to a single w-wide node if they are all equal, otherwise
// the value of the lowest-addressed covered node stands for the access and
// the finer structure is kept.
func readTree(d *uint16, sv []sval.SVal, off, w int) sval.SVal {
	if *d&nodeBit(off, w) != 0 {
		return sv[off]
	}
	if _, cw := coveringNode(*d, off); cw > w {
		*d = pulldown(*d, sv, off, w)
		return sv[off]
	}
	first := sv[off]
	uniform := true
	for b := off; b < off+w; {
		o, cw := coveringNode(*d, b)
		if sv[o] != first {
			uniform = false
			break
		}
		b = o + cw
	}
	if uniform {
		*d = forceNode(*d, off, w)
		sv[off] = first
	}
	return first
}

// writeTree stores v as the single node governing the w bytes at off,
// splitting a wider covering node or overwriting finer ones.
func writeTree(d *uint16, sv []sval.SVal, off, w int, v sval.SVal) {
	if *d&nodeBit(off, w) == 0 {
		if _, cw := coveringNode(*d, off); cw > w {
			*d = pulldown(*d, sv, off, w)
		} else {
			*d = forceNode(*d, off, w)
		}
	}
	sv[off] = v
}

// applyTree rewrites every valid node inside [off, off+w) through fn,
// pulling a wider covering node down to width w first. Returns whether any
// value changed.
func applyTree(d *uint16, sv []sval.SVal, off, w int, fn func(sval.SVal) sval.SVal) bool {
	if *d&nodeBit(off, w) == 0 {
		if _, cw := coveringNode(*d, off); cw > w {
			*d = pulldown(*d, sv, off, w)
		}
	}
	changed := false
	for b := off; b < off+w; {
		o, cw := coveringNode(*d, b)
		nv := fn(sv[o])
		if !nv.Valid() {
			fatalf("visitor produced invalid shadow value %#x", uint64(nv))
		}
		if nv != sv[o] {
			sv[o] = nv
			changed = true
		}
		b = o + cw
	}
	return changed
}

// normTree coalesces adjacent equal-valued sibling nodes bottom-up, undoing
// pulldown fragmentation before a line is compressed.
func normTree(d uint16, sv []sval.SVal) uint16 {
	for w := 1; w < 8; w <<= 1 {
		for o := 0; o < 8; o += 2 * w {
			lo, hi := nodeBit(o, w), nodeBit(o+w, w)
			if d&lo != 0 && d&hi != 0 && sv[o] == sv[o+w] {
				d &^= lo | hi
				d |= nodeBit(o, 2*w)
			}
		}
	}
	return d
}

// flattenTree expands the tree to its 8 per-byte values.
func flattenTree(d uint16, sv []sval.SVal, out []sval.SVal) {
	for b := 0; b < 8; {
		o, w := coveringNode(d, b)
		for i := 0; i < w; i++ {
			out[o+i] = sv[o]
		}
		b = o + w
	}
}
