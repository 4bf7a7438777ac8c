package shmem

import (
	"fmt"

	"github.com/google/btree"

	"github.com/runt18/data-race-test-sub000/internal/sval"
)

const (
	// CacheLines is the number of direct-mapped resident lines.
	CacheLines = 1024

	treesPerLine = LineSize / 8

	tagInvalid = ^uint64(0)
)

// CacheLine is one decompressed resident line: eight trees of eight bytes.
type CacheLine struct {
	descrs [treesPerLine]uint16
	svals  [LineSize]sval.SVal
}

func (cl *CacheLine) tree(tno int) (*uint16, []sval.SVal) {
	return &cl.descrs[tno], cl.svals[tno*8 : tno*8+8]
}

// fillUniform makes the whole line read as v: one 64-bit node per tree.
func (cl *CacheLine) fillUniform(v sval.SVal) {
	for t := 0; t < treesPerLine; t++ {
		cl.descrs[t] = descr64
		cl.svals[t*8] = v
	}
}

// normalise coalesces every tree in the line.
func (cl *CacheLine) normalise() {
	for t := 0; t < treesPerLine; t++ {
		d, sv := cl.tree(t)
		*d = normTree(*d, sv)
	}
}

// flatten expands the line to its 64 per-byte values.
func (cl *CacheLine) flatten(out *[LineSize]sval.SVal) {
	for t := 0; t < treesPerLine; t++ {
		d, sv := cl.tree(t)
		flattenTree(*d, sv, out[t*8:t*8+8])
	}
}

// StoreStats counts store traffic since construction.
type StoreStats struct {
	CacheHits   uint64
	CacheMisses uint64
	Writebacks  uint64

	// Writeback outcomes: dictionary form vs overflow pool.
	LinesCompressed uint64
	LinesFull       uint64

	SecMaps   uint64
	MRUHits   uint64
	MRUMisses uint64
}

type smEnt struct {
	base uint64
	sm   *SecMap
}

type mruEnt struct {
	base uint64
	sm   *SecMap
}

// Store is the shadow memory for the whole guest address space. Not safe for
// concurrent use; the engine serializes all event handling.
type Store struct {
	def sval.SVal

	tags  [CacheLines]uint64
	dirty [CacheLines]bool
	lines [CacheLines]CacheLine

	smMap *btree.BTreeG[smEnt]
	mru   [3]mruEnt

	stats StoreStats
}

// NewStore returns a store in which every address reads as def (normally the
// never-accessed sentinel).
func NewStore(def sval.SVal) *Store {
	if !def.Valid() {
		fatalf("default shadow value %#x is invalid", uint64(def))
	}
	s := &Store{
		def: def,
		smMap: btree.NewG(8, func(a, b smEnt) bool {
			return a.base < b.base
		}),
	}
	for i := range s.tags {
		s.tags[i] = tagInvalid
	}
	return s
}

// secMapFor returns the region covering addr, through the MRU front. With
// create false a missing region returns nil and the MRU is left alone.
func (s *Store) secMapFor(addr uint64, create bool) *SecMap {
	base := addr &^ (SecMapSize - 1)
	for i := range s.mru {
		if s.mru[i].sm != nil && s.mru[i].base == base {
			s.stats.MRUHits++
			sm := s.mru[i].sm
			copy(s.mru[1:i+1], s.mru[:i])
			s.mru[0] = mruEnt{base: base, sm: sm}
			return sm
		}
	}
	s.stats.MRUMisses++
	var sm *SecMap
	if ent, ok := s.smMap.Get(smEnt{base: base}); ok {
		sm = ent.sm
	} else {
		if !create {
			return nil
		}
		sm = newSecMap(base, s.def)
		s.smMap.ReplaceOrInsert(smEnt{base: base, sm: sm})
		s.stats.SecMaps++
	}
	copy(s.mru[1:], s.mru[:len(s.mru)-1])
	s.mru[0] = mruEnt{base: base, sm: sm}
	return sm
}

func lineIndex(tag uint64) int {
	return int(tag>>lineBits) & (CacheLines - 1)
}

func zIndex(tag uint64) int {
	return int(tag&(SecMapSize-1)) >> lineBits
}

// writeback compresses the resident line at idx into its SecMap. The line
// stays resident; only the dirty bit clears.
func (s *Store) writeback(idx int) {
	if !s.dirty[idx] {
		return
	}
	tag := s.tags[idx]
	cl := &s.lines[idx]
	cl.normalise()
	var vals [LineSize]sval.SVal
	cl.flatten(&vals)
	sm := s.secMapFor(tag, true)
	if sm.storeLine(zIndex(tag), &vals) {
		s.stats.LinesCompressed++
	} else {
		s.stats.LinesFull++
	}
	s.stats.Writebacks++
	s.dirty[idx] = false
}

// fetch decompresses the line tagged tag into slot idx.
func (s *Store) fetch(idx int, tag uint64) {
	s.tags[idx] = tag
	s.dirty[idx] = false
	cl := &s.lines[idx]
	sm := s.secMapFor(tag, false)
	if sm == nil {
		cl.fillUniform(s.def)
		return
	}
	sm.loadLine(zIndex(tag), &cl.svals)
	for t := range cl.descrs {
		cl.descrs[t] = descrAll
	}
	// Recover coarse structure so repeated wide accesses stay cheap.
	cl.normalise()
}

// line makes the line containing addr resident and returns it with its slot.
func (s *Store) line(addr uint64) (*CacheLine, int) {
	tag := addr &^ (LineSize - 1)
	idx := lineIndex(tag)
	if s.tags[idx] == tag {
		s.stats.CacheHits++
		return &s.lines[idx], idx
	}
	s.stats.CacheMisses++
	if s.tags[idx] != tagInvalid {
		s.writeback(idx)
	}
	s.fetch(idx, tag)
	return &s.lines[idx], idx
}

func checkAccess(addr uint64, width int) {
	switch width {
	case 1, 2, 4, 8:
	default:
		fatalf("access width %d at %#x", width, addr)
	}
	if addr&uint64(width-1) != 0 {
		fatalf("misaligned %d-byte access at %#x", width, addr)
	}
}

// Read returns the shadow value governing the aligned width-byte access at
// addr. Reads may restructure trees but never change what the line reads as,
// so they leave the line clean.
func (s *Store) Read(addr uint64, width int) sval.SVal {
	checkAccess(addr, width)
	cl, _ := s.line(addr)
	off := int(addr & (LineSize - 1))
	d, sv := cl.tree(off >> 3)
	return readTree(d, sv, off&7, width)
}

// Write stores v as the shadow of the aligned width-byte access at addr.
func (s *Store) Write(addr uint64, width int, v sval.SVal) {
	checkAccess(addr, width)
	if !v.Valid() {
		fatalf("writing invalid shadow value %#x at %#x", uint64(v), addr)
	}
	cl, idx := s.line(addr)
	off := int(addr & (LineSize - 1))
	d, sv := cl.tree(off >> 3)
	writeTree(d, sv, off&7, width, v)
	s.dirty[idx] = true
}

// chunkWidth returns the widest aligned power-of-two step at addr within
// size bytes.
func chunkWidth(addr uint64, size uint64) int {
	for w := 8; w > 1; w >>= 1 {
		if addr&uint64(w-1) == 0 && size >= uint64(w) {
			return w
		}
	}
	return 1
}

// Apply rewrites every shadow node covering [addr, addr+size) through fn,
// at whatever granularity the trees currently hold. This is the bulk path
// for access processing: fn sees each distinct node value once per node, not
// once per byte.
func (s *Store) Apply(addr, size uint64, fn func(sval.SVal) sval.SVal) {
	for size > 0 {
		w := chunkWidth(addr, size)
		cl, idx := s.line(addr)
		off := int(addr & (LineSize - 1))
		d, sv := cl.tree(off >> 3)
		if applyTree(d, sv, off&7, w, fn) {
			s.dirty[idx] = true
		}
		addr += uint64(w)
		size -= uint64(w)
	}
}

// SetRange makes every byte of [addr, addr+size) read as v. Whole lines
// bypass the tree machinery: resident ones refill uniformly, absent ones
// compress straight into their SecMap.
func (s *Store) SetRange(addr, size uint64, v sval.SVal) {
	if !v.Valid() {
		fatalf("range-setting invalid shadow value %#x at %#x", uint64(v), addr)
	}
	end := addr + size
	for addr < end && addr&(LineSize-1) != 0 {
		s.Write(addr, 1, v)
		addr++
	}
	for addr+LineSize <= end {
		idx := lineIndex(addr)
		if s.tags[idx] == addr {
			s.lines[idx].fillUniform(v)
			s.dirty[idx] = true
		} else {
			s.secMapFor(addr, true).storeUniform(zIndex(addr), v)
		}
		addr += LineSize
	}
	for addr < end {
		s.Write(addr, 1, v)
		addr++
	}
}

// MarkHasLocks records that addr belongs to a region that has held a lock.
func (s *Store) MarkHasLocks(addr uint64) {
	s.secMapFor(addr, true).hasLocks = true
}

// RangeHasLocks reports whether any region overlapping [addr, addr+size)
// ever held a lock. False means a freed-range lock scan can be skipped.
func (s *Store) RangeHasLocks(addr, size uint64) bool {
	if size == 0 {
		return false
	}
	lo := addr &^ (SecMapSize - 1)
	found := false
	s.smMap.AscendRange(smEnt{base: lo}, smEnt{base: addr + size}, func(ent smEnt) bool {
		if ent.sm.hasLocks {
			found = true
			return false
		}
		return true
	})
	return found
}

// Flush writes every dirty resident line back to its SecMap. Used before
// inspecting resting representations and by tests.
func (s *Store) Flush() {
	for idx := range s.tags {
		if s.tags[idx] != tagInvalid {
			s.writeback(idx)
		}
	}
}

// LineCompressed reports the resting representation of the line containing
// addr: compressed is true for dictionary form, present is false if the
// region was never materialized. Call Flush first for a current answer.
func (s *Store) LineCompressed(addr uint64) (compressed, present bool) {
	sm := s.secMapFor(addr&^(SecMapSize-1), false)
	if sm == nil {
		return false, false
	}
	return sm.isCompressed(zIndex(addr &^ (LineSize - 1))), true
}

// Stats returns a snapshot of the traffic counters.
func (s *Store) Stats() StoreStats {
	return s.stats
}

func fatalf(format string, args ...any) {
	panic("shmem: internal invariant violated: " + fmt.Sprintf(format, args...))
}
