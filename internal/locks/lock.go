package locks

import (
	"fmt"
	"sort"

	"github.com/google/btree"

	"github.com/runt18/data-race-test-sub000/internal/hb"
)

// LockID is a dense, stable index into the lock arena. IDs start at 1; zero
// is the invalid id. Lock records are never recycled.
type LockID uint32

// Kind classifies the client API a lock address is used through.
type Kind int

const (
	// NonRecursive is a plain mutex: one write holder, no re-entry.
	NonRecursive Kind = iota
	// Recursive allows the same thread to re-acquire in write mode.
	Recursive
	// ReadWrite allows many read holders or exactly one write holder.
	ReadWrite
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case NonRecursive:
		return "non-recursive"
	case Recursive:
		return "recursive"
	case ReadWrite:
		return "read-write"
	default:
		return "invalid"
	}
}

// UsageError classifies illegal client lock usage. These are reported and
// absorbed; the lock state is left unchanged by the illegal call.
type UsageError int

const (
	// NoError means the transition was legal.
	NoError UsageError = iota
	// ErrRelockNonRecursive: write re-acquisition of a non-recursive lock
	// already write-held by the same thread.
	ErrRelockNonRecursive
	// ErrWriteHeldByOther: write acquisition while another thread write-holds.
	ErrWriteHeldByOther
	// ErrWriteWhileReadHeld: write acquisition of a read-held rwlock.
	ErrWriteWhileReadHeld
	// ErrReadOnNonRW: read acquisition of a non-rwlock.
	ErrReadOnNonRW
	// ErrReadWhileWriteHeld: read acquisition while write-held.
	ErrReadWhileWriteHeld
	// ErrUnlockUnheld: release of a lock nobody holds.
	ErrUnlockUnheld
	// ErrUnlockByNonHolder: release by a thread that is not a holder.
	ErrUnlockByNonHolder
	// ErrUnlockUnknown: release of an address never seen as a lock.
	ErrUnlockUnknown
	// ErrDestroyHeld: destruction of a lock that is currently held.
	ErrDestroyHeld
	// ErrKindMismatch: an address used through mismatched lock APIs.
	ErrKindMismatch
	// ErrFreedHeldLock: freed memory still contained a held lock.
	ErrFreedHeldLock
)

// String returns a short description of the usage error.
func (e UsageError) String() string {
	switch e {
	case NoError:
		return "no error"
	case ErrRelockNonRecursive:
		return "re-locking a non-recursive lock already held by the same thread"
	case ErrWriteHeldByOther:
		return "write-acquiring a lock write-held by another thread"
	case ErrWriteWhileReadHeld:
		return "write-acquiring a read-held rwlock"
	case ErrReadOnNonRW:
		return "read-acquiring a lock that is not a rwlock"
	case ErrReadWhileWriteHeld:
		return "read-acquiring a write-held rwlock"
	case ErrUnlockUnheld:
		return "unlocking a lock that is not held"
	case ErrUnlockByNonHolder:
		return "unlocking a lock held by other thread(s)"
	case ErrUnlockUnknown:
		return "unlocking an address never observed as a lock"
	case ErrDestroyHeld:
		return "destroying a held lock"
	case ErrKindMismatch:
		return "mismatched lock API use for this address"
	case ErrFreedHeldLock:
		return "freed memory still contained a held lock"
	default:
		return "invalid usage error"
	}
}

// Lock represents one user-visible lock object.
//
// The holder bag counts acquisitions per thread: recursive locks may count
// the same thread several times; rwlocks may read-hold several distinct
// threads; write mode always has exactly one thread with count 1 (count > 1
// only for recursive locks).
type Lock struct {
	ID   LockID
	Addr uint64
	Kind Kind

	// AppearedAt is the program context where the lock was first observed,
	// AcquiredAt the context of the most recent acquisition (zero when
	// unheld). LastReleasedAt remembers the most recent release that
	// emptied the holder bag, for diagnostic attribution.
	AppearedAt     uint64
	AcquiredAt     uint64
	LastReleasedAt uint64

	// Destroyed marks a dead record (client destroy or freed memory). The
	// record itself persists; see the package comment.
	Destroyed bool

	heldW   bool
	holders map[hb.ThreadID]int
}

// checkInvariants fatals if the holder-bag state contradicts the lock kind.
// These would be engine bugs, not client errors.
func (l *Lock) checkInvariants() {
	if len(l.holders) == 0 {
		if l.heldW {
			fatalf("lock %d: empty holder bag but write-held", l.ID)
		}
		if l.AcquiredAt != 0 {
			fatalf("lock %d: empty holder bag but acquisition context set", l.ID)
		}
		return
	}
	if l.heldW {
		if len(l.holders) != 1 {
			fatalf("lock %d: write-held by %d threads", l.ID, len(l.holders))
		}
		for thr, n := range l.holders {
			if n > 1 && l.Kind != Recursive {
				fatalf("lock %d: %s lock write-held %d times by thread %d", l.ID, l.Kind, n, thr)
			}
		}
	} else {
		if l.Kind != ReadWrite {
			fatalf("lock %d: %s lock is read-held", l.ID, l.Kind)
		}
		for thr, n := range l.holders {
			if n != 1 {
				fatalf("lock %d: thread %d read-holds %d times", l.ID, thr, n)
			}
		}
	}
}

// IsHeld reports whether any thread holds the lock.
func (l *Lock) IsHeld() bool { return len(l.holders) > 0 }

// IsWriteHeld reports whether the lock is held in write mode.
func (l *Lock) IsWriteHeld() bool { return l.heldW }

// HeldBy reports whether thr is among the current holders.
func (l *Lock) HeldBy(thr hb.ThreadID) bool { return l.holders[thr] > 0 }

// HoldCount returns thr's acquisition count (recursive depth).
func (l *Lock) HoldCount(thr hb.ThreadID) int { return l.holders[thr] }

// Holders returns the holding threads in increasing identity order.
func (l *Lock) Holders() []hb.ThreadID {
	out := make([]hb.ThreadID, 0, len(l.holders))
	for thr := range l.holders {
		out = append(out, thr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// AcquireWrite applies a successful write acquisition by thr, or returns the
// usage error that makes it illegal. Legal only if unheld, or if a recursive
// lock is already write-held solely by thr.
func (l *Lock) AcquireWrite(thr hb.ThreadID) UsageError {
	switch {
	case len(l.holders) == 0:
		l.heldW = true
		l.holders = map[hb.ThreadID]int{thr: 1}
	case !l.heldW:
		return ErrWriteWhileReadHeld
	case l.holders[thr] == 0:
		return ErrWriteHeldByOther
	case l.Kind != Recursive:
		return ErrRelockNonRecursive
	default:
		l.holders[thr]++
	}
	l.checkInvariants()
	return NoError
}

// AcquireRead applies a successful read acquisition by thr. Legal only on
// rwlocks, and never while write-held.
func (l *Lock) AcquireRead(thr hb.ThreadID) UsageError {
	switch {
	case l.Kind != ReadWrite:
		return ErrReadOnNonRW
	case l.heldW:
		return ErrReadWhileWriteHeld
	default:
		if l.holders == nil {
			l.holders = make(map[hb.ThreadID]int)
		}
		if l.holders[thr] > 0 {
			// A thread read-holding twice would break the count-of-1
			// invariant; treat as a relock error.
			return ErrRelockNonRecursive
		}
		l.holders[thr] = 1
	}
	l.checkInvariants()
	return NoError
}

// Release applies a successful release by thr. Removing thr's last count
// while other holders remain keeps the lock held (recursive/read cases);
// removing the last holder returns it to unheld.
func (l *Lock) Release(thr hb.ThreadID) UsageError {
	switch {
	case len(l.holders) == 0:
		return ErrUnlockUnheld
	case l.holders[thr] == 0:
		return ErrUnlockByNonHolder
	}
	l.holders[thr]--
	if l.holders[thr] == 0 {
		delete(l.holders, thr)
	}
	if len(l.holders) == 0 {
		l.heldW = false
		l.LastReleasedAt = l.AcquiredAt
		l.AcquiredAt = 0
	}
	l.checkInvariants()
	return NoError
}

// ClearHolders force-empties the holder bag. Used when the lock's memory is
// freed out from under its holders; the usage error has already been
// reported by then.
func (l *Lock) ClearHolders() {
	l.holders = nil
	l.heldW = false
	l.AcquiredAt = 0
	l.checkInvariants()
}

// addrLock keys the address-ordered lock map.
type addrLock struct {
	addr uint64
	id   LockID
}

// Manager owns the lock arena and the address-ordered map over it.
//
// The map is ordered so the freed-memory path can scan an arbitrary address
// range for lock records; point lookups serve the per-event path.
type Manager struct {
	arena  []Lock
	byAddr *btree.BTreeG[addrLock]
}

// NewManager returns an empty manager. Arena slot 0 is reserved so LockID 0
// is never valid.
func NewManager() *Manager {
	return &Manager{
		arena: make([]Lock, 1, 64),
		byAddr: btree.NewG(8, func(a, b addrLock) bool {
			return a.addr < b.addr
		}),
	}
}

// Lookup returns the lock id bound to addr, if any.
func (m *Manager) Lookup(addr uint64) (LockID, bool) {
	ent, ok := m.byAddr.Get(addrLock{addr: addr})
	if !ok {
		return 0, false
	}
	return ent.id, true
}

// GetOrCreate returns the lock record for addr, creating one of the given
// kind on first observation. created reports whether a record was allocated.
// The caller decides how to handle a kind mismatch against an existing
// record; the recorded kind is never rewritten.
func (m *Manager) GetOrCreate(addr uint64, kind Kind, appearedAt uint64) (lk *Lock, created bool) {
	if id, ok := m.Lookup(addr); ok {
		return m.Get(id), false
	}
	id := LockID(len(m.arena))
	m.arena = append(m.arena, Lock{
		ID:         id,
		Addr:       addr,
		Kind:       kind,
		AppearedAt: appearedAt,
	})
	m.byAddr.ReplaceOrInsert(addrLock{addr: addr, id: id})
	return &m.arena[id], true
}

// Get returns the record for id. Fatal on an invalid id: lock identities come
// from the engine's own bookkeeping, never from the client.
func (m *Manager) Get(id LockID) *Lock {
	if id == 0 || int(id) >= len(m.arena) {
		fatalf("lock id %d out of range (have %d)", id, len(m.arena)-1)
	}
	return &m.arena[id]
}

// Range calls fn for every lock whose address lies in [lo, hi), in address
// order, stopping early if fn returns false.
func (m *Manager) Range(lo, hi uint64, fn func(*Lock) bool) {
	m.byAddr.AscendRange(addrLock{addr: lo}, addrLock{addr: hi}, func(ent addrLock) bool {
		return fn(m.Get(ent.id))
	})
}

// Count returns the number of lock records ever created.
func (m *Manager) Count() int {
	return len(m.arena) - 1
}

func fatalf(format string, args ...any) {
	panic("locks: internal invariant violated: " + fmt.Sprintf(format, args...))
}
