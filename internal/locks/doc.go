// Package locks tracks client lock objects and interned locksets.
//
// A Lock record is created lazily on the first observed use of a lock
// address and is never destroyed: historical shadow values may reference a
// lock indefinitely, and the immortal record is what keeps those references
// valid when the client allocator reuses the address. A freed or destroyed
// lock is only marked dead.
//
// The per-lock state machine (unheld / read-held / write-held, counted per
// thread) reflects only successful application-level lock and unlock calls.
// Illegal transitions are reported as usage errors and leave the state
// unchanged; the engine never "corrects" client behavior, it only refuses to
// let it corrupt its own invariants.
//
// Locksets are sets of lock identities interned in a LockSetU universe, so
// set equality is an integer compare and the per-access intersection against
// the shadow value is memoized by identity pair.
package locks
