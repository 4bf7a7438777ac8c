// Package race is the public API of the hybrid happens-before / lockset
// race and lock-discipline detection engine.
//
// The engine consumes the event stream of an instrumented multithreaded
// program — memory accesses, lock operations, thread lifecycle, condition
// variable and semaphore operations — and reports memory locations accessed
// by multiple threads without a consistent synchronization discipline, lock
// usage errors, and lock acquisition orders that could deadlock.
//
// # Quick Start
//
//	rep := &race.Collector{}
//	cfg := race.DefaultConfig()
//	cfg.Reporter = rep
//	d := race.New(cfg)
//
//	d.OnThreadCreate(race.RootThread, 2)
//	d.OnWrite(race.RootThread, 0x1000, 4)
//	d.OnWrite(2, 0x1000, 4)
//
//	for _, r := range rep.Races {
//		// render r
//	}
//
// # How It Works
//
// Each thread's execution is split into segments at synchronization events;
// segments carry vector timestamps, so any two segments are either ordered
// (happens-before) or concurrent. Per byte of analyzed memory the engine
// keeps a compressed shadow value recording the set of concurrent segments
// that touched it and the set of locks consistently held across those
// accesses. A location that has been written, has genuinely concurrent
// accesses, and has an empty consistent lockset is a race.
//
// Alongside, the engine maintains a lock acquisition order graph: acquiring
// a lock while holding another records a directed edge, and an acquisition
// contradicting previously observed order is flagged before any deadlock
// occurs.
//
// # Serialization Contract
//
// A Detector is a single-threaded analysis core with no internal locking.
// The host must deliver events strictly serialized, even though the
// analyzed threads run concurrently. Multiple independent detectors may
// coexist in one process.
//
// The engine performs no I/O and no formatting; reports are structured
// values delivered to the configured Reporter.
package race
