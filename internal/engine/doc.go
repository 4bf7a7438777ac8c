// Package engine orchestrates the race-detection analysis.
//
// The engine consumes the serialized event stream of an instrumented
// program — memory accesses, lock operations, thread lifecycle, condition
// variable and semaphore operations — and drives the per-access state
// machine over the compressed shadow memory, the happens-before segment
// graph, the lockset universe and the lock acquisition order graph.
//
// # Serialization contract
//
// The engine is a single-threaded analysis core with no internal locking.
// The host must deliver events strictly serialized: one event fully
// processed before the next begins, even though the analyzed threads run
// concurrently. Nothing in the engine blocks; every operation is a finite
// in-memory computation.
//
// # Error model
//
// Client misbehavior (races, lock usage errors, lock order violations) is
// delivered to the configured Reporter and absorbed: the engine always
// reaches a valid next state and keeps analyzing. Violations of the
// engine's own invariants panic with diagnostic context; continuing past
// one would risk reporting false races or missing true ones.
package engine
