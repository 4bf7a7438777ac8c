// Package hb implements the happens-before side of the race detection engine:
// sparse vector timestamps, the append-only segment store, and the interned
// segment-set universe.
//
// # Segments
//
// A Segment covers one thread's instruction stream between two synchronization
// events. Segments form a DAG through two predecessor links:
//
//   - Prev: the same thread's immediately preceding segment
//   - Other: an optional cross-thread predecessor (thread create/join,
//     condition-variable signal/wait, semaphore post/wait)
//
// Segments are allocated from an arena and addressed by a dense SegmentID.
// They are never freed: shadow values elsewhere in memory may reference a
// segment indefinitely, and a stable index is what makes that safe without
// reference counting.
//
// # Vector timestamps
//
// Every segment carries a VTS fixed at creation time. The happens-before
// relation between two segments is decided entirely by comparing their
// timestamps under the component-wise partial order. Because a segment's VTS
// never changes, happens-before answers are stable and the memo cache in
// SegmentStore never needs invalidation.
//
// # Segment sets
//
// A SegSetID names either a single segment (encoded inline, the common case)
// or an interned set of mutually-unordered segments. The engine maintains the
// antichain invariant; this package provides the interning and the inline
// singleton encoding that keeps the common case allocation-free.
package hb
