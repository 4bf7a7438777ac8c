// Package shmem implements the compressed per-byte shadow memory store.
//
// The store is a two-level structure with a small working cache in front:
//
//	address -> SecMap (8 KiB region) -> compressed 64-byte line
//	                                     ^
//	         direct-mapped cache of decompressed lines (the hot path)
//
// # Cache lines and trees
//
// A resident cache line is logically a binary tree over its 64 bytes: one
// 8-entry group ("tree") per 8 bytes, with a 16-bit descriptor recording
// which granularities (8/16/32/64-bit) currently hold independently-valid
// shadow values. A narrower access than the recorded granularity triggers a
// pulldown (the wide value is propagated down, splitting the descriptor); a
// full aligned write over finer values forces the descriptor back to the
// written granularity; adjacent equal children coalesce back up during
// normalisation.
//
// # Compression
//
// On eviction a line is normalised, flattened to its 64 per-byte values and
// stored back into its SecMap. If at most 4 distinct values cover the line
// it becomes a 4-entry dictionary plus 2-bit indices (10.7:1 against a naive
// per-byte store); otherwise it goes to the region's full-line overflow
// pool, grown by doubling. Dictionary entry 0 holding the reserved all-zero
// word marks the full representation, with entry 1 carrying the pool index;
// decoding the all-zero word through a live index is storage corruption and
// fails loudly.
//
// Region lookup runs through a 3-entry most-recently-used cache in front of
// an address-ordered B-tree: off the line-cache hot path, but still executed
// millions of times per run.
package shmem
