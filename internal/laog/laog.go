// Package laog maintains the lock acquisition order graph.
//
// Nodes are lock identities; an edge a -> b records that some thread once
// acquired b while already holding a. A cycle would mean two locks have been
// taken in both orders, which is a potential deadlock even if no deadlock
// occurred on this run. The engine checks for the inverted path before
// inserting new edges, so the graph itself stays acyclic.
//
// Each edge remembers the program contexts of the two acquisitions that
// first established it, for reporting.
package laog

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"

	"github.com/runt18/data-race-test-sub000/internal/locks"
)

// Edge carries the first-establishment evidence for one ordering edge.
type Edge struct {
	// SrcCtx is the context where the source lock was acquired (and then
	// held), DstCtx where the destination lock was acquired under it.
	SrcCtx uint64
	DstCtx uint64
}

// Graph is the acquisition-order graph. Not safe for concurrent use.
type Graph struct {
	succ map[locks.LockID]map[locks.LockID]Edge
	pred map[locks.LockID]map[locks.LockID]struct{}

	// visited is reused across PathExists calls.
	visited *bitset.BitSet
	stack   []locks.LockID
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		succ:    make(map[locks.LockID]map[locks.LockID]Edge),
		pred:    make(map[locks.LockID]map[locks.LockID]struct{}),
		visited: bitset.New(64),
	}
}

// AddEdge records src -> dst with its establishing contexts. The first
// establishment wins; re-adding an existing edge keeps the original
// evidence. Self-edges are ignored: re-acquisition order against itself is
// meaningless.
func (g *Graph) AddEdge(src, dst locks.LockID, srcCtx, dstCtx uint64) {
	if src == 0 || dst == 0 {
		fatalf("edge with invalid lock id %d -> %d", src, dst)
	}
	if src == dst {
		return
	}
	if _, ok := g.succ[src][dst]; ok {
		return
	}
	if g.succ[src] == nil {
		g.succ[src] = make(map[locks.LockID]Edge)
	}
	g.succ[src][dst] = Edge{SrcCtx: srcCtx, DstCtx: dstCtx}
	if g.pred[dst] == nil {
		g.pred[dst] = make(map[locks.LockID]struct{})
	}
	g.pred[dst][src] = struct{}{}
}

// FindEdge returns the evidence for src -> dst, if the edge exists.
func (g *Graph) FindEdge(src, dst locks.LockID) (Edge, bool) {
	e, ok := g.succ[src][dst]
	return e, ok
}

// PathExists reports whether any lock in dsts is reachable from src,
// returning the first one found. Used as the pre-insertion inversion check:
// a path dst ->* src means adding src -> dst would close a cycle.
func (g *Graph) PathExists(src locks.LockID, dsts []locks.LockID) (locks.LockID, bool) {
	if len(dsts) == 0 {
		return 0, false
	}
	targets := make(map[locks.LockID]struct{}, len(dsts))
	for _, d := range dsts {
		if d == src {
			return d, true
		}
		targets[d] = struct{}{}
	}
	g.visited.ClearAll()
	g.stack = append(g.stack[:0], src)
	g.visited.Set(uint(src))
	for len(g.stack) > 0 {
		n := g.stack[len(g.stack)-1]
		g.stack = g.stack[:len(g.stack)-1]
		for m := range g.succ[n] {
			if _, ok := targets[m]; ok {
				return m, true
			}
			if !g.visited.Test(uint(m)) {
				g.visited.Set(uint(m))
				g.stack = append(g.stack, m)
			}
		}
	}
	return 0, false
}

// RemoveLock splices lk out of the graph, bridging every predecessor to
// every successor so orderings established through lk survive its
// destruction. The bridge edges inherit the evidence of the incoming half.
func (g *Graph) RemoveLock(lk locks.LockID) {
	preds := g.pred[lk]
	succs := g.succ[lk]
	for p := range preds {
		inEdge := g.succ[p][lk]
		for s := range succs {
			if p == s {
				continue
			}
			if _, ok := g.succ[p][s]; !ok {
				g.AddEdge(p, s, inEdge.SrcCtx, inEdge.DstCtx)
			}
		}
	}
	for p := range preds {
		delete(g.succ[p], lk)
	}
	for s := range succs {
		delete(g.pred[s], lk)
	}
	delete(g.succ, lk)
	delete(g.pred, lk)
}

// EdgeCount returns the number of recorded ordering edges.
func (g *Graph) EdgeCount() int {
	n := 0
	for _, m := range g.succ {
		n += len(m)
	}
	return n
}

func fatalf(format string, args ...any) {
	panic("laog: internal invariant violated: " + fmt.Sprintf(format, args...))
}
