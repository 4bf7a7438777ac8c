package race

import (
	"github.com/runt18/data-race-test-sub000/internal/engine"
	"github.com/runt18/data-race-test-sub000/internal/hb"
	"github.com/runt18/data-race-test-sub000/internal/locks"
)

// Detector is one analysis instance. See the package comment for the
// serialization contract. All event methods (OnRead, OnWrite, OnRangeNew,
// OnRangeInaccessible, OnThreadCreate, OnThreadExit, OnThreadJoinComplete,
// OnLockAcquire, OnLockRelease, OnLockDestroy, OnCVSignal,
// OnCVWaitComplete, OnSemPost, OnSemWaitComplete, OnAtomicBegin,
// OnAtomicEnd, OnSegmentRefresh, SetThreadPC, SetIgnoreReads) live on it.
type Detector = engine.Engine

// New returns a detector with a live root thread.
func New(cfg Config) *Detector {
	return engine.New(cfg)
}

// Config and DefaultConfig configure a detector.
type Config = engine.Config

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return engine.DefaultConfig()
}

// ThreadID identifies one analyzed application thread.
type ThreadID = hb.ThreadID

// RootThread is the identity of the thread that exists at detector start.
const RootThread = engine.RootThread

// LockID names one observed lock object.
type LockID = locks.LockID

// LockKind classifies the client API a lock address is used through.
type LockKind = locks.Kind

// Lock kinds.
const (
	NonRecursive = locks.NonRecursive
	Recursive    = locks.Recursive
	ReadWrite    = locks.ReadWrite
)

// LockUsageError classifies illegal client lock usage.
type LockUsageError = locks.UsageError

// Reporter is the sink for analysis products; Collector is the collecting
// default implementation.
type (
	Reporter  = engine.Reporter
	Collector = engine.Collector
)

// Report types delivered to a Reporter.
type (
	RaceReport           = engine.RaceReport
	LockErrorReport      = engine.LockErrorReport
	OrderViolationReport = engine.OrderViolationReport
)

// Stats is a snapshot of a detector's counters.
type Stats = engine.Stats
