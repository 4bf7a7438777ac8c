package race_test

import (
	"fmt"

	"github.com/runt18/data-race-test-sub000/race"
)

// Two threads write the same word with no ordering and no common lock: the
// detector reports exactly one race and stays silent on the repeat access.
func Example() {
	rep := &race.Collector{}
	cfg := race.DefaultConfig()
	cfg.Reporter = rep
	d := race.New(cfg)

	d.OnThreadCreate(race.RootThread, 2)
	d.OnWrite(race.RootThread, 0x1000, 4)
	d.OnWrite(2, 0x1000, 4)
	d.OnWrite(2, 0x1000, 4)

	fmt.Println("races:", len(rep.Races))
	// Output: races: 1
}

// Lock discipline keeps the same interleaving silent.
func Example_disciplined() {
	rep := &race.Collector{}
	cfg := race.DefaultConfig()
	cfg.Reporter = rep
	d := race.New(cfg)

	d.OnThreadCreate(race.RootThread, 2)
	for _, thr := range []race.ThreadID{race.RootThread, 2} {
		d.OnLockAcquire(thr, 0x2000, race.NonRecursive, true)
		d.OnWrite(thr, 0x1000, 4)
		d.OnLockRelease(thr, 0x2000)
	}

	fmt.Println("races:", len(rep.Races))
	// Output: races: 0
}

// Acquiring two locks in both orders is flagged before any deadlock occurs.
func Example_lockOrder() {
	rep := &race.Collector{}
	cfg := race.DefaultConfig()
	cfg.Reporter = rep
	d := race.New(cfg)

	d.OnLockAcquire(race.RootThread, 0xa000, race.NonRecursive, true)
	d.OnLockAcquire(race.RootThread, 0xb000, race.NonRecursive, true)
	d.OnLockRelease(race.RootThread, 0xb000)
	d.OnLockRelease(race.RootThread, 0xa000)

	d.OnLockAcquire(race.RootThread, 0xb000, race.NonRecursive, true)
	d.OnLockAcquire(race.RootThread, 0xa000, race.NonRecursive, true)

	fmt.Println("order violations:", len(rep.OrderViolations))
	// Output: order violations: 1
}
