// Copyright 2026 The WhiteDB Authors.
//
// Use of this software is governed by the license included in the /LICENSE
// file.

package dblock

import (
	"runtime"
	"time"
	_ "unsafe" // for go:linkname

	"github.com/marksweiss/whitedb/pkg/storage"
)

// cpuRelax executes a short PAUSE burst. It keeps the spinning CPU off the
// bus between probes of a contended word without giving up the processor.
//
// nolint:all
//
//go:linkname cpuRelax sync.runtime_doSpin
func cpuRelax()

// backoff implements the two-level wait of the lock protocols: SpinCount
// relaxed probes, then a sleep that grows by one increment per outer
// round. The increment is chosen by the caller: hundreds of microseconds
// for waiters probing a shared word, a bare deschedule for waiters
// spinning on a private one.
type backoff struct {
	spinCount int
	incr      time.Duration
	ts        time.Duration
}

func newBackoff(db *storage.DB, incr time.Duration) backoff {
	return backoff{spinCount: db.SpinCount(), incr: incr, ts: incr}
}

func (b *backoff) sleep() {
	time.Sleep(b.ts)
	b.ts += b.incr
}

// awaitNext waits for a successor that has already swapped itself into the
// queue tail to publish its offset into n's next field. The publication is
// imminent by construction, so this never sleeps; it yields the processor
// after a burst of relaxed probes to avoid stalling the publisher on a
// loaded machine.
func awaitNext(n node, spinCount int) uint64 {
	for i := 0; ; i++ {
		if nx := n.next(); nx != 0 {
			return nx
		}
		cpuRelax()
		if i >= spinCount {
			runtime.Gosched()
			i = 0
		}
	}
}
