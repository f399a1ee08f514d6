// Copyright 2026 The WhiteDB Authors.
//
// Use of this software is governed by the license included in the /LICENSE
// file.

package dblock

import "github.com/marksweiss/whitedb/pkg/storage"

// The global-flag protocol encodes the whole lock in one shared word: bit
// 0 is the writer-active flag, the remaining bits count readers in steps
// of rcIncr. It is a reader-preference lock (Mellor-Crummey & Scott '92):
// a writer only enters on a full-word zero, so a steady stream of readers
// can starve writers indefinitely. That trade-off is inherited from the
// original implementation on purpose; the queued protocol is the fair one.
const (
	waflag = 0x1
	rcIncr = 0x2
)

// globalToken is the token returned for every successful global-flag
// acquisition. The protocol keeps no per-requester state, so there is
// nothing to name.
const globalToken Token = 1

func globalStartWrite(db *storage.DB) Token {
	seg := db.Seg()
	gl := db.GlobalLockWord()

	// Uncontended path: one CAS.
	if seg.CompareAndSwap(gl, 0, waflag) {
		return globalToken
	}

	metrics.slowPath.WithLabelValues(opWrite).Inc()
	b := newBackoff(db, db.SleepIncrement())
	for {
		for i := 0; i < b.spinCount; i++ {
			cpuRelax()
			// Probe before the CAS so contending writers do not keep
			// the line in exclusive state while a holder is active.
			if seg.Load(gl) == 0 && seg.CompareAndSwap(gl, 0, waflag) {
				return globalToken
			}
		}
		b.sleep()
	}
}

func globalEndWrite(db *storage.DB) {
	db.Seg().And(db.GlobalLockWord(), ^uint64(waflag))
}

func globalStartRead(db *storage.DB) Token {
	seg := db.Seg()
	gl := db.GlobalLockWord()

	// Announce the reader before testing for writers; the increment is
	// what blocks new writers from entering.
	seg.FetchAdd(gl, rcIncr)
	if seg.Load(gl)&waflag == 0 {
		return globalToken
	}

	metrics.slowPath.WithLabelValues(opRead).Inc()
	b := newBackoff(db, db.SleepIncrement())
	for {
		for i := 0; i < b.spinCount; i++ {
			cpuRelax()
			if seg.Load(gl)&waflag == 0 {
				return globalToken
			}
		}
		b.sleep()
	}
}

func globalEndRead(db *storage.DB) {
	db.Seg().FetchAdd(db.GlobalLockWord(), -rcIncr)
}
