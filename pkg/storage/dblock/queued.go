// Copyright 2026 The WhiteDB Authors.
//
// Use of this software is governed by the license included in the /LICENSE
// file.

package dblock

import (
	"github.com/marksweiss/whitedb/pkg/base"
	"github.com/marksweiss/whitedb/pkg/storage"
)

// The queued protocol (Mellor-Crummey & Scott '92) gives each request its
// own node and FIFO order by linearizing on an atomic swap of the queue
// tail. Waiters spin on the blocked bit of their own node, so contention
// never concentrates on a shared word. Readers coordinate additionally
// through readerCount: a contiguous run of queued readers is unblocked as
// a chain and executes in parallel, and the reader that decrements the
// count to zero hands the lock to the writer parked in nextWriter.
//
// Queue linkage invariant: a successor first swaps itself into tail, then
// announces its class by OR-ing it into the predecessor's state, and only
// then publishes its offset into the predecessor's next. A releasing node
// that loses the tail CAS therefore busy-waits briefly for next to appear;
// the publication is already in flight.

// queuedStartWrite acquires the exclusive lock. The returned token is the
// segment offset of the request's queue node.
func queuedStartWrite(db *storage.DB) (Token, error) {
	lock, err := allocNode(db)
	if err != nil {
		return 0, err
	}
	seg := db.Seg()
	n := node{seg, lock}

	n.setClass(lockQWrite)
	n.setNext(0)
	n.setState(blockedBit)

	prev := seg.Swap(storage.OffTail, lock)

	if prev == 0 {
		// Empty queue. That does not mean no active readers: a departed
		// reader run may have cut the queue while still inside the
		// critical section, leaving its presence only in readerCount.
		// Park ourselves as the next writer, then claim the lock iff no
		// readers exist and no reader's release beat us to the handoff.
		seg.Store(storage.OffNextWriter, lock)
		if seg.Load(storage.OffReaderCount) == 0 &&
			seg.Swap(storage.OffNextWriter, 0) == lock {
			n.andState(^uint64(blockedBit))
		}
	} else {
		// Predecessors must all complete first. Announce our class
		// before linking in, so the predecessor's release knows to
		// unblock a writer rather than count a reader.
		p := node{seg, prev}
		p.orState(lockQWrite)
		p.setNext(lock)
	}

	if n.state()&blockedBit != 0 {
		metrics.slowPath.WithLabelValues(opWrite).Inc()
		spinBlocked(db, n)
	}
	return Token(lock), nil
}

// queuedEndWrite releases the exclusive lock held by the node named in the
// token and hands the critical section to the successor, if one exists.
func queuedEndWrite(db *storage.DB, lock uint64) {
	seg := db.Seg()
	n := node{seg, lock}

	// A successor exists if next is already linked, or if the tail CAS
	// fails because someone swapped themselves behind us. In the latter
	// case the successor's link write is imminent.
	if n.next() != 0 || !seg.CompareAndSwap(storage.OffTail, lock, 0) {
		nx := node{seg, awaitNext(n, db.SpinCount())}
		if nx.class()&lockQRead != 0 {
			// Readers behind a releasing writer are counted on their
			// behalf before they are unblocked.
			seg.Add(storage.OffReaderCount, 1)
		}
		nx.andState(^uint64(blockedBit))
	}

	freeNode(db, lock)
}

// queuedStartRead acquires a shared hold. The returned token is the
// segment offset of the request's queue node.
func queuedStartRead(db *storage.DB) (Token, error) {
	lock, err := allocNode(db)
	if err != nil {
		return 0, err
	}
	seg := db.Seg()
	n := node{seg, lock}

	n.setClass(lockQRead)
	n.setNext(0)
	n.setState(blockedBit)

	prev := seg.Swap(storage.OffTail, lock)

	if prev == 0 {
		// Empty queue: count ourselves in and run.
		seg.Add(storage.OffReaderCount, 1)
		n.andState(^uint64(blockedBit))
	} else {
		p := node{seg, prev}

		// If the predecessor is a writer we must wait for it. If it is
		// a reader that is itself still blocked, the CAS tags us as its
		// reader successor while it is parked; it will count us in and
		// unblock us as part of its own wakeup. Only a predecessor that
		// is a running reader lets us enter immediately.
		if p.class()&lockQWrite != 0 ||
			p.casState(blockedBit, blockedBit|lockQRead) {
			p.setNext(lock)
			if n.state()&blockedBit != 0 {
				metrics.slowPath.WithLabelValues(opRead).Inc()
				spinBlocked(db, n)
			}
		} else {
			seg.Add(storage.OffReaderCount, 1)
			p.setNext(lock)
			n.andState(^uint64(blockedBit))
		}
	}

	// If a reader enqueued behind us while we were blocked, it is parked
	// waiting for us: count it in and unblock it. Each reader in a
	// contiguous run wakes the next, so the whole run enters in parallel.
	if n.state()&lockQRead != 0 {
		nx := node{seg, awaitNext(n, db.SpinCount())}
		seg.Add(storage.OffReaderCount, 1)
		nx.andState(^uint64(blockedBit))
	}

	return Token(lock), nil
}

// queuedEndRead releases a shared hold.
func queuedEndRead(db *storage.DB, lock uint64) {
	seg := db.Seg()
	n := node{seg, lock}

	// With fair queueing a reader's successor can only be a writer (a
	// successor reader would have been unblocked already and cut ahead
	// through readerCount). If we are the last node, reset the queue to
	// empty: live readers remain accounted for in readerCount, so the
	// rest of the queue contents behind a departing reader run is
	// irrelevant to future requests.
	if n.next() != 0 || !seg.CompareAndSwap(storage.OffTail, lock, 0) {
		nx := awaitNext(n, db.SpinCount())
		if n.state()&lockQWrite != 0 {
			seg.Store(storage.OffNextWriter, nx)
		}
	}

	if seg.FetchAdd(storage.OffReaderCount, -1) == 1 {
		// We were the last reader. If a writer is parked, hand off.
		if w := seg.Swap(storage.OffNextWriter, 0); w != 0 {
			wn := node{seg, w}
			wn.andState(^uint64(blockedBit))
		}
	}

	freeNode(db, lock)
}

// spinBlocked parks the caller on its own node until the predecessor
// clears the blocked bit. The node is a private cache line, so the spin
// stays local; the backoff sleep exists only to deschedule the goroutine
// under oversubscription.
func spinBlocked(db *storage.DB, n node) {
	b := newBackoff(db, base.DefaultQueuedSleep)
	for {
		for i := 0; i < b.spinCount; i++ {
			cpuRelax()
			if n.state()&blockedBit == 0 {
				return
			}
		}
		b.sleep()
	}
}
