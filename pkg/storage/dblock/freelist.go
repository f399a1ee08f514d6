// Copyright 2026 The WhiteDB Authors.
//
// Use of this software is governed by the license included in the /LICENSE
// file.

package dblock

import (
	"github.com/cockroachdb/errors"
	"github.com/marksweiss/whitedb/pkg/base"
	"github.com/marksweiss/whitedb/pkg/storage"
)

// The queued protocol allocates one node per in-flight lock request. The
// nodes live in a fixed pool inside the segment and are recycled through a
// lock-free Treiber stack whose links are the nodes' nextCell fields.
// Reclamation is reference counted (Valois '95): the low bit of refcount
// marks a node claimed for the freelist push, so an even refcount means
// only stable references remain. A node is pushed exactly once, by whoever
// drops the count to zero.

// ErrNodePoolExhausted is returned by the acquire operations of the queued
// protocol when every node in the pool is claimed by an in-flight request.
var ErrNodePoolExhausted = errors.New("lock node pool exhausted")

// initFreelist threads every pool cell onto the freelist. Not safe for
// concurrent use; runs once during database creation.
func initFreelist(db *storage.DB) {
	seg := db.Seg()
	pool := db.NodePool()
	end := pool + db.MaxLockNodes()*base.SynVarPadding

	for off := pool; off < end; off += base.SynVarPadding {
		n := node{seg, off}
		n.storeRefcount(1)
		if next := off + base.SynVarPadding; next < end {
			n.setNextCell(next)
		} else {
			n.setNextCell(0)
		}
	}
	seg.Store(storage.OffFreelist, pool)
}

// allocNode pops a node off the freelist. The pop pins the candidate by
// reference count before the CAS so that a concurrent free cannot recycle
// the cell while its nextCell is being read.
func allocNode(db *storage.DB) (uint64, error) {
	seg := db.Seg()
	for {
		t := seg.Load(storage.OffFreelist)
		if t == 0 {
			return 0, ErrNodePoolExhausted
		}
		n := node{seg, t}
		n.refAdd(2)
		if seg.CompareAndSwap(storage.OffFreelist, t, n.nextCell()) {
			// The node left the freelist; drop the claimed bit that
			// the freeing side set when it pushed.
			n.refAdd(-1)
			return t, nil
		}
		freeNode(db, t)
	}
}

// freeNode drops one reference to the node at off and, if that was the
// last one, pushes the node back onto the freelist. The CAS from 0 to 1
// elects the single pusher; a loser still holds no reference and leaves
// the push to the winner.
func freeNode(db *storage.DB, off uint64) {
	seg := db.Seg()
	n := node{seg, off}

	n.refAdd(-2)
	if !n.casRefcount(0, 1) {
		return
	}
	for {
		t := seg.Load(storage.OffFreelist)
		n.setNextCell(t)
		if seg.CompareAndSwap(storage.OffFreelist, t, off) {
			return
		}
	}
}

// derefLink reads a link word that may concurrently be retargeted while
// its referent is freed. The returned offset, if non-zero, is pinned: the
// caller owns one reference and must release it with freeNode. The hot
// paths of the protocol do not need this (successor nodes cannot be freed
// while their predecessor still holds the queue), but it is the safe way
// for out-of-band readers of queue state to walk node links.
func derefLink(db *storage.DB, linkOff uint64) uint64 {
	seg := db.Seg()
	for {
		t := seg.Load(linkOff)
		if t == 0 {
			return 0
		}
		n := node{seg, t}
		n.refAdd(2)
		if seg.Load(linkOff) == t {
			return t
		}
		freeNode(db, t)
	}
}
