// Copyright 2026 The WhiteDB Authors.
//
// Use of this software is governed by the license included in the /LICENSE
// file.

package dblock

import "github.com/marksweiss/whitedb/pkg/shm"

// Lock request classes. Class "none" would be 0, which keeps the
// successor-hint arithmetic on state simple.
const (
	lockQRead  = 0x02
	lockQWrite = 0x04
)

// blockedBit is bit 0 of a node's state word. It is set by the allocator of
// the request and cleared exactly once, by the predecessor at handoff or by
// the requester itself when it acquires without waiting. The upper bits of
// state carry the successor's class, OR-ed in by the successor when it
// enqueues behind a still-blocked node.
const blockedBit = 0x1

// Queue node field offsets within a padding cell. A node on the freelist
// uses only refcount and nextCell; a node in the queue uses class, next and
// state. next and nextCell refer to other cells by segment offset, never by
// pointer, so the layout is identical in every process attached to the
// segment.
const (
	nodeClass    = 0
	nodeNext     = 8
	nodeState    = 16
	nodeRefcount = 24
	nodeNextCell = 32
)

// node is a process-local view of one queue node cell. It is passed by
// value; the shared state is entirely inside the segment.
type node struct {
	seg *shm.Segment
	off uint64
}

func (n node) class() uint64     { return n.seg.Load(n.off + nodeClass) }
func (n node) setClass(c uint64) { n.seg.Store(n.off+nodeClass, c) }

func (n node) next() uint64      { return n.seg.Load(n.off + nodeNext) }
func (n node) setNext(off uint64) { n.seg.Store(n.off+nodeNext, off) }

func (n node) state() uint64        { return n.seg.Load(n.off + nodeState) }
func (n node) setState(s uint64)    { n.seg.Store(n.off+nodeState, s) }
func (n node) orState(bits uint64)  { n.seg.Or(n.off+nodeState, bits) }
func (n node) andState(mask uint64) { n.seg.And(n.off+nodeState, mask) }
func (n node) casState(old, new uint64) bool {
	return n.seg.CompareAndSwap(n.off+nodeState, old, new)
}

func (n node) refcount() uint64 { return n.seg.Load(n.off + nodeRefcount) }
func (n node) refAdd(delta int64) uint64 {
	return n.seg.Add(n.off+nodeRefcount, delta)
}
func (n node) casRefcount(old, new uint64) bool {
	return n.seg.CompareAndSwap(n.off+nodeRefcount, old, new)
}
func (n node) storeRefcount(v uint64) { n.seg.Store(n.off+nodeRefcount, v) }

func (n node) nextCell() uint64      { return n.seg.Load(n.off + nodeNextCell) }
func (n node) setNextCell(off uint64) { n.seg.Store(n.off+nodeNextCell, off) }
