// Copyright 2026 The WhiteDB Authors.
//
// Use of this software is governed by the license included in the /LICENSE
// file.

package storage

import "github.com/marksweiss/whitedb/pkg/base"

// Segment header layout. The header occupies the first padding cell of the
// segment; every field is one machine word at a fixed offset from the
// segment base. The layout is append-only: new fields may claim the spare
// words at the end of the cell, existing offsets never move.
const (
	// offMark holds headerMark in a valid segment.
	offMark = 0
	// offVersion holds headerVersion.
	offVersion = 8
	// offSegSize holds the total segment size in bytes.
	offSegSize = 16
	// offLockProto holds the base.LockProto chosen at creation.
	offLockProto = 24

	// The lock area. globalLock is an offset to the (padded) lock word of
	// the global-flag protocol; the remaining fields are the control words
	// of the queued protocol and live in the header itself.
	offGlobalLock  = 32
	OffTail        = 40
	OffNextWriter  = 48
	OffReaderCount = 56
	offNodePool    = 64
	offMaxNodes    = 72
	OffFreelist    = 80

	// Waiter tuning, fixed at creation so all attached processes spin the
	// same way.
	offSpinCount  = 88
	offSleepNanos = 96

	headerBytes = base.SynVarPadding

	// globalLockCell is where the global lock word lives: its own padding
	// cell directly after the header, so spinning readers and writers do
	// not share a cache line with header fields.
	globalLockCell = headerBytes

	// nodePoolStart is the first queue node cell.
	nodePoolStart = globalLockCell + base.SynVarPadding
)

const (
	headerMark    = 0x7764627365673031 // "wdbseg01"
	headerVersion = 1
)

// SegmentSizeFor returns the minimum segment size for a node pool of the
// given capacity, rounded up to a padding cell.
func SegmentSizeFor(maxNodes uint64) uint64 {
	return nodePoolStart + maxNodes*base.SynVarPadding
}
