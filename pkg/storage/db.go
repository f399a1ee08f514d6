// Copyright 2026 The WhiteDB Authors.
//
// Use of this software is governed by the license included in the /LICENSE
// file.

// Package storage defines the shared memory segment header and the database
// handle threaded through every public operation. The handle is a thin,
// process-local view of the segment; all durable state lives inside the
// segment itself so any number of processes can attach.
package storage

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/marksweiss/whitedb/pkg/base"
	"github.com/marksweiss/whitedb/pkg/shm"
)

// DB is a handle to an attached database segment.
type DB struct {
	seg *shm.Segment
}

// Create initializes a fresh segment with the given configuration and
// returns a handle to it. The segment must be zero-filled (both segment
// constructors guarantee this). The lock node freelist is NOT threaded
// here; dblock.InitLockArea must run before the queued protocol is used,
// or use dblock.Bootstrap which does both.
func Create(seg *shm.Segment, cfg base.Config) (*DB, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if need := SegmentSizeFor(cfg.MaxLockNodes); seg.Size() < need {
		return nil, errors.Newf(
			"segment of %d bytes cannot hold %d lock nodes (need %d)",
			seg.Size(), cfg.MaxLockNodes, need)
	}
	if cfg.SegmentSize != seg.Size() {
		return nil, errors.Newf(
			"configured segment size %d does not match segment of %d bytes",
			cfg.SegmentSize, seg.Size())
	}

	seg.Store(offVersion, headerVersion)
	seg.Store(offSegSize, seg.Size())
	seg.Store(offLockProto, uint64(cfg.LockProto))
	seg.Store(offGlobalLock, globalLockCell)
	seg.Store(OffTail, 0)
	seg.Store(OffNextWriter, 0)
	seg.Store(OffReaderCount, 0)
	seg.Store(offNodePool, nodePoolStart)
	seg.Store(offMaxNodes, cfg.MaxLockNodes)
	seg.Store(OffFreelist, 0)
	seg.Store(offSpinCount, uint64(cfg.SpinCount))
	seg.Store(offSleepNanos, uint64(cfg.SleepIncrement.Nanoseconds()))
	seg.Store(globalLockCell, 0)
	// The mark goes last so a partially initialized segment never passes
	// Attach.
	seg.Store(offMark, headerMark)
	return &DB{seg: seg}, nil
}

// Attach validates an existing segment and returns a handle to it.
func Attach(seg *shm.Segment) (*DB, error) {
	if seg.Size() < headerBytes {
		return nil, errors.Newf("segment of %d bytes is too small for a header", seg.Size())
	}
	if m := seg.Load(offMark); m != headerMark {
		return nil, errors.Newf("segment mark %#x does not match %#x", m, uint64(headerMark))
	}
	if v := seg.Load(offVersion); v != headerVersion {
		return nil, errors.Newf("segment version %d, this build reads version %d", v, headerVersion)
	}
	if sz := seg.Load(offSegSize); sz != seg.Size() {
		return nil, errors.Newf("header claims %d bytes, segment has %d", sz, seg.Size())
	}
	return &DB{seg: seg}, nil
}

// Check reports whether db is a usable handle on a valid segment. Every
// public lock operation gates on it before touching shared state.
func (db *DB) Check() bool {
	return db != nil && db.seg != nil && db.seg.Size() >= headerBytes &&
		db.seg.Load(offMark) == headerMark
}

// Seg exposes the underlying segment for offset-addressed atomic access.
func (db *DB) Seg() *shm.Segment {
	return db.seg
}

// LockProto returns the lock algorithm recorded at creation.
func (db *DB) LockProto() base.LockProto {
	return base.LockProto(db.seg.Load(offLockProto))
}

// GlobalLockWord returns the offset of the global-flag lock word.
func (db *DB) GlobalLockWord() uint64 {
	return db.seg.Load(offGlobalLock)
}

// NodePool returns the offset of the first lock node cell.
func (db *DB) NodePool() uint64 {
	return db.seg.Load(offNodePool)
}

// MaxLockNodes returns the node pool capacity.
func (db *DB) MaxLockNodes() uint64 {
	return db.seg.Load(offMaxNodes)
}

// SpinCount returns the per-burst spin iteration count for waiters.
func (db *DB) SpinCount() int {
	return int(db.seg.Load(offSpinCount))
}

// SleepIncrement returns the initial (and per-round additional) backoff
// sleep for global-flag waiters. Queued waiters use base.DefaultQueuedSleep.
func (db *DB) SleepIncrement() time.Duration {
	return time.Duration(db.seg.Load(offSleepNanos))
}

// InNodePool reports whether off names a cell of the lock node pool.
func (db *DB) InNodePool(off uint64) bool {
	pool := db.NodePool()
	end := pool + db.MaxLockNodes()*base.SynVarPadding
	return off >= pool && off < end && (off-pool)%base.SynVarPadding == 0
}
