// Copyright 2026 The WhiteDB Authors.
//
// Use of this software is governed by the license included in the /LICENSE
// file.

package dblock

import (
	"github.com/marksweiss/whitedb/pkg/base"
	"github.com/marksweiss/whitedb/pkg/storage"
)

// Stats is a point-in-time snapshot of the lock area, for inspection
// tooling. The fields are read individually, not as one atomic picture.
type Stats struct {
	Proto       base.LockProto
	GlobalWord  uint64
	ReaderCount uint64
	QueueTail   uint64
	NextWriter  uint64
	MaxNodes    uint64
	FreeNodes   uint64
}

// ReadStats snapshots the lock area. The freelist walk is only exact on a
// quiescent database; under concurrent traffic the count is approximate.
func ReadStats(db *storage.DB) (Stats, error) {
	if !db.Check() {
		return Stats{}, ErrInvalidDB
	}
	seg := db.Seg()
	st := Stats{
		Proto:       db.LockProto(),
		GlobalWord:  seg.Load(db.GlobalLockWord()),
		ReaderCount: seg.Load(storage.OffReaderCount),
		QueueTail:   seg.Load(storage.OffTail),
		NextWriter:  seg.Load(storage.OffNextWriter),
		MaxNodes:    db.MaxLockNodes(),
	}
	// Bound the walk so a corrupt chain cannot wedge the caller.
	off := seg.Load(storage.OffFreelist)
	for i := uint64(0); off != 0 && i < st.MaxNodes; i++ {
		st.FreeNodes++
		off = (node{seg, off}).nextCell()
	}
	return st, nil
}
