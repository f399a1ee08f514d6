// Copyright 2026 The WhiteDB Authors.
//
// Use of this software is governed by the license included in the /LICENSE
// file.

package dblock

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/marksweiss/whitedb/pkg/base"
	"github.com/marksweiss/whitedb/pkg/storage"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestFreelistInit(t *testing.T) {
	const maxNodes = 8
	db := newTestDB(t, base.LockProtoQueued, maxNodes)
	seg := db.Seg()

	seen := make(map[uint64]bool)
	for off := seg.Load(storage.OffFreelist); off != 0; off = (node{seg, off}).nextCell() {
		require.True(t, db.InNodePool(off), "freelist cell %d outside the pool", off)
		require.False(t, seen[off], "freelist cell %d chained twice", off)
		seen[off] = true
		require.Equal(t, uint64(1), (node{seg, off}).refcount())
	}
	require.Len(t, seen, maxNodes)
}

func TestAllocUntilExhaustion(t *testing.T) {
	const maxNodes = 4
	db := newTestDB(t, base.LockProtoQueued, maxNodes)
	seg := db.Seg()

	var got []uint64
	for i := 0; i < maxNodes; i++ {
		off, err := allocNode(db)
		require.NoError(t, err)
		require.True(t, db.InNodePool(off))
		// In use: claimed bit clear, one live reference.
		require.Equal(t, uint64(2), (node{seg, off}).refcount())
		got = append(got, off)
	}

	_, err := allocNode(db)
	require.ErrorIs(t, err, ErrNodePoolExhausted)

	for _, off := range got {
		freeNode(db, off)
	}
	require.Equal(t, maxNodes, freelistLen(db))

	// The pool is whole again: every node reallocates.
	for i := 0; i < maxNodes; i++ {
		_, err := allocNode(db)
		require.NoError(t, err)
	}
}

// Hammer alloc/free from many goroutines, then verify conservation: every
// node is back on the freelist exactly once with a quiescent refcount.
func TestAllocFreeConcurrent(t *testing.T) {
	const maxNodes = 16
	db := newTestDB(t, base.LockProtoQueued, maxNodes)
	seg := db.Seg()

	var g errgroup.Group
	for w := 0; w < 8; w++ {
		g.Go(func() error {
			held := make([]uint64, 0, 4)
			for i := 0; i < 500; i++ {
				off, err := allocNode(db)
				if err != nil {
					if !errors.Is(err, ErrNodePoolExhausted) {
						return err
					}
				} else {
					if rc := (node{seg, off}).refcount(); rc&1 != 0 {
						return errors.Newf("allocated node %d has claimed bit set (refcount %d)", off, rc)
					}
					held = append(held, off)
				}
				if len(held) == cap(held) || (err != nil && len(held) > 0) {
					for _, h := range held {
						freeNode(db, h)
					}
					held = held[:0]
				}
			}
			for _, h := range held {
				freeNode(db, h)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	require.Equal(t, maxNodes, freelistLen(db))
	for off := seg.Load(storage.OffFreelist); off != 0; off = (node{seg, off}).nextCell() {
		require.Equal(t, uint64(1), (node{seg, off}).refcount())
	}
}

// derefLink pins the referent against recycling: while the pin is held the
// node cannot complete its trip back to the freelist.
func TestDerefLinkPinsNode(t *testing.T) {
	db := newTestDB(t, base.LockProtoQueued, 4)
	seg := db.Seg()

	a, err := allocNode(db)
	require.NoError(t, err)
	b, err := allocNode(db)
	require.NoError(t, err)

	// Publish b through a's next field and pin it through the link.
	(node{seg, a}).setNext(b)
	pinned := derefLink(db, a+nodeNext)
	require.Equal(t, b, pinned)
	require.Equal(t, uint64(4), (node{seg, b}).refcount())

	// The owner's free drops its reference; the pin keeps b off the
	// freelist.
	freeNode(db, b)
	require.Equal(t, uint64(2), (node{seg, b}).refcount())
	before := freelistLen(db)

	// Releasing the pin completes the free.
	freeNode(db, b)
	require.Equal(t, before+1, freelistLen(db))
	require.Equal(t, uint64(1), (node{seg, b}).refcount())

	freeNode(db, a)
}

func TestDerefLinkZero(t *testing.T) {
	db := newTestDB(t, base.LockProtoQueued, 4)
	require.Zero(t, derefLink(db, storage.OffTail))
}
