// Copyright 2026 The WhiteDB Authors.
//
// Use of this software is governed by the license included in the /LICENSE
// file.

// Package dblock implements the database-wide shared/exclusive lock that
// serializes write transactions against each other and against readers
// while letting readers run in parallel.
//
// Two interchangeable algorithms are provided, selected per database at
// creation time (see base.LockProto):
//
//   - a reader-preference lock over a single shared word, and
//   - a fair, locally-spinning queued lock whose per-request nodes are
//     recycled through a reference-counted lock-free freelist,
//
// both after Mellor-Crummey & Scott '92. All lock state lives inside the
// shared memory segment and is manipulated exclusively through atomic
// operations, so any mix of goroutines and attached processes may contend.
//
// The lock provides mutual exclusion only; record-level operations are not
// automatically isolated by it, and the API is non-reentrant. A holder
// that dies inside the critical section poisons the lock for everyone.
package dblock

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/marksweiss/whitedb/pkg/base"
	"github.com/marksweiss/whitedb/pkg/shm"
	"github.com/marksweiss/whitedb/pkg/storage"
	"github.com/marksweiss/whitedb/pkg/util/log"
)

// Token names a held lock. For the queued protocol it is the segment
// offset of the request's queue node and must be passed back, unmodified,
// to the matching release. For the global-flag protocol it is an opaque
// non-zero constant. A zero Token is never a valid hold.
type Token uint64

// ErrInvalidDB is returned when an operation is handed a handle that fails
// validation.
var ErrInvalidDB = errors.New("invalid database handle")

// Pool exhaustion repeats on every acquire attempt while the pool stays
// dry; rate limit the diagnostic so a hot caller cannot flood stderr.
var exhaustedEvery = log.Every(time.Second)

// InitLockArea threads the lock node pool onto the freelist and resets the
// queue words. Not safe for concurrent use; it runs once while the
// database is being created, before any other process attaches.
func InitLockArea(ctx context.Context, db *storage.DB) error {
	if !db.Check() {
		log.Errorf(ctx, "invalid database handle in InitLockArea")
		return ErrInvalidDB
	}
	seg := db.Seg()
	seg.Store(storage.OffTail, 0)
	seg.Store(storage.OffNextWriter, 0)
	seg.Store(storage.OffReaderCount, 0)
	initFreelist(db)
	return nil
}

// Bootstrap creates a database in seg and initializes its lock area.
func Bootstrap(ctx context.Context, seg *shm.Segment, cfg base.Config) (*storage.DB, error) {
	db, err := storage.Create(seg, cfg)
	if err != nil {
		return nil, err
	}
	if err := InitLockArea(ctx, db); err != nil {
		return nil, err
	}
	return db, nil
}

// StartWrite acquires the database-level exclusive lock, blocking until
// every earlier holder has released. On failure no lock is held and the
// matching EndWrite must not be called.
func StartWrite(ctx context.Context, db *storage.DB) (Token, error) {
	if !db.Check() {
		log.Errorf(ctx, "invalid database handle in StartWrite")
		return 0, ErrInvalidDB
	}
	var tok Token
	if db.LockProto() == base.LockProtoQueued {
		var err error
		if tok, err = queuedStartWrite(db); err != nil {
			metrics.allocFailed.Inc()
			if exhaustedEvery.ShouldLog() {
				log.Errorf(ctx, "failed to allocate lock node in StartWrite: %v", err)
			}
			return 0, err
		}
	} else {
		tok = globalStartWrite(db)
	}
	metrics.acquisitions.WithLabelValues(opWrite).Inc()
	return tok, nil
}

// EndWrite releases the exclusive lock named by tok.
func EndWrite(ctx context.Context, db *storage.DB, tok Token) error {
	if !db.Check() {
		log.Errorf(ctx, "invalid database handle in EndWrite")
		return ErrInvalidDB
	}
	if db.LockProto() == base.LockProtoQueued {
		if !db.InNodePool(uint64(tok)) {
			return errors.AssertionFailedf("EndWrite: token %d does not name a lock node", tok)
		}
		queuedEndWrite(db, uint64(tok))
		return nil
	}
	if tok == 0 {
		return errors.AssertionFailedf("EndWrite: zero token")
	}
	globalEndWrite(db)
	return nil
}

// StartRead acquires a database-level shared hold, blocking while a writer
// is active. On failure no lock is held and the matching EndRead must not
// be called.
func StartRead(ctx context.Context, db *storage.DB) (Token, error) {
	if !db.Check() {
		log.Errorf(ctx, "invalid database handle in StartRead")
		return 0, ErrInvalidDB
	}
	var tok Token
	if db.LockProto() == base.LockProtoQueued {
		var err error
		if tok, err = queuedStartRead(db); err != nil {
			metrics.allocFailed.Inc()
			if exhaustedEvery.ShouldLog() {
				log.Errorf(ctx, "failed to allocate lock node in StartRead: %v", err)
			}
			return 0, err
		}
	} else {
		tok = globalStartRead(db)
	}
	metrics.acquisitions.WithLabelValues(opRead).Inc()
	return tok, nil
}

// EndRead releases the shared hold named by tok.
func EndRead(ctx context.Context, db *storage.DB, tok Token) error {
	if !db.Check() {
		log.Errorf(ctx, "invalid database handle in EndRead")
		return ErrInvalidDB
	}
	if db.LockProto() == base.LockProtoQueued {
		if !db.InNodePool(uint64(tok)) {
			return errors.AssertionFailedf("EndRead: token %d does not name a lock node", tok)
		}
		queuedEndRead(db, uint64(tok))
		return nil
	}
	if tok == 0 {
		return errors.AssertionFailedf("EndRead: zero token")
	}
	globalEndRead(db)
	return nil
}
