// Copyright 2026 The WhiteDB Authors.
//
// Use of this software is governed by the license included in the /LICENSE
// file.

package base

import (
	"time"

	"github.com/cockroachdb/errors"
)

// LockProto identifies the database-wide lock algorithm recorded in the
// segment header at creation time. Every process attaching to the segment
// must honor the recorded protocol; the two are not wire-compatible.
type LockProto uint64

const (
	// LockProtoGlobal is the reader-preference lock built on a single
	// shared word (Mellor-Crummey & Scott '92).
	LockProtoGlobal LockProto = 1
	// LockProtoQueued is the locally-spinning queued lock with a
	// reference-counted node freelist (Mellor-Crummey & Scott '92,
	// reclamation after Valois '95).
	LockProtoQueued LockProto = 2
)

func (p LockProto) String() string {
	switch p {
	case LockProtoGlobal:
		return "global"
	case LockProtoQueued:
		return "queued"
	default:
		return "unknown"
	}
}

// ParseLockProto converts a protocol name from the CLI or a config file.
func ParseLockProto(s string) (LockProto, error) {
	switch s {
	case "global":
		return LockProtoGlobal, nil
	case "queued":
		return LockProtoQueued, nil
	}
	return 0, errors.Newf("unknown lock protocol %q (want global or queued)", s)
}

const (
	// SynVarPadding is the size in bytes of one synchronization variable
	// cell. Lock queue nodes and the global lock word each occupy a full
	// cell so that spinning on one never invalidates another's cache line.
	SynVarPadding = 128

	// DefaultSpinCount is how many relaxed spins a waiter performs before
	// yielding the CPU. Short bursts behave better under the Go scheduler,
	// mirroring the short-spin tuning used on Linux.
	DefaultSpinCount = 500

	// DefaultSleepIncrement is the initial backoff sleep for the
	// global-flag protocol. Each outer spin round adds one more increment.
	DefaultSleepIncrement = 500 * time.Microsecond

	// DefaultQueuedSleep is the backoff sleep for the queued protocol.
	// Queued waiters spin on a private word, so the sleep exists only to
	// deschedule the goroutine, not to reduce bus traffic.
	DefaultQueuedSleep = time.Microsecond

	// DefaultMaxLockNodes is the default capacity of the lock node pool.
	DefaultMaxLockNodes = 64

	// MinSegmentSize is the smallest segment size accepted. It is larger
	// than the header, the global lock cell and a single-node pool need.
	MinSegmentSize = 4096
)

// Config carries the creation-time parameters of a database segment.
type Config struct {
	// SegmentSize is the total size of the shared memory segment in bytes.
	SegmentSize uint64
	// MaxLockNodes is the capacity of the queued-lock node pool.
	MaxLockNodes uint64
	// LockProto selects the lock algorithm. Zero means DefaultLockProto.
	LockProto LockProto
	// SpinCount overrides DefaultSpinCount when non-zero.
	SpinCount int
	// SleepIncrement overrides DefaultSleepIncrement when non-zero.
	SleepIncrement time.Duration
}

// DefaultConfig returns the configuration used when no overrides are given.
func DefaultConfig() Config {
	return Config{
		SegmentSize:    1 << 20,
		MaxLockNodes:   DefaultMaxLockNodes,
		LockProto:      DefaultLockProto,
		SpinCount:      DefaultSpinCount,
		SleepIncrement: DefaultSleepIncrement,
	}
}

// Validate checks the configuration for values the segment layout cannot
// represent.
func (c *Config) Validate() error {
	if c.SegmentSize < MinSegmentSize {
		return errors.Newf("segment size %d below minimum %d", c.SegmentSize, MinSegmentSize)
	}
	if c.SegmentSize%SynVarPadding != 0 {
		return errors.Newf("segment size %d not a multiple of %d", c.SegmentSize, SynVarPadding)
	}
	if c.MaxLockNodes == 0 {
		return errors.New("lock node pool must hold at least one node")
	}
	switch c.LockProto {
	case 0, LockProtoGlobal, LockProtoQueued:
	default:
		return errors.Newf("invalid lock protocol %d", c.LockProto)
	}
	if c.SpinCount < 0 {
		return errors.Newf("negative spin count %d", c.SpinCount)
	}
	if c.SleepIncrement < 0 {
		return errors.Newf("negative sleep increment %s", c.SleepIncrement)
	}
	return nil
}

// WithDefaults returns a copy of c with zero fields replaced by defaults.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.SegmentSize == 0 {
		c.SegmentSize = def.SegmentSize
	}
	if c.MaxLockNodes == 0 {
		c.MaxLockNodes = def.MaxLockNodes
	}
	if c.LockProto == 0 {
		c.LockProto = def.LockProto
	}
	if c.SpinCount == 0 {
		c.SpinCount = def.SpinCount
	}
	if c.SleepIncrement == 0 {
		c.SleepIncrement = def.SleepIncrement
	}
	return c
}
