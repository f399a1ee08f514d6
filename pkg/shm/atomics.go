// Copyright 2026 The WhiteDB Authors.
//
// Use of this software is governed by the license included in the /LICENSE
// file.

package shm

import (
	"sync/atomic"
	"unsafe"

	"github.com/cockroachdb/errors"
)

// The accessors below are the only way shared control words are touched.
// Each compiles to a single LOCK-prefixed instruction on amd64 via
// sync/atomic, which gives the sequentially consistent ordering the lock
// protocols assume: a word published through one of these operations is
// visible to any later atomic read of it.

// word resolves an offset to the underlying machine word. Offsets are
// produced by the segment layout code and are word-aligned by
// construction; out-of-range or misaligned offsets indicate corruption.
func (s *Segment) word(off uint64) *uint64 {
	if off%WordSize != 0 || off+WordSize > uint64(len(s.data)) {
		panic(errors.AssertionFailedf(
			"segment word offset %d out of range (size %d)", off, len(s.data)))
	}
	return (*uint64)(unsafe.Pointer(&s.data[off]))
}

// Load atomically reads the word at off.
func (s *Segment) Load(off uint64) uint64 {
	return atomic.LoadUint64(s.word(off))
}

// Store atomically writes v to the word at off.
func (s *Segment) Store(off uint64, v uint64) {
	atomic.StoreUint64(s.word(off), v)
}

// Add atomically adds delta to the word at off and returns the new value.
// Negative deltas wrap in two's complement, matching hardware XADD.
func (s *Segment) Add(off uint64, delta int64) uint64 {
	return atomic.AddUint64(s.word(off), uint64(delta))
}

// FetchAdd atomically adds delta to the word at off and returns the value
// the word held before the addition.
func (s *Segment) FetchAdd(off uint64, delta int64) uint64 {
	return atomic.AddUint64(s.word(off), uint64(delta)) - uint64(delta)
}

// Swap atomically stores v at off and returns the prior value.
func (s *Segment) Swap(off uint64, v uint64) uint64 {
	return atomic.SwapUint64(s.word(off), v)
}

// CompareAndSwap installs new at off iff the word still holds old.
func (s *Segment) CompareAndSwap(off uint64, old, new uint64) bool {
	return atomic.CompareAndSwapUint64(s.word(off), old, new)
}

// And atomically clears the bits absent from mask in the word at off.
func (s *Segment) And(off uint64, mask uint64) {
	atomic.AndUint64(s.word(off), mask)
}

// Or atomically sets the bits of mask in the word at off.
func (s *Segment) Or(off uint64, bits uint64) {
	atomic.OrUint64(s.word(off), bits)
}
