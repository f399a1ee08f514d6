// Copyright 2026 The WhiteDB Authors.
//
// Use of this software is governed by the license included in the /LICENSE
// file.

// Package shm provides the shared memory segment underlying a database and
// offset-addressed atomic access to the machine words inside it.
//
// The segment may be mapped at different virtual addresses in different
// processes, so nothing inside it is ever referenced by pointer. All
// cross-references are byte offsets from the segment base, and all reads
// and writes of shared control words go through the atomic accessors on
// Segment.
package shm

import (
	"os"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/edsrzf/mmap-go"
)

// WordSize is the size in bytes of one lock control word. Offsets passed to
// the atomic accessors must be multiples of WordSize.
const WordSize = 8

// Segment is a fixed-size byte region addressed by offsets from its base.
// It is either backed by a shared file mapping, in which case cooperating
// processes may attach to the same region, or by anonymous process memory
// for tests and single-process use.
type Segment struct {
	data []byte
	m    mmap.MMap
	f    *os.File
	path string
}

// NewInMemory returns an anonymous in-process segment of the given size.
func NewInMemory(size uint64) (*Segment, error) {
	if size == 0 || size%WordSize != 0 {
		return nil, errors.Newf("invalid segment size %d", size)
	}
	// Back the region with a word slice so the base is word-aligned.
	words := make([]uint64, size/WordSize)
	data := unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), size)
	return &Segment{data: data}, nil
}

// CreateMapped creates path, sizes it, and maps it read-write shared. The
// resulting region is zero-filled.
func CreateMapped(path string, size uint64) (*Segment, error) {
	if size == 0 || size%WordSize != 0 {
		return nil, errors.Newf("invalid segment size %d", size)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "creating segment file %s", path)
	}
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		os.Remove(path)
		return nil, errors.Wrapf(err, "sizing segment file %s", path)
	}
	m, err := mmap.MapRegion(f, int(size), mmap.RDWR, 0, 0)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, errors.Wrapf(err, "mapping segment file %s", path)
	}
	return &Segment{data: m, m: m, f: f, path: path}, nil
}

// OpenMapped maps an existing segment file read-write shared.
func OpenMapped(path string) (*Segment, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "opening segment file %s", path)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "stat segment file %s", path)
	}
	if fi.Size() == 0 || fi.Size()%WordSize != 0 {
		f.Close()
		return nil, errors.Newf("segment file %s has invalid size %d", path, fi.Size())
	}
	m, err := mmap.MapRegion(f, int(fi.Size()), mmap.RDWR, 0, 0)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "mapping segment file %s", path)
	}
	return &Segment{data: m, m: m, f: f, path: path}, nil
}

// Size returns the segment size in bytes.
func (s *Segment) Size() uint64 {
	return uint64(len(s.data))
}

// Path returns the backing file path, or "" for an in-memory segment.
func (s *Segment) Path() string {
	return s.path
}

// Sync flushes a mapped segment to its backing file. It is a no-op for
// in-memory segments.
func (s *Segment) Sync() error {
	if s.m == nil {
		return nil
	}
	return errors.Wrapf(s.m.Flush(), "syncing segment %s", s.path)
}

// Close unmaps the segment and closes the backing file, if any. The
// segment must not be used afterwards.
func (s *Segment) Close() error {
	s.data = nil
	if s.m == nil {
		return nil
	}
	err := s.m.Unmap()
	s.m = nil
	if cerr := s.f.Close(); err == nil {
		err = cerr
	}
	return errors.Wrapf(err, "closing segment %s", s.path)
}
