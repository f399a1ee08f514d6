// Copyright 2026 The WhiteDB Authors.
//
// Use of this software is governed by the license included in the /LICENSE
// file.

//go:build !queuedlocks

package base

// DefaultLockProto is the lock algorithm used when a segment is created
// without an explicit choice. Build with the queuedlocks tag to default to
// the fair queued protocol instead.
const DefaultLockProto = LockProtoGlobal
