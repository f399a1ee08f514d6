// Copyright 2026 The WhiteDB Authors.
//
// Use of this software is governed by the license included in the /LICENSE
// file.

package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marksweiss/whitedb/pkg/base"
	"github.com/marksweiss/whitedb/pkg/shm"
	"github.com/marksweiss/whitedb/pkg/storage"
	"github.com/stretchr/testify/require"
)

func TestRoundSegmentSize(t *testing.T) {
	require.Equal(t, uint64(base.MinSegmentSize), roundSegmentSize(1))
	require.Equal(t, uint64(base.MinSegmentSize), roundSegmentSize(base.MinSegmentSize))
	require.Equal(t, uint64(base.MinSegmentSize+base.SynVarPadding),
		roundSegmentSize(base.MinSegmentSize+1))
}

func TestFileConfigApply(t *testing.T) {
	cfg := base.DefaultConfig()
	fc := fileConfig{
		Size:           "1 MiB",
		MaxLockNodes:   16,
		LockProto:      "queued",
		SpinCount:      200,
		SleepIncrement: "250us",
	}
	require.NoError(t, fc.apply(&cfg))
	require.Equal(t, uint64(1<<20), cfg.SegmentSize)
	require.Equal(t, uint64(16), cfg.MaxLockNodes)
	require.Equal(t, base.LockProtoQueued, cfg.LockProto)
	require.Equal(t, 200, cfg.SpinCount)
	require.Equal(t, 250*time.Microsecond, cfg.SleepIncrement)

	require.Error(t, (&fileConfig{Size: "lots"}).apply(&cfg))
	require.Error(t, (&fileConfig{LockProto: "ticket"}).apply(&cfg))
	require.Error(t, (&fileConfig{SleepIncrement: "soon"}).apply(&cfg))
}

func TestCreateAndInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")

	require.NoError(t, Run([]string{
		"create", path, "--max-lock-nodes", "8", "--lock-proto", "queued",
	}))

	seg, err := shm.OpenMapped(path)
	require.NoError(t, err)
	db, err := storage.Attach(seg)
	require.NoError(t, err)
	require.Equal(t, base.LockProtoQueued, db.LockProto())
	require.Equal(t, uint64(8), db.MaxLockNodes())
	require.NoError(t, seg.Close())

	require.NoError(t, Run([]string{"info", path}))
}

func TestCreateFromConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(
		"size: 64 KiB\nmax-lock-nodes: 4\nlock-proto: global\n"), 0644))

	path := filepath.Join(dir, "db")
	require.NoError(t, Run([]string{"create", path, "--config", cfgPath}))

	seg, err := shm.OpenMapped(path)
	require.NoError(t, err)
	defer seg.Close()
	require.Equal(t, uint64(64<<10), seg.Size())
	db, err := storage.Attach(seg)
	require.NoError(t, err)
	require.Equal(t, base.LockProtoGlobal, db.LockProto())
}

func TestLockBenchSmoke(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	require.NoError(t, Run([]string{"create", path}))
	require.NoError(t, Run([]string{
		"lockbench", path, "--readers", "2", "--writers", "1", "--duration", "100ms",
	}))
}
