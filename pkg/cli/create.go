// Copyright 2026 The WhiteDB Authors.
//
// Use of this software is governed by the license included in the /LICENSE
// file.

package cli

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/marksweiss/whitedb/pkg/base"
	"github.com/marksweiss/whitedb/pkg/shm"
	"github.com/marksweiss/whitedb/pkg/storage"
	"github.com/marksweiss/whitedb/pkg/storage/dblock"
	"github.com/marksweiss/whitedb/pkg/util/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	yaml "gopkg.in/yaml.v2"
)

type createFlags struct {
	size       string
	maxNodes   uint64
	lockProto  string
	configPath string
}

func (f *createFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.size, "size", "", "segment size (e.g. 64MiB); default fits the lock node pool")
	fs.Uint64Var(&f.maxNodes, "max-lock-nodes", base.DefaultMaxLockNodes, "capacity of the lock node pool")
	fs.StringVar(&f.lockProto, "lock-proto", base.DefaultLockProto.String(), "lock protocol (global or queued)")
	fs.StringVar(&f.configPath, "config", "", "YAML file with creation parameters; flags override it")
}

func newCreateCmd() *cobra.Command {
	var flags createFlags
	cmd := &cobra.Command{
		Use:   "create <path>",
		Short: "create a file-backed database segment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(cmd, args[0], &flags)
		},
	}
	flags.register(cmd.Flags())
	return cmd
}

// fileConfig mirrors the create flags for --config files.
type fileConfig struct {
	Size           string `yaml:"size"`
	MaxLockNodes   uint64 `yaml:"max-lock-nodes"`
	LockProto      string `yaml:"lock-proto"`
	SpinCount      int    `yaml:"spin-count"`
	SleepIncrement string `yaml:"sleep-increment"`
}

func (fc *fileConfig) apply(cfg *base.Config) error {
	if fc.Size != "" {
		sz, err := humanize.ParseBytes(fc.Size)
		if err != nil {
			return errors.Wrapf(err, "invalid size %q", fc.Size)
		}
		cfg.SegmentSize = sz
	}
	if fc.MaxLockNodes != 0 {
		cfg.MaxLockNodes = fc.MaxLockNodes
	}
	if fc.LockProto != "" {
		p, err := base.ParseLockProto(fc.LockProto)
		if err != nil {
			return err
		}
		cfg.LockProto = p
	}
	if fc.SpinCount != 0 {
		cfg.SpinCount = fc.SpinCount
	}
	if fc.SleepIncrement != "" {
		d, err := time.ParseDuration(fc.SleepIncrement)
		if err != nil {
			return errors.Wrapf(err, "invalid sleep-increment %q", fc.SleepIncrement)
		}
		cfg.SleepIncrement = d
	}
	return nil
}

// roundSegmentSize pads sz up to a padding cell and the segment minimum.
func roundSegmentSize(sz uint64) uint64 {
	if sz < base.MinSegmentSize {
		sz = base.MinSegmentSize
	}
	if rem := sz % base.SynVarPadding; rem != 0 {
		sz += base.SynVarPadding - rem
	}
	return sz
}

func runCreate(cmd *cobra.Command, path string, flags *createFlags) error {
	ctx := cmd.Context()

	cfg := base.DefaultConfig()
	cfg.SegmentSize = 0

	if flags.configPath != "" {
		data, err := os.ReadFile(flags.configPath)
		if err != nil {
			return errors.Wrap(err, "reading config file")
		}
		var fc fileConfig
		if err := yaml.UnmarshalStrict(data, &fc); err != nil {
			return errors.Wrap(err, "parsing config file")
		}
		if err := fc.apply(&cfg); err != nil {
			return err
		}
	}

	fs := cmd.Flags()
	if fs.Changed("max-lock-nodes") {
		cfg.MaxLockNodes = flags.maxNodes
	}
	if fs.Changed("lock-proto") {
		p, err := base.ParseLockProto(flags.lockProto)
		if err != nil {
			return err
		}
		cfg.LockProto = p
	}
	if fs.Changed("size") {
		sz, err := humanize.ParseBytes(flags.size)
		if err != nil {
			return errors.Wrapf(err, "invalid size %q", flags.size)
		}
		cfg.SegmentSize = sz
	}
	if cfg.SegmentSize == 0 {
		cfg.SegmentSize = storage.SegmentSizeFor(cfg.MaxLockNodes)
	}
	cfg.SegmentSize = roundSegmentSize(cfg.SegmentSize)

	seg, err := shm.CreateMapped(path, cfg.SegmentSize)
	if err != nil {
		return err
	}
	defer seg.Close()

	if _, err := dblock.Bootstrap(ctx, seg, cfg); err != nil {
		os.Remove(path)
		return err
	}
	if err := seg.Sync(); err != nil {
		return err
	}

	log.Infof(ctx, "created %s segment at %s (%s lock protocol, %d lock nodes)",
		humanize.IBytes(cfg.SegmentSize), path, cfg.LockProto, cfg.MaxLockNodes)
	return nil
}
