// Copyright 2026 The WhiteDB Authors.
//
// Use of this software is governed by the license included in the /LICENSE
// file.

package cli

import (
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/codahale/hdrhistogram"
	"github.com/marksweiss/whitedb/pkg/shm"
	"github.com/marksweiss/whitedb/pkg/storage"
	"github.com/marksweiss/whitedb/pkg/storage/dblock"
	"github.com/marksweiss/whitedb/pkg/util/log"
	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

type lockBenchFlags struct {
	readers    int
	writers    int
	duration   time.Duration
	hold       time.Duration
	listenHTTP string
}

func (f *lockBenchFlags) register(fs *pflag.FlagSet) {
	fs.IntVar(&f.readers, "readers", 4, "concurrent reader goroutines")
	fs.IntVar(&f.writers, "writers", 1, "concurrent writer goroutines")
	fs.DurationVar(&f.duration, "duration", 5*time.Second, "how long to run")
	fs.DurationVar(&f.hold, "hold", 0, "time to hold each acquired lock")
	fs.StringVar(&f.listenHTTP, "listen-http", "", "serve /metrics on this address while running")
}

func newLockBenchCmd() *cobra.Command {
	var flags lockBenchFlags
	cmd := &cobra.Command{
		Use:   "lockbench <path>",
		Short: "exercise the database lock and report acquire latencies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLockBench(cmd, args[0], &flags)
		},
	}
	flags.register(cmd.Flags())
	return cmd
}

// latencyRecorder merges per-worker acquire latencies into one histogram
// per operation kind.
type latencyRecorder struct {
	mu     sync.Mutex
	reads  *hdrhistogram.Histogram
	writes *hdrhistogram.Histogram
}

func newLatencyRecorder() *latencyRecorder {
	// Track 1µs..1min with three significant figures.
	return &latencyRecorder{
		reads:  hdrhistogram.New(1, time.Minute.Microseconds(), 3),
		writes: hdrhistogram.New(1, time.Minute.Microseconds(), 3),
	}
}

func (r *latencyRecorder) merge(reads, writes *hdrhistogram.Histogram) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads.Merge(reads)
	r.writes.Merge(writes)
}

func runLockBench(cmd *cobra.Command, path string, flags *lockBenchFlags) error {
	ctx := cmd.Context()

	seg, err := shm.OpenMapped(path)
	if err != nil {
		return err
	}
	defer seg.Close()
	db, err := storage.Attach(seg)
	if err != nil {
		return err
	}

	if addr := flags.listenHTTP; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(dblock.Registry, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(addr, mux); err != nil {
				log.Warningf(ctx, "metrics listener failed: %v", err)
			}
		}()
		log.Infof(ctx, "serving /metrics on %s", addr)
	}

	rec := newLatencyRecorder()
	deadline := time.Now().Add(flags.duration)

	worker := func(write bool) error {
		reads := hdrhistogram.New(1, time.Minute.Microseconds(), 3)
		writes := hdrhistogram.New(1, time.Minute.Microseconds(), 3)
		defer rec.merge(reads, writes)

		for time.Now().Before(deadline) {
			start := time.Now()
			var tok dblock.Token
			var err error
			if write {
				tok, err = dblock.StartWrite(ctx, db)
			} else {
				tok, err = dblock.StartRead(ctx, db)
			}
			if err != nil {
				return err
			}
			elapsed := time.Since(start).Microseconds()
			if flags.hold > 0 {
				time.Sleep(flags.hold)
			}
			if write {
				err = dblock.EndWrite(ctx, db, tok)
				_ = writes.RecordValue(elapsed)
			} else {
				err = dblock.EndRead(ctx, db, tok)
				_ = reads.RecordValue(elapsed)
			}
			if err != nil {
				return err
			}
		}
		return nil
	}

	var g errgroup.Group
	for i := 0; i < flags.readers; i++ {
		g.Go(func() error { return worker(false) })
	}
	for i := 0; i < flags.writers; i++ {
		g.Go(func() error { return worker(true) })
	}
	if err := g.Wait(); err != nil {
		return err
	}

	printHistograms(rec)
	return printCounters()
}

func printHistograms(rec *latencyRecorder) {
	rec.mu.Lock()
	defer rec.mu.Unlock()

	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"op", "count", "p50(µs)", "p95(µs)", "p99(µs)", "max(µs)"})
	for _, row := range []struct {
		name string
		h    *hdrhistogram.Histogram
	}{{"read", rec.reads}, {"write", rec.writes}} {
		tw.Append([]string{
			row.name,
			fmt.Sprint(row.h.TotalCount()),
			fmt.Sprint(row.h.ValueAtQuantile(50)),
			fmt.Sprint(row.h.ValueAtQuantile(95)),
			fmt.Sprint(row.h.ValueAtQuantile(99)),
			fmt.Sprint(row.h.Max()),
		})
	}
	tw.Render()
}

// printCounters dumps the dblock metric registry so a benchmark run ends
// with the contention picture even when no scraper is attached.
func printCounters() error {
	families, err := dblock.Registry.Gather()
	if err != nil {
		return err
	}
	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"metric", "labels", "value"})
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := ""
			for i, lp := range m.GetLabel() {
				if i > 0 {
					labels += ","
				}
				labels += lp.GetName() + "=" + lp.GetValue()
			}
			tw.Append([]string{mf.GetName(), labels, fmt.Sprint(m.GetCounter().GetValue())})
		}
	}
	tw.Render()
	return nil
}
