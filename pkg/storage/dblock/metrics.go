// Copyright 2026 The WhiteDB Authors.
//
// Use of this software is governed by the license included in the /LICENSE
// file.

package dblock

import "github.com/prometheus/client_golang/prometheus"

const (
	opRead  = "read"
	opWrite = "write"
)

// Registry collects the lock subsystem metrics for this process. The CLI
// serves it over /metrics during benchmarks; embedders may gather from it
// or re-register the collectors elsewhere.
var Registry = prometheus.NewRegistry()

var metrics = struct {
	acquisitions *prometheus.CounterVec
	slowPath     *prometheus.CounterVec
	allocFailed  prometheus.Counter
}{
	acquisitions: prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "whitedb_dblock_acquisitions_total",
		Help: "Successful lock acquisitions by operation kind.",
	}, []string{"op"}),
	slowPath: prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "whitedb_dblock_slow_path_total",
		Help: "Acquisitions that had to wait (spin or backoff) for the lock.",
	}, []string{"op"}),
	allocFailed: prometheus.NewCounter(prometheus.CounterOpts{
		Name: "whitedb_dblock_node_alloc_failures_total",
		Help: "Lock acquisitions failed because the node pool was exhausted.",
	}),
}

func init() {
	Registry.MustRegister(metrics.acquisitions, metrics.slowPath, metrics.allocFailed)
}
