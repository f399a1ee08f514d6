// Copyright 2026 The WhiteDB Authors.
//
// Use of this software is governed by the license included in the /LICENSE
// file.

// Package log provides context-aware leveled logging for the database.
// Messages carry the logtags found in the context, so callers annotate a
// context once (e.g. with the segment path) and every diagnostic below it
// is attributed automatically.
package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/logtags"
)

// Severity labels a log entry. Entries below the configured threshold are
// dropped.
type Severity int

const (
	// SeverityInfo is for operational chatter.
	SeverityInfo Severity = iota
	// SeverityWarning is for conditions the caller can continue past.
	SeverityWarning
	// SeverityError is for failed operations.
	SeverityError
	// SeverityFatal terminates the process after logging.
	SeverityFatal
)

var severityChar = [...]byte{'I', 'W', 'E', 'F'}

var state struct {
	sync.Mutex
	w         io.Writer
	threshold Severity
}

func init() {
	state.w = os.Stderr
}

// SetOutput redirects log output, returning the previous writer. Tests use
// it to capture diagnostics.
func SetOutput(w io.Writer) io.Writer {
	state.Lock()
	defer state.Unlock()
	prev := state.w
	state.w = w
	return prev
}

// SetThreshold drops entries below sev.
func SetThreshold(sev Severity) {
	state.Lock()
	defer state.Unlock()
	state.threshold = sev
}

func output(ctx context.Context, sev Severity, format string, args ...interface{}) {
	state.Lock()
	defer state.Unlock()
	if sev < state.threshold {
		return
	}
	now := time.Now()
	fmt.Fprintf(state.w, "%c%s ", severityChar[sev], now.Format("060102 15:04:05.000000"))
	if tags := logtags.FromContext(ctx); tags != nil {
		fmt.Fprintf(state.w, "[%s] ", tags.String())
	}
	fmt.Fprintf(state.w, format, args...)
	fmt.Fprintln(state.w)
}

// Infof logs an informational message.
func Infof(ctx context.Context, format string, args ...interface{}) {
	output(ctx, SeverityInfo, format, args...)
}

// Warningf logs a warning.
func Warningf(ctx context.Context, format string, args ...interface{}) {
	output(ctx, SeverityWarning, format, args...)
}

// Errorf logs an error.
func Errorf(ctx context.Context, format string, args ...interface{}) {
	output(ctx, SeverityError, format, args...)
}

// Fatalf logs and exits the process.
func Fatalf(ctx context.Context, format string, args ...interface{}) {
	output(ctx, SeverityFatal, format, args...)
	os.Exit(2)
}
