// Copyright 2026 The WhiteDB Authors.
//
// Use of this software is governed by the license included in the /LICENSE
// file.

// Package cli implements the whitedb command line tool: creating and
// inspecting database segments and exercising the lock subsystem.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// newRootCmd builds the command tree. A fresh tree is built per Run so
// flag state never leaks between invocations.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "whitedb",
		Short:         "shared-memory database segment tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newCreateCmd(), newInfoCmd(), newLockBenchCmd())
	return root
}

// Run executes the command line and returns its error.
func Run(args []string) error {
	root := newRootCmd()
	root.SetArgs(args)
	return root.Execute()
}

// Main is the whitedb binary entry point.
func Main() {
	if err := Run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
