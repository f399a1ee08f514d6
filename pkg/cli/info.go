// Copyright 2026 The WhiteDB Authors.
//
// Use of this software is governed by the license included in the /LICENSE
// file.

package cli

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/marksweiss/whitedb/pkg/shm"
	"github.com/marksweiss/whitedb/pkg/storage"
	"github.com/marksweiss/whitedb/pkg/storage/dblock"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <path>",
		Short: "print header and lock-area state of a segment",
		Args:  cobra.ExactArgs(1),
		RunE:  runInfo,
	}
}

func runInfo(cmd *cobra.Command, args []string) error {
	seg, err := shm.OpenMapped(args[0])
	if err != nil {
		return err
	}
	defer seg.Close()

	db, err := storage.Attach(seg)
	if err != nil {
		return err
	}
	st, err := dblock.ReadStats(db)
	if err != nil {
		return err
	}

	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"field", "value"})
	tw.SetAutoFormatHeaders(false)
	tw.AppendBulk([][]string{
		{"path", args[0]},
		{"size", humanize.IBytes(seg.Size())},
		{"lock protocol", st.Proto.String()},
		{"global lock word", fmt.Sprintf("%#x", st.GlobalWord)},
		{"reader count", fmt.Sprint(st.ReaderCount)},
		{"queue tail", fmt.Sprint(st.QueueTail)},
		{"next writer", fmt.Sprint(st.NextWriter)},
		{"lock nodes", fmt.Sprintf("%d free / %d total", st.FreeNodes, st.MaxNodes)},
	})
	tw.Render()
	return nil
}
