// Copyright 2026 The WhiteDB Authors.
//
// Use of this software is governed by the license included in the /LICENSE
// file.

package main

import "github.com/marksweiss/whitedb/pkg/cli"

func main() {
	cli.Main()
}
