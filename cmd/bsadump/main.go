// SPDX-License-Identifier: MIT
// Copyright (c) 2026 tesvfs
// Source: github.com/tesvfs/bsa

// Command bsadump lists the contents of a BSA archive. It is a thin
// demonstrator over the bsa package, not a general archive editor: the
// command-line front end is explicitly out of scope for the core (spec §1),
// so this stays a read-only listing tool.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/tesvfs/bsa"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s <archive.bsa>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	if err := dump(flag.Arg(0)); err != nil {
		fmt.Fprintln(os.Stderr, "bsadump:", err)
		os.Exit(1)
	}
}

func dump(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var v3 bsa.V3Archive
	if err := v3.Read(f); err == nil {
		dumpV3(&v3)
		return nil
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	var v4 bsa.V4Archive
	version, err := v4.Read(f)
	if err != nil {
		return fmt.Errorf("not a recognized BSA archive: %w", err)
	}
	dumpV4(&v4, version)
	return nil
}

func dumpV3(a *bsa.V3Archive) {
	fmt.Printf("V3 archive: %d files\n", a.Size())
	for _, f := range a.Files() {
		fmt.Printf("  %-60s %8d bytes\n", f.Name(), f.Payload.Size())
	}
}

func dumpV4(a *bsa.V4Archive, version bsa.Version) {
	fmt.Printf("V4 archive: version %d, %d directories, %d files\n",
		version, a.Size(), a.FileCount())
	for _, d := range a.Directories() {
		fmt.Printf("%s\\\n", d.Name())
		for _, f := range d.Files() {
			fmt.Printf("  %-60s %8d bytes compressed=%v\n",
				f.Filename(), f.Size(), f.Compressed(a.Compressed()))
		}
	}
}
