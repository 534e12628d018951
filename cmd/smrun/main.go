// Copyright 2016 Aleksandr Demakin. All rights reserved.

// Command smrun starts worker processes, which share a communication domain.
//
//	smrun [--np N] [--bufsize B] [--extra E] [--debug] cmd args...
//
// Defaults can be set by SMRUN_PROCESSES, SMRUN_BUFFER_SIZE and SMRUN_EXTRA_SPACE.
// Workers connect to the domain with rts.Init.
package main

import (
	"fmt"
	"os"

	"github.com/nxgtw/go-shmdomain/rts"
)

func main() {
	cfg, err := rts.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "smrun: %v\n", err)
		os.Exit(2)
	}
	if err := newRootCmd(cfg).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "smrun: execution failed: %v\n", err)
		os.Exit(1)
	}
}
