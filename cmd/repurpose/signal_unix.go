//go:build !windows

package main

import (
	"os"
	"syscall"
)

// terminationSignals cancel the run context.
var terminationSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}
