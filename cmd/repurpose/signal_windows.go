//go:build windows

package main

import (
	"os"
)

// terminationSignals cancel the run context.
var terminationSignals = []os.Signal{os.Interrupt}
