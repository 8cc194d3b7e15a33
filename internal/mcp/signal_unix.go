//go:build !windows

package mcp

import (
	"os"
	"syscall"
)

// shutdownSignals stop Run. SIGHUP covers the client's terminal going away.
var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM, syscall.SIGHUP}
