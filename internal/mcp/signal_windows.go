//go:build windows

package mcp

import "os"

// shutdownSignals stop Run. Windows delivers only Ctrl+C.
var shutdownSignals = []os.Signal{os.Interrupt}
