//go:build !windows

package lifecycle

import (
	"os"
	"syscall"
)

// TerminationSignals lists the signals that shut the server down.
// SIGHUP is included because the process is driven over stdio: when
// the MCP client's terminal goes away the server has nothing left to
// serve.
func TerminationSignals() []os.Signal {
	return []os.Signal{os.Interrupt, syscall.SIGTERM, syscall.SIGHUP}
}
