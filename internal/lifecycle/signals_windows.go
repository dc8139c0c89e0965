//go:build windows

package lifecycle

import "os"

// TerminationSignals lists the signals that shut the server down.
// Windows delivers console interrupts only.
func TerminationSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}
