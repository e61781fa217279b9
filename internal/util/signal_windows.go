//go:build windows

package util

import (
	"os"
)

// ShutdownSignals returns the signals to listen for graceful shutdown.
func ShutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// GracefulSignal attempts graceful process termination. SIGINT does not
// exist on Windows, so the process is killed by the exec wait deadline
// instead.
func GracefulSignal(p *os.Process) error {
	return nil
}
