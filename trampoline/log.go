package trampoline

import "github.com/btcsuite/btclog"

// log is the package-wide logger, disabled by default until the caller
// wires a real backend in with UseLogger.
var log btclog.Logger

func init() {
	DisableLog()
}

// DisableLog disables all library log output.
func DisableLog() {
	log = btclog.Disabled
}

// UseLogger sets the package-wide logger used by this package.
func UseLogger(logger btclog.Logger) {
	log = logger
}
