package swapout

import "github.com/btcsuite/btclog"

// log is the package-level logger used throughout swapout. It is set to
// disabled by default; callers use UseLogger to hook it up to their own
// logging backend.
var log btclog.Logger

func init() {
	DisableLog()
}

// DisableLog disables all logging output for this package.
func DisableLog() {
	log = btclog.Disabled
}

// UseLogger sets the logger used by this package.
func UseLogger(logger btclog.Logger) {
	log = logger
}
