// Package telemetry wires up process-wide structured logging, grounded on
// original_source/src/telemetry.rs's get_subscriber/init_subscriber pair
// and on the teacher pack's package-level `log = logging.Logger("...")`
// convention (github.com/ipfs/go-log/v2, the actively-developed successor
// used by the sibling pack repo go-libipfs).
package telemetry

import (
	"fmt"

	logging "github.com/ipfs/go-log/v2"
)

// Init sets the global log level for every subsystem logger created via
// logging.Logger(name). level is one of "debug", "info", "warn", "error".
// Called once at process startup by each cmd/ entrypoint, mirroring the
// original's init_subscriber(get_subscriber(...)) call in main().
func Init(level string) error {
	if level == "" {
		level = "info"
	}
	if err := logging.SetLogLevel("*", level); err != nil {
		return fmt.Errorf("setting log level %q: %w", level, err)
	}
	return nil
}
