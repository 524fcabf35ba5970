// Package gpio drives the vent and dehumidifier relays.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import (
	"errors"
	"fmt"
)

// ErrUnsupported is returned by NewRealRelay off Linux.
var ErrUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// Relay switches the two controlled outputs.
type Relay interface {
	// Set drives both outputs. true = energized (vent open, dehumidifier on).
	Set(vent, dehum bool) error

	// State returns the last successfully commanded outputs.
	State() (vent, dehum bool)

	// Close applies the shutdown policy and releases GPIO resources.
	Close() error
}

// Pin definitions (BCM numbering)
const (
	PinVent  = 5  // Vent actuator relay
	PinDehum = 22 // Dehumidifier relay
)

// ShutdownPolicy decides what the relays do when the process exits.
type ShutdownPolicy string

const (
	// ShutdownHold leaves the last commanded outputs in place.
	ShutdownHold ShutdownPolicy = "hold"

	// ShutdownOff de-energizes both relays before releasing them.
	ShutdownOff ShutdownPolicy = "off"
)

// ParseShutdownPolicy validates a --shutdown-policy value.
func ParseShutdownPolicy(s string) (ShutdownPolicy, error) {
	switch p := ShutdownPolicy(s); p {
	case ShutdownHold, ShutdownOff:
		return p, nil
	default:
		return "", fmt.Errorf("unknown shutdown policy %q (want hold or off)", s)
	}
}

// rawValue maps a logical output to the line level.
func rawValue(on, activeLow bool) int {
	if on != activeLow {
		return 1
	}
	return 0
}
