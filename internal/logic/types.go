// Package logic contains the pure decision engine for the ventilation controller.
// This package has NO external dependencies (no GPIO, MQTT, HTTP, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import (
	"fmt"
	"time"
)

// Metric identifies one of the five smoothed signals.
type Metric int

const (
	IndoorTemp Metric = iota
	IndoorHumidity
	OutdoorTemp
	OutdoorHumidity
	OutdoorAQI

	numMetrics
)

// AllMetrics lists every metric in a stable order.
var AllMetrics = []Metric{IndoorTemp, IndoorHumidity, OutdoorTemp, OutdoorHumidity, OutdoorAQI}

// WindowSize is the number of valid samples averaged per metric.
const WindowSize = 5

func (m Metric) String() string {
	switch m {
	case IndoorTemp:
		return "indoor_temp"
	case IndoorHumidity:
		return "indoor_humidity"
	case OutdoorTemp:
		return "outdoor_temp"
	case OutdoorHumidity:
		return "outdoor_humidity"
	case OutdoorAQI:
		return "outdoor_aqi"
	default:
		return fmt.Sprintf("metric(%d)", int(m))
	}
}

// Unit returns the unit the core expects for the metric.
func (m Metric) Unit() string {
	switch m {
	case IndoorTemp, OutdoorTemp:
		return "°F"
	case IndoorHumidity, OutdoorHumidity:
		return "%"
	case OutdoorAQI:
		return "AQI"
	default:
		return ""
	}
}

// ValidRange returns the inclusive physically plausible range for the metric.
func (m Metric) ValidRange() (min, max float64) {
	switch m {
	case IndoorTemp:
		return -40, 176
	case OutdoorTemp:
		return -40, 185
	case IndoorHumidity, OutdoorHumidity:
		return 0, 100
	case OutdoorAQI:
		return 0, 500
	default:
		return 0, 0
	}
}

// Sample is a single timestamped reading handed to the core by a collaborator.
type Sample struct {
	Metric Metric
	Value  float64
	Time   time.Time
	Valid  bool
}

// Input is the full set of samples for one tick.
type Input struct {
	Samples []Sample
	Time    time.Time
}

// SmoothedValue is the smoothed view of a metric at a given instant.
type SmoothedValue struct {
	Metric Metric
	// Value is only meaningful when Available is true.
	Value     float64
	Available bool
	// Count of samples in the window.
	Count int
	// Fallback is true when the most recent raw sample was invalid.
	Fallback bool
	// Age since the newest contributing sample.
	Age time.Duration
}

// Mode is the venting mode chosen by the decision engine.
type Mode string

const (
	ModeSafetyClosed Mode = "SAFETY_CLOSED"
	ModeIdleClosed   Mode = "IDLE_CLOSED"
	ModeFreeVent     Mode = "FREE_VENT"
	ModeLimitedCycle Mode = "LIMITED_CYCLE"
	ModeQuickCycle   Mode = "QUICK_CYCLE"
)

// Cycling reports whether the mode is driven by the cycle scheduler.
func (m Mode) Cycling() bool {
	return m == ModeLimitedCycle || m == ModeQuickCycle
}

// Phase is the duty-cycle phase.
type Phase string

const (
	PhaseOn  Phase = "ON"
	PhaseOff Phase = "OFF"
)

// DehumCommand is the dehumidifier rule outcome.
type DehumCommand int

const (
	DehumHold DehumCommand = iota
	DehumOn
	DehumOff
)

func (c DehumCommand) String() string {
	switch c {
	case DehumOn:
		return "ON"
	case DehumOff:
		return "OFF"
	default:
		return "HOLD"
	}
}

// TransitionCounts tracks applied actuation changes since startup.
type TransitionCounts struct {
	VentOpen        int
	VentClose       int
	DehumOn         int
	DehumOff        int
	SafetyOverrides int
}

// Snapshot is the per-tick output contract with the actuation, logging and
// telemetry collaborators.
type Snapshot struct {
	Timestamp    time.Time
	VentOpen     bool
	DehumidifyOn bool
	Mode         Mode
	Reason       string

	// Phase is empty unless Mode is a cycling mode.
	Phase     Phase
	VentHeld  bool
	DehumHeld bool
	Safety    bool
	Metrics   Metrics
}

// Metric returns the smoothed value recorded in the snapshot.
func (s Snapshot) Metric(m Metric) SmoothedValue {
	return s.Metrics[m]
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    TransitionCounts
}
