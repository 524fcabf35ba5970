// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"math"
	"time"

	"github.com/sweeney/vent-controller/internal/logic"
)

// TopicState is the retained topic carrying the latest controller snapshot.
const TopicState = "home/ventilation/controller/state"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "home/ventilation/controller/system"

// System event names.
const (
	EventStartup     = "STARTUP"
	EventShutdown    = "SHUTDOWN"
	EventHeartbeat   = "HEARTBEAT"
	EventOffline     = "OFFLINE"
	EventReconnected = "RECONNECTED"
)

// Publisher publishes controller output to MQTT.
type Publisher interface {
	// PublishState sends the tick's snapshot to the retained state topic.
	// Returns error if publishing fails (should not crash the process).
	PublishState(snap logic.Snapshot) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// PublishDiscovery announces the controller's entities to Home Assistant.
	PublishDiscovery() error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// StatePayload is the JSON document published on TopicState.
type StatePayload struct {
	Ventilation VentilationPayload `json:"ventilation"`
}

// VentilationPayload contains the decision for one tick.
type VentilationPayload struct {
	Timestamp    string                   `json:"timestamp"`
	Mode         string                   `json:"mode"`
	Vent         string                   `json:"vent"`         // OPEN or CLOSED
	Dehumidifier string                   `json:"dehumidifier"` // ON or OFF
	Phase        string                   `json:"phase,omitempty"`
	Safety       bool                     `json:"safety"`
	VentHeld     bool                     `json:"vent_held"`
	DehumHeld    bool                     `json:"dehumidifier_held"`
	Reason       string                   `json:"reason"`
	Metrics      map[string]MetricPayload `json:"metrics"`
}

// MetricPayload is one smoothed metric. Value is null when unavailable.
type MetricPayload struct {
	Value      *float64 `json:"value"`
	Unit       string   `json:"unit"`
	Samples    int      `json:"samples"`
	Fallback   bool     `json:"fallback"`
	AgeSeconds int64    `json:"age_seconds"`
}

// VentState renders the vent output for payloads.
func VentState(open bool) string {
	if open {
		return "OPEN"
	}
	return "CLOSED"
}

// OnOff renders a boolean output for payloads.
func OnOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

// FormatStatePayload creates the JSON payload for a snapshot.
func FormatStatePayload(snap logic.Snapshot) ([]byte, error) {
	metrics := make(map[string]MetricPayload, len(logic.AllMetrics))
	for _, m := range logic.AllMetrics {
		sv := snap.Metric(m)
		mp := MetricPayload{
			Unit:       m.Unit(),
			Samples:    sv.Count,
			Fallback:   sv.Fallback,
			AgeSeconds: int64(sv.Age.Seconds()),
		}
		if sv.Available {
			v := math.Round(sv.Value*10) / 10
			mp.Value = &v
		}
		metrics[m.String()] = mp
	}

	payload := StatePayload{
		Ventilation: VentilationPayload{
			Timestamp:    snap.Timestamp.UTC().Format(time.RFC3339),
			Mode:         string(snap.Mode),
			Vent:         VentState(snap.VentOpen),
			Dehumidifier: OnOff(snap.DehumidifyOn),
			Phase:        string(snap.Phase),
			Safety:       snap.Safety,
			VentHeld:     snap.VentHeld,
			DehumHeld:    snap.DehumHeld,
			Reason:       snap.Reason,
			Metrics:      metrics,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
