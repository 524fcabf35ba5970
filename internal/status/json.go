package status

import (
	"encoding/json"
	"math"
	"time"

	"github.com/sweeney/vent-controller/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event          string                `json:"event,omitempty"`
	Reason         string                `json:"reason,omitempty"`
	Ready          bool                  `json:"ready"`
	Mode           string                `json:"mode"`
	Vent           string                `json:"vent"`
	Dehumidifier   string                `json:"dehumidifier"`
	Phase          string                `json:"phase,omitempty"`
	Decision       string                `json:"decision,omitempty"`
	Metrics        map[string]MetricJSON `json:"metrics,omitempty"`
	BootID         string                `json:"boot_id"`
	UptimeSeconds  int64                 `json:"uptime_seconds"`
	StartTime      string                `json:"start_time"`
	Timestamp      string                `json:"timestamp"`
	MQTT           MQTTStatus            `json:"mqtt"`
	OutdoorBreaker string                `json:"outdoor_breaker,omitempty"`
	Counts         CountsJSON            `json:"transition_counts"`
	Network        *NetworkJSON          `json:"network,omitempty"`
	Config         ConfigJSON            `json:"config"`
}

// MetricJSON is one smoothed metric. Value is null when unavailable.
type MetricJSON struct {
	Value    *float64 `json:"value"`
	Unit     string   `json:"unit"`
	Samples  int      `json:"samples"`
	Fallback bool     `json:"fallback"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of transition counts.
type CountsJSON struct {
	VentOpen        int `json:"vent_open"`
	VentClose       int `json:"vent_close"`
	DehumOn         int `json:"dehumidifier_on"`
	DehumOff        int `json:"dehumidifier_off"`
	SafetyOverrides int `json:"safety_overrides"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs             int64   `json:"poll_ms"`
	HeartbeatMs        int64   `json:"heartbeat_ms"`
	Broker             string  `json:"broker"`
	HTTPAddr           string  `json:"http_addr"`
	WSBroker           string  `json:"ws_broker,omitempty"`
	Outdoor            string  `json:"outdoor_sensor"`
	Indoor             string  `json:"indoor_sensor"`
	AQIThreshold       float64 `json:"aqi_threshold"`
	IdealHumidity      float64 `json:"ideal_humidity"`
	IdealTemperature   float64 `json:"ideal_temperature"`
	MaxOutdoorHumidity float64 `json:"max_outdoor_humidity"`
	MinOutdoorTemp     float64 `json:"min_outdoor_temp"`
	MaxOutdoorTemp     float64 `json:"max_outdoor_temp"`
	DebounceMs         int64   `json:"debounce_ms"`
}

// VentLabel renders the vent output; UNKNOWN before the first decision.
func (s Snapshot) VentLabel() string {
	if !s.Ready {
		return "UNKNOWN"
	}
	if s.Decision.VentOpen {
		return "OPEN"
	}
	return "CLOSED"
}

// DehumLabel renders the dehumidifier output; UNKNOWN before the first decision.
func (s Snapshot) DehumLabel() string {
	if !s.Ready {
		return "UNKNOWN"
	}
	if s.Decision.DehumidifyOn {
		return "ON"
	}
	return "OFF"
}

// ModeLabel renders the venting mode; UNKNOWN before the first decision.
func (s Snapshot) ModeLabel() string {
	if !s.Ready {
		return "UNKNOWN"
	}
	return string(s.Decision.Mode)
}

func buildInner(snap Snapshot) StatusInner {
	tuning := snap.Config.Tuning
	inner := StatusInner{
		Ready:          snap.Ready,
		Mode:           snap.ModeLabel(),
		Vent:           snap.VentLabel(),
		Dehumidifier:   snap.DehumLabel(),
		BootID:         snap.BootID,
		UptimeSeconds:  int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:      snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:      snap.Now.UTC().Format(time.RFC3339),
		MQTT:           MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		OutdoorBreaker: snap.OutdoorBreaker,
		Counts: CountsJSON{
			VentOpen:        snap.Counts.VentOpen,
			VentClose:       snap.Counts.VentClose,
			DehumOn:         snap.Counts.DehumOn,
			DehumOff:        snap.Counts.DehumOff,
			SafetyOverrides: snap.Counts.SafetyOverrides,
		},
		Config: ConfigJSON{
			PollMs:             snap.Config.PollMs,
			HeartbeatMs:        snap.Config.HeartbeatMs,
			Broker:             snap.Config.Broker,
			HTTPAddr:           snap.Config.HTTPAddr,
			WSBroker:           snap.Config.WSBroker,
			Outdoor:            snap.Config.Outdoor,
			Indoor:             snap.Config.Indoor,
			AQIThreshold:       tuning.AQIThreshold,
			IdealHumidity:      tuning.IdealHumidity,
			IdealTemperature:   tuning.IdealTemperature,
			MaxOutdoorHumidity: tuning.MaxOutdoorHumidity,
			MinOutdoorTemp:     tuning.MinOutdoorTemp,
			MaxOutdoorTemp:     tuning.MaxOutdoorTemp,
			DebounceMs:         tuning.DebounceInterval.Milliseconds(),
		},
	}

	if snap.Ready {
		inner.Phase = string(snap.Decision.Phase)
		inner.Decision = snap.Decision.Reason
		inner.Metrics = make(map[string]MetricJSON, len(logic.AllMetrics))
		for _, m := range logic.AllMetrics {
			sv := snap.Decision.Metric(m)
			mj := MetricJSON{Unit: m.Unit(), Samples: sv.Count, Fallback: sv.Fallback}
			if sv.Available {
				v := math.Round(sv.Value*10) / 10
				mj.Value = &v
			}
			inner.Metrics[m.String()] = mj
		}
	}

	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
