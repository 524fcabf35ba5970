// Package status provides a thread-safe status tracker for the vent controller.
// It is read by the HTTP handlers and used to build heartbeat payloads.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/vent-controller/internal/logic"
)

// NetworkInfo contains network state as reported by pi-helper.
type NetworkInfo struct {
	Type       string `envconfig:"NETWORK_TYPE"`
	IP         string `envconfig:"NETWORK_IP"`
	Status     string `envconfig:"NETWORK_STATUS"`
	Gateway    string `envconfig:"NETWORK_GATEWAY"`
	WifiStatus string `envconfig:"NETWORK_WIFI_STATUS"`
	SSID       string `envconfig:"NETWORK_WIFI_SSID"`
}

// Config contains daemon configuration for display.
type Config struct {
	PollMs      int64
	HeartbeatMs int64
	Broker      string
	HTTPAddr    string
	WSBroker    string // Websocket broker URL for browser MQTT (empty = disabled)
	Outdoor     string // PurpleAir base URL
	Indoor      string // DHT11 source description
	Tuning      logic.Config
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	// Decision is the latest tick output; zero until Ready.
	Decision       logic.Snapshot
	Ready          bool
	Counts         logic.TransitionCounts
	BootID         string
	StartTime      time.Time
	Now            time.Time
	MQTTConnected  bool
	OutdoorBreaker string
	Network        *NetworkInfo
	Config         Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time, boot id and config.
func NewTracker(startTime time.Time, bootID string, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			BootID:    bootID,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// Update records the latest decision and transition counts.
// Called from runLoop on every tick.
func (t *Tracker) Update(decision logic.Snapshot, counts logic.TransitionCounts) {
	t.mu.Lock()
	t.snap.Decision = decision
	t.snap.Ready = true
	t.snap.Counts = counts
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetOutdoorBreaker records the outdoor sensor circuit breaker state.
func (t *Tracker) SetOutdoorBreaker(state string) {
	t.mu.Lock()
	t.snap.OutdoorBreaker = state
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	now := t.now
	t.mu.RUnlock()
	if s.Network != nil {
		n := *s.Network
		s.Network = &n
	}
	s.Now = now()
	return s
}
