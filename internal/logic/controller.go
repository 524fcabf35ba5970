package logic

import (
	"fmt"
	"time"
)

// Controller owns the smoother and control state for a single control loop.
// Not safe for concurrent use.
type Controller struct {
	cfg           Config
	smoother      *Smoother
	state         ControlState
	last          Snapshot
	startTime     time.Time
	lastHeartbeat time.Time
}

// NewController validates cfg and returns a controller whose outputs start
// off. The startTime counts as the last transition for debounce and is used
// for uptime in heartbeats.
func NewController(cfg Config, startTime time.Time) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("new controller: %w", err)
	}
	state := NewControlState(startTime)
	return &Controller{
		cfg:           cfg,
		smoother:      NewSmoother(),
		state:         state,
		last:          Snapshot{Timestamp: startTime, Mode: state.Mode},
		startTime:     startTime,
		lastHeartbeat: startTime,
	}, nil
}

// Process records the tick's samples and returns the resulting snapshot.
// A metric with no sample in the input is recorded as an invalid reading.
func (c *Controller) Process(input Input) Snapshot {
	var seen [numMetrics]bool
	for _, s := range input.Samples {
		if s.Metric < 0 || s.Metric >= numMetrics {
			continue
		}
		seen[s.Metric] = true
		c.smoother.Record(s)
	}
	for _, m := range AllMetrics {
		if !seen[m] {
			c.smoother.Record(Sample{Metric: m, Time: input.Time})
		}
	}

	var snap Snapshot
	c.state, snap = Step(c.cfg, c.state, c.smoother.All(input.Time), input.Time)
	c.last = snap
	return snap
}

// Config returns the controller's configuration.
func (c *Controller) Config() Config {
	return c.cfg
}

// State returns the current control state.
func (c *Controller) State() ControlState {
	return c.state
}

// Last returns the most recent snapshot, for shutdown handlers and status.
func (c *Controller) Last() Snapshot {
	return c.last
}

// Counts returns the transition counts since startup.
func (c *Controller) Counts() TransitionCounts {
	return c.state.Counts
}

// Smoothed returns the current smoothed value of a metric.
func (c *Controller) Smoothed(m Metric, now time.Time) SmoothedValue {
	return c.smoother.Smoothed(m, now)
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if the interval has not elapsed or
// is <= 0 (disabled).
func (c *Controller) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}
	if now.Sub(c.lastHeartbeat) < interval {
		return nil
	}

	c.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(c.startTime),
		Counts:    c.state.Counts,
	}
}
