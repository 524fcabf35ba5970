// Package sensors gathers one tick's worth of samples from the outdoor and
// indoor sensors. Read failures become invalid samples; Collect never fails.
package sensors

import (
	"context"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sweeney/vent-controller/internal/dht"
	"github.com/sweeney/vent-controller/internal/logic"
	"github.com/sweeney/vent-controller/internal/purpleair"
)

// DefaultTimeout bounds each sensor read.
const DefaultTimeout = 10 * time.Second

// Outdoor supplies outdoor readings. Implemented by *purpleair.Client.
type Outdoor interface {
	Fetch(ctx context.Context) (purpleair.Reading, error)
}

// Indoor supplies indoor readings. Implemented by *dht.Sensor.
type Indoor interface {
	Read(ctx context.Context) (dht.Reading, error)
}

// Collector reads both sensors concurrently.
type Collector struct {
	outdoor Outdoor
	indoor  Indoor
	timeout time.Duration
	log     *slog.Logger
}

// NewCollector creates a Collector. A nil logger discards output.
func NewCollector(outdoor Outdoor, indoor Indoor, timeout time.Duration, log *slog.Logger) *Collector {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Collector{outdoor: outdoor, indoor: indoor, timeout: timeout, log: log}
}

// Collect returns all five samples stamped at now.
func (c *Collector) Collect(ctx context.Context, now time.Time) logic.Input {
	var outdoor, indoor []logic.Sample

	var g errgroup.Group
	g.Go(func() error {
		rctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		r, err := c.outdoor.Fetch(rctx)
		if err != nil {
			c.log.Warn("outdoor sensor read failed", "error", err)
		}
		outdoor = OutdoorSamples(r, err, now)
		return nil
	})
	g.Go(func() error {
		rctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		r, err := c.indoor.Read(rctx)
		if err != nil {
			c.log.Warn("indoor sensor read failed", "error", err)
		}
		indoor = IndoorSamples(r, err, now)
		return nil
	})
	g.Wait()

	samples := append(indoor, outdoor...)
	c.log.Debug("sensors collected", "samples", describe(samples))
	return logic.Input{Samples: samples, Time: now}
}

// OutdoorSamples converts a PurpleAir reading. Fields the device omitted,
// or all three when err is non-nil, are marked invalid.
func OutdoorSamples(r purpleair.Reading, err error, now time.Time) []logic.Sample {
	if err != nil {
		return []logic.Sample{
			invalid(logic.OutdoorTemp, now),
			invalid(logic.OutdoorHumidity, now),
			invalid(logic.OutdoorAQI, now),
		}
	}
	aqi, ok := r.AQI()
	return []logic.Sample{
		optional(logic.OutdoorTemp, r.TempF, now),
		optional(logic.OutdoorHumidity, r.Humidity, now),
		{Metric: logic.OutdoorAQI, Value: aqi, Time: now, Valid: ok},
	}
}

// IndoorSamples converts a DHT11 reading to °F and %RH.
func IndoorSamples(r dht.Reading, err error, now time.Time) []logic.Sample {
	if err != nil {
		return []logic.Sample{invalid(logic.IndoorTemp, now), invalid(logic.IndoorHumidity, now)}
	}
	return []logic.Sample{
		{Metric: logic.IndoorTemp, Value: r.TempF(), Time: now, Valid: true},
		{Metric: logic.IndoorHumidity, Value: r.Humidity, Time: now, Valid: true},
	}
}

func optional(m logic.Metric, v *float64, now time.Time) logic.Sample {
	if v == nil {
		return invalid(m, now)
	}
	return logic.Sample{Metric: m, Value: *v, Time: now, Valid: true}
}

func invalid(m logic.Metric, now time.Time) logic.Sample {
	return logic.Sample{Metric: m, Time: now}
}

func describe(samples []logic.Sample) map[string]any {
	out := make(map[string]any, len(samples))
	for _, s := range samples {
		if s.Valid {
			out[s.Metric.String()] = s.Value
		} else {
			out[s.Metric.String()] = "invalid"
		}
	}
	return out
}
