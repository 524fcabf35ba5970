package logic

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func inputAt(at time.Time, r readings) Input {
	return Input{
		Time: at,
		Samples: []Sample{
			valid(OutdoorAQI, r.aqi, at),
			valid(IndoorTemp, r.inTemp, at),
			valid(IndoorHumidity, r.inHum, at),
			valid(OutdoorTemp, r.outTemp, at),
			valid(OutdoorHumidity, r.outHum, at),
		},
	}
}

func newTestController(t *testing.T) *Controller {
	t.Helper()
	c, err := NewController(scenarioConfig(), t0)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	return c
}

var (
	coolOutside = readings{aqi: 10, inTemp: 78, inHum: 45, outTemp: 65, outHum: 50}
	smoky       = readings{aqi: 150, inTemp: 78, inHum: 45, outTemp: 65, outHum: 50}
	rainy       = readings{aqi: 10, inTemp: 78, inHum: 45, outTemp: 65, outHum: 95}
)

func TestNewControllerRejectsInvalidConfig(t *testing.T) {
	cfg := scenarioConfig()
	cfg.MinOutdoorTemp = 100
	cfg.MaxOutdoorTemp = 90

	_, err := NewController(cfg, t0)
	if err == nil {
		t.Fatal("expected error for min >= max outdoor temp")
	}
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestControllerStartsClosed(t *testing.T) {
	c := newTestController(t)
	last := c.Last()
	if last.VentOpen || last.DehumidifyOn {
		t.Errorf("outputs must start off, got %+v", last)
	}
	if c.State().Mode != ModeIdleClosed {
		t.Errorf("expected initial mode IDLE_CLOSED, got %s", c.State().Mode)
	}
}

func TestControllerFirstOpenWaitsForDebounce(t *testing.T) {
	c := newTestController(t)

	snap := c.Process(inputAt(t0.Add(30*time.Second), coolOutside))
	if snap.Mode != ModeFreeVent {
		t.Fatalf("expected FREE_VENT, got %s", snap.Mode)
	}
	if snap.VentOpen || !snap.VentHeld {
		t.Errorf("open within debounce of start must be held, got open=%v held=%v", snap.VentOpen, snap.VentHeld)
	}
	if !strings.Contains(snap.Reason, "held by debounce") {
		t.Errorf("reason should mention debounce: %q", snap.Reason)
	}

	snap = c.Process(inputAt(t0.Add(60*time.Second), coolOutside))
	if !snap.VentOpen {
		t.Error("expected vent open once debounce interval elapsed")
	}
	if c.Counts().VentOpen != 1 {
		t.Errorf("expected 1 vent open transition, got %d", c.Counts().VentOpen)
	}
}

func TestControllerSafetyOverridesDebounce(t *testing.T) {
	c := newTestController(t)
	open := t0.Add(2 * time.Minute)
	c.Process(inputAt(open, coolOutside))
	if !c.Last().VentOpen {
		t.Fatal("setup: expected vent open")
	}

	// A single smoky sample is enough to drag the 2-sample mean over threshold.
	snap := c.Process(inputAt(open.Add(time.Second), smoky))
	if snap.Mode != ModeSafetyClosed {
		t.Fatalf("expected SAFETY_CLOSED, got %s (aqi %.1f)", snap.Mode, snap.Metric(OutdoorAQI).Value)
	}
	if snap.VentOpen {
		t.Error("safety closure must ignore debounce")
	}
	if !snap.Safety {
		t.Error("expected Safety flag")
	}
	if got := c.Counts().SafetyOverrides; got != 1 {
		t.Errorf("expected 1 safety override, got %d", got)
	}
}

func TestControllerNonSafetyCloseIsDebounced(t *testing.T) {
	c := newTestController(t)
	open := t0.Add(2 * time.Minute)
	c.Process(inputAt(open, coolOutside))

	// Outdoor humidity spikes: five samples so the mean exceeds the max.
	var snap Snapshot
	for i := 1; i <= 5; i++ {
		snap = c.Process(inputAt(open.Add(time.Duration(i)*5*time.Second), rainy))
	}
	if snap.Mode != ModeIdleClosed {
		t.Fatalf("expected IDLE_CLOSED, got %s", snap.Mode)
	}
	if !snap.VentOpen || !snap.VentHeld {
		t.Errorf("range-guard closure within debounce must be held, got open=%v held=%v", snap.VentOpen, snap.VentHeld)
	}

	snap = c.Process(inputAt(open.Add(time.Minute), rainy))
	if snap.VentOpen {
		t.Error("expected closure after debounce interval")
	}
}

func TestControllerDebounceProperty(t *testing.T) {
	c := newTestController(t)
	// Alternate raw decisions every 20s; output may only change once per minute.
	seq := []readings{coolOutside, rainy, coolOutside, rainy, coolOutside, rainy, coolOutside, rainy}

	prev := c.Last()
	lastChange := t0
	for i, r := range seq {
		// Five ticks per reading so the smoothed value follows the raw input.
		for j := 0; j < WindowSize; j++ {
			at := t0.Add(time.Duration(i*WindowSize+j+1) * 4 * time.Second)
			snap := c.Process(inputAt(at, r))
			if snap.VentOpen != prev.VentOpen {
				if at.Sub(lastChange) < time.Minute {
					t.Fatalf("output flipped %v after previous change", at.Sub(lastChange))
				}
				lastChange = at
			}
			prev = snap
		}
	}
}

func TestControllerMissingSamplesAreInvalid(t *testing.T) {
	c := newTestController(t)
	c.Process(inputAt(t0.Add(10*time.Second), coolOutside))

	// Only AQI reported on the next tick.
	at := t0.Add(40 * time.Second)
	snap := c.Process(Input{Time: at, Samples: []Sample{valid(OutdoorAQI, 12, at)}})

	in := snap.Metric(IndoorTemp)
	if !in.Fallback || in.Value != 78 {
		t.Errorf("expected indoor temp on fallback at 78, got %+v", in)
	}
	if snap.Metric(OutdoorAQI).Fallback {
		t.Error("aqi was reported and must not be on fallback")
	}
}

func TestControllerIndoorHumidityFallbackScenario(t *testing.T) {
	c := newTestController(t)
	humid := readings{aqi: 10, inTemp: 73, inHum: 70, outTemp: 70, outHum: 50}
	var tick int
	next := func() time.Time {
		tick++
		return t0.Add(time.Duration(tick) * 30 * time.Second)
	}

	var snap Snapshot
	for i := 0; i < 5; i++ {
		snap = c.Process(inputAt(next(), humid))
	}
	if !snap.DehumidifyOn {
		t.Fatal("setup: expected dehumidifier on")
	}
	want := snap.Metric(IndoorHumidity).Value

	// Indoor sensor fails for 9 minutes: value held, fallback flagged.
	for i := 0; i < 18; i++ {
		at := next()
		in := inputAt(at, humid)
		in.Samples[2] = invalid(IndoorHumidity, at)
		snap = c.Process(in)
		sv := snap.Metric(IndoorHumidity)
		if !sv.Fallback || sv.Value != want {
			t.Fatalf("tick %d: expected fallback value %v, got %+v", i, want, sv)
		}
		if !snap.DehumidifyOn {
			t.Fatalf("tick %d: within stale timeout the dehumidifier keeps running", i)
		}
	}

	// Past the stale timeout the dehumidifier fails safe to off.
	for i := 0; i < 4; i++ {
		at := next()
		in := inputAt(at, humid)
		in.Samples[2] = invalid(IndoorHumidity, at)
		snap = c.Process(in)
	}
	if snap.DehumidifyOn {
		t.Errorf("expected dehumidifier off after stale timeout: %s", snap.Reason)
	}
}

func TestControllerDehumidifierHysteresisLatch(t *testing.T) {
	c := newTestController(t)
	base := readings{aqi: 10, inTemp: 73, outTemp: 70, outHum: 50}
	at := t0

	feed := func(hum float64) Snapshot {
		var s Snapshot
		r := base
		r.inHum = hum
		for i := 0; i < WindowSize; i++ {
			at = at.Add(time.Minute)
			s = c.Process(inputAt(at, r))
		}
		return s
	}

	if s := feed(60); !s.DehumidifyOn {
		t.Fatal("expected ON above band")
	}
	if s := feed(50); !s.DehumidifyOn {
		t.Error("expected ON held inside band")
	}
	if s := feed(44); s.DehumidifyOn {
		t.Error("expected OFF below band")
	}
	if s := feed(50); s.DehumidifyOn {
		t.Error("expected OFF held inside band")
	}
}

func TestControllerCheckHeartbeat(t *testing.T) {
	c := newTestController(t)

	if hb := c.CheckHeartbeat(t0.Add(time.Minute), 0); hb != nil {
		t.Error("interval 0 disables heartbeats")
	}
	if hb := c.CheckHeartbeat(t0.Add(14*time.Minute), 15*time.Minute); hb != nil {
		t.Error("heartbeat before interval")
	}
	hb := c.CheckHeartbeat(t0.Add(15*time.Minute), 15*time.Minute)
	if hb == nil {
		t.Fatal("expected heartbeat at interval")
	}
	if hb.Uptime != 15*time.Minute {
		t.Errorf("expected uptime 15m, got %v", hb.Uptime)
	}
	if again := c.CheckHeartbeat(t0.Add(16*time.Minute), 15*time.Minute); again != nil {
		t.Error("heartbeat interval restarts after firing")
	}
}
