package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/sweeney/vent-controller/internal/gpio"
	"github.com/sweeney/vent-controller/internal/logic"
	"github.com/sweeney/vent-controller/internal/metrics"
	"github.com/sweeney/vent-controller/internal/mqtt"
	"github.com/sweeney/vent-controller/internal/status"
)

var networkVars = []string{
	"NETWORK_TYPE",
	"NETWORK_IP",
	"NETWORK_STATUS",
	"NETWORK_GATEWAY",
	"NETWORK_WIFI_STATUS",
	"NETWORK_WIFI_SSID",
}

// clearNetworkEnv blanks the pi-helper variables and restores them after the test.
func clearNetworkEnv(t *testing.T) {
	t.Helper()
	for _, k := range networkVars {
		t.Setenv(k, "")
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReadNetworkInfoAllSet(t *testing.T) {
	t.Setenv("NETWORK_TYPE", "wifi")
	t.Setenv("NETWORK_IP", "192.168.1.100")
	t.Setenv("NETWORK_STATUS", "connected")
	t.Setenv("NETWORK_GATEWAY", "192.168.1.1")
	t.Setenv("NETWORK_WIFI_STATUS", "connected")
	t.Setenv("NETWORK_WIFI_SSID", "MyNetwork")

	info := readNetworkInfo("", discardLogger())
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo")
	}

	want := status.NetworkInfo{
		Type:       "wifi",
		IP:         "192.168.1.100",
		Status:     "connected",
		Gateway:    "192.168.1.1",
		WifiStatus: "connected",
		SSID:       "MyNetwork",
	}
	if *info != want {
		t.Errorf("got %+v, want %+v", *info, want)
	}
}

func TestReadNetworkInfoNoneSet(t *testing.T) {
	clearNetworkEnv(t)

	info := readNetworkInfo("", discardLogger())
	if info != nil {
		t.Errorf("expected nil when NETWORK_STATUS is unset, got %+v", info)
	}
}

func TestReadNetworkInfoPartial(t *testing.T) {
	clearNetworkEnv(t)
	t.Setenv("NETWORK_STATUS", "connected")

	info := readNetworkInfo("", discardLogger())
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo when NETWORK_STATUS is set")
	}
	if info.Status != "connected" {
		t.Errorf("Status: got %q, want %q", info.Status, "connected")
	}
	if info.Type != "" || info.IP != "" || info.SSID != "" {
		t.Errorf("expected unset fields to be empty, got %+v", info)
	}
}

func TestReadNetworkInfoFromEnvFile(t *testing.T) {
	clearNetworkEnv(t)

	path := filepath.Join(t.TempDir(), "pi-helper.env")
	body := "NETWORK_TYPE=ethernet\nNETWORK_IP=10.0.0.7\nNETWORK_STATUS=connected\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	info := readNetworkInfo(path, discardLogger())
	if info == nil {
		t.Fatal("expected NetworkInfo from env file")
	}
	if info.Type != "ethernet" || info.IP != "10.0.0.7" {
		t.Errorf("got %+v", info)
	}
}

func TestReadNetworkInfoMissingEnvFile(t *testing.T) {
	clearNetworkEnv(t)

	info := readNetworkInfo(filepath.Join(t.TempDir(), "absent.env"), discardLogger())
	if info != nil {
		t.Errorf("expected nil, got %+v", info)
	}
}

func TestResolveWSBroker(t *testing.T) {
	tests := []struct {
		ws, broker, want string
	}{
		{"=broker", "tcp://192.168.1.200:1883", "ws://192.168.1.200:9001"},
		{"off", "tcp://192.168.1.200:1883", ""},
		{"ws://other:8080/mqtt", "tcp://192.168.1.200:1883", "ws://other:8080/mqtt"},
	}
	for _, tt := range tests {
		if got := resolveWSBroker(tt.ws, tt.broker, discardLogger()); got != tt.want {
			t.Errorf("resolveWSBroker(%q, %q) = %q, want %q", tt.ws, tt.broker, got, tt.want)
		}
	}
}

func TestNewLoggerRejectsBadLevel(t *testing.T) {
	if _, _, err := newLogger("chatty", ""); err == nil {
		t.Error("expected error for unknown log level")
	}
}

// --- loop tests ---

// fakeClock returns a function that yields start, start+step, start+2*step, ...
// on successive calls. Not safe for concurrent use (only called from the loop goroutine).
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * step)
		n++
		return t
	}
}

// conditions is one tick's worth of sensor values.
type conditions struct {
	indoorTemp, indoorHum       float64
	outdoorTemp, outdoorHum, aq float64
}

// mild: warm indoors, cool clean outdoor air, humidity inside the band.
var mild = conditions{indoorTemp: 78, indoorHum: 48, outdoorTemp: 60, outdoorHum: 50, aq: 20}

// smoky is mild with hazardous outdoor air.
var smoky = conditions{indoorTemp: 78, indoorHum: 48, outdoorTemp: 60, outdoorHum: 50, aq: 300}

// scriptedCollector returns one scripted tick per Collect call, repeating the last.
type scriptedCollector struct {
	ticks []conditions
	calls int
}

func (c *scriptedCollector) Collect(_ context.Context, now time.Time) logic.Input {
	i := c.calls
	if i >= len(c.ticks) {
		i = len(c.ticks) - 1
	}
	c.calls++
	v := c.ticks[i]
	sample := func(m logic.Metric, val float64) logic.Sample {
		return logic.Sample{Metric: m, Value: val, Time: now, Valid: true}
	}
	return logic.Input{
		Time: now,
		Samples: []logic.Sample{
			sample(logic.IndoorTemp, v.indoorTemp),
			sample(logic.IndoorHumidity, v.indoorHum),
			sample(logic.OutdoorTemp, v.outdoorTemp),
			sample(logic.OutdoorHumidity, v.outdoorHum),
			sample(logic.OutdoorAQI, v.aq),
		},
	}
}

type fixedBreaker string

func (b fixedBreaker) BreakerState() string { return string(b) }

// flakyRelay fails the first n Set calls.
type flakyRelay struct {
	*gpio.FakeRelay
	failures int
}

func (r *flakyRelay) Set(vent, dehum bool) error {
	if r.failures > 0 {
		r.failures--
		return errors.New("line busy")
	}
	return r.FakeRelay.Set(vent, dehum)
}

// testLoop builds a loop with default tuning and no status collaborators.
func testLoop(collector inputCollector, relay gpio.Relay, pub *mqtt.FakePublisher) *loop {
	return &loop{
		cfg:       logic.DefaultConfig(),
		collector: collector,
		relay:     relay,
		publisher: pub,
		log:       discardLogger(),
	}
}

// runLoop drives l for nTicks and then delivers signal, returning run's error.
func runLoop(t *testing.T, l *loop, clock func() time.Time, nTicks int, signal os.Signal) error {
	t.Helper()
	tick := make(chan time.Time)
	sig := make(chan os.Signal)
	done := make(chan error, 1)

	go func() {
		done <- l.run(context.Background(), clock, tick, sig)
	}()

	for i := 0; i < nTicks; i++ {
		tick <- time.Time{}
	}
	sig <- signal

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not exit")
		return nil
	}
}

var start = time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

func TestLoopOpensVentAfterDebounce(t *testing.T) {
	relay := gpio.NewFakeRelay(gpio.ShutdownHold)
	pub := mqtt.NewFakePublisher()
	l := testLoop(&scriptedCollector{ticks: []conditions{mild}}, relay, pub)

	// 30s ticks with a 60s debounce: the first tick is held, the second opens.
	err := runLoop(t, l, fakeClock(start, 30*time.Second), 3, syscall.SIGTERM)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(pub.States) != 3 {
		t.Fatalf("expected 3 published states, got %d", len(pub.States))
	}
	first := pub.States[0]
	if first.Mode != logic.ModeFreeVent || first.VentOpen || !first.VentHeld {
		t.Errorf("tick 1: got mode=%s open=%v held=%v, want FREE_VENT held closed", first.Mode, first.VentOpen, first.VentHeld)
	}
	if !pub.States[1].VentOpen {
		t.Error("tick 2: expected vent open")
	}

	// First tick forces a write; second changes the vent; third is a no-op.
	want := []gpio.Command{{Vent: false, Dehum: false}, {Vent: true, Dehum: false}}
	if len(relay.Commands) != len(want) {
		t.Fatalf("relay commands: got %+v, want %+v", relay.Commands, want)
	}
	for i := range want {
		if relay.Commands[i] != want[i] {
			t.Errorf("command %d: got %+v, want %+v", i, relay.Commands[i], want[i])
		}
	}
}

func TestLoopSafetyClosesImmediately(t *testing.T) {
	relay := gpio.NewFakeRelay(gpio.ShutdownHold)
	pub := mqtt.NewFakePublisher()
	l := testLoop(&scriptedCollector{ticks: []conditions{mild, mild, smoky}}, relay, pub)

	// 1 minute ticks: tick 1 opens the vent and tick 3 brings the smoke.
	err := runLoop(t, l, fakeClock(start, time.Minute), 3, syscall.SIGINT)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	last := pub.States[2]
	if last.Mode != logic.ModeSafetyClosed || !last.Safety {
		t.Fatalf("tick 3: got mode=%s safety=%v", last.Mode, last.Safety)
	}
	if last.VentOpen {
		t.Error("tick 3: vent should be closed by the safety override")
	}
	if vent, _ := relay.State(); vent {
		t.Error("relay vent still energized")
	}
}

func TestLoopRetriesFailedRelayWrite(t *testing.T) {
	relay := &flakyRelay{FakeRelay: gpio.NewFakeRelay(gpio.ShutdownHold), failures: 2}
	pub := mqtt.NewFakePublisher()
	l := testLoop(&scriptedCollector{ticks: []conditions{mild}}, relay, pub)

	err := runLoop(t, l, fakeClock(start, time.Minute), 3, syscall.SIGTERM)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Ticks 1 and 2 fail, tick 3 lands the open command.
	if len(pub.States) != 3 {
		t.Errorf("loop should keep publishing through relay errors, got %d states", len(pub.States))
	}
	if vent, _ := relay.State(); !vent {
		t.Error("expected vent open once the relay recovered")
	}
	if len(relay.Commands) != 1 {
		t.Errorf("expected exactly one successful write, got %+v", relay.Commands)
	}
}

func TestLoopPublishError(t *testing.T) {
	relay := gpio.NewFakeRelay(gpio.ShutdownHold)
	pub := mqtt.NewFakePublisher()
	pub.PublishError = errors.New("broker down")
	l := testLoop(&scriptedCollector{ticks: []conditions{mild}}, relay, pub)

	err := runLoop(t, l, fakeClock(start, time.Minute), 2, syscall.SIGTERM)
	if err != nil {
		t.Fatalf("publish error must not stop the loop: %v", err)
	}
	if vent, _ := relay.State(); !vent {
		t.Error("relays should still be driven while publishing fails")
	}
	if len(pub.SystemEvents) != 1 || pub.SystemEvents[0].Event != mqtt.EventShutdown {
		t.Errorf("expected a SHUTDOWN event, got %v", pub.SystemEventNames())
	}
}

func TestLoopShutdownSIGINT(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	l := testLoop(&scriptedCollector{ticks: []conditions{mild}}, gpio.NewFakeRelay(gpio.ShutdownHold), pub)

	if err := runLoop(t, l, fakeClock(start, time.Minute), 0, syscall.SIGINT); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(pub.SystemEvents) != 1 {
		t.Fatalf("expected 1 system event, got %d", len(pub.SystemEvents))
	}
	ev := pub.SystemEvents[0]
	if ev.Event != mqtt.EventShutdown || ev.Reason != "SIGINT" || !ev.Retained {
		t.Errorf("got %+v", ev)
	}
}

func TestLoopShutdownSIGTERMCarriesStatus(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	pub.Connected = true
	tracker := status.NewTracker(start, "boot-1", status.Config{Broker: "tcp://broker:1883"})

	l := testLoop(&scriptedCollector{ticks: []conditions{mild}}, gpio.NewFakeRelay(gpio.ShutdownHold), pub)
	l.tracker = tracker
	l.mqttState = pub

	if err := runLoop(t, l, fakeClock(start, time.Minute), 1, syscall.SIGTERM); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(pub.SystemPayloads) != 1 {
		t.Fatalf("expected 1 system payload, got %d", len(pub.SystemPayloads))
	}
	payload := string(pub.SystemPayloads[0])
	for _, want := range []string{`"event":"SHUTDOWN"`, `"reason":"SIGTERM"`, `"boot_id":"boot-1"`, `"mode":"FREE_VENT"`, `"connected":true`} {
		if !strings.Contains(payload, want) {
			t.Errorf("shutdown payload missing %s: %s", want, payload)
		}
	}
}

func TestLoopHeartbeat(t *testing.T) {
	clearNetworkEnv(t)
	pub := mqtt.NewFakePublisher()
	l := testLoop(&scriptedCollector{ticks: []conditions{mild}}, gpio.NewFakeRelay(gpio.ShutdownHold), pub)
	l.heartbeat = 2 * time.Minute

	// Ticks at +1m..+4m: heartbeats at +2m and +4m.
	if err := runLoop(t, l, fakeClock(start, time.Minute), 4, syscall.SIGTERM); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := pub.SystemEventNames()
	want := []string{mqtt.EventHeartbeat, mqtt.EventHeartbeat, mqtt.EventShutdown}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("system events: got %v, want %v", got, want)
	}
	hb := pub.SystemEvents[0]
	if !hb.Timestamp.Equal(start.Add(2 * time.Minute)) {
		t.Errorf("heartbeat timestamp: got %v", hb.Timestamp)
	}
	if hb.Retained {
		t.Error("heartbeat should not be retained")
	}
}

func TestLoopHeartbeatDisabled(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	l := testLoop(&scriptedCollector{ticks: []conditions{mild}}, gpio.NewFakeRelay(gpio.ShutdownHold), pub)

	if err := runLoop(t, l, fakeClock(start, time.Hour), 3, syscall.SIGTERM); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if names := pub.SystemEventNames(); len(names) != 1 {
		t.Errorf("expected only SHUTDOWN, got %v", names)
	}
}

func TestLoopHeartbeatIncludesNetworkInfo(t *testing.T) {
	clearNetworkEnv(t)
	t.Setenv("NETWORK_STATUS", "connected")
	t.Setenv("NETWORK_WIFI_SSID", "Attic")

	pub := mqtt.NewFakePublisher()
	l := testLoop(&scriptedCollector{ticks: []conditions{mild}}, gpio.NewFakeRelay(gpio.ShutdownHold), pub)
	l.tracker = status.NewTracker(start, "boot-2", status.Config{})
	l.heartbeat = time.Minute

	if err := runLoop(t, l, fakeClock(start, time.Minute), 1, syscall.SIGTERM); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(pub.SystemPayloads) < 1 {
		t.Fatal("expected a heartbeat payload")
	}
	payload := string(pub.SystemPayloads[0])
	if !strings.Contains(payload, `"event":"HEARTBEAT"`) || !strings.Contains(payload, `"ssid":"Attic"`) {
		t.Errorf("heartbeat payload missing network info: %s", payload)
	}
}

func TestLoopUpdatesTrackerAndMetrics(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	pub.Connected = true
	tracker := status.NewTracker(start, "boot-3", status.Config{})
	m := metrics.New()

	l := testLoop(&scriptedCollector{ticks: []conditions{mild}}, gpio.NewFakeRelay(gpio.ShutdownHold), pub)
	l.tracker = tracker
	l.metrics = m
	l.mqttState = pub
	l.breaker = fixedBreaker("closed")

	if err := runLoop(t, l, fakeClock(start, time.Minute), 2, syscall.SIGTERM); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := tracker.Snapshot()
	if !snap.Ready {
		t.Fatal("tracker should be ready after a tick")
	}
	if !snap.Decision.VentOpen || snap.Counts.VentOpen != 1 {
		t.Errorf("tracker decision: open=%v counts=%+v", snap.Decision.VentOpen, snap.Counts)
	}
	if !snap.MQTTConnected || snap.OutdoorBreaker != "closed" {
		t.Errorf("tracker status: mqtt=%v breaker=%q", snap.MQTTConnected, snap.OutdoorBreaker)
	}

	expected := `
# HELP vent_open 1 when the vent is commanded open.
# TYPE vent_open gauge
vent_open 1
`
	if err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "vent_open"); err != nil {
		t.Error(err)
	}
	if n := testutil.CollectAndCount(m.Registry(), "vent_tick_duration_seconds"); n != 1 {
		t.Errorf("expected tick histogram, got %d series", n)
	}
}
