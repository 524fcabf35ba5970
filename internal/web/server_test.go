package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/vent-controller/internal/logic"
	"github.com/sweeney/vent-controller/internal/metrics"
	"github.com/sweeney/vent-controller/internal/status"
)

func newTestServer(t *testing.T) (*httptest.Server, *status.Tracker) {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := status.Config{
		PollMs:      30000,
		HeartbeatMs: 900000,
		Broker:      "tcp://192.168.1.200:1883",
		HTTPAddr:    ":80",
		Outdoor:     "http://192.168.4.4",
		Indoor:      "gpio 4",
		Tuning:      logic.DefaultConfig(),
	}
	tr := status.NewTracker(start, "3f1c", cfg)
	srv := New(":0", tr, metrics.New())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, tr
}

func decision(at time.Time, mode logic.Mode, ventOpen bool) logic.Snapshot {
	var m logic.Metrics
	m[logic.IndoorHumidity] = logic.SmoothedValue{Metric: logic.IndoorHumidity, Value: 61.24, Available: true, Count: 4}
	m[logic.OutdoorAQI] = logic.SmoothedValue{Metric: logic.OutdoorAQI, Value: 71, Available: true, Count: 5, Fallback: true, Age: 95 * time.Second}
	return logic.Snapshot{
		Timestamp:    at,
		VentOpen:     ventOpen,
		DehumidifyOn: true,
		Mode:         mode,
		Reason:       "vent " + string(mode) + ": test",
		Safety:       mode == logic.ModeSafetyClosed,
		Metrics:      m,
	}
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr := newTestServer(t)
	tr.Update(decision(time.Now(), logic.ModeSafetyClosed, false), logic.TransitionCounts{VentOpen: 5, VentClose: 5, SafetyOverrides: 2})
	tr.SetMQTTConnected(true)

	resp, body := get(t, ts.URL+"/index.json")
	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}

	var sj status.StatusJSON
	if err := json.Unmarshal([]byte(body), &sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if sj.Status.Mode != "SAFETY_CLOSED" || sj.Status.Vent != "CLOSED" || sj.Status.Dehumidifier != "ON" {
		t.Errorf("unexpected outputs: %s %s %s", sj.Status.Mode, sj.Status.Vent, sj.Status.Dehumidifier)
	}
	if !sj.Status.MQTT.Connected || sj.Status.MQTT.Broker != "tcp://192.168.1.200:1883" {
		t.Errorf("unexpected mqtt: %+v", sj.Status.MQTT)
	}
	if sj.Status.Counts.SafetyOverrides != 2 {
		t.Errorf("Counts.SafetyOverrides: got %d, want 2", sj.Status.Counts.SafetyOverrides)
	}
	if sj.Status.BootID != "3f1c" {
		t.Errorf("BootID: got %q", sj.Status.BootID)
	}
}

func TestJSONUnknownBeforeFirstDecision(t *testing.T) {
	ts, _ := newTestServer(t)

	_, body := get(t, ts.URL+"/index.json")
	var sj status.StatusJSON
	json.Unmarshal([]byte(body), &sj)

	if sj.Status.Ready {
		t.Error("expected Ready=false initially")
	}
	if sj.Status.Vent != "UNKNOWN" || sj.Status.Dehumidifier != "UNKNOWN" {
		t.Errorf("expected UNKNOWN outputs, got %s/%s", sj.Status.Vent, sj.Status.Dehumidifier)
	}
}

func TestHTMLEndpointRoot(t *testing.T) {
	ts, tr := newTestServer(t)
	tr.Update(decision(time.Now(), logic.ModeFreeVent, true), logic.TransitionCounts{VentOpen: 1})
	tr.SetNetwork(&status.NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected", SSID: "MyNet"})

	resp, body := get(t, ts.URL+"/")
	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type: got %q, want text/html", ct)
	}
	for _, want := range []string{"FREE_VENT", ">OPEN<", "61.2 % (4 samples)", "fallback 1m35s old", "192.168.1.42", "MyNet"} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
	if strings.Contains(body, "mqtt.connect") {
		t.Error("live script should be omitted without a websocket broker")
	}
}

func TestHTMLLiveScriptWithWSBroker(t *testing.T) {
	tr := status.NewTracker(time.Now(), "", status.Config{WSBroker: "ws://192.168.1.200:9001"})
	ts := httptest.NewServer(New(":0", tr, nil).Handler())
	defer ts.Close()

	_, body := get(t, ts.URL+"/")
	if !strings.Contains(body, "mqtt.connect") || !strings.Contains(body, "ventilation") {
		t.Error("expected live update script")
	}
}

func TestHTMLEndpointIndexHTML(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, body := get(t, ts.URL+"/index.html")
	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(body, "UNKNOWN") {
		t.Error("expected UNKNOWN outputs before the first decision")
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, _ := get(t, ts.URL+"/nonexistent")
	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	ts, tr := newTestServer(t)

	resp, body := get(t, ts.URL+"/healthz")
	if resp.StatusCode != http.StatusServiceUnavailable || !strings.Contains(body, "starting") {
		t.Errorf("before first tick: got %d %s", resp.StatusCode, body)
	}

	tr.Update(decision(time.Now(), logic.ModeIdleClosed, false), logic.TransitionCounts{})
	resp, body = get(t, ts.URL+"/healthz")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, `"ok"`) {
		t.Errorf("fresh tick: got %d %s", resp.StatusCode, body)
	}

	tr.Update(decision(time.Now().Add(-10*time.Minute), logic.ModeIdleClosed, false), logic.TransitionCounts{})
	resp, body = get(t, ts.URL+"/healthz")
	if resp.StatusCode != http.StatusServiceUnavailable || !strings.Contains(body, "stale") {
		t.Errorf("stale tick: got %d %s", resp.StatusCode, body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	get(t, ts.URL+"/index.json")
	resp, body := get(t, ts.URL+"/metrics")
	if resp.StatusCode != 200 {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(body, `http_requests_total{route="/index.json",status="200"} 1`) {
		t.Errorf("expected request counter in exposition, got:\n%s", body)
	}
}

func TestMetricsDisabled(t *testing.T) {
	tr := status.NewTracker(time.Now(), "", status.Config{})
	ts := httptest.NewServer(New(":0", tr, nil).Handler())
	defer ts.Close()

	resp, _ := get(t, ts.URL+"/metrics")
	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestStateChangesReflectedInResponse(t *testing.T) {
	ts, tr := newTestServer(t)

	tr.Update(decision(time.Now(), logic.ModeFreeVent, true), logic.TransitionCounts{VentOpen: 1})
	_, body := get(t, ts.URL+"/index.json")
	var sj1 status.StatusJSON
	json.Unmarshal([]byte(body), &sj1)
	if sj1.Status.Vent != "OPEN" {
		t.Errorf("Vent: got %q, want OPEN", sj1.Status.Vent)
	}

	tr.Update(decision(time.Now(), logic.ModeSafetyClosed, false), logic.TransitionCounts{VentOpen: 1, VentClose: 1, SafetyOverrides: 1})
	tr.SetMQTTConnected(true)

	_, body = get(t, ts.URL+"/index.json")
	var sj2 status.StatusJSON
	json.Unmarshal([]byte(body), &sj2)
	if sj2.Status.Vent != "CLOSED" || sj2.Status.Mode != "SAFETY_CLOSED" {
		t.Errorf("expected closed by safety, got %s %s", sj2.Status.Vent, sj2.Status.Mode)
	}
	if !sj2.Status.MQTT.Connected {
		t.Error("expected MQTT connected after update")
	}
}
