// Package metrics exposes controller state as Prometheus collectors.
// All methods are safe on a nil *Metrics so callers can run without them.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/vent-controller/internal/logic"
)

var allModes = []logic.Mode{
	logic.ModeSafetyClosed,
	logic.ModeIdleClosed,
	logic.ModeFreeVent,
	logic.ModeLimitedCycle,
	logic.ModeQuickCycle,
}

// Metrics holds the controller's collectors on a private registry.
type Metrics struct {
	reg *prometheus.Registry

	ventOpen       prometheus.Gauge
	dehumOn        prometheus.Gauge
	mode           *prometheus.GaugeVec
	smoothed       *prometheus.GaugeVec
	available      *prometheus.GaugeVec
	fallback       *prometheus.GaugeVec
	transitions    *prometheus.CounterVec
	invalidSamples *prometheus.CounterVec
	tickDuration   prometheus.Histogram
	mqttConnected  prometheus.Gauge
	cbState        *prometheus.GaugeVec
	httpRequests   *prometheus.CounterVec

	last logic.TransitionCounts
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		ventOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vent_open",
			Help: "1 when the vent is commanded open.",
		}),
		dehumOn: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vent_dehumidifier_on",
			Help: "1 when the dehumidifier is commanded on.",
		}),
		mode: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vent_mode",
			Help: "1 for the current venting mode, 0 for the others.",
		}, []string{"mode"}),
		smoothed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vent_metric_value",
			Help: "Smoothed sensor value by metric.",
		}, []string{"metric", "unit"}),
		available: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vent_metric_available",
			Help: "1 when the metric has a usable smoothed value.",
		}, []string{"metric"}),
		fallback: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vent_metric_fallback",
			Help: "1 when the latest raw sample was invalid and the fallback is in use.",
		}, []string{"metric"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vent_transitions_total",
			Help: "Applied output transitions by kind.",
		}, []string{"kind"}),
		invalidSamples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vent_invalid_samples_total",
			Help: "Samples that arrived invalid, by metric.",
		}, []string{"metric"}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vent_tick_duration_seconds",
			Help:    "Time spent collecting and deciding per tick.",
			Buckets: prometheus.DefBuckets,
		}),
		mqttConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vent_mqtt_connected",
			Help: "1 when the MQTT connection is open.",
		}),
		cbState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cb_state",
			Help: "Circuit breaker state gauge (0 closed, 1 half, 2 open).",
		}, []string{"target"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
	}

	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ventOpen,
		m.dehumOn,
		m.mode,
		m.smoothed,
		m.available,
		m.fallback,
		m.transitions,
		m.invalidSamples,
		m.tickDuration,
		m.mqttConnected,
		m.cbState,
		m.httpRequests,
	)

	for _, mode := range allModes {
		m.mode.WithLabelValues(string(mode)).Set(0)
	}
	m.cbState.WithLabelValues("purpleair").Set(0)
	return m
}

// Registry returns the underlying registry, for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// ObserveInput counts invalid samples in a tick's input.
func (m *Metrics) ObserveInput(in logic.Input) {
	if m == nil {
		return
	}
	for _, s := range in.Samples {
		if !s.Valid {
			m.invalidSamples.WithLabelValues(s.Metric.String()).Inc()
		}
	}
}

// Update records a tick's decision and the cumulative transition counts.
func (m *Metrics) Update(snap logic.Snapshot, counts logic.TransitionCounts, took time.Duration) {
	if m == nil {
		return
	}
	m.ventOpen.Set(boolFloat(snap.VentOpen))
	m.dehumOn.Set(boolFloat(snap.DehumidifyOn))
	for _, mode := range allModes {
		m.mode.WithLabelValues(string(mode)).Set(boolFloat(mode == snap.Mode))
	}

	for _, metric := range logic.AllMetrics {
		sv := snap.Metric(metric)
		name := metric.String()
		m.available.WithLabelValues(name).Set(boolFloat(sv.Available))
		m.fallback.WithLabelValues(name).Set(boolFloat(sv.Fallback))
		if sv.Available {
			m.smoothed.WithLabelValues(name, metric.Unit()).Set(sv.Value)
		}
	}

	m.addDelta("vent_open", counts.VentOpen, m.last.VentOpen)
	m.addDelta("vent_close", counts.VentClose, m.last.VentClose)
	m.addDelta("dehumidifier_on", counts.DehumOn, m.last.DehumOn)
	m.addDelta("dehumidifier_off", counts.DehumOff, m.last.DehumOff)
	m.addDelta("safety_override", counts.SafetyOverrides, m.last.SafetyOverrides)
	m.last = counts

	m.tickDuration.Observe(took.Seconds())
}

// SetMQTTConnected records the broker connection state.
func (m *Metrics) SetMQTTConnected(connected bool) {
	if m == nil {
		return
	}
	m.mqttConnected.Set(boolFloat(connected))
}

// SetBreakerState records a gobreaker state name ("closed", "half-open", "open").
func (m *Metrics) SetBreakerState(target, state string) {
	if m == nil {
		return
	}
	var v float64
	switch state {
	case "half-open":
		v = 1
	case "open":
		v = 2
	}
	m.cbState.WithLabelValues(target).Set(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler counts requests to next under the given route label.
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		m.httpRequests.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
	})
}

func (m *Metrics) addDelta(kind string, now, prev int) {
	if now > prev {
		m.transitions.WithLabelValues(kind).Add(float64(now - prev))
	}
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
