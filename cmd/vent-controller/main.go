// Command vent-controller decides when to open the house vent and run the
// dehumidifier from indoor and outdoor sensor readings, drives the relays,
// and publishes its state to MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/sweeney/vent-controller/internal/config"
	"github.com/sweeney/vent-controller/internal/dht"
	"github.com/sweeney/vent-controller/internal/gpio"
	"github.com/sweeney/vent-controller/internal/logic"
	"github.com/sweeney/vent-controller/internal/metrics"
	"github.com/sweeney/vent-controller/internal/mqtt"
	"github.com/sweeney/vent-controller/internal/purpleair"
	"github.com/sweeney/vent-controller/internal/sensors"
	"github.com/sweeney/vent-controller/internal/status"
	"github.com/sweeney/vent-controller/internal/web"
)

// options holds the parsed command line.
type options struct {
	poll           time.Duration
	configPath     string
	broker         string
	heartbeat      time.Duration
	pinVent        int
	pinDehum       int
	pinDHT         int
	dhtIIO         string
	purpleAir      string
	sensorTimeout  time.Duration
	httpAddr       string
	wsBroker       string
	printState     bool
	printConfig    bool
	envFile        string
	logLevel       string
	logFile        string
	shutdownPolicy string
	activeLow      bool
}

func main() {
	var o options
	flag.DurationVar(&o.poll, "poll", 30*time.Second, "Sensor polling and decision interval")
	flag.StringVar(&o.configPath, "config", "", "YAML tuning file (empty for built-in defaults)")
	flag.StringVar(&o.broker, "broker", "tcp://192.168.1.200:1883", "MQTT broker address")
	flag.DurationVar(&o.heartbeat, "heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	flag.IntVar(&o.pinVent, "pin-vent", gpio.PinVent, "BCM pin number for the vent relay")
	flag.IntVar(&o.pinDehum, "pin-dehum", gpio.PinDehum, "BCM pin number for the dehumidifier relay")
	flag.IntVar(&o.pinDHT, "pin-dht", dht.DefaultPin, "BCM pin number for the DHT11 data line")
	flag.StringVar(&o.dhtIIO, "dht-iio", "", "Read the DHT11 through this kernel IIO device directory instead of GPIO")
	flag.StringVar(&o.purpleAir, "purpleair", purpleair.DefaultURL, "PurpleAir sensor base URL")
	flag.DurationVar(&o.sensorTimeout, "sensor-timeout", sensors.DefaultTimeout, "Timeout for each sensor read")
	flag.StringVar(&o.httpAddr, "http", ":80", "HTTP status address (empty to disable)")
	flag.StringVar(&o.wsBroker, "ws-broker", "=broker", `MQTT websocket URL for live UI ("=broker" derives from --broker, "off" disables)`)
	flag.BoolVar(&o.printState, "print-state", false, "Read sensors once, print the decision without actuating, and exit")
	flag.BoolVar(&o.printConfig, "print-config", false, "Print the effective tuning file and exit")
	flag.StringVar(&o.envFile, "env-file", "/run/pi-helper.env", "pi-helper network env file")
	flag.StringVar(&o.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.StringVar(&o.logFile, "log-file", "", "Also append logs to this file")
	flag.StringVar(&o.shutdownPolicy, "shutdown-policy", string(gpio.ShutdownHold), "Relay state on exit: hold or off")
	flag.BoolVar(&o.activeLow, "active-low", false, "Relays energize on a low line level")

	flag.Parse()

	logger, closeLog, err := newLogger(o.logLevel, o.logFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	err = run(o, logger)
	closeLog()
	if err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

// newLogger builds a text logger on stdout, optionally teed to a file.
func newLogger(level, file string) (*slog.Logger, func(), error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, nil, fmt.Errorf("parse log level: %w", err)
	}

	var w io.Writer = os.Stdout
	closeFn := func() {}
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w = io.MultiWriter(os.Stdout, f)
		closeFn = func() { f.Close() }
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), closeFn, nil
}

func run(o options, log *slog.Logger) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if o.printConfig {
		data, err := config.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		os.Stdout.Write(data)
		return nil
	}

	policy, err := gpio.ParseShutdownPolicy(o.shutdownPolicy)
	if err != nil {
		return err
	}

	// Initialize sensors
	outdoor := purpleair.New(o.purpleAir)
	indoorReader, indoorDesc, err := newIndoorReader(o)
	if err != nil {
		return fmt.Errorf("init dht: %w", err)
	}
	indoor := dht.NewSensor(indoorReader)
	defer indoor.Close()
	collector := sensors.NewCollector(outdoor, indoor, o.sensorTimeout, log.With("component", "sensors"))

	// Print state mode
	if o.printState {
		return printState(cfg, collector)
	}

	// Initialize relays
	relay, err := gpio.NewRealRelay(o.pinVent, o.pinDehum, o.activeLow, policy)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer func() {
		if err := relay.Close(); err != nil {
			log.Error("close relays", "error", err)
		}
	}()

	// Initialize MQTT
	bootID := uuid.NewString()
	publisher := mqtt.NewRealPublisher(mqtt.Options{
		Broker:   o.broker,
		ClientID: "vent-controller-" + bootID[:8],
		Logger:   log,
	})
	defer publisher.Close()

	m := metrics.New()

	// Initialize status tracker (before STARTUP so snapshot is available)
	wsBroker := resolveWSBroker(o.wsBroker, o.broker, log)
	tracker := status.NewTracker(time.Now(), bootID, status.Config{
		PollMs:      o.poll.Milliseconds(),
		HeartbeatMs: o.heartbeat.Milliseconds(),
		Broker:      o.broker,
		HTTPAddr:    o.httpAddr,
		WSBroker:    wsBroker,
		Outdoor:     o.purpleAir,
		Indoor:      indoorDesc,
		Tuning:      cfg,
	})
	if net := readNetworkInfo(o.envFile, log); net != nil {
		tracker.SetNetwork(net)
	}

	if err := publisher.PublishDiscovery(); err != nil {
		log.Warn("failed to publish discovery", "error", err)
	}

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      mqtt.EventStartup,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, mqtt.EventStartup, ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Warn("failed to publish startup event", "error", err)
	} else {
		log.Info("published startup event", "boot_id", bootID)
	}

	// Start HTTP status server
	if o.httpAddr != "" {
		srv := web.New(o.httpAddr, tracker, m)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("http server error", "error", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Info("http status server listening", "addr", o.httpAddr)
	}

	log.Info("started",
		"poll", o.poll,
		"broker", o.broker,
		"heartbeat", o.heartbeat,
		"indoor", indoorDesc,
		"outdoor", o.purpleAir,
		"shutdown_policy", policy,
	)

	ticker := time.NewTicker(o.poll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	l := &loop{
		cfg:       cfg,
		collector: collector,
		relay:     relay,
		publisher: publisher,
		mqttState: publisher,
		breaker:   outdoor,
		tracker:   tracker,
		metrics:   m,
		heartbeat: o.heartbeat,
		envFile:   o.envFile,
		log:       log,
	}
	return l.run(context.Background(), time.Now, ticker.C, sigCh)
}

func newIndoorReader(o options) (dht.Reader, string, error) {
	if o.dhtIIO != "" {
		return dht.NewIIOReader(o.dhtIIO), "iio " + o.dhtIIO, nil
	}
	r, err := dht.NewGPIOReader(o.pinDHT)
	if err != nil {
		return nil, "", err
	}
	return r, fmt.Sprintf("gpio %d", o.pinDHT), nil
}

// printState reads the sensors once and prints what the controller would do.
// The controller starts one debounce interval in the past so nothing is held.
func printState(cfg logic.Config, collector inputCollector) error {
	now := time.Now()
	controller, err := logic.NewController(cfg, now.Add(-cfg.DebounceInterval))
	if err != nil {
		return err
	}
	snap := controller.Process(collector.Collect(context.Background(), now))

	for _, m := range logic.AllMetrics {
		sv := snap.Metric(m)
		if sv.Available {
			fmt.Printf("%-17s %.1f %s\n", m.String()+":", sv.Value, m.Unit())
		} else {
			fmt.Printf("%-17s unavailable\n", m.String()+":")
		}
	}
	fmt.Printf("Mode: %s, Vent: %s, Dehumidifier: %s\n", snap.Mode, mqtt.VentState(snap.VentOpen), mqtt.OnOff(snap.DehumidifyOn))
	fmt.Printf("Reason: %s\n", snap.Reason)
	return nil
}

// inputCollector gathers one tick of samples. Implemented by *sensors.Collector.
type inputCollector interface {
	Collect(ctx context.Context, now time.Time) logic.Input
}

// breakerReporter exposes the outdoor sensor circuit breaker state.
type breakerReporter interface {
	BreakerState() string
}

// loop is the control loop and everything it drives.
type loop struct {
	cfg       logic.Config
	collector inputCollector
	relay     gpio.Relay
	publisher mqtt.Publisher
	mqttState mqtt.ConnectionStatus // may be nil
	breaker   breakerReporter       // may be nil
	tracker   *status.Tracker       // may be nil
	metrics   *metrics.Metrics      // may be nil
	heartbeat time.Duration
	envFile   string
	log       *slog.Logger
}

// run processes one decision per tick until a signal arrives.
func (l *loop) run(ctx context.Context, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	startTime := now()
	controller, err := logic.NewController(l.cfg, startTime)
	if err != nil {
		return err
	}
	applied := false

	for {
		select {
		case s := <-sig:
			l.log.Info("shutting down", "signal", s.String())
			l.shutdown(controller, now(), signalName(s))
			return nil

		case <-tick:
			t := now()
			wall := time.Now()

			input := l.collector.Collect(ctx, t)
			l.metrics.ObserveInput(input)
			snap := controller.Process(input)

			l.apply(snap, !applied)
			applied = true

			if err := l.publisher.PublishState(snap); err != nil {
				l.log.Warn("publish state", "error", err)
				// Don't crash on publish failure
			}

			l.refreshStatus(snap, controller.Counts())
			l.metrics.Update(snap, controller.Counts(), time.Since(wall))

			if hb := controller.CheckHeartbeat(t, l.heartbeat); hb != nil {
				l.publishHeartbeat(hb)
			}
		}
	}
}

// apply drives the relays when the decided outputs differ from the relay
// state. The first tick always writes so the hardware matches the decision.
func (l *loop) apply(snap logic.Snapshot, force bool) {
	vent, dehum := l.relay.State()
	if !force && vent == snap.VentOpen && dehum == snap.DehumidifyOn {
		l.log.Debug("tick", "mode", snap.Mode, "reason", snap.Reason)
		return
	}

	l.log.Info("actuate",
		"mode", snap.Mode,
		"vent", mqtt.VentState(snap.VentOpen),
		"dehumidifier", mqtt.OnOff(snap.DehumidifyOn),
		"safety", snap.Safety,
		"reason", snap.Reason,
	)
	if err := l.relay.Set(snap.VentOpen, snap.DehumidifyOn); err != nil {
		l.log.Error("relay write failed", "error", err)
	}
}

func (l *loop) refreshStatus(snap logic.Snapshot, counts logic.TransitionCounts) {
	connected := l.mqttState != nil && l.mqttState.IsConnected()
	l.metrics.SetMQTTConnected(connected)
	if l.breaker != nil {
		l.metrics.SetBreakerState("purpleair", l.breaker.BreakerState())
	}
	if l.tracker == nil {
		return
	}
	l.tracker.Update(snap, counts)
	if l.mqttState != nil {
		l.tracker.SetMQTTConnected(connected)
	}
	if l.breaker != nil {
		l.tracker.SetOutdoorBreaker(l.breaker.BreakerState())
	}
}

func (l *loop) publishHeartbeat(hb *logic.HeartbeatData) {
	l.log.Info("heartbeat",
		"uptime", hb.Uptime,
		"vent_open", hb.Counts.VentOpen,
		"vent_close", hb.Counts.VentClose,
		"dehum_on", hb.Counts.DehumOn,
		"dehum_off", hb.Counts.DehumOff,
		"safety_overrides", hb.Counts.SafetyOverrides,
	)

	event := mqtt.SystemEvent{
		Timestamp: hb.Timestamp,
		Event:     mqtt.EventHeartbeat,
	}
	if l.tracker != nil {
		// Refresh network info for heartbeat
		if net := readNetworkInfo(l.envFile, l.log); net != nil {
			l.tracker.SetNetwork(net)
		}
		event.RawPayload = status.FormatStatusEvent(l.tracker.Snapshot(), mqtt.EventHeartbeat, "")
	}
	if err := l.publisher.PublishSystem(event); err != nil {
		l.log.Warn("heartbeat publish error", "error", err)
	}
}

func (l *loop) shutdown(controller *logic.Controller, at time.Time, reason string) {
	event := mqtt.SystemEvent{
		Timestamp: at,
		Event:     mqtt.EventShutdown,
		Reason:    reason,
		Retained:  true,
	}
	if l.tracker != nil {
		if l.mqttState != nil {
			l.tracker.SetMQTTConnected(l.mqttState.IsConnected())
		}
		event.RawPayload = status.FormatStatusEvent(l.tracker.Snapshot(), mqtt.EventShutdown, reason)
	}
	if err := l.publisher.PublishSystem(event); err != nil {
		l.log.Warn("failed to publish shutdown event", "error", err)
	} else {
		last := controller.Last()
		l.log.Info("published shutdown event", "mode", last.Mode, "vent_open", last.VentOpen, "dehumidifier_on", last.DehumidifyOn)
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}

// readNetworkInfo loads the pi-helper env file (if present) into the
// environment and decodes the NETWORK_* variables. Returns nil when
// NETWORK_STATUS is unset.
func readNetworkInfo(envFile string, log *slog.Logger) *status.NetworkInfo {
	if envFile != "" {
		if err := godotenv.Overload(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn("read network env file", "path", envFile, "error", err)
		}
	}

	var info status.NetworkInfo
	if err := envconfig.Process("", &info); err != nil {
		log.Warn("decode network env", "error", err)
		return nil
	}
	if info.Status == "" {
		return nil
	}
	return &info
}

// resolveWSBroker converts the --ws-broker flag value into a concrete URL.
// "=broker" derives ws://host:9001 from the TCP broker address; "off" disables.
func resolveWSBroker(ws, broker string, log *slog.Logger) string {
	if ws == "off" {
		return ""
	}
	if ws != "=broker" {
		return ws
	}
	u, err := url.Parse(broker)
	if err != nil {
		log.Warn("ws-broker: cannot parse --broker", "broker", broker, "error", err)
		return ""
	}
	u.Scheme = "ws"
	u.Host = u.Hostname() + ":9001"
	return u.String()
}
