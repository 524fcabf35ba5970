package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/vent-controller/internal/logic"
	"github.com/sweeney/vent-controller/internal/mqtt"
	"github.com/sweeney/vent-controller/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"outputClass": func(s string) string {
		switch s {
		case "OPEN", "ON":
			return "on"
		case "CLOSED", "OFF":
			return "off"
		default:
			return "unknown"
		}
	},
	"ms": func(ms int64) string {
		return (time.Duration(ms) * time.Millisecond).String()
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Vent Controller</title>
<style>
body { font-family: monospace; max-width: 640px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.unknown { color: orange; }
.safety { color: red; font-weight: bold; }
.connected { color: green; }
.disconnected { color: red; }
.fallback { color: orange; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>Vent Controller{{if .Config.WSBroker}}<span id="live-dot" class="live-dot pending" title="connecting"></span>{{end}}</h1>

<h2>Outputs</h2>
<table>
<tr><th>Mode</th><td id="mode" class="{{if .Decision.Safety}}safety{{end}}">{{.ModeLabel}}{{if .Decision.Phase}} ({{.Decision.Phase}} phase){{end}}</td></tr>
<tr><th>Vent</th><td id="vent-state" class="{{outputClass .VentLabel}}">{{.VentLabel}}{{if .Decision.VentHeld}} (held){{end}}</td></tr>
<tr><th>Dehumidifier</th><td id="dehum-state" class="{{outputClass .DehumLabel}}">{{.DehumLabel}}{{if .Decision.DehumHeld}} (held){{end}}</td></tr>
{{if .Ready}}<tr><th>Reason</th><td id="reason">{{.Decision.Reason}}</td></tr>
<tr><th>Decided</th><td>{{.Decision.Timestamp.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>{{end}}
</table>

{{if .Ready}}
<h2>Sensors</h2>
<table>
{{range .Rows}}<tr><th>{{.Name}}</th><td class="{{.Class}}">{{.Value}}</td></tr>
{{end}}</table>
{{end}}

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Outdoor sensor</th><td>{{.Config.Outdoor}}{{if .OutdoorBreaker}} (breaker {{.OutdoorBreaker}}){{end}}</td></tr>
<tr><th>Indoor sensor</th><td>{{.Config.Indoor}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}: {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Transitions</h2>
<table>
<tr><th>Vent opened</th><td>{{.Counts.VentOpen}}</td></tr>
<tr><th>Vent closed</th><td>{{.Counts.VentClose}}</td></tr>
<tr><th>Dehumidifier on</th><td>{{.Counts.DehumOn}}</td></tr>
<tr><th>Dehumidifier off</th><td>{{.Counts.DehumOff}}</td></tr>
<tr><th>Safety overrides</th><td>{{.Counts.SafetyOverrides}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Boot ID</th><td>{{.BootID}}</td></tr>
<tr><th>Poll</th><td>{{ms .Config.PollMs}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{ms .Config.HeartbeatMs}}{{end}}</td></tr>
<tr><th>AQI threshold</th><td>{{.Config.Tuning.AQIThreshold}}</td></tr>
<tr><th>Outdoor range</th><td>{{.Config.Tuning.MinOutdoorTemp}}..{{.Config.Tuning.MaxOutdoorTemp}} °F, &lt; {{.Config.Tuning.MaxOutdoorHumidity}}%</td></tr>
<tr><th>Ideal indoor</th><td>{{.Config.Tuning.IdealTemperature}} °F, {{.Config.Tuning.IdealHumidity}}%</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/metrics">metrics</a></p>
{{if .Config.WSBroker}}
<script src="https://unpkg.com/mqtt/dist/mqtt.min.js"></script>
<script>
(function() {
  var broker = "{{.Config.WSBroker}}";
  var topic = "{{.StateTopic}}";
  var dot = document.getElementById("live-dot");
  var modeEl = document.getElementById("mode");
  var ventEl = document.getElementById("vent-state");
  var dehumEl = document.getElementById("dehum-state");
  var reasonEl = document.getElementById("reason");

  function setOutput(el, state) {
    el.textContent = state;
    el.className = (state === "OPEN" || state === "ON") ? "on" : (state === "CLOSED" || state === "OFF") ? "off" : "unknown";
  }

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  var client = mqtt.connect(broker, { reconnectPeriod: 5000 });

  client.on("connect", function() {
    setDot("ok", "live");
    client.subscribe(topic);
  });

  client.on("reconnect", function() {
    setDot("pending", "reconnecting");
  });

  client.on("offline", function() {
    setDot("err", "offline");
  });

  client.on("error", function() {
    setDot("err", "error");
  });

  client.on("message", function(t, payload) {
    try {
      var msg = JSON.parse(payload.toString());
      if (msg.ventilation) {
        var v = msg.ventilation;
        modeEl.textContent = v.mode + (v.phase ? " (" + v.phase + " phase)" : "");
        modeEl.className = v.safety ? "safety" : "";
        setOutput(ventEl, v.vent);
        setOutput(dehumEl, v.dehumidifier);
        if (reasonEl) { reasonEl.textContent = v.reason; }
      }
    } catch (e) {}
  });
})();
</script>
{{end}}
</body>
</html>
`

// metricRow is one line of the sensors table.
type metricRow struct {
	Name  string
	Value string
	Class string
}

func metricRows(snap logic.Snapshot) []metricRow {
	rows := make([]metricRow, 0, len(logic.AllMetrics))
	for _, m := range logic.AllMetrics {
		sv := snap.Metric(m)
		row := metricRow{Name: m.String(), Value: "unavailable", Class: "unknown"}
		if sv.Available {
			row.Value = fmt.Sprintf("%.1f %s (%d samples)", sv.Value, m.Unit(), sv.Count)
			row.Class = ""
			if sv.Fallback {
				row.Value += fmt.Sprintf(", fallback %s old", sv.Age.Truncate(time.Second))
				row.Class = "fallback"
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime     time.Duration
		Rows       []metricRow
		StateTopic string
	}{
		Snapshot:   snap,
		Uptime:     snap.Uptime(),
		Rows:       metricRows(snap.Decision),
		StateTopic: mqtt.TopicState,
	}
	indexTmpl.Execute(w, data)
}
