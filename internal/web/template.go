package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/greenhouse-controller/internal/status"
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
	"onoff": func(b bool) string {
		if b {
			return "ON"
		}
		return "OFF"
	},
	"f1": func(v float64) string {
		return fmt.Sprintf("%.1f", v)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Greenhouse</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>Greenhouse<span id="live-dot" class="live-dot pending" title="connecting"></span></h1>

<h2>Control</h2>
<table>
<tr><th>Hatch</th><td id="hatch-state" class="{{if .State.HatchOpen}}on{{else}}off{{end}}">{{.State.Mode}}</td></tr>
<tr><th>Position</th><td id="hatch-pos">{{.State.HatchPosition}}</td></tr>
<tr><th>Fan</th><td id="fan" class="{{if .FanOn}}on{{else}}off{{end}}">{{onoff .FanOn}}</td></tr>
<tr><th>Thresholds</th><td>open &gt; {{f1 .Config.OpenAboveF}}&deg;F, close &lt; {{f1 .Config.CloseBelowF}}&deg;F</td></tr>
<tr><th>Counter</th><td id="counter">{{.Counter}}</td></tr>
</table>

<h2>Climate</h2>
<table>
{{with .LastSample}}<tr><th>Temperature</th><td id="temp">{{f1 .TempF}}&deg;F / {{f1 .TempC}}&deg;C</td></tr>
<tr><th>Humidity</th><td id="humidity">{{f1 .Humidity}}%</td></tr>
<tr><th>Heat index</th><td id="heat-index">{{f1 .HeatIndexF}}&deg;F</td></tr>
<tr><th>Light</th><td id="light">{{.LightScaled}}</td></tr>
{{else}}<tr><th>Sensor</th><td class="unknown">no reading yet</td></tr>{{end}}
<tr><th>Sensor</th><td id="sensor" class="{{if .SensorOK}}on{{else}}unknown{{end}}">{{if .SensorOK}}ok{{else}}{{if .LastMarker}}{{.LastMarker}}{{else}}waiting{{end}}{{end}}</td></tr>
</table>

<h2>Remote</h2>
<table>
<tr><th>Fan command</th><td>{{if .Override.Fan.Set}}{{onoff .Override.Fan.On}}{{else}}none{{end}}{{if not .Config.HonorFanOverride}} (not applied){{end}}</td></tr>
<tr><th>Hatch command</th><td>{{if .Override.Hatch.Set}}{{onoff .Override.Hatch.On}}{{else}}none{{end}} (not applied)</td></tr>
</table>

<h2>Activity</h2>
<table>
<tr><th>Opens</th><td id="opens">{{.Counts.Opens}}</td></tr>
<tr><th>Closes</th><td id="closes">{{.Counts.Closes}}</td></tr>
<tr><th>Sensor failures</th><td id="failures">{{.Counts.SensorFailures}}</td></tr>
<tr><th>Cycles</th><td id="cycles">{{.Counts.Cycles}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Feeds</th><td>{{.Config.Prefix}}/feeds/*</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Boot</th><td>{{.BootID}}</td></tr>
<tr><th>Interval</th><td>{{.Config.IntervalMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>Fail-safe</th><td>{{if eq .Config.FailSafeAfter 0}}disabled{{else}}after {{.Config.FailSafeAfter}} failures{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/metrics">metrics</a></p>
<script>
(function() {
  var dot = document.getElementById("live-dot");
  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }
  function set(id, text, cls) {
    var el = document.getElementById(id);
    if (!el) return;
    el.textContent = text;
    if (cls !== undefined) el.className = cls;
  }
  function connect() {
    var ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
    ws.onopen = function() { setDot("ok", "live"); };
    ws.onclose = function() { setDot("err", "offline"); setTimeout(connect, 5000); };
    ws.onmessage = function(ev) {
      try {
        var st = JSON.parse(ev.data).status;
        set("hatch-state", st.hatch.state, st.hatch.state === "OPEN" ? "on" : "off");
        set("hatch-pos", st.hatch.position);
        set("fan", st.fan.output ? "ON" : "OFF", st.fan.output ? "on" : "off");
        set("counter", st.counter);
        set("opens", st.counts.opens);
        set("closes", st.counts.closes);
        set("failures", st.counts.sensor_failures);
        set("cycles", st.counts.cycles);
        if (st.sample) {
          set("temp", st.sample.temperature_f.toFixed(1) + "°F / " + st.sample.temperature_c.toFixed(1) + "°C");
          set("humidity", st.sample.humidity.toFixed(1) + "%");
          set("heat-index", st.sample.heat_index_f.toFixed(1) + "°F");
          set("light", st.sample.light_level);
        }
        set("sensor", st.sensor_ok ? "ok" : "SENSOR_READ_FAILED", st.sensor_ok ? "on" : "unknown");
      } catch (e) {}
    };
  }
  connect();
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime() and SensorOK() methods but the template reads fields.
	data := struct {
		status.Snapshot
		Uptime   time.Duration
		SensorOK bool
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		SensorOK: snap.SensorOK(),
	}
	return indexTmpl.Execute(w, data)
}
