package web

import (
	"fmt"
	"html/template"
	"io"
	"log"
	"time"

	"github.com/sweeney/gpio-monitor/internal/config"
	"github.com/sweeney/gpio-monitor/internal/status"
)

// pageLine is one row of the dashboard table.
type pageLine struct {
	Pin        int
	State      string
	Rises      int
	Falls      int
	Pull       string
	Inverted   bool
	Debounce   string
	Reserved   string
	LastChange string
}

// page is the data the dashboard template renders.
type page struct {
	status.Snapshot
	Rows      []pageLine
	Available []int
	HasStatus bool
}

func (s *Server) pageData() page {
	cfg := s.mon.Config()
	inv := s.mon.Inventory()
	states := s.mon.States()

	var snap status.Snapshot
	if s.tracker != nil {
		s.tracker.Update(states, cfg.Lines)
		snap = s.tracker.Snapshot()
	} else {
		snap = status.Snapshot{StartTime: s.now(), Now: s.now()}
	}

	p := page{Snapshot: snap, Available: inv.Available, HasStatus: s.tracker != nil}
	for _, line := range cfg.Lines {
		row := pageLine{Pin: line, State: "?", Reserved: inv.Reserved[line]}
		if v, ok := states[line]; ok {
			row.State = fmt.Sprint(v)
		}
		if l, ok := snap.Lines[line]; ok {
			row.Rises, row.Falls = l.Rises, l.Falls
			if !l.LastChange.IsZero() {
				row.LastChange = l.LastChange.Local().Format("15:04:05.000")
			}
		}
		row.Pull, row.Inverted, row.Debounce = describe(cfg.OptionsFor(line))
		p.Rows = append(p.Rows, row)
	}
	return p
}

func describe(o config.LineOptions) (pull string, inverted bool, debounce string) {
	pull = o.Bias.String()
	if o.Thresholds().Enabled() {
		debounce = fmt.Sprintf("L%d/H%d", o.DebounceLow, o.DebounceHigh)
	}
	return pull, o.Inverted, debounce
}

func renderHTML(w io.Writer, p page) {
	if err := indexTmpl.Execute(w, p); err != nil {
		log.Printf("http: render dashboard: %v", err)
	}
}

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
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>GPIO Monitor</title>
<style>
body { font-family: monospace; max-width: 760px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
.high { color: green; font-weight: bold; }
.low { color: #888; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
.reserved { color: #b60; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
#log { max-height: 12em; overflow-y: auto; font-size: 0.9em; }
</style>
</head>
<body>
<h1>GPIO Monitor<span id="live-dot" class="live-dot pending" title="connecting"></span></h1>

<h2>Lines</h2>
<table id="lines">
<tr><th>GPIO</th><th>State</th><th>Rises</th><th>Falls</th><th>Pull</th><th>Debounce</th><th>Last change</th></tr>
{{range .Rows}}<tr>
<td>{{.Pin}}{{if .Inverted}} (inv){{end}}{{if .Reserved}} <span class="reserved" title="{{.Reserved}}">*</span>{{end}}</td>
<td id="state-{{.Pin}}" class="{{if eq .State "1"}}high{{else if eq .State "0"}}low{{else}}unknown{{end}}">{{.State}}</td>
<td>{{.Rises}}</td><td>{{.Falls}}</td><td>{{.Pull}}</td><td>{{.Debounce}}</td>
<td id="changed-{{.Pin}}">{{.LastChange}}</td>
</tr>{{else}}<tr><td colspan="7">No lines monitored</td></tr>{{end}}
</table>
<p>Available: {{range .Available}}{{.}} {{end}}</p>

<h2>Events</h2>
<div id="log"></div>

{{if .HasStatus}}
<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Events</th><td>{{.EventCount}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Driver</th><td>{{.Config.Driver}}</td></tr>
<tr><th>Config</th><td>{{.Config.ConfigPath}}</td></tr>
</table>

<p><a href="/api/status">JSON</a></p>
{{end}}
<script>
(function() {
  var dot = document.getElementById("live-dot");
  var log = document.getElementById("log");

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  function setState(pin, state) {
    var el = document.getElementById("state-" + pin);
    if (!el) return;
    el.textContent = state;
    el.className = state === 1 ? "high" : state === 0 ? "low" : "unknown";
  }

  var es = new EventSource("/events");

  es.onopen = function() { setDot("ok", "live"); };
  es.onerror = function() { setDot("err", "disconnected"); };

  es.addEventListener("init", function(e) {
    var msg = JSON.parse(e.data);
    for (var pin in msg.pins) setState(pin, msg.pins[pin]);
  });

  es.addEventListener("gpio_change", function(e) {
    var msg = JSON.parse(e.data);
    setState(msg.pin, msg.state);
    var changed = document.getElementById("changed-" + msg.pin);
    if (changed) changed.textContent = msg.time;
    var line = document.createElement("div");
    line.textContent = msg.time + " GPIO " + msg.pin + " -> " + msg.state +
      (msg.confidence ? " (" + msg.confidence + ")" : "");
    log.insertBefore(line, log.firstChild);
  });
})();
</script>
</body>
</html>
`
