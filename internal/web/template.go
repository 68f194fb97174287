package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/volume-knob/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		switch {
		case days > 0:
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		case h > 0:
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		case m > 0:
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"ms": func(v int64) string {
		if v == 0 {
			return "disabled"
		}
		return fmt.Sprintf("%dms", v)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="5">
<title>Volume Knob</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.muted { color: #888; font-weight: bold; }
.stale { color: orange; }
.error { color: red; }
.connected { color: green; }
.disconnected { color: red; }
.bar { display: inline-block; height: 8px; background: #4a4; vertical-align: middle; margin-left: 8px; }
</style>
</head>
<body>
<h1>Volume Knob</h1>

<h2>Player</h2>
<table>
<tr><th>Volume</th><td id="volume">{{.Player.Volume}}%<span class="bar" style="width: {{.Player.Volume}}px"></span></td></tr>
<tr><th>Muted</th><td id="muted"{{if .Player.Muted}} class="muted"{{end}}>{{if .Player.Muted}}yes{{else}}no{{end}}</td></tr>
<tr><th>Synced</th><td{{if not .Synced}} class="stale"{{end}}>{{if .Synced}}yes{{else}}no (assumed state){{end}}</td></tr>
<tr><th>Backend</th><td>{{.Config.Backend}} ({{.Config.PlayerURL}})</td></tr>
{{with .Last}}<tr><th>Last action</th><td{{if .Error}} class="error"{{end}}>{{.Action}} for {{.Intent}}{{if .Error}}: {{.Error}}{{end}}</td></tr>{{end}}
</table>

<h2>Input</h2>
<table>
<tr><th>Button</th><td>{{if .ButtonPressed}}pressed{{else}}released{{end}}</td></tr>
<tr><th>Volume up</th><td>{{.Intents.VolumeUp}}</td></tr>
<tr><th>Volume down</th><td>{{.Intents.VolumeDown}}</td></tr>
<tr><th>Toggle mute</th><td>{{.Intents.ToggleMute}}</td></tr>
<tr><th>Toggle pause</th><td>{{.Intents.TogglePause}}</td></tr>
<tr><th>Edges accepted</th><td>{{.Decoder.Accepted}}</td></tr>
<tr><th>Edges bounced</th><td>{{.Decoder.Bounced}}</td></tr>
<tr><th>Edges invalid</th><td>{{.Decoder.Invalid}}</td></tr>
</table>

<h2>Dispatch</h2>
<table>
<tr><th>Calls</th><td>{{.Dispatch.Calls}}</td></tr>
<tr><th>Failures</th><td{{if .Dispatch.Failures}} class="error"{{end}}>{{.Dispatch.Failures}}</td></tr>
<tr><th>Suppressed</th><td>{{.Dispatch.Suppressed}}</td></tr>
<tr><th>Coalesced</th><td>{{.Dispatch.Coalesced}}</td></tr>
<tr><th>Resyncs</th><td>{{.Dispatch.Resyncs}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Pins (A/B/SW)</th><td>{{.Config.PinA}}/{{.Config.PinB}}/{{.Config.PinButton}}</td></tr>
<tr><th>Step</th><td>{{.Config.Step}}% per detent ({{.Config.StepsPerDetent}} transitions)</td></tr>
<tr><th>Rate limit</th><td>{{ms .Config.RateLimitMs}}</td></tr>
<tr><th>Encoder debounce</th><td>{{ms .Config.EncoderDebounceMs}}</td></tr>
<tr><th>Long press</th><td>{{.Config.LongPressMs}}ms</td></tr>
<tr><th>Player timeout</th><td>{{.Config.TimeoutMs}}ms</td></tr>
<tr><th>Resync</th><td>{{ms .Config.ResyncMs}}</td></tr>
<tr><th>Heartbeat</th><td>{{ms .Config.HeartbeatMs}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
