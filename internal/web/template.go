package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/bakeout/internal/status"
	"github.com/sweeney/bakeout/internal/zone"
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
	"tape": func(id int) int { return id + 1 },
	"temp": func(v float64) string { return fmt.Sprintf("%.2f", v) },
	"pct":  func(v float64) string { return fmt.Sprintf("%.1f%%", v*100) },
	"statusClass": func(s zone.Status) string {
		switch s {
		case zone.StatusOperable:
			return "ok"
		case zone.StatusOnHold:
			return "hold"
		case zone.StatusInoperable:
			return "dead"
		}
		return "unknown"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="5">
<title>Bakeout</title>
<style>
body { font-family: monospace; max-width: 900px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
.ok { color: green; font-weight: bold; }
.hold { color: orange; font-weight: bold; }
.dead { color: red; font-weight: bold; }
.unknown { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
.fatal { color: red; border: 1px solid red; padding: 0.5em; }
</style>
</head>
<body>
<h1>Bakeout</h1>
{{if .Fatal}}<p class="fatal">{{.Fatal}}</p>{{end}}

<h2>Tapes</h2>
<table>
<tr><th>Tape</th><th>Reading</th><th>Step</th><th>Set temp</th><th>Set rate</th><th>Ki</th><th>Duty</th><th>Phase</th><th>Status</th></tr>
{{range .Zones}}<tr>
<td>{{tape .ID}}{{if .Coupled}} *{{end}}</td>
<td>{{if .HasReading}}{{temp .Reading}} C{{else}}-{{end}}</td>
<td>{{temp .StepTarget}} C</td>
<td>{{temp .Desired.Temp}} C{{if .PendingCommit}} ({{temp .Staged.Temp}}){{end}}</td>
<td>{{temp .Desired.Rate}} C/m</td>
<td>{{temp .Desired.Ki}}</td>
<td>{{pct .Duty}}</td>
<td>{{.Phase}}</td>
<td class="{{statusClass .Status}}">{{.Status}}</td>
</tr>{{end}}
</table>
<p>* coupled</p>

{{if .Readout}}<h2>Tape {{tape .Readout.Zone}}</h2>
<table>
<tr><th>Current rate</th><td>{{temp .Readout.Rate}} C/m over {{len .Readout.Samples}} points</td></tr>
</table>{{end}}

{{if .Events}}<h2>Events</h2>
<ul>{{range .Events}}<li>{{.}}</li>{{end}}</ul>{{end}}

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Run</th><td>{{.Config.RunID}}</td></tr>
<tr><th>Tick</th><td>{{.Tick}} (last {{.LastTick}})</td></tr>
<tr><th>Tick delay</th><td>{{.Config.TickPeriodMs}}ms</td></tr>
<tr><th>Actuation period</th><td>{{.Config.ActuationPeriodS}}s</td></tr>
<tr><th>Log file</th><td>{{.Config.LogFile}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
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
