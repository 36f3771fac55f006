package status

import (
	"encoding/json"
	"math"
	"time"

	"github.com/sweeney/bakeout/internal/zone"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event          string       `json:"event,omitempty"`
	Reason         string       `json:"reason,omitempty"`
	RunID          string       `json:"run_id,omitempty"`
	Tick           uint64       `json:"tick"`
	ElapsedSeconds float64      `json:"elapsed_seconds"`
	LastTickMs     int64        `json:"last_tick_ms"`
	UptimeSeconds  int64        `json:"uptime_seconds"`
	StartTime      string       `json:"start_time"`
	Timestamp      string       `json:"timestamp"`
	Selected       int          `json:"selected_tape"`
	NumPoints      int          `json:"num_points"`
	Zones          []ZoneJSON   `json:"tapes"`
	Readout        *ReadoutJSON `json:"readout,omitempty"`
	Events         []string     `json:"events,omitempty"`
	Fatal          string       `json:"fatal,omitempty"`
	MQTT           MQTTStatus   `json:"mqtt"`
	Network        *NetworkJSON `json:"network,omitempty"`
	Config         ConfigJSON   `json:"config"`
}

// SetpointJSON is a temperature, rate and integral gain.
type SetpointJSON struct {
	Temp float64 `json:"temp"`
	Rate float64 `json:"rate"`
	Ki   float64 `json:"ki"`
}

// ZoneJSON is the JSON representation of one tape. Tapes are numbered
// from 1 as on the box.
type ZoneJSON struct {
	Tape             int          `json:"tape"`
	Reading          *float64     `json:"reading"`
	StepTarget       float64      `json:"step_target"`
	Desired          SetpointJSON `json:"desired"`
	Staged           SetpointJSON `json:"staged"`
	PendingCommit    bool         `json:"pending_commit"`
	DutyPercent      float64      `json:"duty_percent"`
	Status           string       `json:"status"`
	Phase            string       `json:"phase"`
	Coupled          bool         `json:"coupled"`
	WriteEveryMinute bool         `json:"write_every_minute"`
}

// ReadoutJSON is the selected tape's rate readout.
type ReadoutJSON struct {
	Tape          int     `json:"tape"`
	RatePerMinute float64 `json:"rate_per_minute"`
	Points        int     `json:"points"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of controller config.
type ConfigJSON struct {
	TickPeriodMs     int64   `json:"tick_period_ms"`
	ActuationPeriodS float64 `json:"actuation_period_s"`
	StartupDelayS    float64 `json:"startup_delay_s"`
	Broker           string  `json:"broker"`
	HTTPAddr         string  `json:"http_addr"`
	LogFile          string  `json:"log_file,omitempty"`
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func setpointJSON(s zone.Setpoint) SetpointJSON {
	return SetpointJSON{Temp: round2(s.Temp), Rate: round2(s.Rate), Ki: round2(s.Ki)}
}

func buildInner(snap Snapshot) StatusInner {
	zones := make([]ZoneJSON, len(snap.Zones))
	for i, z := range snap.Zones {
		zj := ZoneJSON{
			Tape:             z.ID + 1,
			StepTarget:       z.StepTarget,
			Desired:          setpointJSON(z.Desired),
			Staged:           setpointJSON(z.Staged),
			PendingCommit:    z.PendingCommit,
			DutyPercent:      round2(z.Duty * 100),
			Status:           string(z.Status),
			Phase:            string(z.Phase),
			Coupled:          z.Coupled,
			WriteEveryMinute: z.WriteEveryMinute,
		}
		if zj.Status == "" {
			zj.Status = "UNKNOWN"
		}
		if z.HasReading {
			r := z.Reading
			zj.Reading = &r
		}
		zones[i] = zj
	}

	inner := StatusInner{
		RunID:          snap.Config.RunID,
		Tick:           snap.Tick,
		ElapsedSeconds: round2(snap.Elapsed.Seconds()),
		LastTickMs:     snap.LastTick.Milliseconds(),
		UptimeSeconds:  int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:      snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:      snap.Now.UTC().Format(time.RFC3339),
		Selected:       snap.Selected + 1,
		NumPoints:      snap.NumPoints,
		Zones:          zones,
		Events:         snap.Events,
		Fatal:          snap.Fatal,
		MQTT:           MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			TickPeriodMs:     snap.Config.TickPeriodMs,
			ActuationPeriodS: snap.Config.ActuationPeriodS,
			StartupDelayS:    snap.Config.StartupDelayS,
			Broker:           snap.Config.Broker,
			HTTPAddr:         snap.Config.HTTPAddr,
			LogFile:          snap.Config.LogFile,
		},
	}
	if snap.Readout != nil {
		inner.Readout = &ReadoutJSON{
			Tape:          snap.Readout.Zone + 1,
			RatePerMinute: round2(snap.Readout.Rate),
			Points:        len(snap.Readout.Samples),
		}
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
