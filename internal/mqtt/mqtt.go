// Package mqtt publishes bake telemetry and lifecycle events, with an
// abstraction for testing.
package mqtt

import (
	"encoding/json"
	"math"
	"strings"
	"time"
)

// DefaultPrefix is used when no topic prefix is configured.
const DefaultPrefix = "bakeout"

// Topics are the MQTT topics one controller publishes to.
type Topics struct {
	Telemetry string
	System    string
}

// NewTopics derives the topic names from prefix.
func NewTopics(prefix string) Topics {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Topics{
		Telemetry: prefix + "/telemetry",
		System:    prefix + "/system",
	}
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// PublishTelemetry sends one tick's zone readings.
	// Returns error if publishing fails (should not crash the process).
	PublishTelemetry(t Telemetry) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// System event names.
const (
	EventStartup        = "STARTUP"
	EventShutdown       = "SHUTDOWN"
	EventZoneInoperable = "ZONE_INOPERABLE"
	EventFatal          = "FATAL"
	EventReconnected    = "RECONNECTED"
)

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, zone faults).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string
	Reason     string // cause of a fault or the signal that stopped the run
	Tape       int    // 1-based; 0 when the event is not about one tape
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Telemetry is the state of every zone after one tick.
type Telemetry struct {
	Timestamp time.Time
	RunID     string
	Tick      uint64
	Elapsed   time.Duration
	Tapes     []TapeTelemetry
}

// TapeTelemetry is one zone's slice of a Telemetry message.
type TapeTelemetry struct {
	Tape       int      `json:"tape"`
	Reading    *float64 `json:"reading"`
	StepTarget float64  `json:"step_target"`
	Desired    float64  `json:"desired"`
	Duty       float64  `json:"duty_percent"`
	Status     string   `json:"status"`
	Phase      string   `json:"phase"`
}

// TelemetryPayload represents the MQTT message payload for telemetry.
type TelemetryPayload struct {
	Telemetry TelemetryInner `json:"telemetry"`
}

// TelemetryInner contains the telemetry details.
type TelemetryInner struct {
	Timestamp      string          `json:"timestamp"`
	RunID          string          `json:"run_id,omitempty"`
	Tick           uint64          `json:"tick"`
	ElapsedSeconds float64         `json:"elapsed_seconds"`
	Tapes          []TapeTelemetry `json:"tapes"`
}

// FormatTelemetry creates the JSON payload for a telemetry message.
func FormatTelemetry(t Telemetry) ([]byte, error) {
	tapes := t.Tapes
	if tapes == nil {
		tapes = []TapeTelemetry{}
	}
	payload := TelemetryPayload{
		Telemetry: TelemetryInner{
			Timestamp:      t.Timestamp.UTC().Format(time.RFC3339),
			RunID:          t.RunID,
			Tick:           t.Tick,
			ElapsedSeconds: round2(t.Elapsed.Seconds()),
			Tapes:          tapes,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED, ZONE_INOPERABLE) that don't
// carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Tape      int    `json:"tape,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Tape:      event.Tape,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
