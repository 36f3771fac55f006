// Package status provides a thread-safe status tracker for the bakeout
// controller. It receives every merged tick from the scheduler and is read
// by HTTP handlers, the terminal UI and MQTT event formatting.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/bakeout/internal/scheduler"
	"github.com/sweeney/bakeout/internal/zone"
)

// StartingNumPoints is the default rate readout window, in samples.
const StartingNumPoints = 20

// NetworkInfo contains network state as written by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains controller configuration for display.
type Config struct {
	RunID            string
	TickPeriodMs     int64
	ActuationPeriodS float64
	StartupDelayS    float64
	Broker           string
	HTTPAddr         string
	LogFile          string
	Capacity         int // ring buffer capacity, the largest readout window
}

// ZoneView is the display state of one zone.
type ZoneView struct {
	ID               int
	Reading          float64
	HasReading       bool
	StepTarget       float64
	StepsTaken       int
	Desired          zone.Setpoint
	Staged           zone.Setpoint
	PendingCommit    bool
	Duty             float64
	Status           zone.Status
	Phase            zone.Phase
	SteppingUp       bool
	ReachedDesired   bool
	Coupled          bool
	WriteEveryMinute bool
}

// Readout is the rate readout of the selected zone.
type Readout struct {
	Zone    int
	Rate    float64 // degrees C per minute over the window
	Samples []float64
	Times   []float64
}

// Snapshot is a point-in-time view of controller state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Zones         []ZoneView
	Selected      int
	NumPoints     int
	Readout       *Readout
	Tick          uint64
	Elapsed       time.Duration
	LastTick      time.Duration
	Events        []string // inoperable zones, oldest first
	Fatal         string
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the controller started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable controller state behind an RWMutex.
// It implements scheduler.Presenter and scheduler.Observer.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker for n zones.
func NewTracker(startTime time.Time, n int, cfg Config) *Tracker {
	zones := make([]ZoneView, n)
	for i := range zones {
		zones[i].ID = i
	}
	return &Tracker{
		snap: Snapshot{
			Zones:     zones,
			NumPoints: StartingNumPoints,
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Report records the state of every zone. Called by the scheduler after
// each merged tick.
func (t *Tracker) Report(r scheduler.Report) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.snap.Tick = r.Tick
	t.snap.Elapsed = r.Elapsed
	t.snap.LastTick = r.LastTick
	zones := make([]ZoneView, len(r.Zones))
	for i, z := range r.Zones {
		zones[i] = viewOf(z, r.Coupled[i])
	}
	t.snap.Zones = zones
	for _, f := range r.Faults {
		t.snap.Events = append(t.snap.Events, f.Error())
	}
}

func viewOf(z zone.Zone, coupled bool) ZoneView {
	return ZoneView{
		ID:               z.ID,
		Reading:          z.LastReading,
		HasReading:       z.HasStored,
		StepTarget:       z.StepTarget,
		StepsTaken:       z.StepsTaken,
		Desired:          z.Desired(),
		Staged:           z.Staged(),
		PendingCommit:    z.PendingCommit,
		Duty:             z.Duty,
		Status:           z.Status,
		Phase:            z.Phase(),
		SteppingUp:       z.SteppingUp,
		ReachedDesired:   z.HasReachedDesired,
		Coupled:          coupled,
		WriteEveryMinute: z.WriteEveryMinute,
	}
}

// SelectedZone returns the zone shown by the presentation layer.
func (t *Tracker) SelectedZone() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap.Selected
}

// Present updates the rate readout for the selected zone.
func (t *Tracker) Present(f scheduler.Frame) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := min(t.snap.NumPoints, len(f.Samples))
	samples := append([]float64(nil), f.Samples[len(f.Samples)-n:]...)
	times := append([]float64(nil), f.Times[len(f.Times)-n:]...)
	t.snap.Readout = &Readout{
		Zone:    f.Zone.ID,
		Rate:    RatePerMinute(times, samples),
		Samples: samples,
		Times:   times,
	}
}

// Select changes the selected zone. Out of range ids are ignored.
func (t *Tracker) Select(id int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id < 0 || id >= len(t.snap.Zones) {
		return
	}
	if id != t.snap.Selected {
		t.snap.Readout = nil
	}
	t.snap.Selected = id
}

// AddNumPoints changes the readout window by delta samples, bounded to
// [2, capacity]. It returns the new window.
func (t *Tracker) AddNumPoints(delta int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.snap.NumPoints + delta
	hi := t.snap.Config.Capacity
	if hi < 2 {
		hi = 2
	}
	t.snap.NumPoints = max(2, min(n, hi))
	return t.snap.NumPoints
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// SetFatal records the error that ended the run.
func (t *Tracker) SetFatal(err error) {
	t.mu.Lock()
	t.snap.Fatal = err.Error()
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the controller state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Zones = append([]ZoneView(nil), t.snap.Zones...)
	s.Events = append([]string(nil), t.snap.Events...)
	if t.snap.Readout != nil {
		r := *t.snap.Readout
		s.Readout = &r
	}
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
