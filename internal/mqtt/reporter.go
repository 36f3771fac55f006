package mqtt

import (
	"log"
	"time"

	"github.com/sweeney/bakeout/internal/scheduler"
)

// Reporter turns scheduler reports into telemetry and ZONE_INOPERABLE events.
// Publish errors are logged, never returned: a broker outage must not stop a bake.
type Reporter struct {
	pub   Publisher
	runID string
	now   func() time.Time
}

// NewReporter creates a Reporter publishing through pub.
func NewReporter(pub Publisher, runID string, now func() time.Time) *Reporter {
	if now == nil {
		now = time.Now
	}
	return &Reporter{pub: pub, runID: runID, now: now}
}

// Report implements scheduler.Observer.
func (r *Reporter) Report(rep scheduler.Report) {
	ts := r.now()

	t := Telemetry{
		Timestamp: ts,
		RunID:     r.runID,
		Tick:      rep.Tick,
		Elapsed:   rep.Elapsed,
		Tapes:     make([]TapeTelemetry, len(rep.Zones)),
	}
	for i, z := range rep.Zones {
		tt := TapeTelemetry{
			Tape:       z.ID + 1,
			StepTarget: z.StepTarget,
			Desired:    z.DesiredTemp,
			Duty:       round2(z.Duty * 100),
			Status:     string(z.Status),
			Phase:      string(z.Phase()),
		}
		if z.HasStored {
			v := z.LastReading
			tt.Reading = &v
		}
		t.Tapes[i] = tt
	}
	if err := r.pub.PublishTelemetry(t); err != nil {
		log.Printf("mqtt: publish telemetry: %v", err)
	}

	for _, f := range rep.Faults {
		ev := SystemEvent{
			Timestamp: ts,
			Event:     EventZoneInoperable,
			Tape:      f.Zone + 1,
			Reason:    f.Cause,
		}
		if err := r.pub.PublishSystem(ev); err != nil {
			log.Printf("mqtt: publish %s for tape %d: %v", ev.Event, ev.Tape, err)
		}
	}
}

var _ scheduler.Observer = (*Reporter)(nil)
