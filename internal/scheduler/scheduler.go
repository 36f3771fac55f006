// Package scheduler runs the control loop. Each tick reads every zone
// concurrently on a private copy of its state, joins, and then either
// merges the copies back or, if any sensor failed, stops the run.
//
// The scheduler is the only writer of canonical zone state. Operator
// commands are queued and applied between ticks by the run loop.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sweeney/bakeout/internal/actuator"
	"github.com/sweeney/bakeout/internal/config"
	"github.com/sweeney/bakeout/internal/coupling"
	"github.com/sweeney/bakeout/internal/zone"
)

// Sensor reads a zone's temperature.
type Sensor interface {
	Read() (float64, error)
}

// Sink persists one tick log row.
type Sink interface {
	Append(elapsed time.Duration, temps []float64) error
}

// Presenter displays a single selected zone.
type Presenter interface {
	SelectedZone() int
	Present(Frame)
}

// Frame is what the presenter receives after each merged tick.
type Frame struct {
	Zone     zone.Zone
	Tick     uint64
	Elapsed  time.Duration
	LastTick time.Duration
	// Samples and Times are the stored readings and their elapsed times in
	// seconds, oldest first, covering at most the ring capacity.
	Samples []float64
	Times   []float64
}

// Observer receives a report of every zone after each merged tick.
type Observer interface {
	Report(Report)
}

// Report summarises one merged tick. Zone sample rings are omitted.
type Report struct {
	Tick     uint64
	Elapsed  time.Duration
	LastTick time.Duration
	Zones    []zone.Zone
	Coupled  []bool
	// Faults lists zones that became inoperable on this tick.
	Faults []*zone.Fault
}

// UnreliableError ends a run: at least one sensor could not be read.
type UnreliableError struct {
	Faults []*zone.Fault
}

func (e *UnreliableError) Error() string {
	msgs := make([]string, len(e.Faults))
	for i, f := range e.Faults {
		msgs[i] = f.Error()
	}
	return strings.Join(msgs, "; ")
}

func (e *UnreliableError) Unwrap() []error {
	errs := make([]error, len(e.Faults))
	for i, f := range e.Faults {
		errs[i] = f
	}
	return errs
}

// Options configure a Scheduler. Sensors and Outputs are index aligned
// with Config.Zones.
type Options struct {
	Config    config.Config
	Sensors   []Sensor
	Outputs   []actuator.Output
	Sink      Sink
	Presenter Presenter
	Observers []Observer

	// Now and After default to time.Now and time.After.
	Now   func() time.Time
	After func(time.Duration) <-chan time.Time
	// Sleep is used by the duty-cycle actuator. Nil means time.Sleep.
	Sleep func(time.Duration)
}

// commandQueue bounds operator commands waiting for the next gap between
// ticks.
const commandQueue = 32

// Scheduler owns the zones and drives them tick by tick.
type Scheduler struct {
	cfg    config.Config
	params zone.Params

	zones   []zone.Zone
	sync    *coupling.Synchronizer
	sensors []Sensor
	outputs []actuator.Output
	duty    actuator.DutyCycle

	sink      Sink
	presenter Presenter
	observers []Observer

	now   func() time.Time
	after func(time.Duration) <-chan time.Time

	start time.Time
	tick  uint64
	times []time.Duration // elapsed time of each tick, indexed tick mod C
	rows  uint64

	cmds chan func()
}

// New builds the zones from the configuration and returns a scheduler
// ready to run.
func New(opts Options) (*Scheduler, error) {
	cfg := opts.Config
	n := len(cfg.Zones)
	if len(opts.Sensors) != n || len(opts.Outputs) != n {
		return nil, fmt.Errorf("scheduler: %d zones, %d sensors, %d outputs", n, len(opts.Sensors), len(opts.Outputs))
	}

	params := zone.NewParams(cfg)
	zones := make([]zone.Zone, n)
	for i, zc := range cfg.Zones {
		zones[i] = zone.New(i, zone.Setpoint{Temp: zc.Temp, Rate: zc.Rate, Ki: zc.Ki}, cfg.RingBufferCapacity, params)
		zones[i].WriteEveryMinute = cfg.WriteEveryMinute
	}
	sync, err := coupling.New(zones, cfg.CouplingGroups())
	if err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}

	duty := actuator.New(cfg.ActuationPeriod())
	duty.Sleep = opts.Sleep

	s := &Scheduler{
		cfg:       cfg,
		params:    params,
		zones:     zones,
		sync:      sync,
		sensors:   opts.Sensors,
		outputs:   opts.Outputs,
		duty:      duty,
		sink:      opts.Sink,
		presenter: opts.Presenter,
		observers: opts.Observers,
		now:       opts.Now,
		after:     opts.After,
		times:     make([]time.Duration, cfg.RingBufferCapacity),
		cmds:      make(chan func(), commandQueue),
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.after == nil {
		s.after = time.After
	}
	s.start = s.now()
	return s, nil
}

// Zones returns copies of the canonical zone states. It must not be called
// concurrently with Run.
func (s *Scheduler) Zones() []zone.Zone {
	out := make([]zone.Zone, len(s.zones))
	for i, z := range s.zones {
		out[i] = z.Clone()
	}
	return out
}

// TickIndex is the index the next tick will use.
func (s *Scheduler) TickIndex() uint64 {
	return s.tick
}

// Rows is the number of tick log rows produced.
func (s *Scheduler) Rows() uint64 {
	return s.rows
}

// Tick runs one control iteration over every zone.
//
// Each zone reads its sensor, updates a cloned copy of its state and drives
// its relay for one actuation period, all concurrently. After every zone has
// finished, sensor faults end the run with an *UnreliableError and nothing
// is merged. Otherwise the copies replace canonical state, a log row is
// written and the presenter and observers are notified.
func (s *Scheduler) Tick() error {
	elapsed := s.now().Sub(s.start)
	var prev time.Duration
	if s.tick > 0 {
		prev = s.times[(s.tick-1)%uint64(len(s.times))]
	}
	lastTick := elapsed - prev
	s.times[s.tick%uint64(len(s.times))] = elapsed

	shared := s.sync.Compute(s.zones)
	snaps := make([]zone.Zone, len(s.zones))
	faults := make([]*zone.Fault, len(s.zones))

	var g errgroup.Group
	for i := range s.zones {
		snaps[i] = s.zones[i].Clone()
		g.Go(func() error {
			reading, err := s.sensors[i].Read()
			faults[i] = snaps[i].Tick(zone.Input{
				Tick:     s.tick,
				Elapsed:  elapsed,
				LastTick: lastTick,
				Reading:  reading,
				ReadErr:  err,
				Shared:   shared[i],
			}, s.params)
			if faults[i] != nil && faults[i].Kind == zone.SensorUnreliable {
				return nil
			}
			if err := s.duty.Run(s.outputs[i], snaps[i].Duty, snaps[i].Status == zone.StatusInoperable); err != nil {
				return fmt.Errorf("tape %d: %w", i+1, err)
			}
			return nil
		})
	}
	actErr := g.Wait()

	var unreliable, inoperable []*zone.Fault
	for _, f := range faults {
		switch {
		case f == nil:
		case f.Kind == zone.SensorUnreliable:
			unreliable = append(unreliable, f)
		case f.Kind == zone.ActuatorInoperable:
			inoperable = append(inoperable, f)
		}
	}
	if len(unreliable) > 0 {
		return &UnreliableError{Faults: unreliable}
	}
	if actErr != nil {
		return fmt.Errorf("drive relay: %w", actErr)
	}

	copy(s.zones, snaps)
	for _, f := range inoperable {
		s.zones[f.Zone].Status = zone.StatusInoperable
		log.Printf("safety: %v", f)
	}

	temps := make([]float64, len(s.zones))
	for i, z := range s.zones {
		temps[i] = math.NaN()
		if z.HasStored {
			temps[i] = z.LastStored
		}
	}
	if s.sink != nil {
		if err := s.sink.Append(elapsed, temps); err != nil {
			log.Printf("tick log: %v", err)
		}
	}
	s.rows++

	s.present(elapsed, lastTick)
	s.report(elapsed, lastTick, inoperable)
	s.tick++
	return nil
}

func (s *Scheduler) present(elapsed, lastTick time.Duration) {
	if s.presenter == nil {
		return
	}
	sel := s.presenter.SelectedZone()
	if sel < 0 || sel >= len(s.zones) {
		return
	}

	z := s.zones[sel]
	n := min(int(s.tick)+1, z.Samples.Cap())
	times := make([]float64, n)
	for i := range times {
		t := s.tick - uint64(n-1-i)
		times[i] = s.times[t%uint64(len(s.times))].Seconds()
	}
	s.presenter.Present(Frame{
		Zone:     z.Clone(),
		Tick:     s.tick,
		Elapsed:  elapsed,
		LastTick: lastTick,
		Samples:  z.Samples.Window(s.tick, n),
		Times:    times,
	})
}

func (s *Scheduler) report(elapsed, lastTick time.Duration, faults []*zone.Fault) {
	if len(s.observers) == 0 {
		return
	}
	r := Report{
		Tick:     s.tick,
		Elapsed:  elapsed,
		LastTick: lastTick,
		Zones:    make([]zone.Zone, len(s.zones)),
		Coupled:  make([]bool, len(s.zones)),
		Faults:   faults,
	}
	for i, z := range s.zones {
		z.Samples = zone.Ring{}
		r.Zones[i] = z
		r.Coupled[i] = s.sync.Coupled(i)
	}
	for _, o := range s.observers {
		o.Report(r)
	}
}

// Run waits for the startup delay and then ticks until ctx is cancelled or
// a tick fails. Every output is forced OFF before Run returns. A cancelled
// context is a clean shutdown and returns nil.
func (s *Scheduler) Run(ctx context.Context) error {
	defer s.Shutdown()

	s.start = s.now()
	log.Printf("scheduler: %d zones, startup delay %v, period %v", len(s.zones), s.cfg.StartupDelay(), s.duty.Period)
	if !s.wait(ctx, s.cfg.StartupDelay()) {
		return nil
	}

	for {
		if err := s.Tick(); err != nil {
			return err
		}
		if !s.wait(ctx, s.cfg.TickPeriod()) {
			return nil
		}
	}
}

// wait blocks for d, applying queued commands meanwhile. It reports false
// if ctx was cancelled.
func (s *Scheduler) wait(ctx context.Context, d time.Duration) bool {
	s.applyPending()
	timer := s.after(d)
	for {
		select {
		case <-ctx.Done():
			return false
		case cmd := <-s.cmds:
			cmd()
		case <-timer:
			s.applyPending()
			return true
		}
	}
}

func (s *Scheduler) applyPending() {
	for {
		select {
		case cmd := <-s.cmds:
			cmd()
		default:
			return
		}
	}
}

// Shutdown forces every output OFF.
func (s *Scheduler) Shutdown() {
	if err := actuator.ForceOff(s.outputs); err != nil {
		log.Printf("shutdown: %v", err)
	}
}

var errQueueFull = errors.New("command queue full")

func (s *Scheduler) submit(cmd func()) error {
	select {
	case s.cmds <- cmd:
		return nil
	default:
		return errQueueFull
	}
}
