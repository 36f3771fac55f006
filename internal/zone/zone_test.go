package zone

import (
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/sweeney/bakeout/internal/config"
)

func testParams() Params {
	return NewParams(config.Default())
}

func openGate() SharedSetpoint {
	return SharedSetpoint{AllSteppedToSame: true}
}

func newTestZone(desired float64) Zone {
	return New(0, Setpoint{Temp: desired, Rate: 1.0, Ki: 1.5}, 16, testParams())
}

// ticker drives a zone with a fixed tick length, tracking tick index and
// elapsed time the way the scheduler does.
type ticker struct {
	z       *Zone
	p       Params
	tick    uint64
	elapsed time.Duration
	step    time.Duration
}

func newTicker(z *Zone, start, step time.Duration) *ticker {
	return &ticker{z: z, p: testParams(), elapsed: start, step: step}
}

func (tk *ticker) run(reading float64, shared SharedSetpoint) *Fault {
	f := tk.z.Tick(Input{
		Tick:     tk.tick,
		Elapsed:  tk.elapsed,
		LastTick: tk.step,
		Reading:  reading,
		Shared:   shared,
	}, tk.p)
	tk.tick++
	tk.elapsed += tk.step
	return f
}

// sameRing compares two rings bit for bit, so unwritten NaN slots match.
func sameRing(a, b Ring) bool {
	if a.Cap() != b.Cap() {
		return false
	}
	for i := range a.vals {
		if math.Float64bits(a.vals[i]) != math.Float64bits(b.vals[i]) {
			return false
		}
	}
	return true
}

func TestNewZone(t *testing.T) {
	z := newTestZone(150)
	if z.Status != StatusOperable {
		t.Errorf("Status: got %s, want OPERABLE", z.Status)
	}
	if z.MaxAcceptableTemp != 160 {
		t.Errorf("MaxAcceptableTemp: got %v, want 160", z.MaxAcceptableTemp)
	}
	if !z.SteppingUp {
		t.Error("new zone should step up")
	}
	if z.Phase() != PhaseStartup {
		t.Errorf("Phase: got %s, want STARTUP", z.Phase())
	}
	if z.StepInterval() != time.Minute {
		t.Errorf("StepInterval: got %v, want 1m", z.StepInterval())
	}
}

func TestStartupDelayHoldsRamp(t *testing.T) {
	z := newTestZone(150)
	tk := newTicker(&z, 0, time.Second)

	for i := 0; i < 5; i++ {
		tk.run(20, openGate())
	}
	if z.StepsTaken != 0 {
		t.Fatalf("StepsTaken during startup delay: got %d, want 0", z.StepsTaken)
	}
	if z.StepTarget != 150 {
		t.Errorf("StepTarget during startup: got %v, want 150", z.StepTarget)
	}

	tk.run(20, openGate()) // elapsed 5s, not yet past the delay
	if z.StepsTaken != 0 {
		t.Fatal("ramp entered at exactly the startup delay")
	}
	tk.run(20.25, openGate()) // elapsed 6s
	if z.StepsTaken != 1 {
		t.Fatalf("StepsTaken after startup: got %d, want 1", z.StepsTaken)
	}
	if z.StepTarget != 21 {
		t.Errorf("StepTarget: got %v, want ceil(20.25)=21", z.StepTarget)
	}
	if z.Phase() != PhaseRamping {
		t.Errorf("Phase: got %s, want RAMPING", z.Phase())
	}
}

func TestScenarioAFirstStep(t *testing.T) {
	z := newTestZone(150)
	tk := newTicker(&z, 6*time.Second, time.Second)

	tk.run(20, openGate())
	if z.StepTarget != 20 {
		t.Fatalf("StepTarget after startup: got %v, want 20", z.StepTarget)
	}

	// Below the step: no advance, integral accumulates.
	for i := 0; i < 59; i++ {
		tk.run(19.5, openGate())
	}
	if z.StepTarget != 20 {
		t.Fatalf("StepTarget advanced early: got %v", z.StepTarget)
	}
	if z.ErrorSum == 0 {
		t.Fatal("expected integral to accumulate below the step")
	}

	tk.run(21, openGate())
	if z.StepTarget != 21 {
		t.Errorf("StepTarget: got %v, want 21", z.StepTarget)
	}
	if z.ErrorSum != 0 {
		t.Errorf("ErrorSum: got %v, want 0", z.ErrorSum)
	}
	if z.StepsTaken != 2 {
		t.Errorf("StepsTaken: got %d, want 2", z.StepsTaken)
	}
}

// Reading sits exactly on the step when it advances: the integral is
// zeroed by the advance and then picks up this tick's error to the new step.
func TestScenarioAStepAtTarget(t *testing.T) {
	z := newTestZone(150)
	tk := newTicker(&z, 6*time.Second, time.Second)

	tk.run(20, openGate())
	for i := 0; i < 59; i++ {
		tk.run(19.5, openGate())
	}
	if z.StepTarget != 20 {
		t.Fatalf("StepTarget advanced early: got %v", z.StepTarget)
	}

	tk.run(20, openGate())
	if z.StepTarget != 21 {
		t.Fatalf("StepTarget: got %v, want 21", z.StepTarget)
	}
	if z.ErrorSum != 1 {
		t.Errorf("ErrorSum: got %v, want 1", z.ErrorSum)
	}
	if z.PrevError != 1 {
		t.Errorf("PrevError: got %v, want 1", z.PrevError)
	}
	if z.SinceLastStep != time.Second {
		t.Errorf("SinceLastStep: got %v, want 1s", z.SinceLastStep)
	}
}

func TestAdvanceStepZeroesIntegral(t *testing.T) {
	z := newTestZone(150)
	z.StepsTaken = 1
	z.StepTarget = 40
	z.ErrorSum = 12.5
	z.SinceLastStep = 2 * time.Minute

	if !z.advanceStep(41, true) {
		t.Fatal("expected a step")
	}
	if z.ErrorSum != 0 {
		t.Errorf("ErrorSum immediately after step: got %v, want 0", z.ErrorSum)
	}
	if z.SinceLastStep != 0 {
		t.Errorf("SinceLastStep: got %v, want 0", z.SinceLastStep)
	}
	if z.StepTarget != 41 {
		t.Errorf("StepTarget: got %v, want 41", z.StepTarget)
	}
}

func TestAdvanceStepGate(t *testing.T) {
	z := newTestZone(150)
	z.StepsTaken = 1
	z.StepTarget = 40
	z.SinceLastStep = 2 * time.Minute

	if z.advanceStep(41, false) {
		t.Error("closed gate should block the step")
	}
	if z.StepTarget != 40 {
		t.Errorf("StepTarget: got %v, want 40", z.StepTarget)
	}
}

func TestRampMonotonicUp(t *testing.T) {
	z := newTestZone(25)
	tk := newTicker(&z, 6*time.Second, time.Minute)

	tk.run(20, openGate())
	prev := z.StepTarget
	for i := 0; i < 20; i++ {
		// Reading tracks the step exactly.
		tk.run(z.StepTarget, openGate())
		if d := z.StepTarget - prev; d != 0 && d != 1 {
			t.Fatalf("tick %d: step changed by %v", i, d)
		}
		if z.StepTarget > z.DesiredTemp {
			t.Fatalf("tick %d: StepTarget %v past desired %v", i, z.StepTarget, z.DesiredTemp)
		}
		prev = z.StepTarget
	}

	if z.StepTarget != 25 {
		t.Errorf("StepTarget: got %v, want 25", z.StepTarget)
	}
	if !z.HasSteppedToDesired {
		t.Error("expected HasSteppedToDesired")
	}
	if !z.HasReachedDesired {
		t.Error("expected HasReachedDesired")
	}
	if z.Phase() != PhaseHolding {
		t.Errorf("Phase: got %s, want HOLDING", z.Phase())
	}
}

func TestRampMonotonicDown(t *testing.T) {
	z := newTestZone(100)
	z.StagedTemp = 95
	z.StepTarget = 100
	z.Commit(10)
	if z.SteppingUp {
		t.Fatal("commit below the step should ramp down")
	}

	tk := newTicker(&z, 6*time.Second, time.Minute)
	tk.run(100, openGate())
	if z.StepTarget != 100 {
		t.Fatalf("StepTarget after entry: got %v, want floor(100)=100", z.StepTarget)
	}

	prev := z.StepTarget
	for i := 0; i < 10; i++ {
		tk.run(z.StepTarget, openGate())
		if d := prev - z.StepTarget; d != 0 && d != 1 {
			t.Fatalf("tick %d: step changed by %v", i, -d)
		}
		if z.StepTarget < z.DesiredTemp {
			t.Fatalf("tick %d: StepTarget %v below desired %v", i, z.StepTarget, z.DesiredTemp)
		}
		prev = z.StepTarget
	}
	if z.StepTarget != 95 {
		t.Errorf("StepTarget: got %v, want 95", z.StepTarget)
	}
}

func TestFractionalDesiredFinalStep(t *testing.T) {
	z := newTestZone(22.5)
	tk := newTicker(&z, 6*time.Second, time.Minute)

	tk.run(20, openGate())
	for i := 0; i < 5; i++ {
		tk.run(z.StepTarget, openGate())
	}
	if z.StepTarget != 22.5 {
		t.Errorf("StepTarget: got %v, want 22.5", z.StepTarget)
	}
}

func TestEntryClampedToDesired(t *testing.T) {
	z := newTestZone(50)
	tk := newTicker(&z, 6*time.Second, time.Second)
	tk.run(49.5, openGate())
	if z.StepTarget != 50 {
		t.Errorf("StepTarget: got %v, want 50", z.StepTarget)
	}

	z = newTestZone(50)
	tk = newTicker(&z, 6*time.Second, time.Second)
	z.SteppingUp = true
	tk.run(50.5, openGate())
	if z.StepTarget > 50 {
		t.Errorf("StepTarget: got %v, want at most 50", z.StepTarget)
	}
}

func TestAntiWindup(t *testing.T) {
	tests := []struct {
		name       string
		steppingUp bool
		stepTarget float64
		reading    float64
		wantZero   bool
	}{
		{"up, below desired", true, 140, 145, false},
		{"up, at desired", true, 150, 150, true},
		{"up, above desired", true, 150, 155, true},
		{"down, above step", false, 120, 121, true},
		{"down, at step", false, 120, 120, false},
		{"down, below step", false, 120, 119, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			z := newTestZone(150)
			z.SteppingUp = tt.steppingUp
			z.StepTarget = tt.stepTarget
			z.ErrorSum = 7
			z.antiWindup(tt.reading)
			if got := z.ErrorSum == 0; got != tt.wantZero {
				t.Errorf("ErrorSum zeroed: got %v, want %v", got, tt.wantZero)
			}
		})
	}
}

func TestRestabilize(t *testing.T) {
	z := newTestZone(150)
	tk := newTicker(&z, 6*time.Second, time.Second)
	tk.run(20, openGate())
	if z.StepsTaken != 1 {
		t.Fatalf("StepsTaken: got %d, want 1", z.StepsTaken)
	}

	tk.run(23, openGate())
	if z.StepsTaken != 0 {
		t.Errorf("StepsTaken after large difference: got %d, want 0", z.StepsTaken)
	}
	if !z.SteppingUp {
		t.Error("SteppingUp: want true, desired is above the reading")
	}

	// Next tick re-enters the ramp from the new reading.
	tk.run(23, openGate())
	if z.StepTarget != 23 || z.StepsTaken != 1 {
		t.Errorf("re-entry: got target %v steps %d, want 23 and 1", z.StepTarget, z.StepsTaken)
	}
}

func TestRestabilizeAboveDesired(t *testing.T) {
	z := newTestZone(100)
	tk := newTicker(&z, 6*time.Second, time.Second)
	tk.run(99, openGate())
	tk.run(104, openGate())
	if z.SteppingUp {
		t.Error("SteppingUp: want false, reading is above desired")
	}
}

func TestSensorFailureLeavesStateUntouched(t *testing.T) {
	z := newTestZone(150)
	tk := newTicker(&z, 6*time.Second, time.Second)
	tk.run(20, openGate())
	tk.run(20.5, openGate())

	before := z.Clone()
	readErr := errors.New("thermocouple not connected")
	f := z.Tick(Input{Tick: 2, Elapsed: 8 * time.Second, LastTick: time.Second, ReadErr: readErr, Shared: openGate()}, testParams())

	if f == nil {
		t.Fatal("expected a fault")
	}
	if f.Kind != SensorUnreliable {
		t.Errorf("Kind: got %v, want SensorUnreliable", f.Kind)
	}
	if !errors.Is(f, readErr) {
		t.Error("fault should wrap the read error")
	}
	if f.Zone != 0 {
		t.Errorf("Zone: got %d, want 0", f.Zone)
	}

	if !sameRing(before.Samples, z.Samples) {
		t.Error("ring buffer changed on a failed read")
	}
	a, b := before, z
	a.Samples, b.Samples = Ring{}, Ring{}
	if !reflect.DeepEqual(a, b) {
		t.Errorf("zone state changed on a failed read:\nbefore %+v\nafter  %+v", a, b)
	}
}

func TestWatchdogOnHoldRecovers(t *testing.T) {
	z := newTestZone(150)
	tk := newTicker(&z, 6*time.Second, time.Second)
	tk.run(150, openGate())

	for i := 0; i < 10; i++ {
		if f := tk.run(165, openGate()); f != nil {
			t.Fatalf("tick %d: unexpected fault %v", i, f)
		}
		if z.Status != StatusOnHold {
			t.Fatalf("tick %d: Status got %s, want ON_HOLD", i, z.Status)
		}
	}

	tk.run(155, openGate())
	if z.Status != StatusOperable {
		t.Errorf("Status back in range: got %s, want OPERABLE", z.Status)
	}
	if z.OutOfRange != 0 {
		t.Errorf("OutOfRange: got %v, want 0", z.OutOfRange)
	}
}

func TestWatchdogInoperableIsSticky(t *testing.T) {
	z := newTestZone(150)
	tk := newTicker(&z, 6*time.Second, time.Second)
	tk.run(150, openGate())

	var faults []*Fault
	for i := 0; i < 45; i++ {
		if f := tk.run(170, openGate()); f != nil {
			faults = append(faults, f)
		}
	}

	if len(faults) != 1 {
		t.Fatalf("faults: got %d, want exactly 1", len(faults))
	}
	if faults[0].Kind != ActuatorInoperable {
		t.Errorf("Kind: got %v, want ActuatorInoperable", faults[0].Kind)
	}
	if faults[0].Cause != "reading too high" {
		t.Errorf("Cause: got %q", faults[0].Cause)
	}
	if z.Status != StatusInoperable {
		t.Fatalf("Status: got %s, want INOPERABLE", z.Status)
	}

	for i := 0; i < 5; i++ {
		if f := tk.run(150, openGate()); f != nil {
			t.Errorf("unexpected fault after recovery: %v", f)
		}
	}
	if z.Status != StatusInoperable {
		t.Errorf("Status after reading returns to range: got %s, want INOPERABLE", z.Status)
	}
}

func TestWatchdogThresholdBoundary(t *testing.T) {
	z := newTestZone(150)
	tk := newTicker(&z, 6*time.Second, time.Second)
	tk.run(150, openGate())

	// Default threshold is 0.5 minutes: 29 out-of-range seconds are on hold,
	// the 30th second crosses it.
	for i := 0; i < 29; i++ {
		tk.run(5, openGate())
	}
	if z.Status != StatusOnHold {
		t.Fatalf("Status after 29s: got %s, want ON_HOLD", z.Status)
	}
	f := tk.run(5, openGate())
	if f == nil || f.Cause != "reading too low" {
		t.Fatalf("fault at 30s: got %v", f)
	}
	if z.Status != StatusInoperable {
		t.Errorf("Status: got %s, want INOPERABLE", z.Status)
	}
}

func TestDutyComputedWhenInoperable(t *testing.T) {
	z := newTestZone(150)
	z.Status = StatusInoperable
	tk := newTicker(&z, 6*time.Second, time.Second)
	tk.run(100, openGate())
	tk.run(99, openGate())

	if z.Duty <= 0 {
		t.Errorf("Duty: got %v, want positive below the step", z.Duty)
	}
	if z.PrevError != z.StepTarget-99 {
		t.Errorf("PrevError: got %v, want %v", z.PrevError, z.StepTarget-99)
	}
}

func TestDutyAlwaysClamped(t *testing.T) {
	z := newTestZone(150)
	z.Ki = 100
	tk := newTicker(&z, 6*time.Second, time.Second)
	for _, r := range []float64{20, 18, 16, 21, 30, 200, 20} {
		tk.run(r, openGate())
		if z.Duty < 0 || z.Duty > 1 {
			t.Fatalf("reading %v: duty %v outside [0,1]", r, z.Duty)
		}
	}
}

func TestWriteEveryTick(t *testing.T) {
	z := newTestZone(150)
	tk := newTicker(&z, 6*time.Second, time.Second)
	for i := 0; i < 3; i++ {
		tk.run(20+float64(i), openGate())
	}
	for tick := uint64(0); tick < 3; tick++ {
		v, ok := z.Samples.At(tick)
		if !ok || v != 20+float64(tick) {
			t.Errorf("tick %d: got (%v, %v)", tick, v, ok)
		}
	}
	if z.LastStored != 22 {
		t.Errorf("LastStored: got %v, want 22", z.LastStored)
	}
}

func TestWriteEveryMinute(t *testing.T) {
	z := New(0, Setpoint{Temp: 150, Rate: 1, Ki: 1.5}, 128, testParams())
	z.WriteEveryMinute = true
	tk := newTicker(&z, 6*time.Second, time.Second)

	for i := 0; i < 61; i++ {
		tk.run(20+float64(i)/100, openGate())
	}

	var stored []uint64
	for tick := uint64(0); tick < 61; tick++ {
		if _, ok := z.Samples.At(tick); ok {
			stored = append(stored, tick)
		}
	}
	if len(stored) != 2 || stored[0] != 0 || stored[1] != 60 {
		t.Errorf("stored ticks: got %v, want [0 60]", stored)
	}
}

func TestCoupledSharedOverridesStaged(t *testing.T) {
	z := newTestZone(150)
	tk := newTicker(&z, 6*time.Second, time.Second)
	tk.run(20, SharedSetpoint{
		AllSteppedToSame: true,
		Coupled:          true,
		SetTemp:          120,
		SetRate:          2,
		SetKi:            3,
		PendingCommit:    true,
		WriteEveryMinute: true,
	})

	if z.StagedTemp != 120 || z.StagedRate != 2 || z.StagedKi != 3 {
		t.Errorf("staged: got (%v, %v, %v), want (120, 2, 3)", z.StagedTemp, z.StagedRate, z.StagedKi)
	}
	if !z.PendingCommit || !z.WriteEveryMinute {
		t.Error("flags not taken from the shared setpoint")
	}
	if z.DesiredTemp != 150 {
		t.Errorf("DesiredTemp changed without commit: got %v", z.DesiredTemp)
	}
}

func TestStepCompleteMarker(t *testing.T) {
	z := newTestZone(150)
	tk := newTicker(&z, 6*time.Second, time.Second)
	tk.run(20, openGate())
	if !z.StepComplete {
		t.Error("StepComplete: want true at the step")
	}
	tk.run(19.5, openGate())
	if z.StepComplete {
		t.Error("StepComplete: want false below the step")
	}
}

func TestFaultError(t *testing.T) {
	f := &Fault{Kind: ActuatorInoperable, Zone: 2, Elapsed: 1500 * time.Millisecond, Cause: "reading too high"}
	want := "tape 3 became inoperable at elapsed time 1.50s due to reading too high"
	if f.Error() != want {
		t.Errorf("Error: got %q, want %q", f.Error(), want)
	}
}
