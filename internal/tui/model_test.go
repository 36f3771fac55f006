package tui

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sweeney/bakeout/internal/status"
	"github.com/sweeney/bakeout/internal/zone"
)

type staged struct {
	id int
	d  zone.Setpoint
}

type fakeController struct {
	stages  []staged
	commits []int
	cadence map[int]bool
	err     error
}

func (f *fakeController) Stage(id int, d zone.Setpoint) error {
	if f.err != nil {
		return f.err
	}
	f.stages = append(f.stages, staged{id, d})
	return nil
}

func (f *fakeController) Commit(id int) error {
	if f.err != nil {
		return f.err
	}
	f.commits = append(f.commits, id)
	return nil
}

func (f *fakeController) SetWriteEveryMinute(id int, on bool) error {
	if f.err != nil {
		return f.err
	}
	if f.cadence == nil {
		f.cadence = map[int]bool{}
	}
	f.cadence[id] = on
	return nil
}

var testStart = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// newSource returns a real tracker for four tapes.
func newSource() *status.Tracker {
	return status.NewTracker(testStart, 4, status.Config{Capacity: 500})
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(t *testing.T, m Model, msgs ...tea.Msg) Model {
	t.Helper()
	for _, msg := range msgs {
		updated, _ := m.Update(msg)
		m = updated.(Model)
	}
	return m
}

func TestTabNavigation(t *testing.T) {
	src := newSource()
	m := New(&fakeController{}, src)

	tests := []struct {
		name string
		msg  tea.Msg
		want int
	}{
		{"tab", tea.KeyMsg{Type: tea.KeyTab}, 1},
		{"right", tea.KeyMsg{Type: tea.KeyRight}, 2},
		{"l", runes("l"), 3},
		{"wrap forward", tea.KeyMsg{Type: tea.KeyTab}, 0},
		{"wrap back", tea.KeyMsg{Type: tea.KeyShiftTab}, 3},
		{"left", tea.KeyMsg{Type: tea.KeyLeft}, 2},
		{"number", runes("1"), 0},
		{"number out of range", runes("9"), 0},
	}
	for _, tt := range tests {
		m = press(t, m, tt.msg)
		if got := src.SelectedZone(); got != tt.want {
			t.Errorf("%s: selected got %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestStagingKeys(t *testing.T) {
	tests := []struct {
		key  string
		want zone.Setpoint
	}{
		{"t", zone.Setpoint{Temp: 1}},
		{"T", zone.Setpoint{Temp: -1}},
		{"r", zone.Setpoint{Rate: 0.1}},
		{"R", zone.Setpoint{Rate: -0.1}},
		{"i", zone.Setpoint{Ki: 0.1}},
		{"I", zone.Setpoint{Ki: -0.1}},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			ctl := &fakeController{}
			src := newSource()
			src.Select(2)
			m := New(ctl, src)

			press(t, m, runes(tt.key))

			if len(ctl.stages) != 1 {
				t.Fatalf("stages: got %d, want 1", len(ctl.stages))
			}
			if ctl.stages[0].id != 2 {
				t.Errorf("zone: got %d, want 2", ctl.stages[0].id)
			}
			if ctl.stages[0].d != tt.want {
				t.Errorf("delta: got %+v, want %+v", ctl.stages[0].d, tt.want)
			}
		})
	}
}

func TestCommitKeys(t *testing.T) {
	ctl := &fakeController{}
	src := newSource()
	src.Select(1)
	m := New(ctl, src)

	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter}, runes("g"))

	if len(ctl.commits) != 2 || ctl.commits[0] != 1 || ctl.commits[1] != 1 {
		t.Errorf("commits: got %v, want [1 1]", ctl.commits)
	}
	if m.message != "committed tape 2" {
		t.Errorf("message: got %q", m.message)
	}
}

func TestCommandErrorShown(t *testing.T) {
	ctl := &fakeController{err: errors.New("command queue full")}
	m := New(ctl, newSource())

	m = press(t, m, runes("t"))
	if m.message != "stage: command queue full" {
		t.Errorf("stage message: got %q", m.message)
	}
	m = press(t, m, runes("g"))
	if m.message != "commit: command queue full" {
		t.Errorf("commit message: got %q", m.message)
	}
}

func TestCadenceToggle(t *testing.T) {
	ctl := &fakeController{}
	m := New(ctl, newSource())

	press(t, m, runes("m"))
	if on, ok := ctl.cadence[0]; !ok || !on {
		t.Errorf("cadence: got %v (set %v), want true", on, ok)
	}
}

func TestNumPointsKeys(t *testing.T) {
	src := newSource()
	m := New(&fakeController{}, src)

	tests := []struct {
		key  string
		want int
	}{
		{"]", 30},
		{"}", 130},
		{"[", 120},
		{"{", 20},
		{"{", 2},
	}
	for _, tt := range tests {
		m = press(t, m, runes(tt.key))
		if m.snap.NumPoints != tt.want {
			t.Errorf("after %q: num points got %d, want %d", tt.key, m.snap.NumPoints, tt.want)
		}
	}
}

func TestQuit(t *testing.T) {
	m := New(&fakeController{}, newSource())
	_, cmd := m.Update(runes("q"))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit")
	}
}

func TestDoneMsgQuitsWithError(t *testing.T) {
	m := New(&fakeController{}, newSource())
	runErr := errors.New("tape 1 became unreliable")

	updated, cmd := m.Update(DoneMsg{Err: runErr})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if got := updated.(Model).Err(); !errors.Is(got, runErr) {
		t.Errorf("Err: got %v, want %v", got, runErr)
	}
}

func TestHelpToggle(t *testing.T) {
	m := New(&fakeController{}, newSource())
	m = press(t, m, runes("?"))
	if !m.showHelp {
		t.Error("? should show full help")
	}
	if !strings.Contains(m.View(), "points ±100") {
		t.Error("full help should list every binding")
	}
}

func TestViewShowsSelectedTape(t *testing.T) {
	src := newSource()
	m := New(&fakeController{}, src)
	m = press(t, m, runes("3"))

	v := m.View()
	for _, want := range []string{"bakeout", "Tape 1", "Tape 4", "reading", "waiting for data"} {
		if !strings.Contains(v, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestSparkline(t *testing.T) {
	tests := []struct {
		name    string
		samples []float64
		width   int
		want    string
	}{
		{"rising", []float64{0, 1, 2, 3, 4, 5, 6, 7}, 10, "▁▂▃▄▅▆▇█"},
		{"flat", []float64{5, 5, 5}, 10, "▄▄▄"},
		{"trimmed to width", []float64{0, 7, 0, 7}, 2, "▁█"},
		{"unwritten slots", []float64{math.NaN(), 0, 7}, 10, " ▁█"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sparkline(tt.samples, tt.width); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
