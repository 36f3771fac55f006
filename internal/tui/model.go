// Package tui is the operator console: one tab per heater tape, the rate
// readout of the selected tape and keys to stage and commit setpoints.
package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/sweeney/bakeout/internal/status"
	"github.com/sweeney/bakeout/internal/zone"
)

// refreshInterval is how often the console re-reads the tracker.
const refreshInterval = 250 * time.Millisecond

// Controller accepts operator commands. *scheduler.Scheduler implements it.
type Controller interface {
	Stage(id int, d zone.Setpoint) error
	Commit(id int) error
	SetWriteEveryMinute(id int, on bool) error
}

// Source supplies display state and owns the tape selection.
// *status.Tracker implements it.
type Source interface {
	Snapshot() status.Snapshot
	Select(id int)
	AddNumPoints(delta int) int
}

// DoneMsg tells the console the run has ended. A nil Err means a clean stop.
type DoneMsg struct {
	Err error
}

type refreshMsg time.Time

// Model is the bubbletea model for the bake console.
type Model struct {
	ctl  Controller
	src  Source
	snap status.Snapshot

	message string // result of the last command, shown under the panel
	err     error  // run error from DoneMsg

	keys     KeyMap
	help     help.Model
	showHelp bool
	width    int
	height   int
}

// New creates a console model.
func New(ctl Controller, src Source) Model {
	return Model{
		ctl:  ctl,
		src:  src,
		snap: src.Snapshot(),
		keys: DefaultKeyMap,
		help: help.New(),
	}
}

// Init starts the refresh loop.
func (m Model) Init() tea.Cmd {
	return refresh()
}

func refresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}

// Err returns the run error delivered by DoneMsg, if any.
func (m Model) Err() error {
	return m.err
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case refreshMsg:
		m.snap = m.src.Snapshot()
		return m, refresh()

	case DoneMsg:
		m.err = msg.Err
		m.snap = m.src.Snapshot()
		return m, tea.Quit

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	id := m.snap.Selected

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp

	case key.Matches(msg, m.keys.NextTape):
		m.selectTape(id + 1)
	case key.Matches(msg, m.keys.PrevTape):
		m.selectTape(id - 1)

	case key.Matches(msg, m.keys.TempUp):
		m.stage(zone.Setpoint{Temp: tempStep})
	case key.Matches(msg, m.keys.TempDown):
		m.stage(zone.Setpoint{Temp: -tempStep})
	case key.Matches(msg, m.keys.RateUp):
		m.stage(zone.Setpoint{Rate: rateStep})
	case key.Matches(msg, m.keys.RateDown):
		m.stage(zone.Setpoint{Rate: -rateStep})
	case key.Matches(msg, m.keys.KiUp):
		m.stage(zone.Setpoint{Ki: kiStep})
	case key.Matches(msg, m.keys.KiDown):
		m.stage(zone.Setpoint{Ki: -kiStep})

	case key.Matches(msg, m.keys.Commit):
		if err := m.ctl.Commit(id); err != nil {
			m.message = "commit: " + err.Error()
		} else {
			m.message = fmt.Sprintf("committed tape %d", id+1)
		}

	case key.Matches(msg, m.keys.Cadence):
		on := true
		if id < len(m.snap.Zones) {
			on = !m.snap.Zones[id].WriteEveryMinute
		}
		if err := m.ctl.SetWriteEveryMinute(id, on); err != nil {
			m.message = "cadence: " + err.Error()
		} else if on {
			m.message = "storing one sample a minute"
		} else {
			m.message = "storing every sample"
		}

	case key.Matches(msg, m.keys.PointsUp):
		m.src.AddNumPoints(10)
	case key.Matches(msg, m.keys.PointsDown):
		m.src.AddNumPoints(-10)
	case key.Matches(msg, m.keys.PointsUpBig):
		m.src.AddNumPoints(100)
	case key.Matches(msg, m.keys.PointsDownBig):
		m.src.AddNumPoints(-100)

	// Number keys jump straight to a tape.
	case len(msg.String()) == 1 && msg.String() >= "1" && msg.String() <= "9":
		if n := int(msg.String()[0] - '1'); n < len(m.snap.Zones) {
			m.selectTape(n)
		}

	default:
		return m, nil
	}

	m.snap = m.src.Snapshot()
	return m, nil
}

// selectTape moves the selection, wrapping at either end.
func (m *Model) selectTape(id int) {
	n := len(m.snap.Zones)
	if n == 0 {
		return
	}
	id = (id%n + n) % n
	m.src.Select(id)
	m.message = ""
}

func (m *Model) stage(d zone.Setpoint) {
	if err := m.ctl.Stage(m.snap.Selected, d); err != nil {
		m.message = "stage: " + err.Error()
		return
	}
	m.message = ""
}
