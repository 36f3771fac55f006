package tui

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/sweeney/bakeout/internal/status"
	"github.com/sweeney/bakeout/internal/zone"
)

// maxEvents is how many fault lines the console shows.
const maxEvents = 5

var sparkRunes = []rune("▁▂▃▄▅▆▇█")

// View renders the model.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderTabs())
	b.WriteString("\n")
	if z, ok := m.selected(); ok {
		b.WriteString(panelStyle.Render(m.renderZone(z)))
		b.WriteString("\n")
	}
	if m.message != "" {
		b.WriteString(dimStyle.Render(m.message))
		b.WriteString("\n")
	}
	if ev := m.renderEvents(); ev != "" {
		b.WriteString(ev)
	}
	if m.snap.Fatal != "" {
		b.WriteString(failStyle.Render("stopped: " + m.snap.Fatal))
		b.WriteString("\n")
	}

	if m.showHelp {
		b.WriteString(m.help.FullHelpView(m.keys.FullHelp()))
	} else {
		b.WriteString(m.help.ShortHelpView(m.keys.ShortHelp()))
	}
	return b.String()
}

func (m Model) selected() (status.ZoneView, bool) {
	if m.snap.Selected < 0 || m.snap.Selected >= len(m.snap.Zones) {
		return status.ZoneView{}, false
	}
	return m.snap.Zones[m.snap.Selected], true
}

func (m Model) renderHeader() string {
	elapsed := m.snap.Elapsed.Truncate(time.Second)
	mqtt := "mqtt off"
	if m.snap.Config.Broker != "" {
		mqtt = "mqtt down"
		if m.snap.MQTTConnected {
			mqtt = "mqtt up"
		}
	}
	info := fmt.Sprintf("tick %d  elapsed %s  last tick %dms  %s",
		m.snap.Tick, elapsed, m.snap.LastTick.Milliseconds(), mqtt)
	return titleStyle.Render("bakeout") + "  " + dimStyle.Render(info)
}

func (m Model) renderTabs() string {
	tabs := make([]string, len(m.snap.Zones))
	for i, z := range m.snap.Zones {
		label := fmt.Sprintf("Tape %d", i+1)
		if z.Status == zone.StatusInoperable {
			label += " ✗"
		}
		if i == m.snap.Selected {
			tabs[i] = activeTabStyle.Render(label)
		} else {
			tabs[i] = tabStyle.Render(label)
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (m Model) renderZone(z status.ZoneView) string {
	var rows []string
	row := func(label, value string) {
		rows = append(rows, labelStyle.Render(label)+value)
	}

	reading := "-"
	if z.HasReading {
		reading = fmt.Sprintf("%.2f °C", z.Reading)
	}
	row("reading", reading)
	row("status", statusStyle(z.Status).Render(string(z.Status)))
	row("phase", phaseText(z))
	row("step target", fmt.Sprintf("%.0f °C", z.StepTarget))
	row("duty", fmt.Sprintf("%.1f%%", z.Duty*100))
	row("set", fmt.Sprintf("%.2f °C  %.2f °C/min  ki %.2f", z.Desired.Temp, z.Desired.Rate, z.Desired.Ki))

	staged := fmt.Sprintf("%.2f °C  %.2f °C/min  ki %.2f", z.Staged.Temp, math.Abs(z.Staged.Rate), z.Staged.Ki)
	if z.PendingCommit {
		staged = pendingStyle.Render(staged + "  (enter to commit)")
	}
	row("staged", staged)

	cadence := "every tick"
	if z.WriteEveryMinute {
		cadence = "every minute"
	}
	row("samples", cadence)
	if z.Coupled {
		row("coupled", "steps with its group")
	}

	if r := m.snap.Readout; r != nil && r.Zone == z.ID {
		row("rate", fmt.Sprintf("%.2f °C/min over %d points", r.Rate, len(r.Samples)))
		rows = append(rows, sparkline(r.Samples, m.sparkWidth()))
	} else {
		row("rate", dimStyle.Render(fmt.Sprintf("waiting for data (%d points)", m.snap.NumPoints)))
	}
	return strings.Join(rows, "\n")
}

func phaseText(z status.ZoneView) string {
	dir := "up"
	if !z.SteppingUp {
		dir = "down"
	}
	switch z.Phase {
	case zone.PhaseRamping:
		return fmt.Sprintf("ramping %s, step %d", dir, z.StepsTaken)
	case zone.PhaseHolding:
		if z.ReachedDesired {
			return "holding at set point"
		}
		return "settling on set point"
	default:
		return "starting"
	}
}

func statusStyle(s zone.Status) lipgloss.Style {
	switch s {
	case zone.StatusOperable:
		return okStyle
	case zone.StatusOnHold:
		return warnStyle
	case zone.StatusInoperable:
		return failStyle
	default:
		return dimStyle
	}
}

func (m Model) renderEvents() string {
	if len(m.snap.Events) == 0 {
		return ""
	}
	events := m.snap.Events
	if len(events) > maxEvents {
		events = events[len(events)-maxEvents:]
	}
	var b strings.Builder
	for _, e := range events {
		b.WriteString(failStyle.Render("! " + e))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) sparkWidth() int {
	if m.width > 8 {
		return m.width - 8
	}
	return 60
}

// sparkline draws the last width samples scaled between their min and max.
// NaN samples, which are ring slots not yet written, are drawn blank.
func sparkline(samples []float64, width int) string {
	if len(samples) > width {
		samples = samples[len(samples)-width:]
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range samples {
		if math.IsNaN(v) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	out := make([]rune, len(samples))
	top := len(sparkRunes) - 1
	for i, v := range samples {
		switch {
		case math.IsNaN(v):
			out[i] = ' '
		case hi == lo:
			out[i] = sparkRunes[top/2]
		default:
			out[i] = sparkRunes[int(math.Round((v-lo)/(hi-lo)*float64(top)))]
		}
	}
	return string(out)
}
