package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the key bindings of the bake console.
type KeyMap struct {
	NextTape key.Binding
	PrevTape key.Binding

	// Staging. Nothing takes effect until Commit.
	TempUp   key.Binding
	TempDown key.Binding
	RateUp   key.Binding
	RateDown key.Binding
	KiUp     key.Binding
	KiDown   key.Binding
	Commit   key.Binding

	// Cadence toggles between storing every tick and once a minute.
	Cadence key.Binding

	// Readout window.
	PointsUp      key.Binding
	PointsDown    key.Binding
	PointsUpBig   key.Binding
	PointsDownBig key.Binding

	Help key.Binding
	Quit key.Binding
}

// Staging steps, per key press.
const (
	tempStep = 1.0
	rateStep = 0.1
	kiStep   = 0.1
)

// DefaultKeyMap is the built-in key binding set.
var DefaultKeyMap = KeyMap{
	NextTape: key.NewBinding(
		key.WithKeys("tab", "right", "l"),
		key.WithHelp("tab/→", "next tape"),
	),
	PrevTape: key.NewBinding(
		key.WithKeys("shift+tab", "left", "h"),
		key.WithHelp("shift+tab/←", "prev tape"),
	),
	TempUp: key.NewBinding(
		key.WithKeys("t"),
		key.WithHelp("t/T", "temp ±1"),
	),
	TempDown: key.NewBinding(
		key.WithKeys("T"),
	),
	RateUp: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r/R", "rate ±0.1"),
	),
	RateDown: key.NewBinding(
		key.WithKeys("R"),
	),
	KiUp: key.NewBinding(
		key.WithKeys("i"),
		key.WithHelp("i/I", "ki ±0.1"),
	),
	KiDown: key.NewBinding(
		key.WithKeys("I"),
	),
	Commit: key.NewBinding(
		key.WithKeys("enter", "g"),
		key.WithHelp("enter/g", "go"),
	),
	Cadence: key.NewBinding(
		key.WithKeys("m"),
		key.WithHelp("m", "tick/minute samples"),
	),
	PointsUp: key.NewBinding(
		key.WithKeys("]"),
		key.WithHelp("[/]", "points ±10"),
	),
	PointsDown: key.NewBinding(
		key.WithKeys("["),
	),
	PointsUpBig: key.NewBinding(
		key.WithKeys("}"),
		key.WithHelp("{/}", "points ±100"),
	),
	PointsDownBig: key.NewBinding(
		key.WithKeys("{"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "help"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.NextTape, k.TempUp, k.RateUp, k.Commit, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.NextTape, k.PrevTape},
		{k.TempUp, k.RateUp, k.KiUp, k.Commit},
		{k.Cadence, k.PointsUp, k.PointsUpBig},
		{k.Help, k.Quit},
	}
}
