package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up            key.Binding
	Down          key.Binding
	Left          key.Binding
	Right         key.Binding
	Run           key.Binding
	NextTab       key.Binding
	PrevTab       key.Binding
	CloseTab      key.Binding
	CloseFinished key.Binding
	Clear         key.Binding
	Save          key.Binding
	Copy          key.Binding
	Edit          key.Binding
	MoreConc      key.Binding
	LessConc      key.Binding
	Help          key.Binding
	Quit          key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Up:            key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:          key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Left:          key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "left")),
		Right:         key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "right")),
		Run:           key.NewBinding(key.WithKeys("enter", " "), key.WithHelp("enter", "run")),
		NextTab:       key.NewBinding(key.WithKeys("tab", "]"), key.WithHelp("tab", "next tab")),
		PrevTab:       key.NewBinding(key.WithKeys("shift+tab", "["), key.WithHelp("shift+tab", "prev tab")),
		CloseTab:      key.NewBinding(key.WithKeys("x", "ctrl+w"), key.WithHelp("x", "close tab")),
		CloseFinished: key.NewBinding(key.WithKeys("X"), key.WithHelp("X", "close finished")),
		Clear:         key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "clear tab")),
		Save:          key.NewBinding(key.WithKeys("s", "ctrl+s"), key.WithHelp("s", "save tab")),
		Copy:          key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "copy tab")),
		Edit:          key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "edit scratchpad")),
		MoreConc:      key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+/-", "max concurrent")),
		LessConc:      key.NewBinding(key.WithKeys("-", "_")),
		Help:          key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:          key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Run, k.NextTab, k.CloseTab, k.Save, k.MoreConc, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Left, k.Right, k.Run},
		{k.NextTab, k.PrevTab, k.CloseTab, k.CloseFinished},
		{k.Clear, k.Save, k.Copy, k.Edit},
		{k.MoreConc, k.Help, k.Quit},
	}
}
