// Package tui is the full-screen interface: a grid of script buttons, one
// log tab per launched script next to the permanent Console and Scratchpad
// tabs, and a masked password prompt for elevated runs.
package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/cruft-ninja/script-runner/internal/catalog"
	"github.com/cruft-ninja/script-runner/internal/credential"
	"github.com/cruft-ninja/script-runner/internal/gate"
	"github.com/cruft-ninja/script-runner/internal/logsink"
	"github.com/cruft-ninja/script-runner/internal/procstat"
)

const statsInterval = 2 * time.Second

// Controller is the part of the run coordinator the interface drives.
type Controller interface {
	RequestRun(script catalog.Script)
	CloseTab(id logsink.ID)
	CloseFinished()
	ClearSink(id logsink.ID)
	SetCeiling(n int)
	SetScratch(text string)
	SaveSink(ctx context.Context, id logsink.ID, path string) error
}

type focus int

const (
	focusButtons focus = iota
	focusScratch
	focusPrompt
	focusQuit
)

// tab mirrors one coordinator sink.
type tab struct {
	id       logsink.ID
	identity string
	label    string
	lines    []string
}

// ModelConfig holds initial data for the model.
type ModelConfig struct {
	Title      string
	Scripts    []catalog.Script
	Controller Controller
	Ceiling    int
	MaxLines   int
	StripANSI  bool
	SaveDir    string
}

// Model is the bubbletea model of the interface.
type Model struct {
	title    string
	ctrl     Controller
	scripts  []catalog.Script
	enabled  map[string]bool
	running  map[string]int
	stats    map[string]procstat.Process
	host     procstat.Host
	selected int

	tabs   []*tab
	active int

	viewport  viewport.Model
	scratch   textarea.Model
	password  textinput.Model
	reveal    bool
	prompts   []*credential.Request
	promptErr string
	focus     focus
	prevFocus focus

	ceiling   int
	maxLines  int
	stripANSI bool
	saveDir   string

	keys   keyMap
	help   help.Model
	status string

	width  int
	height int
	now    func() time.Time
}

// NewModel creates the model with every script button enabled.
func NewModel(cfg ModelConfig) Model {
	enabled := make(map[string]bool, len(cfg.Scripts))
	for _, s := range cfg.Scripts {
		enabled[s.Identity()] = true
	}

	maxLines := cfg.MaxLines
	if maxLines <= 0 {
		maxLines = logsink.DefaultMaxLines
	}

	ceiling := cfg.Ceiling
	if ceiling == 0 {
		ceiling = gate.DefaultCeiling
	}

	title := cfg.Title
	if title == "" {
		title = "Script Runner"
	}

	scratch := textarea.New()
	scratch.Placeholder = "Notes, commands, anything. Press e to edit, esc to stop."
	scratch.ShowLineNumbers = false
	scratch.CharLimit = 0

	pw := textinput.New()
	pw.EchoMode = textinput.EchoPassword
	pw.EchoCharacter = '•'
	pw.Placeholder = "password"
	pw.Prompt = "> "

	return Model{
		title:   title,
		ctrl:    cfg.Controller,
		scripts: cfg.Scripts,
		enabled: enabled,
		running: make(map[string]int),
		stats:   make(map[string]procstat.Process),
		tabs: []*tab{
			{id: logsink.Console, label: "Console"},
			{id: logsink.Scratch, label: "Scratchpad"},
		},
		viewport:  viewport.New(80, 10),
		scratch:   scratch,
		password:  pw,
		ceiling:   gate.ClampCeiling(ceiling),
		maxLines:  maxLines,
		stripANSI: cfg.StripANSI,
		saveDir:   cfg.SaveDir,
		keys:      defaultKeyMap(),
		help:      help.New(),
		width:     80,
		height:    24,
		now:       time.Now,
	}
}

// Init starts the resource sampler.
func (m Model) Init() tea.Cmd {
	return statsTick()
}

func statsTick() tea.Cmd {
	return tea.Tick(statsInterval, func(t time.Time) tea.Msg {
		return statsTickMsg(t)
	})
}

func (m Model) activeTab() *tab {
	if m.active < 0 || m.active >= len(m.tabs) {
		return m.tabs[0]
	}

	return m.tabs[m.active]
}

func (m Model) tabIndex(id logsink.ID) int {
	for i, t := range m.tabs {
		if t.id == id {
			return i
		}
	}

	return -1
}

// Running returns the number of scripts with a live process or pending admission.
func (m Model) Running() int {
	n := 0

	for _, ok := range m.enabled {
		if !ok {
			n++
		}
	}

	return n
}
