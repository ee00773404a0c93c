package tui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/cruft-ninja/script-runner/internal/ansi"
	"github.com/cruft-ninja/script-runner/internal/gate"
	"github.com/cruft-ninja/script-runner/internal/logsink"
	"github.com/cruft-ninja/script-runner/internal/procstat"
	"github.com/cruft-ninja/script-runner/internal/runner"
)

const saveTimeout = 5 * time.Second

var errClipboardUnsupported = errors.New("no clipboard utility available")

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()

		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case appendLogMsg:
		m.appendLog(msg.sink, msg.text)

	case controlMsg:
		m.enabled[msg.identity] = msg.enabled

	case openTabMsg:
		m.tabs = append(m.tabs, &tab{id: logsink.ScriptID(msg.identity), identity: msg.identity, label: msg.label})
		m.active = len(m.tabs) - 1
		m.refreshViewport(true)

	case closeTabMsg:
		m.removeTab(msg.identity)

	case clearLogMsg:
		if idx := m.tabIndex(msg.sink); idx >= 0 {
			m.tabs[idx].lines = nil
			if idx == m.active {
				m.refreshViewport(true)
			}
		}

	case sessionStartedMsg:
		m.running[msg.identity] = msg.pid

	case sessionEndedMsg:
		delete(m.running, msg.identity)
		delete(m.stats, msg.identity)

	case credentialRequestMsg:
		m.prompts = append(m.prompts, msg.req)
		if m.focus != focusPrompt {
			cmd := m.openPrompt()
			return m, cmd
		}

	case statsTickMsg:
		pids := make(map[string]int, len(m.running))
		for identity, pid := range m.running {
			pids[identity] = pid
		}

		return m, tea.Batch(sampleStats(pids), statsTick())

	case statsMsg:
		m.host = msg.host
		for identity, p := range msg.procs {
			if _, live := m.running[identity]; live {
				m.stats[identity] = p
			}
		}

	case savedMsg:
		switch {
		case msg.err == nil:
			m.status = "Saved to " + msg.path
		case errors.Is(msg.err, runner.ErrEmptySink):
			m.status = "Current tab is empty, nothing to save."
		default:
			m.status = "Failed to save: " + msg.err.Error()
		}

	case copiedMsg:
		if msg.err != nil {
			m.status = "Copy failed: " + msg.err.Error()
		} else {
			m.status = fmt.Sprintf("Copied %d line(s) to the clipboard.", msg.lines)
		}
	}

	var cmd tea.Cmd

	switch m.focus {
	case focusScratch:
		m.scratch, cmd = m.scratch.Update(msg)
	case focusPrompt:
		m.password, cmd = m.password.Update(msg)
	}

	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.focus {
	case focusPrompt:
		return m.handlePromptKey(msg)
	case focusQuit:
		return m.handleQuitKey(msg)
	case focusScratch:
		return m.handleScratchKey(msg)
	}

	cols := m.gridCols()

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.requestQuit()
	case key.Matches(msg, m.keys.Up):
		m.moveSelection(-cols)
	case key.Matches(msg, m.keys.Down):
		m.moveSelection(cols)
	case key.Matches(msg, m.keys.Left):
		m.moveSelection(-1)
	case key.Matches(msg, m.keys.Right):
		m.moveSelection(1)
	case key.Matches(msg, m.keys.Run):
		return m.runSelected()
	case key.Matches(msg, m.keys.NextTab):
		m.switchTab(1)
	case key.Matches(msg, m.keys.PrevTab):
		m.switchTab(-1)
	case key.Matches(msg, m.keys.CloseTab):
		id := m.activeTab().id
		return m, m.call(func(c Controller) { c.CloseTab(id) })
	case key.Matches(msg, m.keys.CloseFinished):
		return m, m.call(func(c Controller) { c.CloseFinished() })
	case key.Matches(msg, m.keys.Clear):
		cmd := m.clearActive()
		return m, cmd
	case key.Matches(msg, m.keys.Save):
		return m, m.saveActive()
	case key.Matches(msg, m.keys.Copy):
		cmd := m.copyActive()
		return m, cmd
	case key.Matches(msg, m.keys.Edit):
		cmd := m.editScratch()
		return m, cmd
	case key.Matches(msg, m.keys.MoreConc):
		cmd := m.adjustCeiling(1)
		return m, cmd
	case key.Matches(msg, m.keys.LessConc):
		cmd := m.adjustCeiling(-1)
		return m, cmd
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		m.layout()
	default:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)

		return m, cmd
	}

	return m, nil
}

func (m Model) handleScratchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.scratch.Blur()
		m.focus = focusButtons

		return m, nil
	case "ctrl+s":
		return m, m.saveActive()
	case "ctrl+c":
		m.scratch.Blur()
		m.focus = focusButtons

		return m.requestQuit()
	}

	var cmd tea.Cmd
	m.scratch, cmd = m.scratch.Update(msg)

	return m, cmd
}

func (m Model) handleQuitKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y", "ctrl+c":
		return m.quit()
	case "n", "N", "esc", "q":
		m.focus = m.prevFocus
		if m.focus == focusScratch {
			cmd := m.scratch.Focus()
			return m, cmd
		}
	}

	return m, nil
}

func (m Model) handlePromptKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if len(m.prompts) == 0 {
		m.focus = m.prevFocus
		return m, nil
	}

	req := m.prompts[0]

	switch msg.String() {
	case "enter":
		if err := req.Submit(m.password.Value()); err != nil {
			m.promptErr = "Password cannot be empty."
			return m, nil
		}

		cmd := m.nextPrompt()

		return m, cmd
	case "esc", "ctrl+c":
		req.Cancel()
		cmd := m.nextPrompt()

		return m, cmd
	case "ctrl+r":
		m.reveal = !m.reveal
		if m.reveal {
			m.password.EchoMode = textinput.EchoNormal
		} else {
			m.password.EchoMode = textinput.EchoPassword
		}

		return m, nil
	}

	m.promptErr = ""

	var cmd tea.Cmd
	m.password, cmd = m.password.Update(msg)

	return m, cmd
}

// openPrompt shows the first queued credential request.
func (m *Model) openPrompt() tea.Cmd {
	if m.focus != focusPrompt {
		m.prevFocus = m.focus
	}

	if m.focus == focusScratch {
		m.scratch.Blur()
	}

	m.focus = focusPrompt
	m.reveal = false
	m.promptErr = ""
	m.password.EchoMode = textinput.EchoPassword
	m.password.Reset()

	return m.password.Focus()
}

// nextPrompt drops the answered request and shows the next one, if any.
func (m *Model) nextPrompt() tea.Cmd {
	m.password.Reset()
	m.prompts = m.prompts[1:]

	if len(m.prompts) > 0 {
		return m.openPrompt()
	}

	m.password.Blur()
	m.focus = m.prevFocus

	if m.focus == focusScratch {
		return m.scratch.Focus()
	}

	return nil
}

func (m Model) requestQuit() (tea.Model, tea.Cmd) {
	if m.Running() > 0 {
		m.prevFocus = m.focus
		m.focus = focusQuit

		return m, nil
	}

	return m.quit()
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	for _, req := range m.prompts {
		req.Cancel()
	}

	m.prompts = nil

	return m, tea.Quit
}

// call runs fn against the controller off the update loop, since the
// coordinator may itself be blocked delivering messages to the program.
func (m Model) call(fn func(Controller)) tea.Cmd {
	if m.ctrl == nil {
		return nil
	}

	ctrl := m.ctrl

	return func() tea.Msg {
		fn(ctrl)
		return nil
	}
}

func (m *Model) moveSelection(delta int) {
	if len(m.scripts) == 0 {
		return
	}

	next := m.selected + delta
	if next < 0 || next >= len(m.scripts) {
		return
	}

	m.selected = next
}

func (m Model) runSelected() (tea.Model, tea.Cmd) {
	if len(m.scripts) == 0 {
		return m, nil
	}

	script := m.scripts[m.selected]
	identity := script.Identity()

	if !m.enabled[identity] {
		m.status = script.DisplayLabel() + " is already running."
		return m, nil
	}

	if idx := m.tabIndex(logsink.ScriptID(identity)); idx >= 0 {
		m.active = idx
		m.refreshViewport(true)
	}

	return m, m.call(func(c Controller) { c.RequestRun(script) })
}

func (m *Model) switchTab(delta int) {
	n := len(m.tabs)
	m.active = ((m.active+delta)%n + n) % n
	m.refreshViewport(true)
}

func (m *Model) removeTab(identity string) {
	idx := m.tabIndex(logsink.ScriptID(identity))
	if idx < 0 {
		return
	}

	m.tabs = append(m.tabs[:idx:idx], m.tabs[idx+1:]...)

	if m.active >= idx && m.active > 0 {
		m.active--
	}

	m.refreshViewport(true)
}

func (m *Model) appendLog(id logsink.ID, text string) {
	idx := m.tabIndex(id)
	if idx < 0 {
		return
	}

	t := m.tabs[idx]

	for _, line := range strings.Split(text, "\n") {
		if m.stripANSI {
			line = ansi.Sanitize(line)
		}

		t.lines = append(t.lines, line)
	}

	// Trim in chunks so a full tab does not copy on every line.
	if len(t.lines) > m.maxLines+m.maxLines/4 {
		t.lines = append([]string(nil), t.lines[len(t.lines)-m.maxLines:]...)
	}

	if id == logsink.Console {
		m.status = text
	}

	if idx == m.active {
		m.refreshViewport(false)
	}
}

// refreshViewport renders the active tab. The view follows new output only
// when it was already scrolled to the bottom, unless reset is set.
func (m *Model) refreshViewport(reset bool) {
	t := m.activeTab()
	if t.id == logsink.Scratch {
		return
	}

	follow := reset || m.viewport.AtBottom()

	styled := make([]string, len(t.lines))
	for i, line := range t.lines {
		styled[i] = styleLine(line)
	}

	m.viewport.SetContent(strings.Join(styled, "\n"))

	if follow {
		m.viewport.GotoBottom()
	}
}

func (m *Model) clearActive() tea.Cmd {
	id := m.activeTab().id

	if id == logsink.Scratch {
		m.scratch.Reset()
		return m.call(func(c Controller) {
			c.SetScratch("")
			c.ClearSink(logsink.Scratch)
		})
	}

	return m.call(func(c Controller) { c.ClearSink(id) })
}

func (m *Model) editScratch() tea.Cmd {
	if idx := m.tabIndex(logsink.Scratch); idx >= 0 {
		m.active = idx
	}

	m.focus = focusScratch

	return tea.Batch(m.scratch.Focus(), textarea.Blink)
}

func (m *Model) adjustCeiling(delta int) tea.Cmd {
	next := gate.ClampCeiling(m.ceiling + delta)
	if next == m.ceiling {
		m.status = fmt.Sprintf("Max concurrent scripts stays at %d (allowed %d-%d).", next, gate.MinCeiling, gate.MaxCeiling)
		return nil
	}

	m.ceiling = next
	m.status = fmt.Sprintf("Max concurrent scripts: %d", next)

	return m.call(func(c Controller) { c.SetCeiling(next) })
}

// tabContent returns the text of the active tab and its line count.
func (m Model) tabContent() (string, int) {
	t := m.activeTab()
	if t.id == logsink.Scratch {
		value := m.scratch.Value()
		if strings.TrimSpace(value) == "" {
			return "", 0
		}

		return value, strings.Count(value, "\n") + 1
	}

	content := strings.TrimSpace(strings.Join(t.lines, "\n"))
	if content == "" {
		return "", 0
	}

	return content, strings.Count(content, "\n") + 1
}

func (m *Model) copyActive() tea.Cmd {
	text, n := m.tabContent()
	if n == 0 {
		m.status = "Current tab is empty, nothing to copy."
		return nil
	}

	return func() tea.Msg {
		if clipboard.Unsupported {
			return copiedMsg{err: errClipboardUnsupported}
		}

		return copiedMsg{lines: n, err: clipboard.WriteAll(text)}
	}
}

func (m Model) saveActive() tea.Cmd {
	if m.ctrl == nil {
		return nil
	}

	t := m.activeTab()
	id := t.id
	path := filepath.Join(m.saveDir, fileLabel(t.label)+"-"+m.now().Format("20060102-150405")+".txt")
	ctrl := m.ctrl

	var scratch *string

	if id == logsink.Scratch {
		value := m.scratch.Value()
		scratch = &value
	}

	return func() tea.Msg {
		if scratch != nil {
			ctrl.SetScratch(*scratch)
		}

		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()

		return savedMsg{path: path, err: ctrl.SaveSink(ctx, id, path)}
	}
}

// fileLabel turns a tab label into a file name component.
func fileLabel(label string) string {
	label = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, strings.TrimSpace(label))

	if strings.Trim(label, "_.") == "" {
		return "tab"
	}

	return label
}

func sampleStats(pids map[string]int) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		procs := make(map[string]procstat.Process, len(pids))

		for identity, pid := range pids {
			if p, err := procstat.SampleProcess(ctx, pid); err == nil {
				procs[identity] = p
			}
		}

		host, _ := procstat.SampleHost(ctx)

		return statsMsg{procs: procs, host: host}
	}
}
