package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/cruft-ninja/script-runner/internal/catalog"
	"github.com/cruft-ninja/script-runner/internal/credential"
	"github.com/cruft-ninja/script-runner/internal/logsink"
	"github.com/cruft-ninja/script-runner/internal/runner"
)

type fakeController struct {
	mu       sync.Mutex
	runs     []catalog.Script
	closed   []logsink.ID
	cleared  []logsink.ID
	ceilings []int
	scratch  []string
	saved    []string
	finished int
	saveErr  error
}

func (f *fakeController) RequestRun(s catalog.Script) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, s)
}

func (f *fakeController) CloseTab(id logsink.ID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, id)
}

func (f *fakeController) CloseFinished() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished++
}

func (f *fakeController) ClearSink(id logsink.ID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, id)
}

func (f *fakeController) SetCeiling(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ceilings = append(f.ceilings, n)
}

func (f *fakeController) SetScratch(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scratch = append(f.scratch, text)
}

func (f *fakeController) SaveSink(_ context.Context, id logsink.ID, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, string(id)+"="+path)

	return f.saveErr
}

var testScripts = []catalog.Script{
	{Label: "Backup", Path: "/opt/backup.sh"},
	{Label: "Deploy", Path: "/opt/deploy.sh", NeedsSudo: true},
	{Label: "Clean", Path: "/opt/clean.sh"},
	{Label: "Report", Path: "/opt/report.sh"},
	{Label: "Rotate logs", Path: "/opt/rotate.sh"},
}

func newTestModel(t *testing.T) (Model, *fakeController) {
	t.Helper()

	ctrl := &fakeController{}
	m := NewModel(ModelConfig{
		Scripts:    testScripts,
		Controller: ctrl,
		SaveDir:    "/tmp/saved",
	})
	m.now = func() time.Time { return time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC) }

	m = update(t, m, tea.WindowSizeMsg{Width: 60, Height: 30})

	return m, ctrl
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()

	next, _ := m.Update(msg)

	return next.(Model)
}

func keyMsg(k string) tea.KeyMsg {
	switch k {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "left":
		return tea.KeyMsg{Type: tea.KeyLeft}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	case "ctrl+r":
		return tea.KeyMsg{Type: tea.KeyCtrlR}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
	}
}

// press sends one key and runs the resulting command when it is a
// controller call.
func press(t *testing.T, m Model, k string) (Model, tea.Msg) {
	t.Helper()

	next, cmd := m.Update(keyMsg(k))

	var msg tea.Msg
	if cmd != nil {
		msg = cmd()
	}

	return next.(Model), msg
}

func TestNewModel(t *testing.T) {
	m, _ := newTestModel(t)

	if len(m.tabs) != 2 || m.tabs[0].id != logsink.Console || m.tabs[1].id != logsink.Scratch {
		t.Fatalf("initial tabs = %+v, want Console and Scratchpad", m.tabs)
	}

	if m.ceiling != 5 {
		t.Errorf("ceiling = %d, want 5", m.ceiling)
	}

	for _, s := range testScripts {
		if !m.enabled[s.Identity()] {
			t.Errorf("button %s disabled at start", s.Label)
		}
	}

	if m.Running() != 0 {
		t.Errorf("Running() = %d, want 0", m.Running())
	}
}

func TestGridNavigation(t *testing.T) {
	m, _ := newTestModel(t)

	if cols := m.gridCols(); cols != 2 {
		t.Fatalf("gridCols() = %d, want 2 at width 60", cols)
	}

	steps := []struct {
		key  string
		want int
	}{
		{"down", 2},
		{"right", 3},
		{"down", 3},
		{"left", 2},
		{"down", 4},
		{"up", 2},
		{"k", 0},
		{"up", 0},
	}

	for _, step := range steps {
		m, _ = press(t, m, step.key)
		if m.selected != step.want {
			t.Fatalf("after %s: selected = %d, want %d", step.key, m.selected, step.want)
		}
	}
}

func TestRunSelected(t *testing.T) {
	m, ctrl := newTestModel(t)

	m, _ = press(t, m, "right")
	_, _ = press(t, m, "enter")

	if len(ctrl.runs) != 1 || ctrl.runs[0].Path != "/opt/deploy.sh" {
		t.Fatalf("runs = %+v, want deploy", ctrl.runs)
	}
}

func TestRunSelected_Disabled(t *testing.T) {
	m, ctrl := newTestModel(t)

	m = update(t, m, controlMsg{identity: "/opt/backup.sh", enabled: false})
	m, _ = press(t, m, "enter")

	if len(ctrl.runs) != 0 {
		t.Fatalf("runs = %+v, want none while disabled", ctrl.runs)
	}

	if !strings.Contains(m.status, "already running") {
		t.Errorf("status = %q", m.status)
	}

	m = update(t, m, controlMsg{identity: "/opt/backup.sh", enabled: true})
	_, _ = press(t, m, "enter")

	if len(ctrl.runs) != 1 {
		t.Fatalf("runs = %d, want 1 after re-enable", len(ctrl.runs))
	}
}

func TestScriptTabLifecycle(t *testing.T) {
	m, _ := newTestModel(t)

	m = update(t, m, openTabMsg{identity: "/opt/backup.sh", label: "Backup"})
	if m.activeTab().label != "Backup" {
		t.Fatalf("active tab = %q, want Backup", m.activeTab().label)
	}

	id := logsink.ScriptID("/opt/backup.sh")
	m = update(t, m, appendLogMsg{sink: id, text: "[INFO] Running: /opt/backup.sh"})
	m = update(t, m, appendLogMsg{sink: id, text: "[OUT] copying"})
	m = update(t, m, sessionStartedMsg{identity: "/opt/backup.sh", pid: 4242})

	view := m.View()
	for _, want := range []string{"[OUT] copying", "pid 4242", "● Backup"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q", want)
		}
	}

	m = update(t, m, sessionEndedMsg{identity: "/opt/backup.sh"})
	m = update(t, m, clearLogMsg{sink: id})

	if n := len(m.activeTab().lines); n != 0 {
		t.Errorf("lines after clear = %d, want 0", n)
	}

	m = update(t, m, closeTabMsg{identity: "/opt/backup.sh"})

	if len(m.tabs) != 2 {
		t.Fatalf("tabs after close = %d, want 2", len(m.tabs))
	}

	if m.active != 1 {
		t.Errorf("active = %d, want 1 after closing the last tab", m.active)
	}
}

func TestAppendLog_ConsoleSetsStatus(t *testing.T) {
	m, _ := newTestModel(t)

	m = update(t, m, appendLogMsg{sink: logsink.Console, text: "[WARN] Maximum concurrent scripts reached. Please wait."})

	if m.status != "[WARN] Maximum concurrent scripts reached. Please wait." {
		t.Errorf("status = %q", m.status)
	}
}

func TestAppendLog_StripANSI(t *testing.T) {
	m := NewModel(ModelConfig{StripANSI: true})
	m = update(t, m, appendLogMsg{sink: logsink.Console, text: "[OUT] \x1b[32mok\x1b[0m"})

	if got := m.tabs[0].lines[0]; got != "[OUT] ok" {
		t.Errorf("line = %q, want escapes stripped", got)
	}
}

func TestAppendLog_Bounded(t *testing.T) {
	m := NewModel(ModelConfig{MaxLines: 4})

	for i := 1; i <= 6; i++ {
		m = update(t, m, appendLogMsg{sink: logsink.Console, text: fmt.Sprintf("l%d", i)})
	}

	lines := m.tabs[0].lines
	if len(lines) != 4 || lines[0] != "l3" || lines[3] != "l6" {
		t.Errorf("lines = %v, want l3..l6", lines)
	}
}

func TestTabSwitching(t *testing.T) {
	m, _ := newTestModel(t)
	m = update(t, m, openTabMsg{identity: "/opt/clean.sh", label: "Clean"})

	m, _ = press(t, m, "tab")
	if m.active != 0 {
		t.Fatalf("active = %d, want wrap to 0", m.active)
	}

	m, _ = press(t, m, "[")
	if m.active != 2 {
		t.Fatalf("active = %d, want 2", m.active)
	}
}

func TestCloseKeys(t *testing.T) {
	m, ctrl := newTestModel(t)

	m, _ = press(t, m, "x")
	m, _ = press(t, m, "X")

	if len(ctrl.closed) != 1 || ctrl.closed[0] != logsink.Console {
		t.Errorf("closed = %v, want [console]", ctrl.closed)
	}

	if ctrl.finished != 1 {
		t.Errorf("CloseFinished calls = %d, want 1", ctrl.finished)
	}
}

func TestAdjustCeiling(t *testing.T) {
	m, ctrl := newTestModel(t)

	m, _ = press(t, m, "+")
	m, _ = press(t, m, "-")
	m, _ = press(t, m, "-")

	if want := []int{6, 5, 4}; fmt.Sprint(ctrl.ceilings) != fmt.Sprint(want) {
		t.Fatalf("ceilings = %v, want %v", ctrl.ceilings, want)
	}

	m.ceiling = 20
	m, msg := press(t, m, "+")

	if msg != nil || len(ctrl.ceilings) != 3 {
		t.Errorf("ceiling above 20 should not reach the controller")
	}

	if !strings.Contains(m.status, "stays at 20") {
		t.Errorf("status = %q", m.status)
	}
}

func TestSaveActive(t *testing.T) {
	m, ctrl := newTestModel(t)

	_, msg := press(t, m, "s")

	saved, ok := msg.(savedMsg)
	if !ok {
		t.Fatalf("msg = %T, want savedMsg", msg)
	}

	want := "console=/tmp/saved/Console-20261019-083000.txt"
	if len(ctrl.saved) != 1 || ctrl.saved[0] != want {
		t.Fatalf("saved = %v, want %s", ctrl.saved, want)
	}

	m = update(t, m, saved)
	if m.status != "Saved to /tmp/saved/Console-20261019-083000.txt" {
		t.Errorf("status = %q", m.status)
	}

	m = update(t, m, savedMsg{err: runner.ErrEmptySink})
	if m.status != "Current tab is empty, nothing to save." {
		t.Errorf("status = %q", m.status)
	}

	m = update(t, m, savedMsg{err: errors.New("disk full")})
	if m.status != "Failed to save: disk full" {
		t.Errorf("status = %q", m.status)
	}
}

func TestScratchpad(t *testing.T) {
	m, ctrl := newTestModel(t)

	m, _ = press(t, m, "e")
	if m.focus != focusScratch || m.activeTab().id != logsink.Scratch {
		t.Fatalf("focus = %v, tab = %s; want scratch editing", m.focus, m.activeTab().id)
	}

	m = update(t, m, keyMsg("remember the milk"))
	m, _ = press(t, m, "esc")

	if m.focus != focusButtons {
		t.Fatalf("focus = %v after esc", m.focus)
	}

	_, _ = press(t, m, "s")

	if len(ctrl.scratch) != 1 || ctrl.scratch[0] != "remember the milk" {
		t.Fatalf("scratch = %q", ctrl.scratch)
	}

	m, _ = press(t, m, "c")

	if m.scratch.Value() != "" {
		t.Errorf("scratch not cleared: %q", m.scratch.Value())
	}

	if len(ctrl.cleared) != 1 || ctrl.cleared[0] != logsink.Scratch {
		t.Errorf("cleared = %v", ctrl.cleared)
	}
}

func TestCopyActive_Empty(t *testing.T) {
	m, _ := newTestModel(t)

	m, msg := press(t, m, "y")
	if msg != nil {
		t.Fatalf("msg = %v, want no command for an empty tab", msg)
	}

	if m.status != "Current tab is empty, nothing to copy." {
		t.Errorf("status = %q", m.status)
	}
}

func requestCredential(t *testing.T) (*credential.Request, <-chan credential.Secret, <-chan bool) {
	t.Helper()

	bridge := credential.NewBridge()
	secrets := make(chan credential.Secret, 1)
	oks := make(chan bool, 1)

	go func() {
		s, ok := bridge.RequestCredential(context.Background(), credential.Prompt{Identity: "/opt/deploy.sh", Label: "Deploy"})
		secrets <- s
		oks <- ok
	}()

	select {
	case req := <-bridge.Requests():
		return req, secrets, oks
	case <-time.After(5 * time.Second):
		t.Fatal("no credential request")
		return nil, nil, nil
	}
}

func TestCredentialPrompt_Submit(t *testing.T) {
	m, _ := newTestModel(t)
	req, secrets, oks := requestCredential(t)

	m = update(t, m, credentialRequestMsg{req: req})
	if m.focus != focusPrompt {
		t.Fatalf("focus = %v, want prompt", m.focus)
	}

	view := m.View()
	if !strings.Contains(view, "Password required") || !strings.Contains(view, "Deploy") {
		t.Fatalf("prompt not rendered:\n%s", view)
	}

	m, _ = press(t, m, "enter")
	if m.focus != focusPrompt || m.promptErr != "Password cannot be empty." {
		t.Fatalf("empty submit: focus = %v, err = %q", m.focus, m.promptErr)
	}

	m = update(t, m, keyMsg("secret123"))

	if strings.Contains(m.View(), "secret123") {
		t.Fatal("password rendered in clear text")
	}

	m, _ = press(t, m, "ctrl+r")
	if !strings.Contains(m.View(), "secret123") {
		t.Fatal("reveal did not show the password")
	}

	m, _ = press(t, m, "ctrl+r")
	m, _ = press(t, m, "enter")

	if m.focus != focusButtons {
		t.Errorf("focus = %v after submit, want buttons", m.focus)
	}

	if ok := <-oks; !ok {
		t.Fatal("ok = false, want true")
	}

	if got := (<-secrets).Reveal(); got != "secret123" {
		t.Errorf("secret = %q", got)
	}

	if m.password.Value() != "" {
		t.Error("password input not reset after submit")
	}
}

func TestCredentialPrompt_Cancel(t *testing.T) {
	m, _ := newTestModel(t)
	req, _, oks := requestCredential(t)

	m = update(t, m, credentialRequestMsg{req: req})
	m = update(t, m, keyMsg("typo"))
	m, _ = press(t, m, "esc")

	if m.focus != focusButtons {
		t.Errorf("focus = %v after cancel", m.focus)
	}

	if ok := <-oks; ok {
		t.Fatal("ok = true after cancel")
	}
}

func TestQuit(t *testing.T) {
	m, _ := newTestModel(t)

	_, msg := press(t, m, "q")
	if _, ok := msg.(tea.QuitMsg); !ok {
		t.Fatalf("msg = %T, want tea.QuitMsg", msg)
	}
}

func TestQuit_ConfirmWhileRunning(t *testing.T) {
	m, _ := newTestModel(t)
	m = update(t, m, controlMsg{identity: "/opt/backup.sh", enabled: false})

	m, msg := press(t, m, "q")
	if msg != nil || m.focus != focusQuit {
		t.Fatalf("focus = %v, msg = %v; want quit confirmation", m.focus, msg)
	}

	if !strings.Contains(m.View(), "1 script(s) still running") {
		t.Error("confirmation not rendered")
	}

	m, _ = press(t, m, "n")
	if m.focus != focusButtons {
		t.Fatalf("focus = %v after n", m.focus)
	}

	m, _ = press(t, m, "q")
	_, msg = press(t, m, "y")

	if _, ok := msg.(tea.QuitMsg); !ok {
		t.Fatalf("msg = %T, want tea.QuitMsg", msg)
	}
}

func TestFileLabel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Backup", "Backup"},
		{"Rotate logs", "Rotate_logs"},
		{"a/b\\c", "a_b_c"},
		{"  ", "tab"},
		{"..", "tab"},
	}

	for _, tt := range tests {
		if got := fileLabel(tt.in); got != tt.want {
			t.Errorf("fileLabel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestApp_DropsUpdatesWithoutProgram(t *testing.T) {
	app := New(Options{})

	app.AppendLog(logsink.Console, "x")
	app.SetControlEnabled("/a", false)
	app.OpenTab("/a", "A")
	app.CloseTab("/a")
	app.ClearLog(logsink.Console)
	app.SessionStarted("/a", 1)
	app.SessionEnded("/a")
}
