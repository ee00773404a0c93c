package tui

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/cruft-ninja/script-runner/internal/catalog"
	"github.com/cruft-ninja/script-runner/internal/credential"
	"github.com/cruft-ninja/script-runner/internal/logsink"
)

// Options configures the interface.
type Options struct {
	Title        string
	Scripts      []catalog.Script
	Credentials  *credential.Bridge
	Ceiling      int
	SinkMaxLines int
	StripANSI    bool
	SaveDir      string
	Logger       *slog.Logger
	// ProgramOptions are appended to the defaults (alt screen, context).
	ProgramOptions []tea.ProgramOption
}

// App runs the bubbletea program and receives coordinator updates. It
// implements runner.UI; updates arriving while no program runs are dropped.
type App struct {
	opts Options

	mu      sync.RWMutex
	program *tea.Program
}

// New creates an App. Pass it as the coordinator UI, then call Run.
func New(opts Options) *App {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &App{opts: opts}
}

// Run shows the interface until the user quits or ctx is cancelled.
func (a *App) Run(ctx context.Context, ctrl Controller) error {
	model := NewModel(ModelConfig{
		Title:      a.opts.Title,
		Scripts:    a.opts.Scripts,
		Controller: ctrl,
		Ceiling:    a.opts.Ceiling,
		MaxLines:   a.opts.SinkMaxLines,
		StripANSI:  a.opts.StripANSI,
		SaveDir:    a.opts.SaveDir,
	})

	opts := append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, a.opts.ProgramOptions...)
	p := tea.NewProgram(model, opts...)

	a.mu.Lock()
	a.program = p
	a.mu.Unlock()

	done := make(chan struct{})
	forwarded := make(chan struct{})

	go func() {
		defer close(forwarded)
		a.forwardCredentials(ctx, p, done)
	}()

	_, err := p.Run()

	a.mu.Lock()
	a.program = nil
	a.mu.Unlock()

	close(done)
	<-forwarded

	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		a.opts.Logger.Debug("interface stopped by context")
		return nil
	}

	return err
}

// forwardCredentials turns bridge requests into prompt messages. Requests
// that arrive after the program finished are cancelled.
func (a *App) forwardCredentials(ctx context.Context, p *tea.Program, done <-chan struct{}) {
	if a.opts.Credentials == nil {
		return
	}

	requests := a.opts.Credentials.Requests()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case req := <-requests:
			select {
			case <-done:
				req.Cancel()
				return
			default:
			}

			a.opts.Logger.Debug("credential requested", slog.String("script.path", req.Prompt.Identity))
			p.Send(credentialRequestMsg{req: req})
		}
	}
}

func (a *App) send(msg tea.Msg) {
	a.mu.RLock()
	p := a.program
	a.mu.RUnlock()

	if p != nil {
		p.Send(msg)
	}
}

func (a *App) AppendLog(sink logsink.ID, text string) {
	a.send(appendLogMsg{sink: sink, text: text})
}

func (a *App) SetControlEnabled(identity string, enabled bool) {
	a.send(controlMsg{identity: identity, enabled: enabled})
}

func (a *App) OpenTab(identity, label string) {
	a.send(openTabMsg{identity: identity, label: label})
}

func (a *App) CloseTab(identity string) {
	a.send(closeTabMsg{identity: identity})
}

func (a *App) ClearLog(sink logsink.ID) {
	a.send(clearLogMsg{sink: sink})
}

func (a *App) SessionStarted(identity string, pid int) {
	a.send(sessionStartedMsg{identity: identity, pid: pid})
}

func (a *App) SessionEnded(identity string) {
	a.send(sessionEndedMsg{identity: identity})
}
