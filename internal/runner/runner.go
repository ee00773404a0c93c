// Package runner coordinates script runs: admission, launch, output
// streaming and completion.
//
// A Coordinator owns the run registry, the log sinks and the live sessions.
// Only its Run goroutine touches that state. Launch workers, output pumps
// and completion notifiers communicate with it by posting typed events to a
// single inbox, and the exported request methods do the same, so they are
// safe to call from any goroutine.
package runner

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/cruft-ninja/script-runner/internal/catalog"
	"github.com/cruft-ninja/script-runner/internal/credential"
	"github.com/cruft-ninja/script-runner/internal/gate"
	"github.com/cruft-ninja/script-runner/internal/launcher"
	"github.com/cruft-ninja/script-runner/internal/logsink"
)

// Separator closes and opens run sections in a script sink.
var Separator = strings.Repeat("#", 50)

const inboxSize = 256

// DefaultOutputGrace is how long output is still read after a script exits.
const DefaultOutputGrace = 500 * time.Millisecond

// UI receives presentation updates. All calls are made from the
// coordinator goroutine, in order.
type UI interface {
	AppendLog(sink logsink.ID, text string)
	SetControlEnabled(identity string, enabled bool)
	OpenTab(identity, label string)
	CloseTab(identity string)
	ClearLog(sink logsink.ID)
	SessionStarted(identity string, pid int)
	SessionEnded(identity string)
}

// NopUI ignores every update. Embed it to implement only some methods.
type NopUI struct{}

func (NopUI) AppendLog(logsink.ID, string)   {}
func (NopUI) SetControlEnabled(string, bool) {}
func (NopUI) OpenTab(string, string)         {}
func (NopUI) CloseTab(string)                {}
func (NopUI) ClearLog(logsink.ID)            {}
func (NopUI) SessionStarted(string, int)     {}
func (NopUI) SessionEnded(string)            {}

// Starter starts script processes. *launcher.Launcher implements it.
type Starter interface {
	Launch(ctx context.Context, req launcher.Request, creds credential.Requester) (*launcher.Process, error)
}

// Options configures a Coordinator.
type Options struct {
	// Starter defaults to a launcher with bash and sudo.
	Starter Starter
	// Credentials answers elevation prompts. Nil aborts every prompt.
	Credentials credential.Requester
	UI          UI
	// BaseDir resolves relative script paths. Defaults to the working directory.
	BaseDir string
	// Ceiling is clamped to [1, 20]; zero means the default of 5.
	Ceiling      int
	SinkMaxLines int
	// HistoryDir enables run transcripts when non-empty.
	HistoryDir string
	Logger     *slog.Logger
	// OutputGrace bounds how long output of an exited script is still read
	// when a background child keeps its streams open. Zero means
	// DefaultOutputGrace.
	OutputGrace time.Duration
	// OnResult, when set, is called from the coordinator goroutine with the
	// outcome of every request.
	OnResult func(Result)
}

// Coordinator serializes all run bookkeeping on one goroutine.
type Coordinator struct {
	inbox chan event
	done  chan struct{}

	starter     Starter
	creds       credential.Requester
	ui          UI
	baseDir     string
	historyDir  string
	logger      *slog.Logger
	onResult    func(Result)
	outputGrace time.Duration

	// Owned by the Run goroutine.
	gate     *gate.Gate
	sinks    *logsink.Set
	sessions map[string]*session
}

// New creates a coordinator. Call Run to start processing requests.
func New(opts Options) *Coordinator {
	ui := opts.UI
	if ui == nil {
		ui = NopUI{}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	starter := opts.Starter
	if starter == nil {
		starter = launcher.New(launcher.Options{Logger: logger})
	}

	baseDir := opts.BaseDir
	if baseDir == "" {
		if wd, err := os.Getwd(); err == nil {
			baseDir = wd
		}
	}

	ceiling := opts.Ceiling
	if ceiling == 0 {
		ceiling = gate.DefaultCeiling
	}

	grace := opts.OutputGrace
	if grace <= 0 {
		grace = DefaultOutputGrace
	}

	return &Coordinator{
		inbox:       make(chan event, inboxSize),
		done:        make(chan struct{}),
		starter:     starter,
		creds:       opts.Credentials,
		ui:          ui,
		baseDir:     baseDir,
		historyDir:  opts.HistoryDir,
		logger:      logger,
		onResult:    opts.OnResult,
		outputGrace: grace,
		gate:        gate.New(ceiling, ui),
		sinks:       logsink.NewSet(opts.SinkMaxLines),
		sessions:    make(map[string]*session),
	}
}

// RequestRun asks for script to be launched. The outcome is reported through
// the sinks and OnResult.
func (c *Coordinator) RequestRun(script catalog.Script) {
	c.post(runRequest{script: script})
}

// CloseTab closes a script sink unless it is permanent or its script is running.
func (c *Coordinator) CloseTab(id logsink.ID) {
	c.post(closeTabRequest{id: id})
}

// CloseFinished closes every script sink whose script is not running.
func (c *Coordinator) CloseFinished() {
	c.post(closeFinishedRequest{})
}

// ClearSink empties a sink.
func (c *Coordinator) ClearSink(id logsink.ID) {
	c.post(clearRequest{id: id})
}

// SetScratch replaces the scratch sink content with text typed by the user.
// The UI is not notified since it owns the edited copy.
func (c *Coordinator) SetScratch(text string) {
	c.post(scratchRequest{text: text})
}

// SetCeiling changes the concurrency ceiling, clamped to [1, 20].
func (c *Coordinator) SetCeiling(n int) {
	c.post(ceilingRequest{n: n})
}

// SaveSink writes a sink to path and waits for the result.
func (c *Coordinator) SaveSink(ctx context.Context, id logsink.ID, path string) error {
	reply := make(chan error, 1)
	if !c.postCtx(ctx, saveRequest{id: id, path: path, reply: reply}) {
		return ctx.Err()
	}

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrStopped
	}
}

// Snapshot returns a copy of the coordinator state.
func (c *Coordinator) Snapshot(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	if !c.postCtx(ctx, snapshotRequest{reply: reply}) {
		return Snapshot{}, ctx.Err()
	}

	select {
	case snap := <-reply:
		return snap, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case <-c.done:
		return Snapshot{}, ErrStopped
	}
}

// Done is closed once Run has returned.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// post enqueues ev, dropping it once the coordinator has stopped.
func (c *Coordinator) post(ev event) {
	select {
	case c.inbox <- ev:
	case <-c.done:
	}
}

func (c *Coordinator) postCtx(ctx context.Context, ev event) bool {
	select {
	case c.inbox <- ev:
		return true
	case <-ctx.Done():
		return false
	case <-c.done:
		return false
	}
}
