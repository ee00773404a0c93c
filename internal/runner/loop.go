package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/cruft-ninja/script-runner/internal/catalog"
	"github.com/cruft-ninja/script-runner/internal/gate"
	"github.com/cruft-ninja/script-runner/internal/launcher"
	"github.com/cruft-ninja/script-runner/internal/logsink"
	"github.com/cruft-ninja/script-runner/internal/observability"
	"github.com/cruft-ninja/script-runner/internal/pump"
	"github.com/cruft-ninja/script-runner/internal/transcript"
)

// Console and tab messages.
const (
	msgBusy          = "[WARN] This script is already running. Please wait."
	msgGlobalLimit   = "[WARN] Maximum concurrent scripts reached. Please wait."
	msgAborted       = "[WARN] Aborted by user."
	msgPermanentTab  = "[INFO] Cannot close permanent tabs."
	msgTabBusy       = "[WARN] Cannot close tab while script is running or invalid tab."
	msgNothingToSave = "[INFO] Current tab is empty, nothing to save."
)

// Run processes requests and worker events until ctx is cancelled. On
// return every live process group has been sent SIGTERM.
func (c *Coordinator) Run(ctx context.Context) error {
	defer close(c.done)

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return nil
		case ev := <-c.inbox:
			c.handle(ctx, ev)
		}
	}
}

func (c *Coordinator) handle(ctx context.Context, ev event) {
	switch ev := ev.(type) {
	case runRequest:
		c.admit(ctx, ev.script)
	case startedEvent:
		c.started(ev)
	case lineEvent:
		c.line(ev)
	case failedEvent:
		c.failed(ev)
	case exitEvent:
		c.exited(ev)
	case closeTabRequest:
		c.closeTab(ev.id)
	case closeFinishedRequest:
		c.closeFinished()
	case clearRequest:
		c.clear(ev.id)
	case scratchRequest:
		if sink, ok := c.sinks.Get(logsink.Scratch); ok {
			sink.Clear()
			sink.Append(ev.text)
		}
	case ceilingRequest:
		applied := c.gate.SetCeiling(ev.n)
		c.logger.Debug("ceiling changed", slog.Int("ceiling", applied))
	case saveRequest:
		ev.reply <- c.save(ev.id, ev.path)
	case snapshotRequest:
		ev.reply <- c.snapshot()
	}
}

func (c *Coordinator) admit(ctx context.Context, script catalog.Script) {
	script = script.Resolved(c.baseDir)
	identity := script.Identity()

	switch c.gate.Admit(identity) {
	case gate.RejectedBusy:
		c.write(logsink.Console, transcript.StreamStatus, msgBusy)
		c.report(Result{Identity: identity, Label: script.DisplayLabel(), Outcome: BusyRejection})

		return
	case gate.RejectedGlobalLimit:
		c.write(logsink.Console, transcript.StreamStatus, msgGlobalLimit)
		c.report(Result{Identity: identity, Label: script.DisplayLabel(), Outcome: GlobalLimitRejection})

		return
	case gate.Accepted:
	}

	path := identity
	if err := launcher.Exists(path); err != nil {
		msg := "[ERROR] " + err.Error()
		if errors.Is(err, launcher.ErrNotFound) {
			msg = "[ERROR] Script not found: " + path
		}

		c.write(logsink.Console, transcript.StreamStatus, msg)
		c.gate.Release(identity)
		c.report(Result{Identity: identity, Label: script.DisplayLabel(), Outcome: NotFound, Err: err})

		return
	}

	sinkID := logsink.ScriptID(identity)
	if _, created := c.sinks.Ensure(sinkID, script.DisplayLabel()); created {
		c.ui.OpenTab(identity, script.DisplayLabel())
	}

	s := &session{
		runID:  uuid.NewString(),
		script: script,
		path:   path,
		sink:   sinkID,
		state:  Admitted,
	}

	s.span = observability.StartRun(ctx, observability.RunAttributes{
		RunID:    s.runID,
		Path:     path,
		Elevated: script.NeedsSudo,
	})

	if c.historyDir != "" {
		store, err := transcript.NewStore(transcript.StoreOptions{
			RunID:    s.runID,
			Dir:      c.historyDir,
			Script:   path,
			Label:    script.DisplayLabel(),
			Elevated: script.NeedsSudo,
		})
		if err != nil {
			c.logger.Warn("transcript disabled for run", slog.String("run.id", s.runID), slog.String("error", err.Error()))
		} else {
			s.store = store
		}
	}

	c.sessions[identity] = s

	c.logger.Info("run admitted",
		slog.String("run.id", s.runID),
		slog.String("script.path", path),
		slog.Bool("elevated", script.NeedsSudo),
		slog.Int("running", c.gate.Running()),
		slog.Int("ceiling", c.gate.Ceiling()),
	)

	c.write(sinkID, transcript.StreamStatus, Separator)
	c.write(sinkID, transcript.StreamStatus, "[INFO] Running: "+path)

	go c.launch(ctx, s)
}

// current returns the live session for identity when runID matches.
func (c *Coordinator) current(identity, runID string) (*session, bool) {
	s, ok := c.sessions[identity]
	if !ok || s.runID != runID {
		return nil, false
	}

	return s, true
}

func (c *Coordinator) started(ev startedEvent) {
	s, ok := c.current(ev.identity, ev.runID)
	if !ok {
		_ = ev.proc.Terminate()
		return
	}

	s.state = Running
	s.proc = ev.proc
	s.span.Started(ev.proc.PID())

	c.logger.Debug("run started",
		slog.String("run.id", s.runID),
		slog.Int("pid", ev.proc.PID()),
		slog.String("command", ev.proc.CommandLine()),
	)

	c.ui.SessionStarted(ev.identity, ev.proc.PID())
}

func (c *Coordinator) line(ev lineEvent) {
	s, ok := c.current(ev.identity, ev.runID)
	if !ok {
		return
	}

	stream := transcript.StreamOut
	if ev.line.Channel == pump.Stderr {
		stream = transcript.StreamErr
	}

	c.writeAt(ev.line.Time, s.sink, stream, ev.line.Text())
}

func (c *Coordinator) failed(ev failedEvent) {
	s, ok := c.current(ev.identity, ev.runID)
	if !ok {
		return
	}

	if ev.outcome == Aborted {
		c.write(s.sink, transcript.StreamStatus, msgAborted)
	} else {
		c.write(s.sink, transcript.StreamStatus, "[ERROR] "+ev.err.Error())
		s.span.RecordError(ev.err)
	}

	c.finish(s, Result{Outcome: ev.outcome, ExitCode: -1, Err: ev.err}, nil)
}

func (c *Coordinator) exited(ev exitEvent) {
	s, ok := c.current(ev.identity, ev.runID)
	if !ok {
		return
	}

	if ev.err != nil {
		c.write(s.sink, transcript.StreamStatus, "[ERROR] "+ev.err.Error())
		s.span.RecordError(ev.err)
	}

	base := filepath.Base(s.path)
	res := Result{Outcome: Completed, ExitCode: ev.code, Err: ev.err}

	if ev.code == 0 && ev.err == nil {
		c.write(s.sink, transcript.StreamStatus, "[DONE] "+base)
	} else {
		res.Outcome = RuntimeFailure
		c.write(s.sink, transcript.StreamStatus, fmt.Sprintf("[FAIL (%d)] %s", ev.code, base))
	}

	c.write(s.sink, transcript.StreamStatus, Separator)

	code := ev.code
	c.finish(s, res, &code)
}

// finish releases the identity and reports the result. It runs exactly once
// per admitted session.
func (c *Coordinator) finish(s *session, res Result, exitCode *int) {
	identity := s.script.Identity()

	delete(c.sessions, identity)
	c.gate.Release(identity)

	if s.proc != nil {
		c.ui.SessionEnded(identity)
	}

	res.RunID = s.runID
	res.Identity = identity
	res.Label = s.script.DisplayLabel()

	s.span.End(res.Outcome.String(), res.Outcome.Success(), exitCode)

	if s.store != nil {
		if err := s.store.Close(res.Outcome.String(), exitCode); err != nil {
			c.logger.Warn("close transcript", slog.String("run.id", s.runID), slog.String("error", err.Error()))
		}
	}

	c.logger.Info("run finished",
		slog.String("run.id", s.runID),
		slog.String("script.path", s.path),
		slog.String("outcome", res.Outcome.String()),
		slog.Int("exit_code", res.ExitCode),
	)

	c.report(res)
}

func (c *Coordinator) report(res Result) {
	if c.onResult != nil {
		c.onResult(res)
	}
}

// write appends text to a sink, mirrors it to the UI and records it in the
// run transcript when the sink belongs to a live session.
func (c *Coordinator) write(id logsink.ID, stream, text string) {
	c.writeAt(time.Now(), id, stream, text)
}

// writeAt is write for a line that arrived at ts.
func (c *Coordinator) writeAt(ts time.Time, id logsink.ID, stream, text string) {
	sink, ok := c.sinks.Get(id)
	if !ok {
		return
	}

	sink.Append(text)
	c.ui.AppendLog(id, text)

	identity, ok := id.Identity()
	if !ok {
		return
	}

	if s, live := c.sessions[identity]; live && s.store != nil {
		if err := s.store.AppendAt(ts, stream, text); err != nil {
			c.logger.Debug("transcript append failed", slog.String("run.id", s.runID), slog.String("error", err.Error()))
		}
	}
}

func (c *Coordinator) closeTab(id logsink.ID) {
	if id.Permanent() {
		c.write(logsink.Console, transcript.StreamStatus, msgPermanentTab)
		return
	}

	identity, ok := id.Identity()
	sink, exists := c.sinks.Get(id)

	if !ok || !exists || c.gate.IsRunning(identity) {
		c.write(logsink.Console, transcript.StreamStatus, msgTabBusy)
		return
	}

	c.sinks.Remove(id)
	c.ui.CloseTab(identity)
	c.write(logsink.Console, transcript.StreamStatus, "[INFO] Closed tab: "+sink.Label())
}

// closeFinished closes script tabs whose last run completed, i.e. whose
// content ends with the separator written after [DONE] or [FAIL]. Tabs that
// end in an abort or launch error stay open.
func (c *Coordinator) closeFinished() {
	for _, id := range c.sinks.IDs() {
		identity, ok := id.Identity()
		if !ok || c.gate.IsRunning(identity) {
			continue
		}

		sink, _ := c.sinks.Get(id)
		if last, ok := sink.Last(); !ok || last != Separator {
			continue
		}

		c.sinks.Remove(id)
		c.ui.CloseTab(identity)
		c.write(logsink.Console, transcript.StreamStatus, "[INFO] Closed finished tab: "+sink.Label())
	}
}

func (c *Coordinator) clear(id logsink.ID) {
	sink, ok := c.sinks.Get(id)
	if !ok {
		return
	}

	sink.Clear()
	c.ui.ClearLog(id)
}

func (c *Coordinator) save(id logsink.ID, path string) error {
	sink, ok := c.sinks.Get(id)
	if !ok {
		return fmt.Errorf("unknown tab %q", id)
	}

	if sink.Empty() {
		c.write(logsink.Console, transcript.StreamStatus, msgNothingToSave)
		return ErrEmptySink
	}

	if err := sink.SaveFile(path); err != nil {
		c.write(logsink.Console, transcript.StreamStatus, "[ERROR] Failed to save: "+err.Error())
		return err
	}

	c.write(logsink.Console, transcript.StreamStatus, "[INFO] Tab saved to: "+path)

	return nil
}

func (c *Coordinator) snapshot() Snapshot {
	snap := Snapshot{
		Ceiling: c.gate.Ceiling(),
		States:  make(map[string]State, len(c.sessions)),
	}

	for identity, s := range c.sessions {
		snap.States[identity] = s.state
	}

	for _, id := range c.sinks.IDs() {
		sink, _ := c.sinks.Get(id)
		snap.Sinks = append(snap.Sinks, SinkSnapshot{ID: id, Label: sink.Label(), Lines: sink.Lines()})
	}

	return snap
}

// shutdown terminates every live process group and closes open transcripts.
func (c *Coordinator) shutdown() {
	identities := make([]string, 0, len(c.sessions))
	for identity := range c.sessions {
		identities = append(identities, identity)
	}

	sort.Strings(identities)

	for _, identity := range identities {
		s := c.sessions[identity]
		if s.proc != nil {
			if err := s.proc.Terminate(); err != nil {
				c.logger.Warn("terminate script", slog.String("run.id", s.runID), slog.String("error", err.Error()))
			}
		}

		s.span.End(Interrupted.String(), false, nil)

		if s.store != nil {
			_ = s.store.Close(Interrupted.String(), nil)
		}

		delete(c.sessions, identity)
		c.gate.Release(identity)
	}
}
