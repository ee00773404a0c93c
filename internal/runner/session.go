package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cruft-ninja/script-runner/internal/catalog"
	"github.com/cruft-ninja/script-runner/internal/credential"
	"github.com/cruft-ninja/script-runner/internal/launcher"
	"github.com/cruft-ninja/script-runner/internal/logsink"
	"github.com/cruft-ninja/script-runner/internal/observability"
	"github.com/cruft-ninja/script-runner/internal/pump"
	"github.com/cruft-ninja/script-runner/internal/transcript"
)

// session is one live run, owned by the coordinator goroutine.
type session struct {
	runID  string
	script catalog.Script
	path   string
	sink   logsink.ID
	state  State
	proc   *launcher.Process
	span   *observability.RunSpan
	store  *transcript.Store
}

// launch runs on its own goroutine. It always posts exactly one terminal
// event (failedEvent or exitEvent) for the session, including on panic.
func (c *Coordinator) launch(ctx context.Context, s *session) {
	identity, runID := s.script.Identity(), s.runID
	posted := false

	var proc *launcher.Process

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("run worker panicked",
				slog.String("run.id", runID),
				slog.Any("panic", r),
			)

			if proc != nil {
				_ = proc.Terminate()
			}
		}

		if !posted {
			c.post(failedEvent{
				identity: identity,
				runID:    runID,
				outcome:  LaunchFailure,
				err:      errors.New("run worker stopped unexpectedly"),
			})
		}
	}()

	req := launcher.Request{
		Path:      s.path,
		NeedsSudo: s.script.NeedsSudo,
		Prompt: credential.Prompt{
			Identity: identity,
			Label:    s.script.DisplayLabel(),
		},
	}

	var err error

	proc, err = c.starter.Launch(ctx, req, c.creds)
	if err != nil {
		outcome := LaunchFailure
		if errors.Is(err, launcher.ErrAborted) {
			outcome = Aborted
		}

		posted = true
		c.post(failedEvent{identity: identity, runID: runID, outcome: outcome, err: err})

		return
	}

	// Cancellation may already have run shutdown, which cannot see this
	// process yet. AfterFunc fires immediately in that case.
	stopTerminate := context.AfterFunc(ctx, func() { _ = proc.Terminate() })

	c.post(startedEvent{identity: identity, runID: runID, proc: proc})

	emit := func(line pump.Line) {
		c.post(lineEvent{identity: identity, runID: runID, line: line})
	}

	var g errgroup.Group

	g.Go(func() error { return pump.Run(proc.Stdout, pump.Stdout, emit) })
	g.Go(func() error { return pump.Run(proc.Stderr, pump.Stderr, emit) })

	drained := make(chan error, 1)
	go func() { drained <- g.Wait() }()

	code, waitErr := proc.Wait()
	stopTerminate()

	if waitErr != nil {
		waitErr = fmt.Errorf("wait for %s: %w", s.path, waitErr)
	}

	if pumpErr := c.drain(proc, drained, runID); pumpErr != nil {
		c.logger.Debug("output pump stopped", slog.String("run.id", runID), slog.String("error", pumpErr.Error()))
	}

	posted = true
	c.post(exitEvent{identity: identity, runID: runID, code: code, err: waitErr})
}

// drain waits for the pumps of an exited process. Output still open after
// the grace period belongs to a background child; the pipes are closed so
// the run can complete without it.
func (c *Coordinator) drain(proc *launcher.Process, drained <-chan error, runID string) error {
	timer := time.NewTimer(c.outputGrace)
	defer timer.Stop()

	var err error

	select {
	case err = <-drained:
	case <-timer.C:
		c.logger.Debug("output still open after exit, detaching", slog.String("run.id", runID))
		_ = proc.CloseOutput()
		err = <-drained
	}

	_ = proc.CloseOutput()

	return err
}
