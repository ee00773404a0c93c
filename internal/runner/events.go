package runner

import (
	"github.com/cruft-ninja/script-runner/internal/catalog"
	"github.com/cruft-ninja/script-runner/internal/launcher"
	"github.com/cruft-ninja/script-runner/internal/logsink"
	"github.com/cruft-ninja/script-runner/internal/pump"
)

// event is anything posted to the coordinator inbox.
type event interface {
	isEvent()
}

type runRequest struct {
	script catalog.Script
}

type closeTabRequest struct {
	id logsink.ID
}

type closeFinishedRequest struct{}

type clearRequest struct {
	id logsink.ID
}

type scratchRequest struct {
	text string
}

type ceilingRequest struct {
	n int
}

type saveRequest struct {
	id    logsink.ID
	path  string
	reply chan<- error
}

type snapshotRequest struct {
	reply chan<- Snapshot
}

// startedEvent reports a spawned process.
type startedEvent struct {
	identity string
	runID    string
	proc     *launcher.Process
}

// lineEvent carries one pumped output line.
type lineEvent struct {
	identity string
	runID    string
	line     pump.Line
}

// failedEvent reports a run that never produced a process.
type failedEvent struct {
	identity string
	runID    string
	outcome  Outcome
	err      error
}

// exitEvent reports process exit after both pumps drained.
type exitEvent struct {
	identity string
	runID    string
	code     int
	err      error
}

func (runRequest) isEvent()           {}
func (closeTabRequest) isEvent()      {}
func (closeFinishedRequest) isEvent() {}
func (clearRequest) isEvent()         {}
func (scratchRequest) isEvent()       {}
func (ceilingRequest) isEvent()       {}
func (saveRequest) isEvent()          {}
func (snapshotRequest) isEvent()      {}
func (startedEvent) isEvent()         {}
func (lineEvent) isEvent()            {}
func (failedEvent) isEvent()          {}
func (exitEvent) isEvent()            {}
