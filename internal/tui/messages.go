package tui

import (
	"time"

	"github.com/cruft-ninja/script-runner/internal/credential"
	"github.com/cruft-ninja/script-runner/internal/logsink"
	"github.com/cruft-ninja/script-runner/internal/procstat"
)

// Coordinator updates, delivered through tea.Program.Send.
type (
	appendLogMsg struct {
		sink logsink.ID
		text string
	}
	controlMsg struct {
		identity string
		enabled  bool
	}
	openTabMsg struct {
		identity string
		label    string
	}
	closeTabMsg struct {
		identity string
	}
	clearLogMsg struct {
		sink logsink.ID
	}
	sessionStartedMsg struct {
		identity string
		pid      int
	}
	sessionEndedMsg struct {
		identity string
	}
	credentialRequestMsg struct {
		req *credential.Request
	}
)

// Results of commands started by the model.
type (
	statsTickMsg time.Time
	statsMsg     struct {
		procs map[string]procstat.Process
		host  procstat.Host
	}
	savedMsg struct {
		path string
		err  error
	}
	copiedMsg struct {
		lines int
		err   error
	}
)
