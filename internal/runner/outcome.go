package runner

import (
	"errors"

	"github.com/cruft-ninja/script-runner/internal/logsink"
)

var (
	// ErrStopped is returned by requests made after Run has returned.
	ErrStopped = errors.New("coordinator stopped")
	// ErrEmptySink is returned when saving a sink with no content.
	ErrEmptySink = errors.New("tab is empty")
)

// Outcome classifies how a run request ended.
type Outcome int

const (
	// Completed means the process exited with status 0.
	Completed Outcome = iota
	// RuntimeFailure means the process started but exited nonzero.
	RuntimeFailure
	// Aborted means the user cancelled the credential prompt.
	Aborted
	// LaunchFailure means the process could not be spawned.
	LaunchFailure
	// NotFound means the script path does not exist.
	NotFound
	// BusyRejection means the script was already running.
	BusyRejection
	// GlobalLimitRejection means the concurrency ceiling was reached.
	GlobalLimitRejection
	// Interrupted means the coordinator shut down while the run was live.
	Interrupted
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case RuntimeFailure:
		return "failed"
	case Aborted:
		return "aborted"
	case LaunchFailure:
		return "launch_failure"
	case NotFound:
		return "not_found"
	case BusyRejection:
		return "busy"
	case GlobalLimitRejection:
		return "global_limit"
	case Interrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// Success reports whether the outcome counts as a successful run.
func (o Outcome) Success() bool {
	return o == Completed
}

// State is the lifecycle position of a script identity.
type State int

const (
	Idle State = iota
	// Admitted holds the slot while the elevation grant is checked or prompted.
	Admitted
	Running
)

func (s State) String() string {
	switch s {
	case Admitted:
		return "admitted"
	case Running:
		return "running"
	default:
		return "idle"
	}
}

// Result reports one finished request.
type Result struct {
	RunID    string
	Identity string
	Label    string
	Outcome  Outcome
	// ExitCode is meaningful for Completed and RuntimeFailure.
	ExitCode int
	Err      error
}

// SinkSnapshot is a copy of one sink.
type SinkSnapshot struct {
	ID    logsink.ID
	Label string
	Lines []string
}

// Snapshot is a copy of the coordinator state.
type Snapshot struct {
	Ceiling int
	// States holds every non-idle identity.
	States map[string]State
	Sinks  []SinkSnapshot
}

// Sink returns the snapshot of sink id.
func (s Snapshot) Sink(id logsink.ID) (SinkSnapshot, bool) {
	for _, sink := range s.Sinks {
		if sink.ID == id {
			return sink, true
		}
	}

	return SinkSnapshot{}, false
}

// Running returns the number of non-idle identities.
func (s Snapshot) Running() int {
	return len(s.States)
}
