// Package gate tracks which scripts are running and admits new runs against
// a per-script busy check and a global concurrency ceiling.
//
// A Gate is owned by a single goroutine; it performs no locking.
package gate

import "sort"

// Ceiling bounds.
const (
	MinCeiling     = 1
	MaxCeiling     = 20
	DefaultCeiling = 5
)

// Decision is the outcome of an admission request.
type Decision int

const (
	// Accepted means the identity is now marked running.
	Accepted Decision = iota
	// RejectedBusy means the identity already has a live run.
	RejectedBusy
	// RejectedGlobalLimit means the running count reached the ceiling.
	RejectedGlobalLimit
)

func (d Decision) String() string {
	switch d {
	case Accepted:
		return "accepted"
	case RejectedBusy:
		return "busy"
	case RejectedGlobalLimit:
		return "global_limit"
	default:
		return "unknown"
	}
}

// Controls receives launch-control enable state changes.
type Controls interface {
	SetControlEnabled(identity string, enabled bool)
}

type noControls struct{}

func (noControls) SetControlEnabled(string, bool) {}

// Gate is the run registry plus the admission policy.
type Gate struct {
	running  map[string]bool
	ceiling  int
	controls Controls
}

// New creates a gate with the given ceiling, clamped to [MinCeiling, MaxCeiling].
// controls may be nil.
func New(ceiling int, controls Controls) *Gate {
	if controls == nil {
		controls = noControls{}
	}

	return &Gate{
		running:  make(map[string]bool),
		ceiling:  ClampCeiling(ceiling),
		controls: controls,
	}
}

// ClampCeiling forces n into the accepted ceiling range.
func ClampCeiling(n int) int {
	switch {
	case n < MinCeiling:
		return MinCeiling
	case n > MaxCeiling:
		return MaxCeiling
	default:
		return n
	}
}

// Admit checks and, on success, marks identity running and disables its control.
// A second request for a running identity is always RejectedBusy, even when
// the ceiling is also reached.
func (g *Gate) Admit(identity string) Decision {
	if g.running[identity] {
		return RejectedBusy
	}

	if len(g.running) >= g.ceiling {
		return RejectedGlobalLimit
	}

	g.running[identity] = true
	g.controls.SetControlEnabled(identity, false)

	return Accepted
}

// Release clears the running flag and re-enables the control. It reports
// whether identity was running; releasing an idle identity does nothing.
func (g *Gate) Release(identity string) bool {
	if !g.running[identity] {
		return false
	}

	delete(g.running, identity)
	g.controls.SetControlEnabled(identity, true)

	return true
}

// IsRunning reports whether identity has a live run.
func (g *Gate) IsRunning(identity string) bool {
	return g.running[identity]
}

// Running returns the number of live runs.
func (g *Gate) Running() int {
	return len(g.running)
}

// Identities returns the running identities in sorted order.
func (g *Gate) Identities() []string {
	ids := make([]string, 0, len(g.running))
	for id := range g.running {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

// Ceiling returns the current ceiling.
func (g *Gate) Ceiling() int {
	return g.ceiling
}

// SetCeiling changes the ceiling, clamped to range, and returns the applied
// value. Lowering it below the running count never stops live runs; it only
// affects later admissions.
func (g *Gate) SetCeiling(n int) int {
	g.ceiling = ClampCeiling(n)
	return g.ceiling
}
