// Package doctor provides diagnostic checks for scriptrunner.
//
// Checks cover the interpreter, the elevation command and its cached grant,
// the script catalog and the scripts it names, transcript storage, the
// build version and host resources.
package doctor

import (
	"context"

	"github.com/cruft-ninja/script-runner/internal/launcher"
)

// Result is the outcome of one check. Name is filled in by the Runner.
type Result struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// Check inspects one part of the environment.
type Check func(ctx context.Context) Result

// Env is what the default checks inspect.
type Env struct {
	Interpreter      string
	ElevationCommand string
	CatalogPath      string
	// HistoryDir is empty when transcripts are disabled.
	HistoryDir string
}

// Runner runs checks in the order they were added.
type Runner struct {
	names  []string
	checks []Check
}

// NewRunner returns a Runner without checks.
func NewRunner() *Runner {
	return &Runner{}
}

// New returns a Runner with the default checks for env.
func New(env Env) *Runner {
	l := launcher.New(launcher.Options{
		Interpreter:      env.Interpreter,
		ElevationCommand: env.ElevationCommand,
	})

	return NewRunner().
		Add("Interpreter", func(ctx context.Context) Result { return checkInterpreter(ctx, l.Interpreter()) }).
		Add("Elevation", func(ctx context.Context) Result { return checkElevation(ctx, l) }).
		Add("Script catalog", func(context.Context) Result { return checkCatalog(env.CatalogPath) }).
		Add("Transcripts", func(context.Context) Result { return checkHistory(env.HistoryDir) }).
		Add("CLI version", func(context.Context) Result { return checkVersion() }).
		Add("Host", checkHost)
}

// Add appends a named check and returns r.
func (r *Runner) Add(name string, check Check) *Runner {
	r.names = append(r.names, name)
	r.checks = append(r.checks, check)

	return r
}

// Run runs every check.
func (r *Runner) Run(ctx context.Context) []Result {
	return r.RunEach(ctx, nil)
}

// RunEach is Run with before called with each check's name ahead of it.
func (r *Runner) RunEach(ctx context.Context, before func(name string)) []Result {
	results := make([]Result, len(r.checks))

	for i, check := range r.checks {
		if before != nil {
			before(r.names[i])
		}

		results[i] = check(ctx)
		results[i].Name = r.names[i]
	}

	return results
}
