package doctor

import "fmt"

// Status grades a check. Higher values are worse.
type Status int

const (
	StatusPass Status = iota
	StatusWarn
	StatusFail
)

var statusText = [...]struct{ name, symbol string }{
	StatusPass: {"pass", "✓"},
	StatusWarn: {"warn", "⚠"},
	StatusFail: {"fail", "✗"},
}

func (s Status) valid() bool { return s >= 0 && int(s) < len(statusText) }

// String returns pass, warn or fail.
func (s Status) String() string {
	if !s.valid() {
		return "unknown"
	}

	return statusText[s].name
}

// MarshalText renders the status name in JSON output.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Symbol returns the mark shown next to the check name.
func (s Status) Symbol() string {
	if !s.valid() {
		return "?"
	}

	return statusText[s].symbol
}

// Tally counts results by status.
type Tally struct {
	Passed, Warnings, Failed int
}

// Count tallies results.
func Count(results []Result) Tally {
	var t Tally

	for _, r := range results {
		switch r.Status {
		case StatusPass:
			t.Passed++
		case StatusWarn:
			t.Warnings++
		case StatusFail:
			t.Failed++
		}
	}

	return t
}

// Worst returns the most severe status counted.
func (t Tally) Worst() Status {
	switch {
	case t.Failed > 0:
		return StatusFail
	case t.Warnings > 0:
		return StatusWarn
	default:
		return StatusPass
	}
}

func (t Tally) String() string {
	s := fmt.Sprintf("%d passed", t.Passed)

	if t.Failed > 0 {
		s += fmt.Sprintf(", %d failed", t.Failed)
	}

	if t.Warnings > 0 {
		s += fmt.Sprintf(", %d warning(s)", t.Warnings)
	}

	return s
}

// Reporter prints status lines. *output.Writer implements it.
type Reporter interface {
	Success(format string, args ...any)
	Warning(format string, args ...any)
	Failure(format string, args ...any)
	Muted(format string, args ...any)
}

// RenderResults prints one aligned line per result, with its detail
// indented below.
func RenderResults(results []Result, rep Reporter) {
	width := 0
	for _, r := range results {
		width = max(width, len(r.Name))
	}

	line := map[Status]func(string, ...any){
		StatusPass: rep.Success,
		StatusWarn: rep.Warning,
		StatusFail: rep.Failure,
	}

	for _, r := range results {
		emit, ok := line[r.Status]
		if !ok {
			emit = rep.Failure
		}

		emit("%-*s%s", width+4, r.Name, r.Message)

		if r.Detail != "" {
			rep.Muted("    %s", r.Detail)
		}
	}
}
