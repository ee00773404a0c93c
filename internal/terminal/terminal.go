// Package terminal detects what the controlling terminal supports.
//
// Colors honor NO_COLOR and TERM=dumb. Interactive password prompts need
// both stdin and stdout attached to a terminal.
package terminal

import (
	"os"

	"golang.org/x/term"
)

// Info holds terminal capability information.
type Info struct {
	IsTTY      bool // stdout
	StdinIsTTY bool
	NoColor    bool
	Dumb       bool // TERM=dumb
	Width      int
	Height     int
	ForceFlag  bool // --no-color
}

// Detect inspects the process's stdin, stdout and environment.
func Detect() *Info {
	return detect(int(os.Stdout.Fd()), int(os.Stdin.Fd()), os.LookupEnv)
}

func detect(stdout, stdin int, lookupEnv func(string) (string, bool)) *Info {
	_, noColor := lookupEnv("NO_COLOR")
	termName, _ := lookupEnv("TERM")

	info := &Info{
		IsTTY:      term.IsTerminal(stdout),
		StdinIsTTY: term.IsTerminal(stdin),
		Dumb:       termName == "dumb",
		Width:      80,
		Height:     24,
	}

	info.NoColor = noColor || info.Dumb

	if info.IsTTY {
		if w, h, err := term.GetSize(stdout); err == nil {
			info.Width, info.Height = w, h
		}
	}

	return info
}

// ColorEnabled reports whether output may carry ANSI colors.
func (t *Info) ColorEnabled() bool {
	return t.SpinnersEnabled() && !t.ForceFlag
}

// InteractiveEnabled reports whether prompts can read from the user.
func (t *Info) InteractiveEnabled() bool {
	return t.IsTTY && t.StdinIsTTY
}

// FullScreenEnabled reports whether the full-screen interface can run.
func (t *Info) FullScreenEnabled() bool {
	return t.InteractiveEnabled() && !t.Dumb
}

// SpinnersEnabled reports whether animated progress can be drawn.
func (t *Info) SpinnersEnabled() bool {
	return t.IsTTY && !t.NoColor
}
