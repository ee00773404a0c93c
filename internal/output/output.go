// Package output writes CLI results for scriptrunner commands.
//
// A Writer wraps stdout and stderr with JSON and quiet modes, TTY-aware
// colors, spinners and a renderer for tagged script log lines.
package output

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"

	"github.com/cruft-ninja/script-runner/internal/terminal"
)

// Status symbols
const (
	CheckMark   = "\u2713" // ✓
	XMark       = "\u2717" // ✗
	WarningMark = "\u26A0" // ⚠
	InfoMark    = "\u2139" // ℹ
)

type tone int

const (
	toneSuccess tone = iota
	toneFailure
	toneWarning
	toneInfo
	toneMuted
	toneDone
)

// palette holds one color per tone.
type palette [toneDone + 1]*color.Color

func newPalette() palette {
	return palette{
		toneSuccess: color.New(color.FgGreen),
		toneFailure: color.New(color.FgRed),
		toneWarning: color.New(color.FgYellow),
		toneInfo:    color.New(color.FgCyan),
		toneMuted:   color.New(color.FgHiBlack),
		toneDone:    color.New(color.FgGreen, color.Bold),
	}
}

// logTags maps the tag a log line starts with to its tone. Lines with no
// listed tag, such as [OUT], are printed plain.
var logTags = []struct {
	prefix string
	tone   tone
}{
	{"[ERR]", toneFailure},
	{"[ERROR]", toneFailure},
	{"[FAIL", toneFailure},
	{"[WARN]", toneWarning},
	{"[DONE]", toneDone},
	{"[INFO]", toneInfo},
	{"####", toneMuted},
}

type contextKey struct{}

// Writer handles CLI output with multiple modes.
type Writer struct {
	Out     io.Writer
	Err     io.Writer
	JSON    bool
	Quiet   bool
	NoInput bool

	terminal *terminal.Info
	colors   palette
}

// Default returns a Writer configured for stdout/stderr.
func Default() *Writer {
	return NewWriter(os.Stdout, os.Stderr, terminal.Detect())
}

// NewWriter creates a Writer with custom writers and terminal info.
func NewWriter(out, err io.Writer, term *terminal.Info) *Writer {
	if !term.ColorEnabled() {
		color.NoColor = true
	}

	return &Writer{Out: out, Err: err, terminal: term, colors: newPalette()}
}

// WithContext stores the Writer in the context.
func (w *Writer) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, contextKey{}, w)
}

// FromContext retrieves the Writer from context, or returns Default().
func FromContext(ctx context.Context) *Writer {
	if w, ok := ctx.Value(contextKey{}).(*Writer); ok {
		return w
	}

	return Default()
}

// Terminal returns the terminal info.
func (w *Writer) Terminal() *terminal.Info {
	return w.terminal
}

// SetNoColor disables colored output.
func (w *Writer) SetNoColor(disabled bool) {
	w.terminal.ForceFlag = disabled
	if disabled {
		color.NoColor = true
	}
}

// Print writes to stdout unless quiet.
func (w *Writer) Print(format string, args ...any) {
	if !w.Quiet {
		fmt.Fprintf(w.Out, format, args...)
	}
}

// Println writes a line to stdout unless quiet.
func (w *Writer) Println(args ...any) {
	if !w.Quiet {
		fmt.Fprintln(w.Out, args...)
	}
}

// PrintJSON writes v as indented JSON. Quiet mode does not apply.
func (w *Writer) PrintJSON(v any) error {
	enc := json.NewEncoder(w.Out)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

func (w *Writer) status(dst io.Writer, t tone, mark, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)

	if !w.terminal.ColorEnabled() {
		fmt.Fprintln(dst, mark+" "+msg)
		return
	}

	w.colors[t].Fprint(dst, mark+" ")
	fmt.Fprintln(dst, msg)
}

// Success writes a message with a checkmark.
func (w *Writer) Success(format string, args ...any) {
	if !w.Quiet {
		w.status(w.Out, toneSuccess, CheckMark, format, args...)
	}
}

// Failure writes a message with an X mark to stderr, even when quiet.
func (w *Writer) Failure(format string, args ...any) {
	w.status(w.Err, toneFailure, XMark, format, args...)
}

// Warning writes a message with a warning mark.
func (w *Writer) Warning(format string, args ...any) {
	if !w.Quiet {
		w.status(w.Out, toneWarning, WarningMark, format, args...)
	}
}

// Info writes a message with an info mark.
func (w *Writer) Info(format string, args ...any) {
	if !w.Quiet {
		w.status(w.Out, toneInfo, InfoMark, format, args...)
	}
}

// Muted writes gray text without a mark.
func (w *Writer) Muted(format string, args ...any) {
	if w.Quiet {
		return
	}

	w.paint(toneMuted, fmt.Sprintf(format, args...)+"\n")
}

func (w *Writer) paint(t tone, text string) {
	if w.terminal.ColorEnabled() {
		w.colors[t].Fprint(w.Out, text)
	} else {
		fmt.Fprint(w.Out, text)
	}
}

// Spinner creates a spinner for a long operation. Without a TTY, or when
// quiet, it degrades to "message... outcome" text.
func (w *Writer) Spinner(message string) *Spinner {
	s := &Spinner{message: message, writer: w}

	if w.Quiet || !w.terminal.SpinnersEnabled() {
		s.disabled = true
		return s
	}

	s.spinner = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.spinner.Writer = w.Out
	s.spinner.Suffix = " " + message

	return s
}

// Spinner wraps briandowns/spinner.
type Spinner struct {
	spinner  *spinner.Spinner
	message  string
	writer   *Writer
	disabled bool
}

// Start begins the animation, or prints the message when disabled.
func (s *Spinner) Start() {
	if s.disabled {
		s.writer.Print("%s... ", s.message)
		return
	}

	s.spinner.Start()
}

// UpdateMessage changes the spinner message.
func (s *Spinner) UpdateMessage(message string) {
	s.message = message
	if !s.disabled {
		s.spinner.Suffix = " " + message
	}
}

func (s *Spinner) stop(word string, report func(format string, args ...any), message string) {
	if s.disabled {
		s.writer.Println(word)
	} else {
		s.spinner.Stop()
	}

	if message != "" {
		report("%s", message)
	}
}

// StopWithSuccess stops the spinner and reports message as a success.
func (s *Spinner) StopWithSuccess(message string) {
	s.stop("done", s.writer.Success, message)
}

// StopWithFailure stops the spinner and reports message as a failure.
func (s *Spinner) StopWithFailure(message string) {
	s.stop("failed", s.writer.Failure, message)
}

// StopWithWarning stops the spinner and reports message as a warning.
func (s *Spinner) StopWithWarning(message string) {
	s.stop("warning", s.writer.Warning, message)
}

func tagTone(line string) (tone, bool) {
	for _, tag := range logTags {
		if strings.HasPrefix(line, tag.prefix) {
			return tag.tone, true
		}
	}

	return 0, false
}

// LogLine writes one tagged script log line, prefixed with the tab label
// when one is given and colored by its tag.
func (w *Writer) LogLine(label, line string) {
	if w.Quiet {
		return
	}

	if label != "" {
		w.paint(toneMuted, label+" | ")
	}

	if t, ok := tagTone(line); ok {
		w.paint(t, line+"\n")
		return
	}

	fmt.Fprintln(w.Out, line)
}
