// Package logsink holds the append-only line buffers that runs and the
// console write into. Sinks are owned by the runner's coordinator goroutine
// and are not safe for concurrent use.
package logsink

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// DefaultMaxLines bounds a sink when no limit is given.
const DefaultMaxLines = 10000

// ID names a sink.
type ID string

// Permanent sinks.
const (
	Console ID = "console"
	Scratch ID = "scratch"
)

const scriptPrefix = "script:"

// ScriptID returns the sink id bound to a script identity.
func ScriptID(identity string) ID {
	return ID(scriptPrefix + identity)
}

// Identity returns the script identity for per-script sinks.
func (id ID) Identity() (string, bool) {
	rest, ok := strings.CutPrefix(string(id), scriptPrefix)
	return rest, ok
}

// Permanent reports whether the sink can never be closed.
func (id ID) Permanent() bool {
	return id == Console || id == Scratch
}

// Sink is a bounded ring of lines. When full, the oldest line is dropped.
type Sink struct {
	id    ID
	label string

	max     int
	lines   []string
	start   int
	count   int
	dropped int
}

// New creates a sink keeping at most maxLines lines.
func New(id ID, label string, maxLines int) *Sink {
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}

	return &Sink{id: id, label: label, max: maxLines}
}

// ID returns the sink id.
func (s *Sink) ID() ID {
	return s.id
}

// Label returns the display label.
func (s *Sink) Label() string {
	return s.label
}

// Append adds text; embedded line breaks produce multiple lines.
func (s *Sink) Append(text string) {
	for _, line := range strings.Split(text, "\n") {
		s.push(strings.TrimSuffix(line, "\r"))
	}
}

func (s *Sink) push(line string) {
	if s.lines == nil {
		s.lines = make([]string, 0, min(s.max, 256))
	}

	if s.count < s.max {
		idx := (s.start + s.count) % s.max
		if idx == len(s.lines) {
			s.lines = append(s.lines, line)
		} else {
			s.lines[idx] = line
		}

		s.count++

		return
	}

	s.lines[s.start] = line
	s.start = (s.start + 1) % s.max
	s.dropped++
}

// Lines returns the retained lines in order.
func (s *Sink) Lines() []string {
	out := make([]string, 0, s.count)
	for i := 0; i < s.count; i++ {
		out = append(out, s.lines[(s.start+i)%s.max])
	}

	return out
}

// Len returns the number of retained lines.
func (s *Sink) Len() int {
	return s.count
}

// Dropped returns how many lines were evicted by the bound.
func (s *Sink) Dropped() int {
	return s.dropped
}

// Last returns the most recent line.
func (s *Sink) Last() (string, bool) {
	if s.count == 0 {
		return "", false
	}

	return s.lines[(s.start+s.count-1)%s.max], true
}

// Clear removes all lines.
func (s *Sink) Clear() {
	s.lines = nil
	s.start = 0
	s.count = 0
	s.dropped = 0
}

// Content returns the lines joined by newlines with surrounding whitespace trimmed.
func (s *Sink) Content() string {
	return strings.TrimSpace(strings.Join(s.Lines(), "\n"))
}

// Empty reports whether the sink holds only whitespace.
func (s *Sink) Empty() bool {
	return s.Content() == ""
}

// WriteTo writes Content followed by a newline.
func (s *Sink) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, s.Content()+"\n")
	return int64(n), err
}

// SaveFile writes the sink content to path, creating parent directories.
func (s *Sink) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create save directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600) //nolint:gosec // path chosen by the user
	if err != nil {
		return err
	}

	if _, err := s.WriteTo(f); err != nil {
		_ = f.Close()
		return err
	}

	return f.Close()
}

// Set is an ordered collection of sinks.
type Set struct {
	maxLines int
	order    []ID
	sinks    map[ID]*Sink
}

// NewSet creates a set holding the console and scratch sinks.
func NewSet(maxLines int) *Set {
	set := &Set{maxLines: maxLines, sinks: make(map[ID]*Sink)}
	set.Ensure(Console, "Console")
	set.Ensure(Scratch, "Scratchpad")

	return set
}

// Ensure returns the sink for id, creating it with label if missing.
func (set *Set) Ensure(id ID, label string) (sink *Sink, created bool) {
	if s, ok := set.sinks[id]; ok {
		return s, false
	}

	s := New(id, label, set.maxLines)
	set.sinks[id] = s
	set.order = append(set.order, id)

	return s, true
}

// Get returns the sink for id.
func (set *Set) Get(id ID) (*Sink, bool) {
	s, ok := set.sinks[id]
	return s, ok
}

// Remove deletes a non-permanent sink and reports whether it existed.
func (set *Set) Remove(id ID) bool {
	if id.Permanent() {
		return false
	}

	if _, ok := set.sinks[id]; !ok {
		return false
	}

	delete(set.sinks, id)

	for i, existing := range set.order {
		if existing == id {
			set.order = append(set.order[:i], set.order[i+1:]...)
			break
		}
	}

	return true
}

// IDs returns sink ids in creation order.
func (set *Set) IDs() []ID {
	out := make([]ID, len(set.order))
	copy(out, set.order)

	return out
}
