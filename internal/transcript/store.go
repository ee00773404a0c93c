// Package transcript persists the log lines of each script run so finished
// runs can be listed, viewed and pruned after the UI has closed their tabs.
//
// Each run gets a directory named by its run id holding meta.json, a live
// append-only JSONL file and, once closed, a gzip-compressed copy.
package transcript

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	eventsFileName     = "events.jsonl.gz"
	eventsLiveFileName = "events.live.jsonl"
	metaFileName       = "meta.json"
)

// Stream values recorded in events.
const (
	StreamOut    = "out"
	StreamErr    = "err"
	StreamStatus = "status"
)

// Event is a single transcript record: one sink line.
type Event struct {
	RunID  string    `json:"runId"`
	Seq    uint64    `json:"seq"`
	TS     time.Time `json:"ts"`
	Stream string    `json:"stream"`
	Text   string    `json:"text"`
}

// Meta stores run metadata for discovery and pruning.
type Meta struct {
	RunID     string     `json:"runId"`
	Script    string     `json:"script"`
	Label     string     `json:"label"`
	Elevated  bool       `json:"elevated"`
	StartedAt time.Time  `json:"startedAt"`
	ClosedAt  *time.Time `json:"closedAt,omitempty"`
	Outcome   string     `json:"outcome,omitempty"`
	ExitCode  *int       `json:"exitCode,omitempty"`
}

// StoreOptions controls transcript behavior.
type StoreOptions struct {
	RunID    string
	Dir      string
	Script   string
	Label    string
	Elevated bool
}

// eventFile is one append-only JSONL destination, optionally gzip
// compressed.
type eventFile struct {
	f  *os.File
	gz *gzip.Writer
	w  *bufio.Writer
}

func openEventFile(path string, compress bool) (*eventFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //nolint:gosec // run id validated by NewStore
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}

	ef := &eventFile{f: f}

	var dst io.Writer = f
	if compress {
		ef.gz = gzip.NewWriter(f)
		dst = ef.gz
	}

	ef.w = bufio.NewWriterSize(dst, 64*1024)

	return ef, nil
}

func (ef *eventFile) close() error {
	errs := []error{ef.w.Flush()}
	if ef.gz != nil {
		errs = append(errs, ef.gz.Close())
	}

	return errors.Join(append(errs, ef.f.Close())...)
}

// Store records the events of one run. The live file is flushed after every
// event so other processes can follow it. The compressed file is complete
// only after Close.
type Store struct {
	mu sync.Mutex

	meta   Meta
	dir    string
	seq    uint64
	closed bool

	archive *eventFile
	live    *eventFile
}

// NewStore creates the run directory and writes the initial meta.json.
func NewStore(opts StoreOptions) (*Store, error) {
	if err := validateRunID(opts.RunID); err != nil {
		return nil, err
	}

	root, err := resolveRoot(opts.Dir)
	if err != nil {
		return nil, err
	}

	runDir := filepath.Join(root, opts.RunID)
	if err := os.MkdirAll(runDir, 0o700); err != nil {
		return nil, fmt.Errorf("create run directory: %w", err)
	}

	archive, err := openEventFile(filepath.Join(runDir, eventsFileName), true)
	if err != nil {
		return nil, err
	}

	live, err := openEventFile(filepath.Join(runDir, eventsLiveFileName), false)
	if err != nil {
		_ = archive.close()
		return nil, err
	}

	s := &Store{
		meta: Meta{
			RunID:     opts.RunID,
			Script:    opts.Script,
			Label:     opts.Label,
			Elevated:  opts.Elevated,
			StartedAt: time.Now().UTC(),
		},
		dir:     runDir,
		archive: archive,
		live:    live,
	}

	if err := s.writeMeta(); err != nil {
		_ = s.Close("", nil)
		return nil, err
	}

	return s, nil
}

// writeMeta replaces meta.json through a rename so readers never see a
// partial file.
func (s *Store) writeMeta() error {
	data, err := json.Marshal(&s.meta)
	if err != nil {
		return fmt.Errorf("encode run meta: %w", err)
	}

	path := filepath.Join(s.dir, metaFileName)
	tmp := path + ".tmp"

	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write run meta: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace run meta: %w", err)
	}

	return nil
}

// RunID returns the store's run id.
func (s *Store) RunID() string {
	return s.meta.RunID
}

// Append writes one line event stamped with the current time.
func (s *Store) Append(stream, text string) error {
	return s.AppendAt(time.Now(), stream, text)
}

// AppendAt writes one line event that was observed at ts.
func (s *Store) AppendAt(ts time.Time, stream, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("transcript closed")
	}

	s.seq++
	ev := Event{RunID: s.meta.RunID, Seq: s.seq, TS: ts.UTC(), Stream: stream, Text: text}

	line, err := json.Marshal(&ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	line = append(line, '\n')

	if _, err := s.archive.w.Write(line); err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	if _, err := s.live.w.Write(line); err != nil {
		return fmt.Errorf("write live event: %w", err)
	}

	return s.live.w.Flush()
}

// Close records the outcome, flushes and closes the transcript. exitCode is
// nil for runs that never produced one.
func (s *Store) Close(outcome string, exitCode *int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true

	now := time.Now().UTC()
	s.meta.ClosedAt = &now
	s.meta.Outcome = outcome
	s.meta.ExitCode = exitCode

	// Files first: a reader that sees closedAt reads the compressed file.
	fileErr := errors.Join(s.archive.close(), s.live.close())

	return errors.Join(fileErr, s.writeMeta())
}

func validateRunID(runID string) error {
	if runID == "" {
		return errors.New("run id is required")
	}

	if runID != filepath.Base(runID) || strings.Contains(runID, "..") || strings.ContainsAny(runID, `/\`) {
		return errors.New("invalid run id")
	}

	return nil
}
