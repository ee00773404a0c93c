package transcript

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

const maxEventLine = 1024 * 1024

// Run describes one stored run transcript.
type Run struct {
	Meta
	Path string `json:"path"`
}

func resolveRoot(rootDir string) (string, error) {
	if rootDir != "" {
		return rootDir, nil
	}

	dir, err := DefaultDir()
	if err != nil {
		return "", fmt.Errorf("resolve history directory: %w", err)
	}

	return dir, nil
}

func readMeta(runDir string) (Meta, error) {
	var meta Meta

	data, err := os.ReadFile(filepath.Join(runDir, metaFileName)) //nolint:gosec // run directory under the history root
	if err != nil {
		return meta, err
	}

	return meta, json.Unmarshal(data, &meta)
}

// ListRuns returns stored runs, newest first. Directories without a readable
// meta.json are skipped.
func ListRuns(rootDir string) ([]Run, error) {
	rootDir, err := resolveRoot(rootDir)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(rootDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	var runs []Run

	for _, ent := range entries {
		if !ent.IsDir() {
			continue
		}

		dir := filepath.Join(rootDir, ent.Name())
		if meta, err := readMeta(dir); err == nil {
			runs = append(runs, Run{Meta: meta, Path: dir})
		}
	}

	slices.SortFunc(runs, func(a, b Run) int { return b.StartedAt.Compare(a.StartedAt) })

	return runs, nil
}

// FindRun resolves ref as a full run id or a unique prefix of one.
func FindRun(rootDir, ref string) (Run, error) {
	runs, err := ListRuns(rootDir)
	if err != nil {
		return Run{}, err
	}

	if i := slices.IndexFunc(runs, func(r Run) bool { return r.RunID == ref }); i >= 0 {
		return runs[i], nil
	}

	var matches []Run

	if ref != "" {
		for _, run := range runs {
			if strings.HasPrefix(run.RunID, ref) {
				matches = append(matches, run)
			}
		}
	}

	switch len(matches) {
	case 0:
		return Run{}, fmt.Errorf("run %q: %w", ref, os.ErrNotExist)
	case 1:
		return matches[0], nil
	default:
		return Run{}, fmt.Errorf("run prefix %q matches %d runs", ref, len(matches))
	}
}

// ReadEvents returns every event of a run. Closed runs are read from the
// compressed file. Open runs, and runs whose process died before Close, are
// read from the live file.
func ReadEvents(rootDir, runID string) ([]Event, error) {
	if err := validateRunID(runID); err != nil {
		return nil, err
	}

	rootDir, err := resolveRoot(rootDir)
	if err != nil {
		return nil, err
	}

	runDir := filepath.Join(rootDir, runID)

	if meta, err := readMeta(runDir); err == nil && meta.ClosedAt != nil {
		events, err := readCompressed(filepath.Join(runDir, eventsFileName))
		if !errors.Is(err, os.ErrNotExist) {
			return events, err
		}
	}

	events, err := readEventFile(filepath.Join(runDir, eventsLiveFileName), func(r io.Reader) (io.Reader, func() error, error) {
		return r, func() error { return nil }, nil
	})
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	return events, err
}

func readCompressed(path string) ([]Event, error) {
	return readEventFile(path, func(r io.Reader) (io.Reader, func() error, error) {
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("open gzip stream: %w", err)
		}

		return zr, zr.Close, nil
	})
}

// readEventFile decodes one JSON event per line. Blank or malformed lines
// are skipped.
func readEventFile(path string, wrap func(io.Reader) (io.Reader, func() error, error)) (events []Event, err error) {
	file, err := os.Open(path) //nolint:gosec // run directory under the history root
	if err != nil {
		return nil, err
	}

	defer func() { err = errors.Join(err, file.Close()) }()

	r, closeReader, err := wrap(file)
	if err != nil {
		return nil, err
	}

	defer func() { err = errors.Join(err, closeReader()) }()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventLine)

	for scanner.Scan() {
		if ev, ok := decodeEvent(scanner.Bytes()); ok {
			events = append(events, ev)
		}
	}

	if err := scanner.Err(); err != nil {
		return events, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}

	return events, nil
}

func decodeEvent(line []byte) (Event, bool) {
	var ev Event

	line = bytes.TrimSpace(line)
	if len(line) == 0 || json.Unmarshal(line, &ev) != nil {
		return ev, false
	}

	return ev, true
}

// ReadLiveEventsFrom returns the complete lines of a run's live file that
// start at offset, and the offset just past the last one. A trailing line
// without its newline is left for the next call.
func ReadLiveEventsFrom(rootDir, runID string, offset int64) (events []Event, next int64, err error) {
	if err := validateRunID(runID); err != nil {
		return nil, offset, err
	}

	if offset < 0 {
		return nil, offset, fmt.Errorf("negative offset %d", offset)
	}

	rootDir, err = resolveRoot(rootDir)
	if err != nil {
		return nil, offset, err
	}

	file, err := os.Open(filepath.Join(rootDir, runID, eventsLiveFileName)) //nolint:gosec // run directory under the history root
	if errors.Is(err, os.ErrNotExist) {
		return nil, offset, nil
	}

	if err != nil {
		return nil, offset, fmt.Errorf("open live events: %w", err)
	}

	defer func() { err = errors.Join(err, file.Close()) }()

	if info, err := file.Stat(); err == nil && offset > info.Size() {
		offset = info.Size()
	}

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, fmt.Errorf("seek live events: %w", err)
	}

	reader := bufio.NewReaderSize(file, 64*1024)
	next = offset

	for {
		line, readErr := reader.ReadBytes('\n')
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return events, next, nil
			}

			return events, next, fmt.Errorf("read live events: %w", readErr)
		}

		next += int64(len(line))

		if ev, ok := decodeEvent(line); ok {
			events = append(events, ev)
		}
	}
}

// PruneOlderThan removes closed runs that closed before cutoff and returns
// how many were removed. Open runs are kept.
func PruneOlderThan(rootDir string, cutoff time.Time) (int, error) {
	runs, err := ListRuns(rootDir)
	if err != nil {
		return 0, err
	}

	removed := 0

	for _, run := range runs {
		if run.ClosedAt == nil || !run.ClosedAt.Before(cutoff) {
			continue
		}

		if err := os.RemoveAll(run.Path); err != nil {
			return removed, fmt.Errorf("prune run %q: %w", run.RunID, err)
		}

		removed++
	}

	return removed, nil
}
