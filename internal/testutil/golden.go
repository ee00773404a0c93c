// Package testutil provides testing utilities shared across scriptrunner packages.
package testutil

import (
	"flag"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// update rewrites golden files instead of comparing: go test ./... -update
var update = flag.Bool("update", false, "update golden files")

// T is the subset of testing.TB used by the golden helpers.
type T interface {
	Helper()
	Errorf(format string, args ...any)
	Fatalf(format string, args ...any)
	Logf(format string, args ...any)
}

// Scrubber replaces volatile parts of command output with stable placeholders.
type Scrubber func(string) string

var (
	runIDPattern     = regexp.MustCompile(`[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
	timestampPattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})`)
)

// ScrubRunIDs replaces run ids with <run-id>.
func ScrubRunIDs(s string) string {
	return runIDPattern.ReplaceAllString(s, "<run-id>")
}

// ScrubTimestamps replaces RFC 3339 timestamps with <time>.
func ScrubTimestamps(s string) string {
	return timestampPattern.ReplaceAllString(s, "<time>")
}

// ScrubPath returns a Scrubber replacing dir, typically a t.TempDir, with
// placeholder.
func ScrubPath(dir, placeholder string) Scrubber {
	return func(s string) string {
		if dir == "" {
			return s
		}

		return strings.ReplaceAll(s, filepath.Clean(dir), placeholder)
	}
}

// Scrub applies scrubbers in order, then the run id and timestamp scrubbers.
func Scrub(s string, scrubbers ...Scrubber) string {
	for _, scrub := range scrubbers {
		s = scrub(s)
	}

	return ScrubTimestamps(ScrubRunIDs(s))
}

// AssertGolden compares scrubbed output against testdata/<goldenFile>. With
// -update it writes the scrubbed output instead.
func AssertGolden(t T, got, goldenFile string, scrubbers ...Scrubber) {
	t.Helper()

	got = Scrub(got, scrubbers...)
	goldenPath := filepath.Join("testdata", goldenFile)

	if *update {
		if err := os.MkdirAll(filepath.Dir(goldenPath), 0o755); err != nil {
			t.Fatalf("create testdata directory: %v", err)
			return
		}

		if err := os.WriteFile(goldenPath, []byte(got), 0o644); err != nil {
			t.Fatalf("update golden file %s: %v", goldenPath, err)
			return
		}

		t.Logf("updated golden file: %s", goldenPath)

		return
	}

	want, err := os.ReadFile(goldenPath)
	if err != nil {
		if os.IsNotExist(err) {
			t.Fatalf("golden file %s does not exist; run with -update to create it", goldenPath)
		} else {
			t.Fatalf("read golden file %s: %v", goldenPath, err)
		}

		return
	}

	if got != string(want) {
		t.Errorf("output mismatch for %s\n\ngot:\n%s\n\nwant:\n%s\n\nrun with -update to refresh golden files", goldenPath, got, string(want))
	}
}
