package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/cruft-ninja/script-runner/internal/terminal"
	"github.com/cruft-ninja/script-runner/internal/testutil"
)

// testTerminal returns a non-TTY terminal without color.
func testTerminal() *terminal.Info {
	return &terminal.Info{IsTTY: false, NoColor: true, Width: 80, Height: 24}
}

func newTestWriter(quiet bool) (w *Writer, out, errOut *bytes.Buffer) {
	out, errOut = &bytes.Buffer{}, &bytes.Buffer{}
	w = NewWriter(out, errOut, testTerminal())
	w.Quiet = quiet

	return w, out, errOut
}

func TestWriter_StatusLines(t *testing.T) {
	tests := []struct {
		name    string
		write   func(w *Writer)
		quiet   bool
		wantOut string
		wantErr string
	}{
		{
			name:    "success",
			write:   func(w *Writer) { w.Success("Saved Backup to %s", "/tmp/backup.txt") },
			wantOut: CheckMark + " Saved Backup to /tmp/backup.txt\n",
		},
		{
			name:    "warning",
			write:   func(w *Writer) { w.Warning("No cached sudo grant") },
			wantOut: WarningMark + " No cached sudo grant\n",
		},
		{
			name:    "info",
			write:   func(w *Writer) { w.Info("Run 'scriptrunner list' to see scripts") },
			wantOut: InfoMark + " Run 'scriptrunner list' to see scripts\n",
		},
		{
			name:    "muted",
			write:   func(w *Writer) { w.Muted("No transcripts found.") },
			wantOut: "No transcripts found.\n",
		},
		{
			name:    "failure goes to stderr",
			write:   func(w *Writer) { w.Failure("Script not found: %s", "/opt/x.sh") },
			wantErr: XMark + " Script not found: /opt/x.sh\n",
		},
		{
			name:  "quiet hides informational lines",
			quiet: true,
			write: func(w *Writer) {
				w.Success("ok")
				w.Warning("careful")
				w.Info("fyi")
				w.Muted("aside")
				w.Print("%d scripts\n", 3)
				w.Println("plain")
			},
		},
		{
			name:    "quiet keeps failures",
			quiet:   true,
			write:   func(w *Writer) { w.Failure("Elevation aborted") },
			wantErr: XMark + " Elevation aborted\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, out, errOut := newTestWriter(tt.quiet)
			tt.write(w)

			if got := out.String(); got != tt.wantOut {
				t.Errorf("stdout = %q, want %q", got, tt.wantOut)
			}

			if got := errOut.String(); got != tt.wantErr {
				t.Errorf("stderr = %q, want %q", got, tt.wantErr)
			}
		})
	}
}

func TestWriter_PrintJSONIgnoresQuiet(t *testing.T) {
	w, out, _ := newTestWriter(true)

	if err := w.PrintJSON([]string{}); err != nil {
		t.Fatal(err)
	}

	if got := out.String(); got != "[]\n" {
		t.Errorf("PrintJSON() = %q, want %q", got, "[]\n")
	}
}

func TestWriter_Context(t *testing.T) {
	w, _, _ := newTestWriter(false)

	if got := FromContext(w.WithContext(t.Context())); got != w {
		t.Error("FromContext should return the stored writer")
	}

	if FromContext(t.Context()) == nil {
		t.Error("FromContext without a writer should return a default")
	}

	if w.Terminal() == nil {
		t.Error("Terminal() returned nil")
	}
}

func TestWriter_SetNoColor(t *testing.T) {
	term := &terminal.Info{IsTTY: true}
	w := NewWriter(&bytes.Buffer{}, &bytes.Buffer{}, term)

	w.SetNoColor(true)

	if !term.ForceFlag || term.ColorEnabled() {
		t.Error("SetNoColor(true) should force colors off")
	}
}

func TestSpinner_TextFallback(t *testing.T) {
	tests := []struct {
		name    string
		stop    func(s *Spinner)
		wantOut string
		wantErr string
	}{
		{
			name:    "success with message",
			stop:    func(s *Spinner) { s.StopWithSuccess("All checks passed") },
			wantOut: "Checking catalog... done\n" + CheckMark + " All checks passed\n",
		},
		{
			name:    "warning",
			stop:    func(s *Spinner) { s.StopWithWarning("") },
			wantOut: "Checking catalog... warning\n",
		},
		{
			name:    "failure reports on stderr",
			stop:    func(s *Spinner) { s.StopWithFailure("1 check failed") },
			wantOut: "Checking catalog... failed\n",
			wantErr: XMark + " 1 check failed\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, out, errOut := newTestWriter(false)

			s := w.Spinner("Running checks")
			s.UpdateMessage("Checking catalog")
			s.Start()
			tt.stop(s)

			if got := out.String(); got != tt.wantOut {
				t.Errorf("stdout = %q, want %q", got, tt.wantOut)
			}

			if got := errOut.String(); got != tt.wantErr {
				t.Errorf("stderr = %q, want %q", got, tt.wantErr)
			}
		})
	}
}

func TestSpinner_QuietIsSilent(t *testing.T) {
	w, out, _ := newTestWriter(true)

	s := w.Spinner("Running checks")
	if !s.disabled {
		t.Fatal("spinner should be disabled in quiet mode")
	}

	s.Start()
	s.UpdateMessage("Checking host")
	s.StopWithSuccess("")

	if out.Len() != 0 {
		t.Errorf("quiet spinner wrote %q", out.String())
	}
}

func TestWriter_LogLine(t *testing.T) {
	tests := []struct {
		name  string
		label string
		line  string
		quiet bool
		want  string
	}{
		{name: "bare line", line: "[OUT] hello", want: "[OUT] hello\n"},
		{name: "labelled line", label: "Backup", line: "[DONE] backup.sh", want: "Backup | [DONE] backup.sh\n"},
		{name: "quiet suppresses", line: "[ERR] boom", quiet: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, out, _ := newTestWriter(tt.quiet)

			w.LogLine(tt.label, tt.line)

			if got := out.String(); got != tt.want {
				t.Errorf("LogLine() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTagTone(t *testing.T) {
	tests := []struct {
		line   string
		want   tone
		tagged bool
	}{
		{"[ERR] x", toneFailure, true},
		{"[ERROR] Script not found: /x", toneFailure, true},
		{"[FAIL (2)] x.sh", toneFailure, true},
		{"[FAIL (-15)] x.sh", toneFailure, true},
		{"[WARN] Aborted by user.", toneWarning, true},
		{"[DONE] x.sh", toneDone, true},
		{"[INFO] Running: /x.sh", toneInfo, true},
		{strings.Repeat("#", 50), toneMuted, true},
		{"[OUT] plain", 0, false},
		{"untagged", 0, false},
	}

	for _, tt := range tests {
		got, ok := tagTone(tt.line)
		if ok != tt.tagged || got != tt.want {
			t.Errorf("tagTone(%q) = %v, %v; want %v, %v", tt.line, got, ok, tt.want, tt.tagged)
		}
	}
}

func TestPrintJSON_Golden(t *testing.T) {
	type script struct {
		Label     string   `json:"label"`
		Path      string   `json:"path"`
		NeedsSudo bool     `json:"needsSudo"`
		Tags      []string `json:"tags"`
	}

	w, out, _ := newTestWriter(false)

	err := w.PrintJSON([]script{
		{Label: "Backup", Path: "/opt/scripts/backup.sh", Tags: []string{"nightly"}},
		{Label: "Update packages", Path: "/opt/scripts/update.sh", NeedsSudo: true, Tags: []string{}},
	})
	if err != nil {
		t.Fatalf("PrintJSON() error = %v", err)
	}

	testutil.AssertGolden(t, out.String(), "json_output.golden")
}

func TestStatusMessages_Golden(t *testing.T) {
	w, out, _ := newTestWriter(false)

	w.Success("Backup finished")
	w.Warning("No cached sudo grant")
	w.Info("Elevated scripts will ask for the password")
	w.Muted("3 scripts in /etc/scriptrunner/scripts.yaml")

	testutil.AssertGolden(t, out.String(), "status_messages.golden")
}

func TestLogLines_Golden(t *testing.T) {
	w, out, _ := newTestWriter(false)

	for _, line := range []string{
		strings.Repeat("#", 50),
		"[INFO] Running: /opt/scripts/backup.sh",
		"[OUT] copying files",
		"[ERR] warning: skipped /tmp",
		"[DONE] backup.sh",
		strings.Repeat("#", 50),
	} {
		w.LogLine("Backup", line)
	}

	testutil.AssertGolden(t, out.String(), "log_lines.golden")
}
