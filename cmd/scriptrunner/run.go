package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cruft-ninja/script-runner/internal/ansi"
	"github.com/cruft-ninja/script-runner/internal/catalog"
	"github.com/cruft-ninja/script-runner/internal/config"
	"github.com/cruft-ninja/script-runner/internal/credential"
	clierrors "github.com/cruft-ninja/script-runner/internal/errors"
	"github.com/cruft-ninja/script-runner/internal/gate"
	"github.com/cruft-ninja/script-runner/internal/logsink"
	"github.com/cruft-ninja/script-runner/internal/observability"
	"github.com/cruft-ninja/script-runner/internal/output"
	"github.com/cruft-ninja/script-runner/internal/prompt"
	"github.com/cruft-ninja/script-runner/internal/runner"
)

// RunSummary is the JSON form of one finished run.
type RunSummary struct {
	RunID    string `json:"runId,omitempty"`
	Script   string `json:"script"`
	Label    string `json:"label"`
	Outcome  string `json:"outcome"`
	ExitCode int    `json:"exitCode"`
	Error    string `json:"error,omitempty"`
}

func newRunCmd() *cobra.Command {
	var maxConcurrent int

	cmd := &cobra.Command{
		Use:   "run <script>...",
		Short: "Run scripts without the interface",
		Long: `Run one or more catalogued scripts, streaming their output to stdout
prefixed with the script label. Scripts are referenced by path or label.
At most --max-concurrent scripts run at once; the rest start as slots free
up. Elevated scripts ask for the sudo password on the terminal.`,
		Example: `  scriptrunner run backup.sh
  scriptrunner run "Rotate logs" cleanup.sh --max-concurrent 1
  scriptrunner run deploy.sh --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			cfg := config.Load()

			ceiling := cfg.MaxConcurrent()
			if cmd.Flags().Changed("max-concurrent") {
				if maxConcurrent < gate.MinCeiling || maxConcurrent > gate.MaxCeiling {
					return clierrors.InvalidCeiling(maxConcurrent, gate.MinCeiling, gate.MaxCeiling)
				}

				ceiling = maxConcurrent
			}

			cat, err := loadCatalog(cmd, cfg)
			if err != nil {
				return err
			}

			scripts, err := selectScripts(cat, args)
			if err != nil {
				return err
			}

			var creds credential.Requester

			if p := prompt.New(out); p.CanPrompt() {
				creds = p
			}

			results, err := runHeadless(cmd.Context(), cfg, cat.BaseDir(), scripts, gate.ClampCeiling(ceiling), creds)
			if err != nil {
				return err
			}

			return reportResults(out, results, creds != nil)
		},
	}

	cmd.Flags().IntVar(&maxConcurrent, "max-concurrent", 0, "Scripts allowed to run at once (1-20, default from config)")

	return cmd
}

// selectScripts resolves references in order, dropping repeats.
func selectScripts(cat *catalog.Catalog, refs []string) ([]catalog.Script, error) {
	seen := make(map[string]bool, len(refs))
	scripts := make([]catalog.Script, 0, len(refs))

	for _, ref := range refs {
		s, ok := cat.Lookup(ref)
		if !ok {
			return nil, clierrors.ScriptUnknown(ref)
		}

		if seen[s.Identity()] {
			continue
		}

		seen[s.Identity()] = true
		scripts = append(scripts, s)
	}

	return scripts, nil
}

// runHeadless feeds scripts to a coordinator, keeping at most ceiling of them
// in flight, and returns one result per script in completion order.
func runHeadless(
	parent context.Context,
	cfg *config.Config,
	baseDir string,
	scripts []catalog.Script,
	ceiling int,
	creds credential.Requester,
) ([]runner.Result, error) {
	out := output.FromContext(parent)
	logger := observability.FromContext(parent)

	l, err := newLauncher(cfg, logger)
	if err != nil {
		return nil, err
	}

	history, err := historyDir(cfg)
	if err != nil {
		return nil, err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan runner.Result, len(scripts))

	coord := runner.New(runner.Options{
		Starter:      l,
		Credentials:  creds,
		UI:           newLineUI(out, cfg.StripANSI()),
		BaseDir:      baseDir,
		Ceiling:      ceiling,
		SinkMaxLines: cfg.SinkMaxLines(),
		HistoryDir:   history,
		Logger:       logger,
		OnResult:     func(r runner.Result) { done <- r },
	})

	go func() {
		_ = coord.Run(ctx)
	}()

	next := 0
	for ; next < len(scripts) && next < ceiling; next++ {
		coord.RequestRun(scripts[next])
	}

	results := make([]runner.Result, 0, len(scripts))

	for len(results) < len(scripts) {
		select {
		case r := <-done:
			results = append(results, r)

			if next < len(scripts) {
				coord.RequestRun(scripts[next])
				next++
			}
		case <-ctx.Done():
			cancel()
			<-coord.Done()

			return nil, clierrors.New(clierrors.ExitGeneral, "Interrupted, running scripts were terminated")
		}
	}

	cancel()
	<-coord.Done()

	return results, nil
}

// reportResults prints the run summaries. canPrompt tells whether an
// elevation password could have been asked for.
func reportResults(out *output.Writer, results []runner.Result, canPrompt bool) error {
	var (
		failed  []string
		aborted bool
	)

	summaries := make([]RunSummary, 0, len(results))

	for _, r := range results {
		s := RunSummary{
			RunID:    r.RunID,
			Script:   r.Identity,
			Label:    r.Label,
			Outcome:  r.Outcome.String(),
			ExitCode: r.ExitCode,
		}

		if r.Err != nil {
			s.Error = r.Err.Error()
		}

		summaries = append(summaries, s)

		switch {
		case r.Outcome.Success():
		case r.Outcome == runner.Aborted:
			aborted = true
		default:
			failed = append(failed, r.Label)
		}
	}

	if out.JSON {
		if err := out.PrintJSON(summaries); err != nil {
			return err
		}
	} else if len(results) > 1 {
		out.Println()

		for _, s := range summaries {
			if s.Outcome == runner.Completed.String() {
				out.Success("%s", s.Label)
			} else {
				out.Failure("%s (%s)", s.Label, s.Outcome)
			}
		}
	}

	switch {
	case len(failed) > 0:
		return clierrors.RunFailed(failed)
	case aborted && !canPrompt:
		return clierrors.CannotPrompt("the sudo password")
	case aborted:
		return clierrors.ElevationAborted()
	default:
		return nil
	}
}

// lineUI prints coordinator output as labelled lines. It is only called from
// the coordinator goroutine.
type lineUI struct {
	runner.NopUI

	out       *output.Writer
	stripANSI bool
	labels    map[logsink.ID]string
}

func newLineUI(out *output.Writer, stripANSI bool) *lineUI {
	return &lineUI{
		out:       out,
		stripANSI: stripANSI,
		labels:    map[logsink.ID]string{logsink.Console: "console"},
	}
}

func (u *lineUI) OpenTab(identity, label string) {
	u.labels[logsink.ScriptID(identity)] = label
}

func (u *lineUI) AppendLog(id logsink.ID, text string) {
	if u.out.JSON {
		return
	}

	label, ok := u.labels[id]
	if !ok {
		label = string(id)
	}

	for _, line := range strings.Split(text, "\n") {
		if u.stripANSI {
			line = ansi.Sanitize(line)
		}

		u.out.LogLine(label, line)
	}
}
