package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cruft-ninja/script-runner/internal/ansi"
	"github.com/cruft-ninja/script-runner/internal/config"
	clierrors "github.com/cruft-ninja/script-runner/internal/errors"
	"github.com/cruft-ninja/script-runner/internal/output"
	"github.com/cruft-ninja/script-runner/internal/transcript"
)

const followInterval = time.Second

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect transcripts of past runs",
		Long:  `List, view and prune the transcripts recorded for every script run.`,
	}

	cmd.AddCommand(newHistoryListCmd())
	cmd.AddCommand(newHistoryViewCmd())
	cmd.AddCommand(newHistoryPruneCmd())

	return cmd
}

func historyRoot() (string, error) {
	dir, err := config.Load().HistoryDir()
	if err != nil {
		return "", clierrors.ConfigFailed("resolve history directory", err)
	}

	return dir, nil
}

func newHistoryListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored run transcripts",
		Long:  `List recorded runs, newest first, with their outcome and exit code.`,
		Example: `  scriptrunner history list
  scriptrunner history list --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			dir, err := historyRoot()
			if err != nil {
				return err
			}

			runs, err := transcript.ListRuns(dir)
			if err != nil {
				return err
			}

			return printRuns(out, runs)
		},
	}
}

func printRuns(out *output.Writer, runs []transcript.Run) error {
	if out.JSON {
		if runs == nil {
			runs = []transcript.Run{}
		}

		return out.PrintJSON(runs)
	}

	if len(runs) == 0 {
		out.Muted("No transcripts found.")
		return nil
	}

	for _, r := range runs {
		out.Print("%s  %s  %-14s %s\n", shortRunID(r.RunID), r.StartedAt.Local().Format(time.DateTime), runStatus(r), r.Label)
	}

	return nil
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}

	return id
}

func runStatus(r transcript.Run) string {
	switch {
	case r.ClosedAt == nil:
		return "running"
	case r.ExitCode != nil && r.Outcome != "completed":
		return fmt.Sprintf("%s (%d)", r.Outcome, *r.ExitCode)
	case r.Outcome == "":
		return "closed"
	default:
		return r.Outcome
	}
}

func newHistoryViewCmd() *cobra.Command {
	var (
		search string
		follow bool
		raw    bool
	)

	cmd := &cobra.Command{
		Use:   "view <run-id>",
		Short: "Print the output captured for a run",
		Long: `Print the transcript of one run. The run id may be abbreviated to any
unique prefix, as shown by 'scriptrunner history list'.`,
		Example: `  scriptrunner history view 3f2a9c1e
  scriptrunner history view 3f2a --search error
  scriptrunner history view 3f2a --follow`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			dir, err := historyRoot()
			if err != nil {
				return err
			}

			run, err := transcript.FindRun(dir, args[0])
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					return clierrors.New(clierrors.ExitUsage, fmt.Sprintf("No transcript for run %s", args[0])).
						WithHint("Run 'scriptrunner history list' to see recorded runs")
				}

				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return viewTranscript(ctx, out, dir, run, search, follow, raw)
		},
	}

	cmd.Flags().StringVar(&search, "search", "", "Filter output to lines containing this substring")
	cmd.Flags().BoolVar(&follow, "follow", false, "Keep printing new lines until the run finishes")
	cmd.Flags().BoolVar(&raw, "raw", false, "Show raw output including ANSI escape sequences")

	return cmd
}

func viewTranscript(ctx context.Context, out *output.Writer, dir string, run transcript.Run, search string, follow, raw bool) error {
	needle := strings.ToLower(search)

	var offset int64

	for {
		events, next, err := transcript.ReadLiveEventsFrom(dir, run.RunID, offset)
		if err != nil {
			return err
		}

		offset = next

		for _, ev := range events {
			line := ev.Text
			if !raw {
				line = ansi.Strip(line)
			}

			if needle != "" && !strings.Contains(strings.ToLower(line), needle) {
				continue
			}

			out.Print("%s\n", strings.TrimRight(line, "\n"))
		}

		if !follow {
			return nil
		}

		if current, err := transcript.FindRun(dir, run.RunID); err == nil && current.ClosedAt != nil && len(events) == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(followInterval):
		}
	}
}

func newHistoryPruneCmd() *cobra.Command {
	var olderThan string

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete transcripts older than a duration",
		Long: `Delete finished run transcripts older than the retention window
(history.retention, 720h by default). Runs still in progress are kept.`,
		Example: `  scriptrunner history prune
  scriptrunner history prune --older-than 168h`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			cfg := config.Load()

			window := cfg.HistoryRetention()
			if olderThan != "" {
				d, err := time.ParseDuration(olderThan)
				if err != nil || d <= 0 {
					return clierrors.New(clierrors.ExitUsage, fmt.Sprintf("Invalid duration for --older-than: %q", olderThan)).
						WithHint("Use a Go duration such as 72h or 30m")
				}

				window = d
			}

			dir, err := historyRoot()
			if err != nil {
				return err
			}

			removed, err := transcript.PruneOlderThan(dir, time.Now().Add(-window))
			if err != nil {
				return err
			}

			out.Success("Removed %d transcript(s)", removed)

			return nil
		},
	}

	cmd.Flags().StringVar(&olderThan, "older-than", "", "Override retention window (example: 168h)")

	return cmd
}
