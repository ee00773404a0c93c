package main

import (
	"context"
	"log/slog"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cruft-ninja/script-runner/internal/config"
	"github.com/cruft-ninja/script-runner/internal/credential"
	clierrors "github.com/cruft-ninja/script-runner/internal/errors"
	"github.com/cruft-ninja/script-runner/internal/launcher"
	"github.com/cruft-ninja/script-runner/internal/observability"
	"github.com/cruft-ninja/script-runner/internal/output"
	"github.com/cruft-ninja/script-runner/internal/paths"
	"github.com/cruft-ninja/script-runner/internal/runner"
	"github.com/cruft-ninja/script-runner/internal/tui"
)

func newUICmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ui",
		Short: "Open the full-screen script launcher",
		Long: `Open the interface: one button per catalogued script, one log tab per
run next to the Console and Scratchpad tabs. Scripts marked as needing
root ask for the sudo password in a masked prompt. This is also what runs
when scriptrunner is started without a subcommand.`,
		Example: `  scriptrunner ui
  scriptrunner ui --catalog ./ops/scripts.toml`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUI(cmd)
		},
	}
}

func runUI(cmd *cobra.Command) error {
	out := output.FromContext(cmd.Context())
	logger := observability.FromContext(cmd.Context())

	if !out.Terminal().FullScreenEnabled() {
		return &clierrors.CLIError{
			Message: "The interface needs an interactive terminal",
			Hint:    "Use 'scriptrunner run <script>' to run scripts without it",
			Code:    clierrors.ExitUsage,
		}
	}

	cfg := config.Load()

	cat, err := loadCatalog(cmd, cfg)
	if err != nil {
		return err
	}

	l, err := newLauncher(cfg, logger)
	if err != nil {
		return err
	}

	history, err := historyDir(cfg)
	if err != nil {
		return err
	}

	saveDir, err := paths.SavedTabsDir()
	if err != nil {
		return clierrors.ConfigFailed("resolve saved tabs directory", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	bridge := credential.NewBridge()

	app := tui.New(tui.Options{
		Scripts:      cat.Scripts(),
		Credentials:  bridge,
		Ceiling:      cfg.MaxConcurrent(),
		SinkMaxLines: cfg.SinkMaxLines(),
		StripANSI:    cfg.StripANSI(),
		SaveDir:      saveDir,
		Logger:       logger,
	})

	coord := runner.New(runner.Options{
		Starter:      l,
		Credentials:  bridge,
		UI:           app,
		BaseDir:      cat.BaseDir(),
		Ceiling:      cfg.MaxConcurrent(),
		SinkMaxLines: cfg.SinkMaxLines(),
		HistoryDir:   history,
		Logger:       logger,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		_ = coord.Run(ctx)
	}()

	logger.Info("interface started", "catalog", catalogPath(cmd, cfg), "scripts", cat.Len())

	err = app.Run(ctx, coord)

	// Stopping the coordinator terminates every process group still running.
	cancel()
	<-coord.Done()

	return err
}

// newLauncher builds the process launcher from config and checks that the
// interpreter exists.
func newLauncher(cfg *config.Config, logger *slog.Logger) (*launcher.Launcher, error) {
	l := launcher.New(launcher.Options{
		Interpreter:      cfg.Interpreter(),
		ElevationCommand: cfg.ElevationCommand(),
		Logger:           logger,
	})

	if _, err := exec.LookPath(l.Interpreter()); err != nil {
		return nil, clierrors.InterpreterNotFound(l.Interpreter())
	}

	return l, nil
}
