package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	clierrors "github.com/cruft-ninja/script-runner/internal/errors"
	"github.com/cruft-ninja/script-runner/internal/observability"
	"github.com/cruft-ninja/script-runner/internal/output"
)

// globalFlags are the persistent flags shared by every command. Each has a
// SCRIPTRUNNER_* environment fallback.
type globalFlags struct {
	json, quiet, noColor, noInput bool

	logLevel, logFormat, logFile, logStderr string

	catalog string
}

func (g *globalFlags) register(fs *pflag.FlagSet) {
	fs.BoolVar(&g.json, "json", false, "Output in JSON format")
	fs.BoolVar(&g.quiet, "quiet", false, "Minimal output (for CI)")
	fs.BoolVar(&g.noColor, "no-color", false, "Disable colored output")
	fs.BoolVar(&g.noInput, "no-input", false, "Disable interactive prompts")
	fs.StringVar(&g.logLevel, "log-level", "", "Log level: error, warn, info, debug")
	fs.StringVar(&g.logFormat, "log-format", "", "Log format: json, text")
	fs.StringVar(&g.logFile, "log-file", "", "Optional structured log file path")
	fs.StringVar(&g.logStderr, "log-stderr", "", "Structured logging to stderr: auto, on, off")
	fs.StringVar(&g.catalog, "catalog", "", "Script catalog file (JSON, YAML or TOML)")
}

// applyOutput copies the output flags onto out. CI=true implies --no-input.
func (g *globalFlags) applyOutput(out *output.Writer) {
	out.JSON = g.json || envBool("SCRIPTRUNNER_JSON")
	out.Quiet = g.quiet || envBool("SCRIPTRUNNER_QUIET")
	out.NoInput = g.noInput || envBool("SCRIPTRUNNER_NO_INPUT") || envBool("CI")

	if g.noColor {
		out.SetNoColor(true)
		color.NoColor = true
	}
}

func (g *globalFlags) logConfig(cmd *cobra.Command, out *output.Writer) *observability.Config {
	return &observability.Config{
		Level:          flagOrEnv(g.logLevel, "SCRIPTRUNNER_LOG_LEVEL", "info"),
		Format:         flagOrEnv(g.logFormat, "SCRIPTRUNNER_LOG_FORMAT", "json"),
		LogFile:        flagOrEnv(g.logFile, "SCRIPTRUNNER_LOG_FILE", ""),
		StderrMode:     flagOrEnv(g.logStderr, "SCRIPTRUNNER_LOG_STDERR", "auto"),
		InteractiveTTY: out.Terminal().IsTTY && isInteractiveCommand(cmd.CommandPath()),
		SessionID:      uuid.NewString(),
		CommandPath:    cmd.CommandPath(),
		Version:        version,
		Commit:         commit,
	}
}

// setup runs before every command. It installs the writer and logger in the
// command context, starts telemetry and registers their cleanup after the
// command's own PostRunE.
func (g *globalFlags) setup(cmd *cobra.Command, out *output.Writer) error {
	g.applyOutput(out)

	logger, closeLog, err := observability.NewLogger(g.logConfig(cmd, out))
	if err != nil {
		return &clierrors.CLIError{
			Message: fmt.Sprintf("Invalid logging configuration: %v", err),
			Hint:    "Use --log-level (error|warn|info|debug), --log-format (json|text), --log-stderr (auto|on|off), and/or --log-file",
			Code:    clierrors.ExitUsage,
		}
	}

	slog.SetDefault(logger)

	ctx := observability.WithLogger(out.WithContext(cmd.Context()), logger)
	cmd.SetContext(ctx)

	var cleanups cleanupStack

	cleanups.push("logger resources", closeLog)

	shutdown, err := observability.SetupTelemetry(ctx, observability.TelemetryFromEnv(version, commit))
	if err != nil {
		logger.Warn("telemetry initialization failed", slog.String("error", err.Error()))
	}

	if shutdown != nil {
		cleanups.push("telemetry resources", func() error {
			flushCtx, cancel := context.WithTimeout(context.Background(), telemetryFlushTimeout)
			defer cancel()

			return shutdown(flushCtx)
		})
	}

	cmd.PostRunE = cleanups.after(cmd.PostRunE)

	return nil
}

func newRootCmd() *cobra.Command {
	var flags globalFlags

	out := output.Default()

	rootCmd := &cobra.Command{
		Use:   "scriptrunner",
		Short: "Launch catalogued scripts from one terminal",
		Long: `scriptrunner shows a button per script from a catalog file and runs
them concurrently, each with its own log tab. Scripts that need root
are wrapped in sudo and ask for the password in a masked prompt.

Without a subcommand the full-screen interface starts.

Get started:
  scriptrunner list       Show the scripts in the catalog
  scriptrunner            Open the interface
  scriptrunner run <ref>  Run scripts without the interface
  scriptrunner doctor     Diagnose common issues`,
		Example: `  scriptrunner
  scriptrunner --catalog ~/ops/scripts.yaml`,
		Args:          noArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return flags.setup(cmd, out)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runUI(cmd)
		},
	}

	flags.register(rootCmd.PersistentFlags())

	rootCmd.SuggestionsMinimumDistance = 2

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return clierrors.New(clierrors.ExitUsage, err.Error()).
			WithHint(fmt.Sprintf("Run '%s --help' for available flags", cmd.CommandPath()))
	})

	rootCmd.AddCommand(
		newUICmd(),
		newRunCmd(),
		newListCmd(),
		newConfigCmd(),
		newHistoryCmd(),
		newDoctorCmd(),
		newVersionCmd(),
		newCompletionCmd(),
	)

	return rootCmd
}

var truthy = []string{"1", "true", "yes"}

func envBool(key string) bool {
	return slices.Contains(truthy, strings.ToLower(strings.TrimSpace(os.Getenv(key))))
}

func flagOrEnv(flagValue, envKey, fallback string) string {
	for _, v := range []string{flagValue, os.Getenv(envKey)} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}

	return fallback
}

// isInteractiveCommand reports whether the command takes over the terminal,
// in which case structured logs go to a file instead of stderr.
func isInteractiveCommand(path string) bool {
	return path == "scriptrunner" || path == "scriptrunner ui"
}

// noArgs rejects positional arguments. cobra.NoArgs reports them as an
// unknown command.
func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return nil
	}

	return clierrors.New(clierrors.ExitUsage, fmt.Sprintf("'%s' accepts no arguments", cmd.CommandPath())).
		WithHint(fmt.Sprintf("Run '%s --help' for usage", cmd.CommandPath()))
}
