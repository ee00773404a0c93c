package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cruft-ninja/script-runner/internal/config"
	"github.com/cruft-ninja/script-runner/internal/doctor"
	"github.com/cruft-ninja/script-runner/internal/output"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose common issues",
		Long: `Run diagnostic checks to identify configuration and environment issues.

Checks performed:
  - Script interpreter availability
  - Cached sudo grant
  - Script catalog parsing and script presence
  - Transcript directory is writable
  - Host CPU and memory`,
		Example: `  scriptrunner doctor
  scriptrunner doctor --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			cfg := config.Load()

			env := doctor.Env{
				Interpreter:      cfg.Interpreter(),
				ElevationCommand: cfg.ElevationCommand(),
				CatalogPath:      catalogPath(cmd, cfg),
			}

			if dir, err := historyDir(cfg); err == nil {
				env.HistoryDir = dir
			}

			runner := doctor.New(env)

			if out.JSON {
				return out.PrintJSON(runner.Run(cmd.Context()))
			}

			out.Println("scriptrunner doctor")
			out.Println("===================")
			out.Println()

			renderDoctor(out, runDoctorChecks(cmd.Context(), out, runner))

			return nil
		},
	}
}

// runDoctorChecks runs the checks behind a spinner that names the current
// check and stops with the worst status.
func runDoctorChecks(ctx context.Context, out *output.Writer, r *doctor.Runner) []doctor.Result {
	spin := out.Spinner("Running checks")
	spin.Start()

	results := r.RunEach(ctx, func(name string) {
		spin.UpdateMessage("Checking " + strings.ToLower(name))
	})

	stop := map[doctor.Status]func(string){
		doctor.StatusPass: spin.StopWithSuccess,
		doctor.StatusWarn: spin.StopWithWarning,
		doctor.StatusFail: spin.StopWithFailure,
	}
	stop[doctor.Count(results).Worst()]("")

	return results
}

func renderDoctor(out *output.Writer, results []doctor.Result) {
	doctor.RenderResults(results, out)

	out.Println()
	out.Println(doctor.Count(results).String())
}
