// Package main is the entry point for the scriptrunner CLI.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/cruft-ninja/script-runner/internal/buildinfo"
	clierrors "github.com/cruft-ninja/script-runner/internal/errors"
	"github.com/cruft-ninja/script-runner/internal/output"
)

// Set with -ldflags at release time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const showCursor = "\033[?25h"

func main() {
	os.Exit(run())
}

func run() int {
	// The spinner and the interface hide the cursor.
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprint(os.Stderr, showCursor)
			panic(r)
		}
	}()

	buildinfo.Version, buildinfo.Commit, buildinfo.Date = version, commit, date

	if err := newRootCmd().Execute(); err != nil {
		return handleError(output.Default(), err)
	}

	return 0
}

// cobraUsageErrors are the prefixes of argument errors cobra returns
// before a command's own validation runs.
var cobraUsageErrors = []string{"unknown command", "unknown flag", "unknown shorthand flag", "required flag"}

// handleError prints err and returns the exit code. A CLIError supplies its
// own hint and code.
func handleError(out *output.Writer, err error) int {
	var cliErr *clierrors.CLIError
	if clierrors.As(err, &cliErr) {
		out.Failure("%s", cliErr.Message)

		if cliErr.Hint != "" {
			out.Info("%s", cliErr.Hint)
		}

		return cliErr.Code
	}

	msg := err.Error()
	out.Failure("%s", msg)

	for _, prefix := range cobraUsageErrors {
		if strings.HasPrefix(msg, prefix) {
			// Suggestions from cobra already point at --help.
			if !strings.Contains(msg, "--help") {
				out.Info("Run 'scriptrunner --help' for usage")
			}

			return clierrors.ExitUsage
		}
	}

	return clierrors.ExitGeneral
}
