// Package errors defines the user-facing failures scriptrunner commands
// return. main prints the message and hint of a CLIError and exits with
// its code.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Exit codes.
const (
	ExitGeneral   = 1
	ExitAuth      = 2 // elevation refused or aborted
	ExitConfig    = 4 // configuration or catalog
	ExitExecution = 6 // at least one script failed
	ExitUsage     = 64
)

// CLIError is an error with a message for the user, an optional hint on
// what to do next and the process exit code.
type CLIError struct {
	Message string
	Hint    string
	Cause   error
	Code    int
}

func (e *CLIError) Error() string {
	if e.Cause == nil {
		return e.Message
	}

	return e.Message + ": " + e.Cause.Error()
}

func (e *CLIError) Unwrap() error { return e.Cause }

// New returns a CLIError without a hint or cause.
func New(code int, message string) *CLIError {
	return &CLIError{Message: message, Code: code}
}

// WithHint sets the hint and returns e.
func (e *CLIError) WithHint(hint string) *CLIError {
	e.Hint = hint
	return e
}

// As finds the first CLIError in err's chain.
func As(err error, target **CLIError) bool {
	return errors.As(err, target)
}

func failure(code int, cause error, hint, format string, args ...any) *CLIError {
	return &CLIError{Message: fmt.Sprintf(format, args...), Hint: hint, Cause: cause, Code: code}
}

const (
	hintConfigDir = "Check file permissions for your scriptrunner config directory or run 'scriptrunner doctor'"
	hintCatalog   = "Pass --catalog or set catalog.path with 'scriptrunner config set catalog.path <file>'"
	hintFormat    = "The catalog must be a list of entries with at least a path (JSON, YAML or TOML)"
	hintList      = "Run 'scriptrunner list' to see available scripts"
	hintHistory   = "Run 'scriptrunner history view' to inspect the captured output"
	hintSudo      = "Run from a terminal, or prime the sudo timestamp with 'sudo -v' first"
)

// CannotPrompt reports that what would need a prompt but input is not
// interactive.
func CannotPrompt(what string) *CLIError {
	return failure(ExitUsage, nil, hintSudo, "Cannot prompt for %s in non-interactive mode", what)
}

// ConfigFailed reports a failed read or write of the config file.
func ConfigFailed(operation string, cause error) *CLIError {
	return failure(ExitConfig, cause, hintConfigDir, "Failed to %s", operation)
}

func CatalogNotFound(path string) *CLIError {
	return failure(ExitConfig, nil, hintCatalog, "Script catalog not found: %s", path)
}

func CatalogInvalid(path string, cause error) *CLIError {
	return failure(ExitConfig, cause, hintFormat, "Invalid script catalog: %s", path)
}

// ScriptUnknown reports a script reference that matches no catalog entry.
func ScriptUnknown(ref string) *CLIError {
	return failure(ExitUsage, nil, hintList, "Script not in catalog: %s", ref)
}

// RunFailed summarizes the scripts of a headless run that did not complete.
func RunFailed(failed []string) *CLIError {
	return failure(ExitExecution, nil, hintHistory, "%d script(s) failed: %s", len(failed), strings.Join(failed, ", "))
}

// ElevationAborted reports that the sudo prompt was dismissed.
func ElevationAborted() *CLIError {
	return New(ExitAuth, "Elevation aborted by user")
}

func InterpreterNotFound(name string) *CLIError {
	return failure(ExitConfig, nil, "Install it or set runner.interpreter to an available shell", "Interpreter not found: %s", name)
}

// InvalidCeiling reports a concurrency limit outside [lowest, highest].
func InvalidCeiling(value, lowest, highest int) *CLIError {
	return failure(ExitUsage, nil, fmt.Sprintf("Choose a value between %d and %d", lowest, highest), "Invalid concurrency limit: %d", value)
}
