// Package launcher starts catalog scripts as child processes, wrapping them
// in the elevation command when they need privileges.
package launcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/cruft-ninja/script-runner/internal/credential"
)

var (
	// ErrNotFound is returned when the resolved script path does not exist.
	ErrNotFound = errors.New("script not found")
	// ErrAborted is returned when the user cancels the credential prompt.
	ErrAborted = errors.New("aborted by user")
)

// Options configures a Launcher.
type Options struct {
	// Interpreter runs scripts that are not native executables. Default "bash".
	Interpreter string
	// ElevationCommand wraps elevated runs. Default "sudo".
	ElevationCommand string
	Logger           *slog.Logger
}

// Launcher spawns script processes.
type Launcher struct {
	interpreter string
	elevate     string
	logger      *slog.Logger
}

// New creates a Launcher from opts.
func New(opts Options) *Launcher {
	l := &Launcher{
		interpreter: strings.TrimSpace(opts.Interpreter),
		elevate:     strings.TrimSpace(opts.ElevationCommand),
		logger:      opts.Logger,
	}

	if l.interpreter == "" {
		l.interpreter = "bash"
	}

	if l.elevate == "" {
		l.elevate = "sudo"
	}

	if l.logger == nil {
		l.logger = slog.Default()
	}

	return l
}

// Interpreter returns the configured interpreter.
func (l *Launcher) Interpreter() string {
	return l.interpreter
}

// ElevationCommand returns the configured elevation wrapper.
func (l *Launcher) ElevationCommand() string {
	return l.elevate
}

// Request describes one launch.
type Request struct {
	// Path is the absolute script path, already checked with Exists.
	Path      string
	NeedsSudo bool
	// Prompt is passed to the credential requester when a password is needed.
	Prompt credential.Prompt
}

// Exists verifies that path is present on disk, returning ErrNotFound otherwise.
func Exists(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}

		return fmt.Errorf("stat %s: %w", path, err)
	}

	return nil
}

// ElevationCached reports whether the elevation command can run without a
// password. It performs no terminal I/O.
func (l *Launcher) ElevationCached(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, l.elevate, "-n", "true") //nolint:gosec // G204: elevation command comes from local config
	cmd.Stdin = nil
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard

	return cmd.Run() == nil
}

// Launch starts exactly one process for req. Elevated requests first check
// for a cached grant and fall back to asking creds for a password; a
// cancelled prompt returns ErrAborted and starts nothing.
func (l *Launcher) Launch(ctx context.Context, req Request, creds credential.Requester) (*Process, error) {
	argv := l.scriptArgv(req.Path)

	var (
		secret   credential.Secret
		withPass bool
	)

	if req.NeedsSudo {
		if l.ElevationCached(ctx) {
			argv = append([]string{l.elevate, "-n", "--"}, argv...)
		} else {
			if creds == nil {
				return nil, ErrAborted
			}

			var ok bool

			secret, ok = creds.RequestCredential(ctx, req.Prompt)
			if !ok {
				return nil, ErrAborted
			}

			withPass = true
			argv = append([]string{l.elevate, "-S", "-p", "", "--"}, argv...)
		}
	}

	// The script is a trusted catalog entry; argv never contains the credential.
	cmd := exec.Command(argv[0], argv[1:]...) //nolint:gosec // G204: catalog-defined script
	cmd.Dir = filepath.Dir(req.Path)
	setProcessGroup(cmd)

	var stdin io.WriteCloser

	if withPass {
		pipe, err := cmd.StdinPipe()
		if err != nil {
			return nil, err
		}

		stdin = pipe
	}

	// The parent owns the read ends. A background child that inherits the
	// write ends cannot keep Wait from returning.
	stdout, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, err
	}

	stderr, stderrW, err := os.Pipe()
	if err != nil {
		closeAll(stdout, stdoutW)
		return nil, err
	}

	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	err = cmd.Start()

	closeAll(stdoutW, stderrW)

	if err != nil {
		closeAll(stdout, stderr)
		return nil, err
	}

	proc := &Process{
		cmd:      cmd,
		Stdout:   stdout,
		Stderr:   stderr,
		Argv:     argv,
		Elevated: req.NeedsSudo,
	}

	l.logger.Debug("process started",
		slog.String("script.path", req.Path),
		slog.String("command", proc.CommandLine()),
		slog.Int("pid", proc.PID()),
		slog.Bool("elevated", req.NeedsSudo),
		slog.Bool("interactive_auth", withPass),
	)

	if stdin != nil {
		if _, err := io.WriteString(stdin, secret.Reveal()+"\n"); err != nil {
			l.logger.Debug("write to elevation stdin failed", slog.String("error", err.Error()))
		}

		_ = stdin.Close()
	}

	return proc, nil
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}

// scriptArgv builds the un-elevated command. Native executables run
// directly since a shell cannot interpret them; everything else goes
// through the interpreter with no extra arguments.
func (l *Launcher) scriptArgv(path string) []string {
	if isNativeExecutable(path) {
		return []string{path}
	}

	return []string{l.interpreter, path}
}

var nativeMagic = [][]byte{
	{0x7f, 'E', 'L', 'F'},
	{0xfe, 0xed, 0xfa, 0xce},
	{0xfe, 0xed, 0xfa, 0xcf},
	{0xce, 0xfa, 0xed, 0xfe},
	{0xcf, 0xfa, 0xed, 0xfe},
	{0xca, 0xfe, 0xba, 0xbe},
}

func isNativeExecutable(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	head := make([]byte, 4)
	if _, err := io.ReadFull(f, head); err != nil {
		return false
	}

	for _, magic := range nativeMagic {
		if bytes.Equal(head, magic) {
			return true
		}
	}

	return false
}

// Process is a started script.
type Process struct {
	cmd *exec.Cmd

	Stdout io.ReadCloser
	Stderr io.ReadCloser
	// Argv is the executed command line. It never holds the credential.
	Argv     []string
	Elevated bool

	termOnce sync.Once
	termErr  error
}

// PID returns the OS process id.
func (p *Process) PID() int {
	if p.cmd.Process == nil {
		return 0
	}

	return p.cmd.Process.Pid
}

// CommandLine renders Argv for display.
func (p *Process) CommandLine() string {
	parts := make([]string, len(p.Argv))
	for i, a := range p.Argv {
		if a == "" || strings.ContainsAny(a, " \t\"'") {
			a = fmt.Sprintf("%q", a)
		}

		parts[i] = a
	}

	return strings.Join(parts, " ")
}

// Wait blocks until the process exits and returns its exit code. It does not
// wait for the output streams, which stay open while a background child
// still holds them. A process killed by a signal reports the negated signal
// number. The error is non-nil only when the exit status could not be
// determined.
func (p *Process) Wait() (int, error) {
	err := p.cmd.Wait()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return -1, err
	}

	if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return -int(status.Signal()), nil
	}

	return exitErr.ExitCode(), nil
}

// CloseOutput closes the read ends of both output streams. Pending reads
// return os.ErrClosed.
func (p *Process) CloseOutput() error {
	return errors.Join(p.Stdout.Close(), p.Stderr.Close())
}

// Terminate signals the whole process group of the script. Only the first
// call sends the signal.
func (p *Process) Terminate() error {
	if p.cmd.Process == nil {
		return nil
	}

	p.termOnce.Do(func() {
		p.termErr = terminateGroup(p.cmd.Process)
	})

	return p.termErr
}
