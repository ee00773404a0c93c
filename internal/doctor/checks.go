package doctor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/cruft-ninja/script-runner/internal/buildinfo"
	"github.com/cruft-ninja/script-runner/internal/catalog"
	"github.com/cruft-ninja/script-runner/internal/launcher"
	"github.com/cruft-ninja/script-runner/internal/procstat"
)

const (
	commandTimeout = 3 * time.Second
	// maxListed caps the unavailable scripts named in a catalog result.
	maxListed = 3
)

func checkInterpreter(ctx context.Context, name string) Result {
	path, err := exec.LookPath(name)
	if err != nil {
		return Result{Status: StatusFail, Message: name + " not found in PATH", Detail: "Install it or set runner.interpreter"}
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	// Not every shell knows --version; finding it is enough to pass.
	out, err := exec.CommandContext(ctx, path, "--version").Output() //nolint:gosec // interpreter comes from local config
	if err != nil {
		return Result{Status: StatusPass, Message: path}
	}

	first, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")

	return Result{Status: StatusPass, Message: first + " at " + path}
}

func checkElevation(ctx context.Context, l *launcher.Launcher) Result {
	cmd := l.ElevationCommand()

	path, err := exec.LookPath(cmd)
	if err != nil {
		return Result{Status: StatusWarn, Message: cmd + " not found in PATH", Detail: "Scripts marked needs_sudo will fail to launch"}
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	grant := "password will be requested"
	if l.ElevationCached(ctx) {
		grant = "cached grant active"
	}

	return Result{Status: StatusPass, Message: fmt.Sprintf("%s (%s)", path, grant)}
}

func checkCatalog(path string) Result {
	cat, err := catalog.Load(path)
	if err != nil {
		return Result{Status: StatusFail, Message: path, Detail: err.Error()}
	}

	var unavailable []string

	for _, s := range cat.Scripts() {
		resolved := cat.Resolve(s)

		switch {
		case launcher.Exists(resolved) != nil:
			unavailable = append(unavailable, resolved)
		case launcher.CheckReadable(resolved) != nil:
			unavailable = append(unavailable, resolved+" (unreadable)")
		}
	}

	msg := fmt.Sprintf("%d script(s) in %s", cat.Len(), path)
	if len(unavailable) == 0 {
		return Result{Status: StatusPass, Message: msg}
	}

	listed := unavailable
	if extra := len(unavailable) - maxListed; extra > 0 {
		listed = append(unavailable[:maxListed:maxListed], fmt.Sprintf("and %d more", extra))
	}

	return Result{
		Status:  StatusWarn,
		Message: fmt.Sprintf("%s, %d unavailable", msg, len(unavailable)),
		Detail:  strings.Join(listed, ", "),
	}
}

// checkHistory creates dir if needed and confirms a file can be written in it.
func checkHistory(dir string) Result {
	if dir == "" {
		return Result{Status: StatusPass, Message: "disabled"}
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return Result{Status: StatusFail, Message: dir, Detail: err.Error()}
	}

	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return Result{Status: StatusFail, Message: dir + " is not writable", Detail: err.Error()}
	}

	_ = f.Close()
	_ = os.Remove(f.Name())

	return Result{Status: StatusPass, Message: dir}
}

func checkVersion() Result {
	info := buildinfo.Current()
	if info.Version == "dev" {
		return Result{Status: StatusWarn, Message: "Development build", Detail: info.String()}
	}

	return Result{Status: StatusPass, Message: info.String()}
}

func checkHost(ctx context.Context) Result {
	host, err := procstat.SampleHost(ctx)
	if err != nil {
		return Result{Status: StatusWarn, Message: "Host metrics unavailable", Detail: err.Error()}
	}

	return Result{
		Status: StatusPass,
		Message: fmt.Sprintf("%d cores, %s of %s memory in use",
			host.CPUCores, procstat.FormatBytes(host.MemoryUsed), procstat.FormatBytes(host.MemoryTotal)),
	}
}
