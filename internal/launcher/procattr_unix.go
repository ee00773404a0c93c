//go:build unix

package launcher

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func terminateGroup(proc *os.Process) error {
	err := unix.Kill(-proc.Pid, unix.SIGTERM)
	if errors.Is(err, unix.ESRCH) {
		return nil
	}

	return err
}

// CheckReadable reports whether the current user may read path.
func CheckReadable(path string) error {
	return unix.Access(path, unix.R_OK)
}
