//go:build !unix

package launcher

import (
	"os"
	"os/exec"
)

func setProcessGroup(*exec.Cmd) {}

func terminateGroup(proc *os.Process) error {
	return proc.Kill()
}

// CheckReadable reports whether path can be opened for reading.
func CheckReadable(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}

	return f.Close()
}
