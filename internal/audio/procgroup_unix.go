//go:build unix

package audio

import (
	"os/exec"
	"syscall"
)

// detach starts parec in its own process group. A terminal interrupt then
// stops the recorder first, and the recorder closes the source.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
