//go:build unix

package encode

import (
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// detach puts the child in its own process group so a terminal Ctrl+C
// reaches only the recorder, which then finalizes ffmpeg itself.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// interrupt sends SIGINT, which ffmpeg treats as "finish the file and exit".
func interrupt(p *os.Process) error {
	if p == nil {
		return nil
	}
	return unix.Kill(p.Pid, unix.SIGINT)
}
