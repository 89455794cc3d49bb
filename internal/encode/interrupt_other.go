//go:build !unix

package encode

import (
	"os"
	"os/exec"
)

func detach(*exec.Cmd) {}

func interrupt(p *os.Process) error {
	if p == nil {
		return nil
	}
	return p.Kill()
}
