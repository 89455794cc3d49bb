package encode

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// stderrTailSize is how much ffmpeg diagnostic output is kept for errors.
const stderrTailSize = 4096

// Process is a running child whose stdin we feed.
type Process interface {
	io.Writer
	// CloseStdin signals end of input.
	CloseStdin() error
	// Wait blocks until the child exits. Call at most once.
	Wait() error
	// Interrupt asks the child to finish gracefully.
	Interrupt() error
	Pid() int
	// StderrTail returns the last few KB of the child's stderr.
	StderrTail() string
}

// Runner spawns the external encoder. The exec implementation is used in
// production; tests substitute a fake.
type Runner interface {
	// Start launches a long-running child with a stdin pipe.
	Start(ctx context.Context, name string, args ...string) (Process, error)
	// Run executes a one-shot command and returns its combined output.
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs real processes through os/exec.
type ExecRunner struct{}

func (ExecRunner) Start(ctx context.Context, name string, args ...string) (Process, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	detach(cmd)
	tail := &tailBuffer{limit: stderrTailSize}
	cmd.Stderr = tail
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", name, err)
	}
	return &execProcess{cmd: cmd, stdin: stdin, stderr: tail}, nil
}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	detach(cmd)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("%s: %w: %s", name, err, lastLines(out, 5))
	}
	return out, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *tailBuffer
}

func (p *execProcess) Write(b []byte) (int, error) { return p.stdin.Write(b) }
func (p *execProcess) CloseStdin() error           { return p.stdin.Close() }
func (p *execProcess) Wait() error                 { return p.cmd.Wait() }
func (p *execProcess) Pid() int                    { return p.cmd.Process.Pid }
func (p *execProcess) StderrTail() string          { return p.stderr.String() }
func (p *execProcess) Interrupt() error            { return interrupt(p.cmd.Process) }

// tailBuffer keeps only the most recent limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}

// lastLines returns the final n non-empty lines of out joined by " | ".
func lastLines(out []byte, n int) string {
	lines := bytes.Split(bytes.TrimSpace(out), []byte("\n"))
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	parts := make([]string, 0, len(lines))
	for _, l := range lines {
		if s := strings.TrimSpace(string(l)); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " | ")
}
