package encode

import (
	"bytes"
	"context"
	"errors"
	"os"
	"sync"
)

// fakeRunner records invocations instead of spawning processes.
type fakeRunner struct {
	mu      sync.Mutex
	started [][]string
	runs    [][]string
	proc    *fakeProcess
	// runFn handles one-shot runs; nil means success.
	runFn func(args []string) error
}

func (r *fakeRunner) Start(_ context.Context, name string, args ...string) (Process, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, append([]string{name}, args...))
	if r.proc == nil {
		r.proc = &fakeProcess{}
	}
	return r.proc, nil
}

func (r *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	r.mu.Lock()
	r.runs = append(r.runs, append([]string{name}, args...))
	fn := r.runFn
	r.mu.Unlock()
	if fn != nil {
		return nil, fn(args)
	}
	// Mimic ffmpeg by creating the output file.
	return nil, os.WriteFile(args[len(args)-1], []byte("out"), 0o644)
}

type fakeProcess struct {
	mu          sync.Mutex
	buf         bytes.Buffer
	writeErr    error
	closeCalls  int
	waitCalls   int
	interrupted bool
	stderr      string
}

func (p *fakeProcess) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	return p.buf.Write(b)
}

func (p *fakeProcess) CloseStdin() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeCalls++
	if p.closeCalls > 1 {
		return errors.New("close of closed pipe")
	}
	return nil
}

func (p *fakeProcess) Wait() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.waitCalls++
	if p.waitCalls > 1 {
		return errors.New("Wait was already called")
	}
	return nil
}

func (p *fakeProcess) Interrupt() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.interrupted = true
	return nil
}

func (p *fakeProcess) Pid() int           { return 4242 }
func (p *fakeProcess) StderrTail() string { return p.stderr }
