package recorder

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"

	"github.com/omnicapture/agent/internal/encode"
)

// fakeRunner stands in for ffmpeg: the stream encoder's stdin is copied to
// the output file and one-shot runs just create their output.
type fakeRunner struct {
	mu    sync.Mutex
	runs  [][]string
	procs []*fakeProc

	failGIF        bool
	failMux        bool
	failWriteAfter int
}

func (r *fakeRunner) Start(_ context.Context, _ string, args ...string) (encode.Process, error) {
	f, err := os.Create(args[len(args)-1])
	if err != nil {
		return nil, err
	}
	proc := &fakeProc{f: f, failAfter: r.failWriteAfter}
	r.mu.Lock()
	r.procs = append(r.procs, proc)
	r.mu.Unlock()
	return proc, nil
}

// Writes reports how many stdin writes reached the most recent encoder.
func (r *fakeRunner) Writes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.procs) == 0 {
		return 0
	}
	return r.procs[len(r.procs)-1].count()
}

func (r *fakeRunner) Run(_ context.Context, _ string, args ...string) ([]byte, error) {
	r.mu.Lock()
	r.runs = append(r.runs, args)
	r.mu.Unlock()

	out := args[len(args)-1]
	switch {
	case r.failGIF && strings.HasSuffix(out, ".gif"):
		return nil, errors.New("exit status 1")
	case r.failMux && strings.HasSuffix(out, ".mp4"):
		return nil, errors.New("exit status 1")
	}
	return nil, os.WriteFile(out, []byte("encoded output"), 0o644)
}

func (r *fakeRunner) Runs() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.runs...)
}

type fakeProc struct {
	mu        sync.Mutex
	f         *os.File
	writes    int
	failAfter int
	closed    bool
}

func (p *fakeProc) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failAfter > 0 && p.writes >= p.failAfter {
		return 0, errors.New("broken pipe")
	}
	p.writes++
	return p.f.Write(b)
}

func (p *fakeProc) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writes
}

func (p *fakeProc) CloseStdin() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.f.Close()
}

func (p *fakeProc) Wait() error        { return nil }
func (p *fakeProc) Interrupt() error   { return nil }
func (p *fakeProc) Pid() int           { return os.Getpid() }
func (p *fakeProc) StderrTail() string { return "" }

// eventLog records observer callbacks.
type eventLog struct {
	mu       sync.Mutex
	times    []string
	statuses []Status
	finished []string
	errs     []error
}

func (e *eventLog) OnTime(s string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.times = append(e.times, s)
}

func (e *eventLog) OnStatus(s Status) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.statuses = append(e.statuses, s)
}

func (e *eventLog) OnFinished(p string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.finished = append(e.finished, p)
}

func (e *eventLog) OnError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errs = append(e.errs, err)
}

func (e *eventLog) snapshot() (times []string, statuses []Status, finished []string, errs []error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.times...), append([]Status(nil), e.statuses...),
		append([]string(nil), e.finished...), append([]error(nil), e.errs...)
}
