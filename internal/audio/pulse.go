package audio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// pactlTimeout bounds each enumeration command.
const pactlTimeout = 5 * time.Second

// PulseBackend talks to PulseAudio or PipeWire (through its pulse server)
// using the pactl and parec command line tools.
type PulseBackend struct {
	PactlPath string
	ParecPath string
}

// NewPulseBackend returns a backend using pactl and parec from PATH.
func NewPulseBackend() *PulseBackend {
	return &PulseBackend{PactlPath: "pactl", ParecPath: "parec"}
}

// Available reports whether both tools are installed.
func (p *PulseBackend) Available() bool {
	if _, err := exec.LookPath(p.PactlPath); err != nil {
		return false
	}
	_, err := exec.LookPath(p.ParecPath)
	return err == nil
}

func (p *PulseBackend) pactl(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, pactlTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.PactlPath, args...)
	detach(cmd)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("pactl %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return string(out), nil
}

// ListDevices returns every pulse source. Sink monitors are reported as
// loopback devices of the sink they monitor.
func (p *PulseBackend) ListDevices(ctx context.Context) ([]Device, error) {
	out, err := p.pactl(ctx, "list", "short", "sources")
	if err != nil {
		return nil, err
	}
	return parseShortSources(out), nil
}

// parseShortSources parses `pactl list short sources`:
// index<TAB>name<TAB>driver<TAB>spec<TAB>state
func parseShortSources(out string) []Device {
	var devices []Device
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		fields := strings.Split(sc.Text(), "\t")
		if len(fields) < 2 {
			continue
		}
		if _, err := strconv.Atoi(strings.TrimSpace(fields[0])); err != nil {
			continue
		}
		name := strings.TrimSpace(fields[1])
		d := Device{ID: name, Name: name}
		if len(fields) >= 4 {
			d.Description = strings.TrimSpace(fields[3])
		}
		if sink, ok := strings.CutSuffix(name, ".monitor"); ok {
			d.IsLoopback = true
			d.Output = sink
		}
		devices = append(devices, d)
	}
	return devices
}

func (p *PulseBackend) DefaultOutput(ctx context.Context) (string, error) {
	return p.defaultDevice(ctx, "get-default-sink", "Default Sink:")
}

func (p *PulseBackend) DefaultInput(ctx context.Context) (string, error) {
	return p.defaultDevice(ctx, "get-default-source", "Default Source:")
}

// defaultDevice asks the server directly and falls back to scraping
// `pactl info` on servers that predate the get-default-* subcommands.
func (p *PulseBackend) defaultDevice(ctx context.Context, subcommand, infoPrefix string) (string, error) {
	if out, err := p.pactl(ctx, subcommand); err == nil {
		if name := strings.TrimSpace(out); name != "" {
			return name, nil
		}
	}
	out, err := p.pactl(ctx, "info")
	if err != nil {
		return "", err
	}
	if name := parseInfoField(out, infoPrefix); name != "" {
		return name, nil
	}
	return "", fmt.Errorf("%s missing from pactl info", strings.TrimSuffix(infoPrefix, ":"))
}

func parseInfoField(out, prefix string) string {
	for _, line := range strings.Split(out, "\n") {
		if v, ok := strings.CutPrefix(strings.TrimSpace(line), prefix); ok {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// Open starts parec on the device, streaming raw float32le stereo at 44.1 kHz.
func (p *PulseBackend) Open(ctx context.Context, device Device) (Source, error) {
	latency := BlockFrames * 1000 / SampleRate
	cmd := exec.Command(p.ParecPath,
		"--device="+device.ID,
		"--format=float32le",
		"--rate="+strconv.Itoa(SampleRate),
		"--channels="+strconv.Itoa(Channels),
		"--latency-msec="+strconv.Itoa(max(latency, 10)),
		"--raw",
	)
	detach(cmd)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("parec stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start parec: %w", err)
	}
	log.Debug("parec started", "device", device.ID, "pid", cmd.Process.Pid)

	return &parecSource{
		cmd:    cmd,
		r:      bufio.NewReaderSize(stdout, BlockFrames*Channels*4*2),
		stderr: &stderr,
	}, nil
}

// parecSource decodes the parec byte stream into float32 samples.
type parecSource struct {
	cmd    *exec.Cmd
	r      io.Reader
	stderr *bytes.Buffer
	raw    []byte

	closeOnce sync.Once
	closeErr  error
}

func (s *parecSource) Read(dst []float32) (int, error) {
	need := len(dst) * 4
	if cap(s.raw) < need {
		s.raw = make([]byte, need)
	}
	raw := s.raw[:need]
	n, err := io.ReadFull(s.r, raw)
	if err != nil && n == 0 {
		return 0, fmt.Errorf("parec: %w", err)
	}
	n -= n % 4
	for i := 0; i < n/4; i++ {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return n / 4, nil
}

func (s *parecSource) Close() error {
	s.closeOnce.Do(func() {
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		err := s.cmd.Wait()
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && !exitErr.Exited() {
			// killed by us
			return
		}
		if err != nil {
			s.closeErr = fmt.Errorf("parec exited: %w: %s", err, strings.TrimSpace(s.stderr.String()))
		}
	})
	return s.closeErr
}

var _ Backend = (*PulseBackend)(nil)
